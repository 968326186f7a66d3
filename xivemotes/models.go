package xivemotes

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// Language is a display language for emote log messages.
type Language int

const (
	LanguageEN Language = iota
	LanguageJA
)

// DefaultLanguage is applied when neither the user nor the guild has
// explicitly saved settings.
const DefaultLanguage = LanguageEN

func (l Language) String() string {
	switch l {
	case LanguageJA:
		return "ja"
	default:
		return "en"
	}
}

// Localized returns the display name of l in the given language.
func (l Language) Localized(in Language) string {
	switch in {
	case LanguageJA:
		if l == LanguageJA {
			return "日本語"
		}
		return "英語"
	default:
		if l == LanguageJA {
			return "Japanese"
		}
		return "English"
	}
}

// ParseLanguage converts a slash command option value to a Language.
func ParseLanguage(s string) (Language, error) {
	switch s {
	case "en":
		return LanguageEN, nil
	case "ja":
		return LanguageJA, nil
	default:
		return DefaultLanguage, fmt.Errorf("unknown language: %q", s)
	}
}

// Gender selects gender-inflected grammar in emote log messages.
type Gender int

const (
	GenderMale Gender = iota
	GenderFemale
)

const DefaultGender = GenderMale

func (g Gender) String() string {
	switch g {
	case GenderFemale:
		return "f"
	default:
		return "m"
	}
}

// Localized returns the display name of g in the given language.
func (g Gender) Localized(in Language) string {
	switch in {
	case LanguageJA:
		if g == GenderFemale {
			return "女性"
		}
		return "男性"
	default:
		if g == GenderFemale {
			return "Female"
		}
		return "Male"
	}
}

// ParseGender converts a slash command option value to a Gender.
func ParseGender(s string) (Gender, error) {
	switch s {
	case "m":
		return GenderMale, nil
	case "f":
		return GenderFemale, nil
	default:
		return DefaultGender, fmt.Errorf("unknown gender: %q", s)
	}
}

// ModelUnixTime is an embeddable model with Unix timestamps for
// creation, update, and deletion, stored in milliseconds.
type ModelUnixTime struct {
	CreatedAt int64          `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// User is a record of a Discord user's display settings. Rows are
// created lazily the first time a user is seen, with default values
// and Configured=false; the defaults are placeholders and must not be
// treated as the user's own preference until the user has explicitly
// saved settings (which flips Configured to true).
type User struct {
	ModelUintID
	ModelUnixTime

	// DiscordID is the user's snowflake ID, zero-padded to a fixed
	// width. Unique for the lifetime of the row; the row is never
	// re-keyed or deleted.
	DiscordID string `json:"discord_id" gorm:"uniqueIndex;not null;type:string"`

	Language Language `json:"language" gorm:"not null;default:0"`
	Gender   Gender   `json:"gender" gorm:"not null;default:0"`

	// Configured is false until the user explicitly saves settings.
	Configured bool `json:"configured" gorm:"column:is_set;not null;default:false"`
}

// Preference returns the user's saved display preference, with ok=false
// while the row still holds placeholder defaults. Callers must not use
// the returned value when ok is false.
func (u *User) Preference() (p Preference, ok bool) {
	if u == nil || !u.Configured {
		return Preference{}, false
	}
	return Preference{Language: u.Language, Gender: u.Gender}, true
}

func (u *User) LogValue() slog.Value {
	if u == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.Uint64("id", uint64(u.ID)),
		slog.String("discord_id", u.DiscordID),
		slog.String("language", u.Language.String()),
		slog.String("gender", u.Gender.String()),
		slog.Bool("configured", u.Configured),
	)
}

// Guild is a record of a Discord guild's display settings, with the
// same lazy-creation lifecycle as User. Guilds additionally own the
// command prefix used to detect emote commands in guild channels.
type Guild struct {
	ModelUintID
	ModelUnixTime

	DiscordID string `json:"discord_id" gorm:"uniqueIndex;not null;type:string"`

	Language Language `json:"language" gorm:"not null;default:0"`
	Gender   Gender   `json:"gender" gorm:"not null;default:0"`

	// Prefix marks emote commands in this guild's channels.
	Prefix string `json:"prefix" gorm:"not null;default:'!'"`

	Configured bool `json:"configured" gorm:"column:is_set;not null;default:false"`
}

// Preference returns the guild's saved display preference, with
// ok=false while the row holds placeholder defaults.
func (g *Guild) Preference() (p Preference, ok bool) {
	if g == nil || !g.Configured {
		return Preference{}, false
	}
	return Preference{Language: g.Language, Gender: g.Gender}, true
}

func (g *Guild) LogValue() slog.Value {
	if g == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.Uint64("id", uint64(g.ID)),
		slog.String("discord_id", g.DiscordID),
		slog.String("language", g.Language.String()),
		slog.String("gender", g.Gender.String()),
		slog.String("prefix", g.Prefix),
		slog.Bool("configured", g.Configured),
	)
}

// Emote is a registered emote definition, mapping the game's emote ID
// to its text command. Rows are upserted during catalog sync and never
// deleted; the command for a given XIVID is immutable after first
// registration.
type Emote struct {
	ModelUintID
	ModelUnixTime

	// XIVID is the emote's ID in the game data.
	XIVID int `json:"xiv_id" gorm:"column:xiv_id;uniqueIndex;not null"`

	// Command is the emote's text command, including the leading
	// slash (ex: "/hug").
	Command string `json:"command" gorm:"uniqueIndex;not null"`
}

// EmoteLog records a single emote invocation. Append-only: rows are
// never mutated or deleted.
type EmoteLog struct {
	ModelUintID
	ModelUnixTime

	// UserID is the surrogate key of the invoking user.
	UserID uint  `json:"user_id" gorm:"index;not null"`
	User   *User `json:"-"`

	// GuildID is nil for direct messages.
	GuildID *uint  `json:"guild_id,omitempty" gorm:"index"`
	Guild   *Guild `json:"-"`

	EmoteID uint   `json:"emote_id" gorm:"index;not null"`
	Emote   *Emote `json:"-"`

	// SentAt is the Discord message timestamp in milliseconds, as
	// opposed to the row timestamps in ModelUnixTime.
	SentAt int64 `json:"sent_at" gorm:"index;not null"`
}

// EmoteLogTag records a user tagged (mentioned) in an emote invocation.
// The (log, user) pair is unique: tagging the same user twice in one
// invocation collapses to one row. Tags are written in the same
// transaction as their EmoteLog.
type EmoteLogTag struct {
	ModelUintID
	ModelUnixTime

	EmoteLogID uint      `json:"emote_log_id" gorm:"uniqueIndex:idx_emote_log_tag;not null"`
	EmoteLog   *EmoteLog `json:"-"`

	UserID uint  `json:"user_id" gorm:"uniqueIndex:idx_emote_log_tag;not null"`
	User   *User `json:"-"`
}
