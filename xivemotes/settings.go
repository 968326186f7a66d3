package xivemotes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// DefaultPrefix marks emote commands in guilds that haven't configured
// their own prefix, and in direct messages.
const DefaultPrefix = "!"

// Preference is a saved (language, gender) pair. It only exists for
// rows that have been explicitly configured; unconfigured rows hold
// placeholder defaults which are never surfaced as a Preference.
type Preference struct {
	Language Language `json:"language"`
	Gender   Gender   `json:"gender"`
}

// SettingsSource identifies which precedence level produced the
// effective settings.
type SettingsSource string

const (
	SettingsSourceUser    SettingsSource = "user"
	SettingsSourceGuild   SettingsSource = "guild"
	SettingsSourceDefault SettingsSource = "default"
)

// Settings is the effective display configuration for one message
// context, after precedence resolution.
type Settings struct {
	Language Language       `json:"language"`
	Gender   Gender         `json:"gender"`
	Prefix   string         `json:"prefix"`
	Source   SettingsSource `json:"source"`
}

func (s Settings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("language", s.Language.String()),
		slog.String("gender", s.Gender.String()),
		slog.String("prefix", s.Prefix),
		slog.String("source", string(s.Source)),
	)
}

// resolveSettings applies the precedence rules to already-loaded rows.
// The outcome is total and deterministic: a configured user wins
// outright; otherwise a present, configured guild applies; otherwise
// defaults. Language and gender always come from a single source, never
// merged across sources. The prefix is guild-scoped only.
func resolveSettings(user *User, guild *Guild) Settings {
	settings := Settings{
		Language: DefaultLanguage,
		Gender:   DefaultGender,
		Prefix:   DefaultPrefix,
		Source:   SettingsSourceDefault,
	}
	if guild != nil && guild.Prefix != "" {
		settings.Prefix = guild.Prefix
	}

	if p, ok := user.Preference(); ok {
		settings.Language = p.Language
		settings.Gender = p.Gender
		settings.Source = SettingsSourceUser
		return settings
	}
	if p, ok := guild.Preference(); ok {
		settings.Language = p.Language
		settings.Gender = p.Gender
		settings.Source = SettingsSourceGuild
		return settings
	}
	return settings
}

// EffectiveSettings resolves the display settings for a message
// context by surrogate key. guildID is nil for direct messages, which
// also yields the global default prefix.
func (s *Store) EffectiveSettings(
	ctx context.Context,
	userID uint,
	guildID *uint,
) (Settings, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	var user User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return Settings{}, fmt.Errorf("error loading user %d: %w", userID, err)
	}

	var guild *Guild
	if guildID != nil {
		var g Guild
		if err := s.db.WithContext(ctx).First(&g, *guildID).Error; err != nil {
			return Settings{}, fmt.Errorf("error loading guild %d: %w", *guildID, err)
		}
		guild = &g
	}

	return resolveSettings(&user, guild), nil
}

// SetUserPreference updates only the supplied fields of the user's
// display settings and marks the row as explicitly configured.
// Repeated calls are idempotent; last write wins, no history is kept.
func (s *Store) SetUserPreference(
	ctx context.Context,
	userID uint,
	language *Language,
	gender *Gender,
) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	values := map[string]any{
		"is_set":     true,
		"updated_at": time.Now().UTC().UnixMilli(),
	}
	if language != nil {
		values["language"] = *language
	}
	if gender != nil {
		values["gender"] = *gender
	}

	s.lock()
	defer s.unlock()
	rv := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(values)
	if rv.Error != nil {
		return fmt.Errorf("error updating user %d settings: %w", userID, rv.Error)
	}
	if rv.RowsAffected == 0 {
		return fmt.Errorf("error updating user %d settings: %w", userID, gorm.ErrRecordNotFound)
	}
	s.logger.InfoContext(ctx, "updated user settings", "user_id", userID)
	return nil
}

// SetGuildPreference updates only the supplied fields of the guild's
// display settings. Supplying a language or gender marks the row as
// explicitly configured; a prefix-only update does not, since the
// prefix is not part of the display preference.
func (s *Store) SetGuildPreference(
	ctx context.Context,
	guildID uint,
	language *Language,
	gender *Gender,
	prefix *string,
) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	values := map[string]any{
		"updated_at": time.Now().UTC().UnixMilli(),
	}
	if language != nil {
		values["language"] = *language
		values["is_set"] = true
	}
	if gender != nil {
		values["gender"] = *gender
		values["is_set"] = true
	}
	if prefix != nil {
		values["prefix"] = *prefix
	}

	s.lock()
	defer s.unlock()
	rv := s.db.WithContext(ctx).Model(&Guild{}).Where("id = ?", guildID).Updates(values)
	if rv.Error != nil {
		return fmt.Errorf("error updating guild %d settings: %w", guildID, rv.Error)
	}
	if rv.RowsAffected == 0 {
		return fmt.Errorf("error updating guild %d settings: %w", guildID, gorm.ErrRecordNotFound)
	}
	s.logger.InfoContext(ctx, "updated guild settings", "guild_id", guildID)
	return nil
}
