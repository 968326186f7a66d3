package xivemotes

import (
	"context"
	"fmt"
)

// UsageQuery selects a slice of the emote ledger to count. Zero-value
// fields are unconstrained: an empty query counts every invocation.
// Received=true counts tag rows (emotes received) instead of log rows
// (emotes sent).
type UsageQuery struct {
	// UserID constrains to one user: the invoker for sent counts, the
	// tagged user for received counts.
	UserID *uint

	// GuildID constrains to invocations made in one guild.
	GuildID *uint

	// Received counts emotes the user was tagged in, rather than
	// emotes they sent.
	Received bool
}

func (q UsageQuery) String() string {
	s := "sent"
	if q.Received {
		s = "received"
	}
	if q.UserID != nil && q.GuildID != nil {
		return fmt.Sprintf("%s user=%d guild=%d", s, *q.UserID, *q.GuildID)
	}
	if q.UserID != nil {
		return fmt.Sprintf("%s user=%d", s, *q.UserID)
	}
	if q.GuildID != nil {
		return fmt.Sprintf("%s guild=%d", s, *q.GuildID)
	}
	return s
}

// UsageCount counts ledger entries matching the query.
func (s *Store) UsageCount(ctx context.Context, q UsageQuery) (int64, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	var count int64
	if q.Received {
		tx := s.db.WithContext(ctx).Model(&EmoteLogTag{}).Joins(
			"JOIN emote_logs ON emote_logs.id = emote_log_tags.emote_log_id",
		)
		if q.UserID != nil {
			tx = tx.Where("emote_log_tags.user_id = ?", *q.UserID)
		}
		if q.GuildID != nil {
			tx = tx.Where("emote_logs.guild_id = ?", *q.GuildID)
		}
		if err := tx.Count(&count).Error; err != nil {
			return 0, fmt.Errorf("error counting received emotes (%s): %w", q, err)
		}
		return count, nil
	}

	tx := s.db.WithContext(ctx).Model(&EmoteLog{})
	if q.UserID != nil {
		tx = tx.Where("user_id = ?", *q.UserID)
	}
	if q.GuildID != nil {
		tx = tx.Where("guild_id = ?", *q.GuildID)
	}
	if err := tx.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting sent emotes (%s): %w", q, err)
	}
	return count, nil
}

// UsageStats bundles the sent/received counts served by the stats
// command and the HTTP API.
type UsageStats struct {
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
}

// UserUsageStats returns sent/received counts for one user, optionally
// scoped to a guild.
func (s *Store) UserUsageStats(
	ctx context.Context,
	userID uint,
	guildID *uint,
) (UsageStats, error) {
	sent, err := s.UsageCount(ctx, UsageQuery{UserID: &userID, GuildID: guildID})
	if err != nil {
		return UsageStats{}, err
	}
	received, err := s.UsageCount(
		ctx,
		UsageQuery{UserID: &userID, GuildID: guildID, Received: true},
	)
	if err != nil {
		return UsageStats{}, err
	}
	return UsageStats{Sent: sent, Received: received}, nil
}

// GuildUsageStats returns sent/received counts across a whole guild.
func (s *Store) GuildUsageStats(ctx context.Context, guildID uint) (UsageStats, error) {
	sent, err := s.UsageCount(ctx, UsageQuery{GuildID: &guildID})
	if err != nil {
		return UsageStats{}, err
	}
	received, err := s.UsageCount(ctx, UsageQuery{GuildID: &guildID, Received: true})
	if err != nil {
		return UsageStats{}, err
	}
	return UsageStats{Sent: sent, Received: received}, nil
}

// statsMessage renders a stats reply in the resolver's language,
// following the original bot's phrasing.
func statsMessage(q UsageQuery, count int64, language Language, mention string) string {
	if language == LanguageJA {
		switch {
		case q.Received && q.UserID != nil:
			return fmt.Sprintf("今まで%sが%d件のエモートを受信されています！", mention, count)
		case q.Received:
			return fmt.Sprintf("今までこのサーバーで%d件のエモートが受信されています！", count)
		case q.UserID != nil:
			return fmt.Sprintf("今まで%sが%d件のエモートを送信されています！", mention, count)
		default:
			return fmt.Sprintf("今までこのサーバーで%d件のエモートが送信されています！", count)
		}
	}
	switch {
	case q.Received && q.UserID != nil:
		return fmt.Sprintf("There have been %d emotes received by %s thus far!", count, mention)
	case q.Received:
		return fmt.Sprintf("There have been %d emotes received thus far in this guild!", count)
	case q.UserID != nil:
		return fmt.Sprintf("There have been %d emotes sent by %s thus far!", count, mention)
	default:
		return fmt.Sprintf("There have been %d emotes sent thus far in this guild!", count)
	}
}
