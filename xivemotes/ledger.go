package xivemotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrEmoteNotFound indicates an invocation referenced an emote that was
// never registered. The ledger never fabricates catalog rows from log
// events; the registrar is the only writer of the emote table, so this
// error means catalog sync hasn't run.
var ErrEmoteNotFound = errors.New("emote not registered")

// RecordInvocation appends one EmoteLog for an emote invocation, plus
// one EmoteLogTag per distinct tagged user. The whole write is a single
// transaction: either the log and all its tags are durably recorded, or
// nothing is. Duplicate tagged user keys collapse to one row without
// error. Returns the new log's surrogate key.
//
// The emote is looked up by its external game ID and must already be
// registered; a miss returns ErrEmoteNotFound and writes nothing.
func (s *Store) RecordInvocation(
	ctx context.Context,
	userID uint,
	guildID *uint,
	emoteXIVID int,
	sentAt time.Time,
	taggedUserIDs []uint,
) (uint, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	var logID uint
	s.lock()
	defer s.unlock()
	err := s.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			var emote Emote
			if err := tx.Where("xiv_id = ?", emoteXIVID).First(&emote).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("emote %d: %w", emoteXIVID, ErrEmoteNotFound)
				}
				return fmt.Errorf("error looking up emote %d: %w", emoteXIVID, err)
			}

			emoteLog := EmoteLog{
				UserID:  userID,
				GuildID: guildID,
				EmoteID: emote.ID,
				SentAt:  sentAt.UTC().UnixMilli(),
			}
			if err := tx.Create(&emoteLog).Error; err != nil {
				return fmt.Errorf("error creating emote log: %w", err)
			}
			logID = emoteLog.ID

			tags := make([]EmoteLogTag, 0, len(taggedUserIDs))
			seen := make(map[uint]struct{}, len(taggedUserIDs))
			for _, tagged := range taggedUserIDs {
				if _, dup := seen[tagged]; dup {
					continue
				}
				seen[tagged] = struct{}{}
				tags = append(
					tags,
					EmoteLogTag{EmoteLogID: emoteLog.ID, UserID: tagged},
				)
			}
			if len(tags) == 0 {
				return nil
			}
			// OnConflict DoNothing backstops the in-memory dedupe so a
			// repeated (log, user) pair is ignored rather than failing
			// the transaction.
			if err := tx.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{
						{Name: "emote_log_id"}, {Name: "user_id"},
					},
					DoNothing: true,
				},
			).Create(&tags).Error; err != nil {
				return fmt.Errorf("error creating emote log tags: %w", err)
			}
			return nil
		},
	)
	if err != nil {
		return 0, err
	}
	s.logger.DebugContext(
		ctx,
		"recorded invocation",
		"log_id", logID,
		"user_id", userID,
		"tags", len(taggedUserIDs),
	)
	return logID, nil
}
