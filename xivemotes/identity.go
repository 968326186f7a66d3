package xivemotes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// discordIDWidth is the fixed width external IDs are padded to before
// storage, so snowflakes of different lengths sort and compare
// consistently as strings.
const discordIDWidth = 20

// PadDiscordID left-pads a snowflake ID with zeroes to the fixed
// storage width. Already-padded IDs pass through unchanged.
func PadDiscordID(id string) string {
	if len(id) >= discordIDWidth {
		return id
	}
	return strings.Repeat("0", discordIDWidth-len(id)) + id
}

// ResolveUser maps a Discord user snowflake to its internal row,
// creating the row with placeholder defaults on first sight. Safe to
// call concurrently for the same ID: the unique index on discord_id is
// the authority, and a losing concurrent insert is recovered by
// re-reading the winning row.
func (s *Store) ResolveUser(ctx context.Context, discordID string) (*User, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	discordID = PadDiscordID(discordID)

	var user User
	err := s.db.WithContext(ctx).Where("discord_id = ?", discordID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error looking up user %s: %w", discordID, err)
	}

	user = User{
		DiscordID:  discordID,
		Language:   DefaultLanguage,
		Gender:     DefaultGender,
		Configured: false,
	}
	s.lock()
	err = s.db.WithContext(ctx).Create(&user).Error
	s.unlock()
	if err == nil {
		s.logger.InfoContext(ctx, "created user", "user", &user)
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("error creating user %s: %w", discordID, err)
	}

	// Lost a first-sight race; the winner's row is authoritative.
	if err = s.db.WithContext(ctx).Where(
		"discord_id = ?", discordID,
	).First(&user).Error; err != nil {
		return nil, fmt.Errorf(
			"error re-reading user %s after insert conflict: %w", discordID, err,
		)
	}
	return &user, nil
}

// ResolveGuild maps a Discord guild snowflake to its internal row,
// creating the row with placeholder defaults and the default prefix on
// first sight. Concurrency behavior matches ResolveUser.
func (s *Store) ResolveGuild(ctx context.Context, discordID string) (*Guild, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	discordID = PadDiscordID(discordID)

	var guild Guild
	err := s.db.WithContext(ctx).Where("discord_id = ?", discordID).First(&guild).Error
	if err == nil {
		return &guild, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error looking up guild %s: %w", discordID, err)
	}

	guild = Guild{
		DiscordID:  discordID,
		Language:   DefaultLanguage,
		Gender:     DefaultGender,
		Prefix:     DefaultPrefix,
		Configured: false,
	}
	s.lock()
	err = s.db.WithContext(ctx).Create(&guild).Error
	s.unlock()
	if err == nil {
		s.logger.InfoContext(ctx, "created guild", "guild", &guild)
		return &guild, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("error creating guild %s: %w", discordID, err)
	}

	if err = s.db.WithContext(ctx).Where(
		"discord_id = ?", discordID,
	).First(&guild).Error; err != nil {
		return nil, fmt.Errorf(
			"error re-reading guild %s after insert conflict: %w", discordID, err,
		)
	}
	return &guild, nil
}
