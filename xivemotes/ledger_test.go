package xivemotes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordInvocation(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	emote := registerTestEmote(t, store, 105, "/hug")

	sender, err := store.ResolveUser(ctx, "100")
	require.NoError(t, err)
	guild, err := store.ResolveGuild(ctx, "200")
	require.NoError(t, err)
	tagged1, err := store.ResolveUser(ctx, "101")
	require.NoError(t, err)
	tagged2, err := store.ResolveUser(ctx, "102")
	require.NoError(t, err)

	sentAt := time.Now()
	logID, err := store.RecordInvocation(
		ctx,
		sender.ID,
		&guild.ID,
		105,
		sentAt,
		[]uint{tagged1.ID, tagged2.ID},
	)
	require.NoError(t, err)
	require.NotZero(t, logID)

	var emoteLog EmoteLog
	require.NoError(t, store.DB().First(&emoteLog, logID).Error)
	assert.Equal(t, sender.ID, emoteLog.UserID)
	require.NotNil(t, emoteLog.GuildID)
	assert.Equal(t, guild.ID, *emoteLog.GuildID)
	assert.Equal(t, emote.ID, emoteLog.EmoteID)
	assert.Equal(t, sentAt.UTC().UnixMilli(), emoteLog.SentAt)

	var tags []EmoteLogTag
	require.NoError(
		t,
		store.DB().Where("emote_log_id = ?", logID).Order("user_id").Find(&tags).Error,
	)
	require.Len(t, tags, 2)
	assert.Equal(t, tagged1.ID, tags[0].UserID)
	assert.Equal(t, tagged2.ID, tags[1].UserID)
}

func TestRecordInvocationDeduplicatesTags(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	registerTestEmote(t, store, 180, "/wave")

	sender, err := store.ResolveUser(ctx, "100")
	require.NoError(t, err)
	tagged, err := store.ResolveUser(ctx, "101")
	require.NoError(t, err)

	logID, err := store.RecordInvocation(
		ctx,
		sender.ID,
		nil,
		180,
		time.Now(),
		[]uint{tagged.ID, tagged.ID, tagged.ID},
	)
	require.NoError(t, err)

	var count int64
	require.NoError(
		t,
		store.DB().Model(&EmoteLogTag{}).
			Where("emote_log_id = ?", logID).
			Count(&count).Error,
	)
	assert.Equal(t, int64(1), count)
}

func TestRecordInvocationUnregisteredEmote(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	sender, err := store.ResolveUser(ctx, "100")
	require.NoError(t, err)
	tagged, err := store.ResolveUser(ctx, "101")
	require.NoError(t, err)

	_, err = store.RecordInvocation(
		ctx,
		sender.ID,
		nil,
		9999,
		time.Now(),
		[]uint{tagged.ID},
	)
	require.ErrorIs(t, err, ErrEmoteNotFound)

	// nothing written, not even the tags
	var logCount, tagCount int64
	require.NoError(t, store.DB().Model(&EmoteLog{}).Count(&logCount).Error)
	require.NoError(t, store.DB().Model(&EmoteLogTag{}).Count(&tagCount).Error)
	assert.Zero(t, logCount)
	assert.Zero(t, tagCount)
}

func TestRecordInvocationDirectMessage(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	registerTestEmote(t, store, 105, "/hug")
	sender, err := store.ResolveUser(ctx, "100")
	require.NoError(t, err)

	logID, err := store.RecordInvocation(ctx, sender.ID, nil, 105, time.Now(), nil)
	require.NoError(t, err)

	var emoteLog EmoteLog
	require.NoError(t, store.DB().First(&emoteLog, logID).Error)
	assert.Nil(t, emoteLog.GuildID)

	var tagCount int64
	require.NoError(
		t,
		store.DB().Model(&EmoteLogTag{}).
			Where("emote_log_id = ?", logID).
			Count(&tagCount).Error,
	)
	assert.Zero(t, tagCount)
}
