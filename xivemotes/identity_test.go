package xivemotes

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadDiscordID(t *testing.T) {
	assert.Equal(t, strings.Repeat("0", 17)+"123", PadDiscordID("123"))
	assert.Len(t, PadDiscordID("90073773696"), discordIDWidth)

	// already at full width: unchanged
	full := strings.Repeat("9", discordIDWidth)
	assert.Equal(t, full, PadDiscordID(full))
}

func TestResolveUserFirstSight(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	user, err := store.ResolveUser(ctx, "90073773696")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.NotZero(t, user.ID)
	assert.Equal(t, PadDiscordID("90073773696"), user.DiscordID)
	assert.Equal(t, DefaultLanguage, user.Language)
	assert.Equal(t, DefaultGender, user.Gender)
	assert.False(t, user.Configured)

	// placeholder defaults are not a saved preference
	_, ok := user.Preference()
	assert.False(t, ok)

	// resolving again returns the same row, no duplicate
	again, err := store.ResolveUser(ctx, "90073773696")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	var count int64
	require.NoError(
		t,
		store.DB().Model(&User{}).Where(
			"discord_id = ?", user.DiscordID,
		).Count(&count).Error,
	)
	assert.Equal(t, int64(1), count)
}

func TestResolveUserPadsID(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	short, err := store.ResolveUser(ctx, "123")
	require.NoError(t, err)

	padded, err := store.ResolveUser(ctx, PadDiscordID("123"))
	require.NoError(t, err)

	// padded and unpadded forms of the same snowflake are one identity
	assert.Equal(t, short.ID, padded.ID)
}

func TestResolveUserConcurrent(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	const workers = 8
	results := make([]*User, workers)
	errs := make([]error, workers)

	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = store.ResolveUser(ctx, "555555")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		// every caller converges on the same surrogate key
		assert.Equal(t, results[0].ID, results[i].ID)
	}

	var count int64
	require.NoError(
		t,
		store.DB().Model(&User{}).Count(&count).Error,
	)
	assert.Equal(t, int64(1), count)
}

func TestResolveGuildFirstSight(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	guild, err := store.ResolveGuild(ctx, "777")
	require.NoError(t, err)
	require.NotNil(t, guild)

	assert.NotZero(t, guild.ID)
	assert.Equal(t, DefaultPrefix, guild.Prefix)
	assert.False(t, guild.Configured)

	_, ok := guild.Preference()
	assert.False(t, ok)

	again, err := store.ResolveGuild(ctx, "777")
	require.NoError(t, err)
	assert.Equal(t, guild.ID, again.ID)
}
