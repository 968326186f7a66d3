package xivemotes

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitByMaxMessageLen(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, splitByMaxMessageLen("Emotes", nil))
	})

	t.Run("single message", func(t *testing.T) {
		got := splitByMaxMessageLen("Emotes", []string{"/hug", "/wave"})
		require.Len(t, got, 1)
		assert.Equal(t, "Emotes (1/1): /hug, /wave", got[0])
	})

	t.Run("splits under the cap", func(t *testing.T) {
		items := make([]string, 500)
		for i := range items {
			items[i] = fmt.Sprintf("/emote%03d", i)
		}
		got := splitByMaxMessageLen("Emotes", items)
		require.Greater(t, len(got), 1)

		var rejoined []string
		for i, msg := range got {
			assert.LessOrEqual(t, len(msg), discordMaxMessageLength)
			prefix := fmt.Sprintf("Emotes (%d/%d): ", i+1, len(got))
			require.True(
				t,
				strings.HasPrefix(msg, prefix),
				"message %d missing prefix %q", i, prefix,
			)
			rejoined = append(
				rejoined,
				strings.Split(strings.TrimPrefix(msg, prefix), ", ")...,
			)
		}
		// no item lost or reordered across the split
		assert.Equal(t, items, rejoined)
	})
}

func TestGenerateRandomHexString(t *testing.T) {
	t.Parallel()
	a, err := generateRandomHexString(12)
	require.NoError(t, err)
	assert.Len(t, a, 24)

	b, err := generateRandomHexString(12)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
