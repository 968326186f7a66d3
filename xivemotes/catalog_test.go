package xivemotes

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterEmoteIdempotent(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterEmote(ctx, 105, "/hug"))

	var first Emote
	require.NoError(t, store.DB().Where("xiv_id = ?", 105).First(&first).Error)
	assert.Equal(t, "/hug", first.Command)

	// re-registering only bumps the update timestamp
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.RegisterEmote(ctx, 105, "/hug"))

	var second Emote
	require.NoError(t, store.DB().Where("xiv_id = ?", 105).First(&second).Error)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Command, second.Command)
	assert.Greater(t, second.UpdatedAt, first.UpdatedAt)

	var count int64
	require.NoError(t, store.DB().Model(&Emote{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// The stored command is immutable after first registration. A conflict
// on the game ID never rewrites it, even when the source data changed.
func TestRegisterEmoteCommandImmutable(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterEmote(ctx, 42, "/wave"))
	require.NoError(t, store.RegisterEmote(ctx, 42, "/renamed"))

	var emote Emote
	require.NoError(t, store.DB().Where("xiv_id = ?", 42).First(&emote).Error)
	assert.Equal(t, "/wave", emote.Command)
}

type stubEmoteSource struct {
	defs []EmoteDefinition
	err  error

	calls int
}

func (s *stubEmoteSource) ListEmotes(context.Context) ([]EmoteDefinition, error) {
	s.calls++
	return s.defs, s.err
}

func testEmoteDefs() []EmoteDefinition {
	return []EmoteDefinition{
		{
			ID:      105,
			Name:    "Hug",
			Command: "/hug",
			Aliases: []string{"/embrace"},
			EN: MessagePair{
				Targeted:   "ObjectParameter(1) gives ObjectParameter(2) a hug.",
				Untargeted: "ObjectParameter(1) hugs <If(PlayerParameter(5))>himself<Else/>herself</If>.",
			},
			JA: MessagePair{
				Targeted:   "ObjectParameter(1)はObjectParameter(2)を抱きしめた。",
				Untargeted: "ObjectParameter(1)は自分を抱きしめた。",
			},
		},
		{
			ID:      180,
			Name:    "Wave",
			Command: "/wave",
			EN: MessagePair{
				Targeted:   "ObjectParameter(1) waves to ObjectParameter(2).",
				Untargeted: "ObjectParameter(1) waves.",
			},
			JA: MessagePair{
				Targeted:   "ObjectParameter(1)はObjectParameter(2)に手を振った。",
				Untargeted: "ObjectParameter(1)は手を振った。",
			},
		},
	}
}

func setupTestCatalog(t testing.TB, store *Store) (*Catalog, *stubEmoteSource) {
	t.Helper()
	source := &stubEmoteSource{defs: testEmoteDefs()}
	catalog := NewCatalog(source, store, slog.Default())
	require.NoError(t, catalog.Sync(context.Background()))
	return catalog, source
}

func TestCatalogSync(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	catalog, _ := setupTestCatalog(t, store)

	assert.Equal(t, 2, catalog.Len())
	assert.Equal(t, []string{"/hug", "/wave"}, catalog.Commands())

	// every synced definition is registered in the store
	var count int64
	require.NoError(t, store.DB().Model(&Emote{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// lookup works with and without the leading slash, and by alias
	def, ok := catalog.Lookup("/hug")
	require.True(t, ok)
	assert.Equal(t, 105, def.ID)

	def, ok = catalog.Lookup("hug")
	require.True(t, ok)
	assert.Equal(t, 105, def.ID)

	def, ok = catalog.Lookup("embrace")
	require.True(t, ok)
	assert.Equal(t, 105, def.ID)

	_, ok = catalog.Lookup("floss")
	assert.False(t, ok)
}

func TestCatalogSyncFailureKeepsOldCatalog(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	catalog, source := setupTestCatalog(t, store)

	source.defs = nil
	source.err = errors.New("upstream down")

	err := catalog.Sync(context.Background())
	require.Error(t, err)

	// the previous tables stay in service
	assert.Equal(t, 2, catalog.Len())
	_, ok := catalog.Lookup("hug")
	assert.True(t, ok)
}

func TestCatalogSyncIdempotent(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	catalog, _ := setupTestCatalog(t, store)

	require.NoError(t, catalog.Sync(context.Background()))
	require.NoError(t, catalog.Sync(context.Background()))

	var count int64
	require.NoError(t, store.DB().Model(&Emote{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
