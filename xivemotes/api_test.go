package xivemotes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t testing.TB) (*API, *XIVEmotes) {
	t.Helper()
	bot := newTestBot(t)
	bot.discord = newDiscord(bot.config.Discord)
	bot.startedAt = time.Now()
	api := newAPI(bot, bot.config.API)
	return api, bot
}

func apiGet(t testing.TB, api *API, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestAPIHealthCheck(t *testing.T) {
	t.Parallel()
	api, _ := newTestAPI(t)

	code, body := apiGet(t, api, apiHealthCheck)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["connected"])
	assert.Equal(t, float64(2), body["emotes"])
}

func TestAPIListEmotes(t *testing.T) {
	t.Parallel()
	api, _ := newTestAPI(t)

	code, body := apiGet(t, api, apiPathEmotes)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"/hug", "/wave"}, body["emotes"])
}

func TestAPIUserStats(t *testing.T) {
	t.Parallel()
	api, bot := newTestAPI(t)
	ctx := context.Background()

	user, err := bot.store.ResolveUser(ctx, PadDiscordID("100"))
	require.NoError(t, err)
	_, err = bot.store.RecordInvocation(ctx, user.ID, nil, 105, time.Now(), nil)
	require.NoError(t, err)

	code, body := apiGet(t, api, "/api/users/100/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["sent"])
	assert.Equal(t, float64(0), body["received"])
	assert.Equal(t, PadDiscordID("100"), body["discord_id"])

	// unknown users report zero, not 404
	code, body = apiGet(t, api, "/api/users/424242/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["sent"])
	assert.Equal(t, float64(0), body["received"])
}

func TestAPIStatsStorageFailure(t *testing.T) {
	api, bot := newTestAPI(t)

	// a failed lookup is not the same as an unknown ID
	sqlDB, err := bot.store.DB().DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	for _, path := range []string{
		"/api/users/100/stats",
		"/api/guilds/200/stats",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		api.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code, path)
	}
}

func TestAPIGuildStats(t *testing.T) {
	t.Parallel()
	api, bot := newTestAPI(t)
	ctx := context.Background()

	user, err := bot.store.ResolveUser(ctx, PadDiscordID("100"))
	require.NoError(t, err)
	tagged, err := bot.store.ResolveUser(ctx, PadDiscordID("101"))
	require.NoError(t, err)
	guild, err := bot.store.ResolveGuild(ctx, PadDiscordID("200"))
	require.NoError(t, err)

	_, err = bot.store.RecordInvocation(
		ctx, user.ID, &guild.ID, 105, time.Now(), []uint{tagged.ID},
	)
	require.NoError(t, err)

	code, body := apiGet(t, api, "/api/guilds/200/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["sent"])
	assert.Equal(t, float64(1), body["received"])

	code, body = apiGet(t, api, "/api/guilds/424242/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["sent"])
}
