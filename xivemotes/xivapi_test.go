package xivemotes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const xivapiTestPageOne = `{
  "Pagination": {"Page": 1, "PageNext": 2},
  "Results": [
    {
      "ID": 105,
      "Name": "Hug",
      "TextCommand": {
        "Command_en": "/hug",
        "Alias_en": "/embrace",
        "Command_ja": "/ハグ",
        "Alias_ja": ""
      },
      "LogMessageTargeted": {
        "Text_en": "ObjectParameter(1) gives ObjectParameter(2) a hug.",
        "Text_ja": "ObjectParameter(1)はObjectParameter(2)を抱きしめた。"
      },
      "LogMessageUntargeted": {
        "Text_en": "ObjectParameter(1) hugs...",
        "Text_ja": "ObjectParameter(1)は抱きしめた。"
      }
    },
    {
      "ID": 999,
      "Name": "Broken",
      "TextCommand": null,
      "LogMessageTargeted": null,
      "LogMessageUntargeted": null
    }
  ]
}`

const xivapiTestPageTwo = `{
  "Pagination": {"Page": 2, "PageNext": 0},
  "Results": [
    {
      "ID": 180,
      "Name": "Wave",
      "TextCommand": {
        "Command_en": "/wave",
        "Alias_en": "",
        "Command_ja": "/wave",
        "Alias_ja": ""
      },
      "LogMessageTargeted": {
        "Text_en": "ObjectParameter(1) waves to ObjectParameter(2).",
        "Text_ja": "ObjectParameter(1)はObjectParameter(2)に手を振った。"
      },
      "LogMessageUntargeted": {
        "Text_en": "ObjectParameter(1) waves.",
        "Text_ja": "ObjectParameter(1)は手を振った。"
      }
    }
  ]
}`

func TestXIVAPIClientListEmotes(t *testing.T) {
	t.Parallel()

	var requests []string
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests = append(requests, r.URL.RequestURI())
			require.Equal(t, "/Emote", r.URL.Path)
			assert.Equal(t, xivapiEmoteColumns, r.URL.Query().Get("columns"))
			assert.Equal(t, "hunter2", r.URL.Query().Get("private_key"))

			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Query().Get("page") {
			case "1":
				_, _ = fmt.Fprint(w, xivapiTestPageOne)
			case "2":
				_, _ = fmt.Fprint(w, xivapiTestPageTwo)
			default:
				t.Errorf("unexpected page: %s", r.URL.Query().Get("page"))
				w.WriteHeader(http.StatusBadRequest)
			}
		}),
	)
	t.Cleanup(srv.Close)

	client := NewXIVAPIClient(
		&XIVAPIConfig{URL: srv.URL, APIKey: "hunter2", Timeout: 5 * time.Second},
		slog.Default(),
	)
	defs, err := client.ListEmotes(context.Background())
	require.NoError(t, err)
	assert.Len(t, requests, 2)

	// the broken row on page one is skipped
	require.Len(t, defs, 2)

	hug := defs[0]
	assert.Equal(t, 105, hug.ID)
	assert.Equal(t, "Hug", hug.Name)
	assert.Equal(t, "/hug", hug.Command)
	assert.Equal(t, []string{"/embrace", "/ハグ"}, hug.Aliases)
	assert.Equal(
		t,
		"ObjectParameter(1) gives ObjectParameter(2) a hug.",
		hug.EN.Targeted,
	)
	assert.Equal(
		t,
		"ObjectParameter(1)はObjectParameter(2)を抱きしめた。",
		hug.JA.Targeted,
	)

	wave := defs[1]
	assert.Equal(t, 180, wave.ID)
	assert.Equal(t, "/wave", wave.Command)
	// the Japanese command matches the English one, so it's not an alias
	assert.Empty(t, wave.Aliases)
}

func TestXIVAPIClientListEmotesUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		}),
	)
	t.Cleanup(srv.Close)

	client := NewXIVAPIClient(&XIVAPIConfig{URL: srv.URL}, slog.Default())
	_, err := client.ListEmotes(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestEmoteDefinitionMessages(t *testing.T) {
	t.Parallel()
	def := EmoteDefinition{
		EN: MessagePair{Targeted: "en-t", Untargeted: "en-u"},
		JA: MessagePair{Targeted: "ja-t", Untargeted: "ja-u"},
	}
	assert.Equal(t, def.EN, def.Messages(LanguageEN))
	assert.Equal(t, def.JA, def.Messages(LanguageJA))
}
