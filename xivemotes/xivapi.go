package xivemotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const xivapiEmoteColumns = "ID,Name," +
	"TextCommand.Command_en,TextCommand.Alias_en," +
	"TextCommand.Command_ja,TextCommand.Alias_ja," +
	"LogMessageTargeted.Text_en,LogMessageTargeted.Text_ja," +
	"LogMessageUntargeted.Text_en,LogMessageUntargeted.Text_ja"

// MessagePair holds the targeted and untargeted log message templates
// for one language.
type MessagePair struct {
	Targeted   string `json:"targeted"`
	Untargeted string `json:"untargeted"`
}

// EmoteDefinition is one emote as loaded from the upstream game data:
// its ID, its text command (plus any aliases), and the localized log
// message templates used to render replies.
type EmoteDefinition struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Aliases []string `json:"aliases,omitempty"`

	EN MessagePair `json:"en"`
	JA MessagePair `json:"ja"`
}

// Messages returns the message pair for the given language.
func (e *EmoteDefinition) Messages(language Language) MessagePair {
	if language == LanguageJA {
		return e.JA
	}
	return e.EN
}

// complete reports whether the definition has everything needed to
// render replies. Incomplete upstream rows (emotes with no log
// messages, or no text command) are skipped during sync, matching how
// the game data is actually shaped.
func (e *EmoteDefinition) complete() bool {
	return e.ID != 0 &&
		e.Command != "" &&
		e.EN.Targeted != "" && e.EN.Untargeted != "" &&
		e.JA.Targeted != "" && e.JA.Untargeted != ""
}

// XIVAPIClient fetches the emote catalog from a XIVAPI-compatible
// endpoint, walking the paginated /Emote listing.
type XIVAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewXIVAPIClient(cfg *XIVAPIConfig, log *slog.Logger) *XIVAPIClient {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultXIVAPITimeout
	}
	return &XIVAPIClient{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(loggerNameKey, "xivapi"),
	}
}

type xivapiTextCommand struct {
	CommandEN string `json:"Command_en"`
	AliasEN   string `json:"Alias_en"`
	CommandJA string `json:"Command_ja"`
	AliasJA   string `json:"Alias_ja"`
}

type xivapiLogMessage struct {
	TextEN string `json:"Text_en"`
	TextJA string `json:"Text_ja"`
}

type xivapiEmoteResult struct {
	ID                 int                `json:"ID"`
	Name               string             `json:"Name"`
	TextCommand        *xivapiTextCommand `json:"TextCommand"`
	LogMessageTargeted *xivapiLogMessage  `json:"LogMessageTargeted"`
	LogMessageUntarget *xivapiLogMessage  `json:"LogMessageUntargeted"`
}

type xivapiEmotePage struct {
	Pagination struct {
		Page     int `json:"Page"`
		PageNext int `json:"PageNext"`
	} `json:"Pagination"`
	Results []xivapiEmoteResult `json:"Results"`
}

// ListEmotes walks every page of the emote listing and returns the
// complete definitions, skipping rows missing a command or any log
// message.
func (c *XIVAPIClient) ListEmotes(ctx context.Context) ([]EmoteDefinition, error) {
	var defs []EmoteDefinition
	skipped := 0
	page := 1
	for page > 0 {
		result, err := c.listEmotePage(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, raw := range result.Results {
			def, ok := convertEmoteResult(raw)
			if !ok {
				skipped++
				continue
			}
			defs = append(defs, def)
		}
		page = result.Pagination.PageNext
	}
	c.logger.InfoContext(
		ctx,
		"listed emotes",
		"emotes", len(defs),
		"skipped", skipped,
	)
	return defs, nil
}

func (c *XIVAPIClient) listEmotePage(ctx context.Context, page int) (
	*xivapiEmotePage,
	error,
) {
	u, err := url.Parse(c.baseURL + "/Emote")
	if err != nil {
		return nil, fmt.Errorf("error parsing xivapi url: %w", err)
	}
	q := u.Query()
	q.Set("columns", xivapiEmoteColumns)
	q.Set("page", strconv.Itoa(page))
	if c.apiKey != "" {
		q.Set("private_key", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating xivapi request: %w", err)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching emote page %d: %w", page, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf(
			"unexpected xivapi status %d for emote page %d: %s",
			resp.StatusCode, page, string(body),
		)
	}

	var result xivapiEmotePage
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding emote page %d: %w", page, err)
	}
	c.logger.DebugContext(
		ctx,
		"fetched emote page",
		"page", page,
		"results", len(result.Results),
		"elapsed", time.Since(started),
	)
	return &result, nil
}

func convertEmoteResult(raw xivapiEmoteResult) (EmoteDefinition, bool) {
	def := EmoteDefinition{ID: raw.ID, Name: raw.Name}
	if raw.TextCommand != nil {
		def.Command = raw.TextCommand.CommandEN
		for _, alias := range []string{
			raw.TextCommand.AliasEN,
			raw.TextCommand.CommandJA,
			raw.TextCommand.AliasJA,
		} {
			if alias != "" && alias != def.Command {
				def.Aliases = append(def.Aliases, alias)
			}
		}
	}
	if raw.LogMessageTargeted != nil {
		def.EN.Targeted = raw.LogMessageTargeted.TextEN
		def.JA.Targeted = raw.LogMessageTargeted.TextJA
	}
	if raw.LogMessageUntarget != nil {
		def.EN.Untargeted = raw.LogMessageUntarget.TextEN
		def.JA.Untargeted = raw.LogMessageUntarget.TextJA
	}
	return def, def.complete()
}
