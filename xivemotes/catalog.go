package xivemotes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/gorm/clause"
)

// RegisterEmote upserts an emote definition keyed on the game's emote
// ID. A new ID inserts a row; a conflict only refreshes the update
// timestamp, leaving the stored command untouched — the command for a
// given ID is immutable after first registration. If the upstream data
// ever reassigns a command to a different ID, that's a distinct row,
// not a merge. This makes catalog sync idempotent and safe to re-run
// on every startup.
func (s *Store) RegisterEmote(ctx context.Context, xivID int, command string) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	emote := Emote{XIVID: xivID, Command: command}
	s.lock()
	defer s.unlock()
	err := s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "xiv_id"}},
			DoUpdates: clause.Assignments(
				map[string]any{"updated_at": time.Now().UTC().UnixMilli()},
			),
		},
	).Create(&emote).Error
	if err != nil {
		return fmt.Errorf("error registering emote %d (%s): %w", xivID, command, err)
	}
	return nil
}

// EmoteSource lists the emote definitions the catalog is synced from.
// Implemented by XIVAPIClient; stubbed in tests.
type EmoteSource interface {
	ListEmotes(ctx context.Context) ([]EmoteDefinition, error)
}

// Catalog holds the in-memory emote set: command lookup for incoming
// messages and the message templates used to render replies. Sync
// refreshes it from the upstream source and registers every definition
// in the store.
type Catalog struct {
	source EmoteSource
	store  *Store
	logger *slog.Logger

	mu       sync.RWMutex
	byName   map[string]*EmoteDefinition
	commands []string
}

func NewCatalog(source EmoteSource, store *Store, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{
		source: source,
		store:  store,
		logger: log.With(loggerNameKey, "catalog"),
		byName: map[string]*EmoteDefinition{},
	}
}

// Sync fetches the emote list from the upstream source, registers each
// definition in the store, and swaps in the new lookup tables. The
// previous tables stay in service until the swap, so a failed sync
// leaves the catalog usable.
func (c *Catalog) Sync(ctx context.Context) error {
	started := time.Now()
	defs, err := c.source.ListEmotes(ctx)
	if err != nil {
		return fmt.Errorf("error listing emotes from source: %w", err)
	}

	byName := make(map[string]*EmoteDefinition, len(defs))
	for i := range defs {
		def := &defs[i]
		if err = c.store.RegisterEmote(ctx, def.ID, def.Command); err != nil {
			return err
		}
		byName[def.Command] = def
		for _, alias := range def.Aliases {
			if alias == "" {
				continue
			}
			byName[alias] = def
		}
	}

	commands := make([]string, 0, len(defs))
	for i := range defs {
		commands = append(commands, defs[i].Command)
	}
	sort.Strings(commands)

	c.mu.Lock()
	c.byName = byName
	c.commands = commands
	c.mu.Unlock()

	c.logger.InfoContext(
		ctx,
		"catalog synced",
		"emotes", len(defs),
		"elapsed", time.Since(started),
	)
	return nil
}

// Lookup finds an emote definition by command or alias. The name may
// be given with or without the leading slash.
func (c *Catalog) Lookup(name string) (*EmoteDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if def, ok := c.byName[name]; ok {
		return def, true
	}
	def, ok := c.byName["/"+name]
	return def, ok
}

// Commands returns the sorted list of primary emote commands.
func (c *Catalog) Commands() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.commands))
	copy(out, c.commands)
	return out
}

// Len returns the number of distinct emotes in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.commands)
}

// resync re-runs Sync, logging rather than propagating errors. Used by
// the notifier when another instance announces a catalog update.
func (c *Catalog) resync(ctx context.Context) {
	if err := c.Sync(ctx); err != nil {
		c.logger.ErrorContext(ctx, "catalog resync failed", tint.Err(err))
	}
}
