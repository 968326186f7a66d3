package xivemotes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var defaultLogWriter io.Writer = os.Stdout

// Set via:
// -ldflags "-X github.com/PsychicNoodles/discord-xiv-emotes/xivemotes.Version=$$(date +'%Y%m%d')"
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var (
	// errRateLimited indicates a user has exceeded the emote command
	// rate limit and the command was dropped.
	errRateLimited = errors.New("rate limited")

	// errGuildOnly indicates a guild-scoped command was used in a DM.
	errGuildOnly = errors.New("command only available in a guild")
)

// XIVEmotes is the bot: it owns the database store, the emote catalog,
// the Discord connection and the HTTP API, and wires incoming commands
// through them.
type XIVEmotes struct {
	config *Config

	// store wraps the GORM connection. When using sqlite, writes are
	// serialized behind a mutex; postgres handles concurrency itself.
	store *Store

	// Standard logger. Missing loggers will try to use this,
	// and fall back to slog.Default()
	logger *slog.Logger

	// Handler to use for the above
	logHandler slog.Handler

	// Handles discord integration, sessions
	discord *Discord

	// In-memory emote catalog, synced from upstream and mirrored into
	// the emote table
	catalog *Catalog

	// Renders emote log message templates into reply text
	renderer MessageRenderer

	// Provides the status/stats HTTP API
	api *API

	// Propagates catalog-sync and stop events across instances
	dbNotifier DBNotifier

	// signalStop enables an explicit stop signal to be sent to the bot,
	// such as by the `/api/quit` endpoint
	signalStop chan struct{}

	// signalReady has a value sent on it when Run has finished
	// initializing: database created, catalog synced, API started,
	// discord session open and commands registered.
	signalReady chan struct{}

	// triggerCatalogSyncCh has a value sent on it when the catalog
	// should be refreshed from upstream
	triggerCatalogSyncCh chan bool

	// prevents Run from executing concurrently
	runMu sync.Mutex

	// The time Run was called
	startedAt time.Time

	// Per-user emote command limiters, keyed by discord user ID
	userLimiters map[string]*rate.Limiter

	// protecc the map
	userLimiterMu sync.Mutex
}

// New creates a XIVEmotes bot from the given config. The database
// isn't touched until Run is called.
func New(config *Config) (*XIVEmotes, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
	//
	default:
		return nil, errors.New("invalid database type (must be 'sqlite' or 'postgres')")
	}
	if config.Discord == nil || config.Discord.Token == "" {
		return nil, errors.New("discord token is required")
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &XIVEmotes{
		config:               config,
		signalReady:          make(chan struct{}, 1),
		triggerCatalogSyncCh: make(chan bool, 1),
		userLimiters:         map[string]*rate.Limiter{},
		renderer:             NewTemplateRenderer(),
	}

	b.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	b.logger = slog.New(b.logHandler)
	slog.SetDefault(b.logger)

	config.Discord.httpClient = config.HTTPClient

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	disc := newDiscord(config.Discord)
	disc.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord")
	disc.bot = b
	b.discord = disc

	if config.API != nil && config.API.Enabled {
		b.api = newAPI(b, config.API)
	}

	return b, nil
}

// Store returns the bot's database store. Nil until Run has
// initialized the database.
func (b *XIVEmotes) Store() *Store {
	return b.store
}

// allowUser reports whether the user may run an emote command right
// now, consuming one token from their limiter.
func (b *XIVEmotes) allowUser(discordUserID string) bool {
	cfg := b.config.RateLimit
	if cfg == nil || cfg.UserEvery <= 0 {
		return true
	}
	b.userLimiterMu.Lock()
	defer b.userLimiterMu.Unlock()
	limiter := b.userLimiters[discordUserID]
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(cfg.UserEvery), cfg.UserBurst)
		b.userLimiters[discordUserID] = limiter
	}
	return limiter.Allow()
}

// initRun prepares everything Run needs before opening the gateway
// connection: the database, the catalog (with its startup sync), and
// the cross-instance notifier.
func (b *XIVEmotes) initRun(ctx context.Context) error {
	db, err := CreateDB(ctx, b.config.DatabaseType, b.config.Database)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}

	gormLogger := newGORMLogger(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     b.config.DatabaseLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "db")}),
		b.config.DatabaseSlowThreshold,
	)
	db.Logger = gormLogger

	b.store = NewStore(
		db,
		b.logger.With(loggerNameKey, "store"),
		b.config.DatabaseType == dbTypePostgres,
	)

	notifier, err := newDBNotifier(b)
	if err != nil {
		return fmt.Errorf("error creating db notifier: %w", err)
	}
	b.dbNotifier = notifier

	xivapi := NewXIVAPIClient(
		b.config.XIVAPI,
		b.logger.With(loggerNameKey, "xivapi"),
	)
	b.catalog = NewCatalog(
		xivapi,
		b.store,
		b.logger.With(loggerNameKey, "catalog"),
	)
	if err := b.catalog.Sync(ctx); err != nil {
		return fmt.Errorf("error syncing emote catalog: %w", err)
	}

	return nil
}

// Run starts the bot: it initializes the database and catalog, starts
// the HTTP API, opens the discord gateway connection and registers
// commands, then blocks until the context is canceled or a stop signal
// arrives. Returns after a graceful shutdown.
func (b *XIVEmotes) Run(ctx context.Context) error {
	// prevents concurrent runs
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.signalStop = make(chan struct{}, 1)
	b.startedAt = time.Now()

	logger := b.logger
	ctx = WithLogger(ctx, logger)

	// this is the 'runtime' context, which triggers a graceful shutdown
	// when canceled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.signalStop:
			logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
			return
		}
	}()

	logger.LogAttrs(ctx, slog.LevelInfo, "starting")

	startCtx, startCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startCancel()

	initErr := make(chan error, 1)
	go func() {
		initErr <- b.initRun(startCtx)
	}()

	select {
	case <-startCtx.Done():
		return fmt.Errorf("startup cancelled or timed out")
	case err := <-initErr:
		if err != nil {
			logger.ErrorContext(ctx, "init error", tint.Err(err))
			return err
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)

	if b.api != nil {
		eg.Go(
			func() error {
				httpErr := b.api.Serve(egCtx)
				if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
					logger.ErrorContext(egCtx, "error serving api HTTP", tint.Err(httpErr))
					return httpErr
				}
				return nil
			},
		)
	}

	if err := b.initDiscordSession(ctx); err != nil {
		return err
	}

	eg.Go(
		func() error {
			if e := b.dbNotifier.Listen(
				egCtx, b.dbNotifier.CatalogChannelName(),
			); e != nil {
				logger.ErrorContext(
					egCtx, "error listening to catalog channel", tint.Err(e),
				)
			}
			return nil
		},
	)
	eg.Go(
		func() error {
			if e := b.dbNotifier.Listen(
				egCtx, b.dbNotifier.StopChannelName(),
			); e != nil {
				logger.ErrorContext(
					egCtx, "error listening to stop channel", tint.Err(e),
				)
			}
			return nil
		},
	)
	eg.Go(
		func() error {
			b.watchCatalogSync(egCtx)
			return nil
		},
	)

	b.signalReady <- struct{}{}
	logger.InfoContext(ctx, "ready")

	<-ctx.Done()

	shutdownErr := b.shutdown()
	if waitErr := eg.Wait(); waitErr != nil {
		logger.Error("runtime error", tint.Err(waitErr))
	}
	return shutdownErr
}

// initDiscordSession opens the discord websocket connection, registers
// the gateway handlers and the slash commands.
func (b *XIVEmotes) initDiscordSession(ctx context.Context) error {
	disc := b.discord
	session, err := disc.newSession()
	if err != nil {
		return err
	}
	disc.session = session

	disc.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(disc.handlerReady()),
		session.AddHandler(disc.handlerConnect()),
		session.AddHandler(disc.handlerDisconnect()),
		session.AddHandler(disc.handlerInteractionCreate()),
		session.AddHandler(disc.handlerMessageCreate()),
	}

	b.logger.InfoContext(ctx, "connecting to discord")
	if err := session.Open(); err != nil {
		return fmt.Errorf("error connecting to discord: %w", err)
	}

	if _, err := disc.registerCommands(); err != nil {
		return fmt.Errorf("error registering discord commands: %w", err)
	}
	return nil
}

// watchCatalogSync refreshes the emote catalog whenever a sync signal
// arrives, and on the configured interval.
func (b *XIVEmotes) watchCatalogSync(ctx context.Context) {
	interval := b.config.XIVAPI.SyncInterval
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.triggerCatalogSyncCh:
			b.catalog.resync(ctx)
		case <-tick:
			b.catalog.resync(ctx)
		}
	}
}

// shutdown closes the discord session, the HTTP listener and the
// database connection, bounded by the configured shutdown timeout.
func (b *XIVEmotes) shutdown() error {
	logger := b.logger
	logger.Warn("shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), b.config.ShutdownTimeout,
	)
	defer cancel()

	var errs []error

	if b.discord != nil && b.discord.session != nil {
		for _, remove := range b.discord.discordgoRemoveHandlerFuncs {
			remove()
		}
		if err := b.discord.session.Close(); err != nil {
			logger.Error("error closing discord session", tint.Err(err))
			errs = append(errs, err)
		}
	}

	if b.api != nil && b.api.httpServer != nil {
		if err := b.api.httpServer.Shutdown(ctx); err != nil {
			logger.Error("error shutting down api server", tint.Err(err))
			errs = append(errs, err)
		}
	}

	if b.store != nil {
		if sqlDB, err := b.store.DB().DB(); err == nil {
			if closeErr := sqlDB.Close(); closeErr != nil {
				logger.Error("error closing database", tint.Err(closeErr))
				errs = append(errs, closeErr)
			}
		}
	}

	logger.Warn("shutdown complete")
	return errors.Join(errs...)
}
