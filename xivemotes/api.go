package xivemotes

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

const (
	pprofPrefix = "/debug"

	apiHealthCheck     = "/healthz"
	apiPathUserStats   = "/api/users/:id/stats"
	apiPathGuildStats  = "/api/guilds/:id/stats"
	apiPathEmotes      = "/api/emotes"
	apiPathCatalogSync = "/api/catalog/sync"
	apiPathQuit        = "/api/quit"
)

// API provides a small read-only HTTP surface for health checks and
// usage stats, plus endpoints to trigger a catalog sync or a shutdown.
type API struct {
	config     *APIConfig
	httpServer *http.Server
	listener   net.Listener
	engine     *gin.Engine
	logger     *slog.Logger
	bot        *XIVEmotes
}

// newAPI initializes and returns a new instance of the API struct,
// configuring the gin engine, middleware and routes.
func newAPI(b *XIVEmotes, config *APIConfig) *API {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := &API{
		config: config,
		engine: r,
		bot:    b,
	}
	api.logger = slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "api")

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"*"}
	}

	r.Use(
		gin.Recovery(),
		api.loggingMiddleware(),
		cors.New(corsConfig),
	)

	if config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	r.GET(apiHealthCheck, api.healthCheck)
	r.GET(apiPathUserStats, api.userStats)
	r.GET(apiPathGuildStats, api.guildStats)
	r.GET(apiPathEmotes, api.listEmotes)
	r.POST(apiPathCatalogSync, api.catalogSync)
	r.POST(apiPathQuit, api.quit)

	return api
}

func (a *API) Serve(ctx context.Context) error {
	if a.listener != nil {
		return a.httpServer.Serve(a.listener)
	}
	listenCfg := &net.ListenConfig{}
	ln, e := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
	if e != nil {
		return e
	}
	a.listener = ln
	return a.httpServer.Serve(a.listener)
}

func (a *API) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(
		http.StatusOK, gin.H{
			"status":    "ok",
			"connected": a.bot.discord.connected.Load(),
			"emotes":    a.bot.catalog.Len(),
			"uptime":    time.Since(a.bot.startedAt).String(),
		},
	)
}

// userStats reports the sent/received counts for a user, looked up by
// external discord ID. Unknown users have recorded nothing, so they
// report zero rather than 404.
func (a *API) userStats(c *gin.Context) {
	discordID := PadDiscordID(c.Param("id"))

	var user User
	err := a.bot.store.DB().WithContext(c.Request.Context()).
		Where("discord_id = ?", discordID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(
			http.StatusOK,
			gin.H{"discord_id": discordID, "sent": 0, "received": 0},
		)
		return
	} else if err != nil {
		a.logger.Error("error loading user", tint.Err(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	stats, err := a.bot.store.UserUsageStats(c.Request.Context(), user.ID, nil)
	if err != nil {
		a.logger.Error("error loading user stats", tint.Err(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.JSON(
		http.StatusOK, gin.H{
			"discord_id": discordID,
			"sent":       stats.Sent,
			"received":   stats.Received,
		},
	)
}

func (a *API) guildStats(c *gin.Context) {
	discordID := PadDiscordID(c.Param("id"))

	var guild Guild
	err := a.bot.store.DB().WithContext(c.Request.Context()).
		Where("discord_id = ?", discordID).First(&guild).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(
			http.StatusOK,
			gin.H{"discord_id": discordID, "sent": 0, "received": 0},
		)
		return
	} else if err != nil {
		a.logger.Error("error loading guild", tint.Err(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	stats, err := a.bot.store.GuildUsageStats(c.Request.Context(), guild.ID)
	if err != nil {
		a.logger.Error("error loading guild stats", tint.Err(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.JSON(
		http.StatusOK, gin.H{
			"discord_id": discordID,
			"sent":       stats.Sent,
			"received":   stats.Received,
		},
	)
}

func (a *API) listEmotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"emotes": a.bot.catalog.Commands()})
}

func (a *API) catalogSync(c *gin.Context) {
	ctx, cancel := context.WithTimeout(
		c.Request.Context(), dbNotifierSendTimeout,
	)
	defer cancel()
	sent := a.bot.dbNotifier.CatalogSync(ctx)
	c.JSON(http.StatusAccepted, gin.H{"notified": sent})
}

func (a *API) quit(c *gin.Context) {
	ctx, cancel := context.WithTimeout(
		c.Request.Context(), dbNotifierSendTimeout,
	)
	defer cancel()
	stopped := a.bot.dbNotifier.Stop(ctx)
	c.JSON(http.StatusAccepted, gin.H{"stopped": stopped})
}
