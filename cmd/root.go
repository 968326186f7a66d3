package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/PsychicNoodles/discord-xiv-emotes/xivemotes"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = xivemotes.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "discord-xiv-emotes [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes a log level name into a *slog.LevelVar
// when unmarshaling the config.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", xivemotes.DefaultDatabase)
	viper.SetDefault("database_type", xivemotes.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		xivemotes.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		xivemotes.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", xivemotes.DefaultLogLevel.String())

	viper.SetDefault("startup_timeout", xivemotes.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", xivemotes.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault(
		"discord.log_level",
		xivemotes.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		xivemotes.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		xivemotes.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault("discord.custom_status", xivemotes.DefaultDiscordCustomStatus)

	// XIVAPI config
	viper.SetDefault("xivapi.url", xivemotes.DefaultXIVAPIURL)
	viper.SetDefault("xivapi.api_key", "")
	viper.SetDefault("xivapi.timeout", xivemotes.DefaultXIVAPITimeout)
	viper.SetDefault("xivapi.sync_interval", xivemotes.DefaultCatalogSyncInterval)

	// API config
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.development", false)
	viper.SetDefault("api.listen", xivemotes.DefaultAPIListen)
	viper.SetDefault("api.log_level", xivemotes.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", xivemotes.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		xivemotes.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", xivemotes.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", xivemotes.DefaultIdleTimeout)
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.allow_methods", []string{"GET", "POST"})
	viper.SetDefault("api.cors.allow_headers", []string{"Origin", "Content-Type"})

	// Rate limit config
	viper.SetDefault("rate_limit.user_every", xivemotes.DefaultUserRateEvery)
	viper.SetDefault("rate_limit.user_burst", xivemotes.DefaultUserRateBurst)

	envPrefix := os.Getenv(xivemotes.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = xivemotes.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"api.cors.allow_origins",
		viper.GetStringSlice("api.cors.allow_origins"),
	)
	viper.Set(
		"api.cors.allow_methods",
		viper.GetStringSlice("api.cors.allow_methods"),
	)
	viper.Set(
		"api.cors.allow_headers",
		viper.GetStringSlice("api.cors.allow_headers"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"api.log_level",
	} {
		// cobra re-runs initConfig on every Execute, so the key may
		// already hold a converted value
		if _, ok := viper.Get(key).(*slog.LevelVar); ok {
			continue
		}
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
