package cmd

import (
	"fmt"
	"log"
	"log/slog"

	"github.com/PsychicNoodles/discord-xiv-emotes/xivemotes"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the emote catalog from XIVAPI and register it in the database",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := xivemotes.CreateDB(ctx, cfg.DatabaseType, cfg.Database)
		if err != nil {
			log.Fatalf("Error creating database: %v", err)
		}
		store := xivemotes.NewStore(
			db,
			slog.Default(),
			cfg.DatabaseType == "postgres",
		)

		client := xivemotes.NewXIVAPIClient(cfg.XIVAPI, slog.Default())
		catalog := xivemotes.NewCatalog(client, store, slog.Default())
		if err := catalog.Sync(ctx); err != nil {
			log.Fatalf("Error syncing emote catalog: %v", err)
		}

		fmt.Fprintf(
			cmd.OutOrStdout(),
			"Synced %d emotes.\n",
			catalog.Len(),
		)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
