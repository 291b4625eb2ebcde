package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chatrelay/internal/pkg/storagefactory"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the mirror schema",
	Long:  `Create the conversation and message tables (or collections and indexes) for the configured mirror driver.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	store, err := storagefactory.NewMirrorStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open mirror store: %w", err)
	}
	if store == nil {
		log.Info().Msg("mirror driver is none, nothing to migrate")
		return nil
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("driver", cfg.Mirror.Driver).Msg("mirror schema is up to date")
	return nil
}
