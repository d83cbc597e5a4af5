package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"crm-backend/config"
	"crm-backend/database"
)

const migrateTimeout = 30 * time.Second

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
		defer cancel()

		db, err := database.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.Migrate(db.WithContext(ctx)); err != nil {
			return err
		}
		log.Info().Msg("migrations applied")
		return nil
	},
}
