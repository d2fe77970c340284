package main

import (
	"errors"

	"github.com/spf13/cobra"

	"smartrecipe/internal/platform/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cfg.Database.URL == "" {
				return errors.New("database.url (DATABASE_URL) is required")
			}

			db, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db, schemas...); err != nil {
				return err
			}
			log.Info().Int("schemas", len(schemas)).Msg("Migration complete")
			return nil
		},
	}
}
