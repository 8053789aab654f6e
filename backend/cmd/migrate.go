package cmd

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bluebridge/termsheet-ingest/backend/service"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.URL == "" {
			return errors.New("missing required settings: database.url")
		}

		repo, err := service.NewProductRepository(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.Migrate(cmd.Context()); err != nil {
			return err
		}
		slog.Info("schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
