package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dmehra2102/catalog-checkout/internal/config"
	"github.com/dmehra2102/catalog-checkout/internal/storage/postgres"
	"github.com/dmehra2102/catalog-checkout/pkg/logging"
)

func newMigrateCmd(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel)

			pool, err := pgxpool.New(cmd.Context(), cfg.PGURL)
			if err != nil {
				return fmt.Errorf("pg connect: %w", err)
			}
			defer pool.Close()

			if err := postgres.Migrate(cmd.Context(), pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("schema up to date")
			return nil
		},
	}
}
