package main

import (
	"github.com/spf13/cobra"

	"github.com/dmehra2102/catalog-checkout/internal/config"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "stockflow",
		Short:         "Catalog and checkout service",
		Long:          "stockflow serves the product catalog and order checkout API, reserving stock transactionally and relaying order events to Kafka.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", env("CONFIG_FILE", ""), "path to a YAML config file")

	load := func() (config.Config, error) { return config.Load(configPath) }
	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newMigrateCmd(load))
	cmd.AddCommand(newEventsCmd(load))
	return cmd
}
