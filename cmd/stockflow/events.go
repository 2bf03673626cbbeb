package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dmehra2102/catalog-checkout/internal/config"
	orderkafka "github.com/dmehra2102/catalog-checkout/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/catalog-checkout/pkg/idempotency"
	"github.com/dmehra2102/catalog-checkout/pkg/logging"
	"github.com/dmehra2102/catalog-checkout/pkg/shutdown"
)

func newEventsCmd(load func() (config.Config, error)) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print relayed order and stock events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel)
			ctx, cancel := shutdown.WithSignals(cmd.Context())
			defer cancel()

			var idem idempotency.Store
			if cfg.RedisAddr != "" {
				rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
				defer rdb.Close()
				idem = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
			}

			consumer := orderkafka.NewConsumer(log, strings.Split(cfg.KafkaAddr, ","), cfg.OutboxTopic, group, idem)
			enc := json.NewEncoder(cmd.OutOrStdout())
			return consumer.Run(ctx, func(ctx context.Context, ev orderkafka.Event) error {
				return enc.Encode(map[string]any{
					"type":         ev.Type,
					"aggregate_id": ev.AggregateID,
					"time":         ev.Time,
					"payload":      json.RawMessage(ev.Payload),
				})
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "stockflow-events", "kafka consumer group")
	return cmd
}
