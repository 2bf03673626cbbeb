package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	inventoryapp "github.com/dmehra2102/catalog-checkout/internal/inventory/application"
	inventorygrpc "github.com/dmehra2102/catalog-checkout/internal/inventory/infrastructure/grpc"
	"github.com/dmehra2102/catalog-checkout/internal/config"
	"github.com/dmehra2102/catalog-checkout/internal/order/application"
	orderhttp "github.com/dmehra2102/catalog-checkout/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/catalog-checkout/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/catalog-checkout/internal/storage"
	"github.com/dmehra2102/catalog-checkout/internal/storage/memory"
	"github.com/dmehra2102/catalog-checkout/internal/storage/postgres"
	"github.com/dmehra2102/catalog-checkout/pkg/idempotency"
	"github.com/dmehra2102/catalog-checkout/pkg/logging"
	"github.com/dmehra2102/catalog-checkout/pkg/metrics"
	"github.com/dmehra2102/catalog-checkout/pkg/outbox"
	"github.com/dmehra2102/catalog-checkout/pkg/retry"
	"github.com/dmehra2102/catalog-checkout/pkg/shutdown"
	"github.com/dmehra2102/catalog-checkout/pkg/tracing"
)

func newServeCmd(load func() (config.Config, error)) *cobra.Command {
	var store string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health service and outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if store != "" {
				cfg.Store = store
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			ctx, cancel := shutdown.WithSignals(cmd.Context())
			defer cancel()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&store, "store", "", "storage backend: postgres or memory")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logging.New(cfg.LogLevel)

	tp, err := tracing.Init(ctx, "catalog-checkout", cfg.JaegerURL, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		gw          storage.Gateway
		outboxStore outbox.Store
		ping        func(ctx context.Context) error
	)
	switch cfg.Store {
	case config.StoreMemory:
		mem := memory.New()
		gw, outboxStore = mem, mem
		log.Warn("using in-memory store, data is lost on exit")
	default:
		pool, err := pgxpool.New(ctx, cfg.PGURL)
		if err != nil {
			return fmt.Errorf("pg connect: %w", err)
		}
		defer pool.Close()
		pg := postgres.NewGateway(log, pool)
		gw, outboxStore, ping = pg, pg.Outbox(), pg.Ping
	}

	strategy := retry.NewStrategy(cfg.Retry.Policy(), gw.IsTransient, log,
		retry.WithNotify(func(int, error) { m.Retry("transaction") }))
	coordinator := application.NewCoordinator(log, gw, strategy, m)
	products := inventoryapp.NewService(log, gw, strategy, m)

	opts := []orderhttp.Option{
		orderhttp.WithMetrics(m, reg),
		orderhttp.WithHealthCheck(ping),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		opts = append(opts, orderhttp.WithIdempotency(idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)))
	}
	handler := orderhttp.NewHandler(log, coordinator, products, opts...)

	if cfg.KafkaAddr != "" {
		writer := orderkafka.NewWriter(strings.Split(cfg.KafkaAddr, ","))
		defer writer.Close()
		dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
		relay := outbox.NewRelay(log, outboxStore, dispatch, relayID(), outbox.WithLease(cfg.OutboxLease))
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
	}

	health := inventorygrpc.NewServer(log, ping)
	gs, err := inventorygrpc.Run(cfg.GRPCAddr, health)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	go health.Watch(ctx)
	log.Info("grpc listening", "addr", cfg.GRPCAddr)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
		log.Error("http server error", "err", err)
	}

	if derr := shutdown.Drain(10*time.Second, srv.Shutdown, shutdown.Signal(gs.GracefulStop, gs.Stop)); derr != nil {
		log.Warn("shutdown incomplete", "err", derr)
	}
	log.Info("shutdown complete")
	return err
}

func relayID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "local"
	}
	return "relay-" + host
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
