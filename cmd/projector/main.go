package main

import (
	"context"
	"github.com/ariefcatur/go-shop-orders/internal/config"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/observability"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/projector"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// The projector keeps the order status cache in Redis in step with the
// order.events topic.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.ValidateProjector(); err != nil {
		log.Fatalf("config: %v", err)
	}
	service := cfg.ServiceName + "-projector"
	logger, err := observability.NewLogger(service, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, service, cfg.OtelEndpoint)
	if err != nil {
		logger.Fatal("tracing setup", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	h := projector.NewHandler(
		&redisx.StatusCache{RDB: rdb},
		&redisx.Dedup{RDB: rdb, Service: "projector"},
		logger,
	)

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, orders.TopicOrderEvents, cfg.ProjectorWorkers, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("projector consumer started",
			zap.String("group", cfg.ProjectorGroup),
			zap.String("topic", orders.TopicOrderEvents),
			zap.Int("workers", cfg.ProjectorWorkers),
		)
		if err := cons.Start(ctx, h.Handle); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer...")
	cancel()
	<-done

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := shutdownTracing(ctx2); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
