package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/config"
	"github.com/ariefcatur/go-shop-orders/internal/httpx"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/observability"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		logger.Fatal("tracing setup", zap.Error(err))
	}

	// Stores
	var (
		productStore catalog.Store
		orderStore   orders.Store
		orderRefs    catalog.References
	)
	switch cfg.Store {
	case config.StoreMemory:
		productStore = catalog.NewMemoryStore()
		mem := orders.NewMemoryStore()
		orderStore, orderRefs = mem, mem
		logger.Warn("using in-memory stores, data is lost on restart")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				logger.Fatal("db migrate", zap.Error(err))
			}
		}
		productStore = &catalog.PostgresStore{DB: db}
		pg := &orders.PostgresStore{DB: db}
		orderStore, orderRefs = pg, pg
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, idempotency and status cache degrade to store reads", zap.Error(err))
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, logger)
	prod.Start()

	// Services
	ledger := inventory.NewLedger(productStore, logger)
	svc := orders.NewService(orderStore, ledger, productStore, &kafkax.EnvelopeSink{Producer: prod}, logger, cfg.ServiceName)

	router := httpx.NewRouter(logger)
	auth := httpx.Authenticate([]byte(cfg.JWTSecret), logger)
	ph := &httpx.ProductsHandler{
		Catalog: catalog.NewService(productStore, orderRefs, logger),
		Ledger:  ledger,
		Logger:  logger,
	}
	ph.Register(router, auth)
	oh := &httpx.OrdersHandler{
		Service: svc,
		Idem:    &redisx.Idempotency{RDB: rdb},
		Status:  &redisx.StatusCache{RDB: rdb},
		Logger:  logger,
	}
	router.Group(func(r chi.Router) {
		r.Use(auth)
		oh.Register(r)
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	prod.Close() // close inbox, writer flushes
	prod.WaitClosed()
	if err := shutdownTracing(ctx2); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	cancel()
}
