package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vibeshop-backend/internal/api"
	"vibeshop-backend/internal/auth"
	"vibeshop-backend/internal/cart"
	"vibeshop-backend/internal/catalog"
	"vibeshop-backend/internal/checkout"
	"vibeshop-backend/internal/config"
	"vibeshop-backend/internal/messaging"
	"vibeshop-backend/internal/store"
	"vibeshop-backend/internal/telemetry"
)

const (
	serviceName    = "vibeshop"
	serviceVersion = "0.1.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to init tracer provider", "error", err)
		os.Exit(1)
	}
	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to init meter provider", "error", err)
		os.Exit(1)
	}

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}

	products := catalog.New(db.Collection(store.Products), logger)
	if cfg.SeedCatalog {
		if _, err := products.Seed(ctx); err != nil {
			logger.Error("failed to seed catalog", "error", err)
			os.Exit(1)
		}
	}

	users := db.Collection(store.Users)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	resolver := auth.NewResolver(users, tokens, auth.Fallback{
		Enabled:  cfg.AllowAnonymousFallback,
		Email:    cfg.FallbackEmail,
		Name:     cfg.FallbackName,
		Password: cfg.FallbackPassword,
	}, logger)
	if cfg.AllowAnonymousFallback {
		logger.Warn("anonymous fallback identity enabled", "email", cfg.FallbackEmail)
	}

	engine, err := cart.NewEngine(db.Collection(store.CartItems), products, logger)
	if err != nil {
		logger.Error("failed to create cart engine", "error", err)
		os.Exit(1)
	}

	var publisher checkout.Publisher
	var producer *messaging.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = messaging.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		publisher = producer
		logger.Info("publishing order events", "brokers", cfg.KafkaBrokers, "topic", cfg.OrderEventsTopic)
	}

	orders, err := checkout.NewOrchestrator(engine, products, db.Collection(store.Orders), publisher, logger)
	if err != nil {
		logger.Error("failed to create checkout orchestrator", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(auth.NewService(users, tokens, logger), resolver, products, engine, orders, logger)
	router := api.API(cfg.APIPrefix, cfg.CORSOrigins, metricsHandler, handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting vibeshop", "port", cfg.Port, "prefix", cfg.APIPrefix, "store", cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("failed to close producer", "error", err)
		}
	}
	if err := db.Close(shutdownCtx); err != nil {
		logger.Error("failed to close store", "error", err)
	}
	if err := shutdownMeter(shutdownCtx); err != nil {
		logger.Error("failed to shut down meter provider", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracer provider", "error", err)
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		s, err := store.OpenMongo(ctx, cfg.MongoURL, cfg.DBName)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		logger.Info("using mongo store", "database", cfg.DBName)
		return s, nil

	case config.BackendPostgres:
		if err := store.MigratePostgres(cfg.PostgresURL); err != nil {
			return nil, err
		}
		sqlDB, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info("using postgres store")
		return store.NewPostgres(sqlDB), nil

	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	}
}
