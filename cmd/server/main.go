/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loyalty and coupon service. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load YAML configuration
  3. Open the configured store (sqlite or postgres)
  4. Wire ledger, coupon manager, and service
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to the YAML config file (default: config.yaml)
  -port    Override the configured HTTP port

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with defaults (sqlite at ./data/dekcha.db)
  ./server

  # Run with a config file
  ./server -config=/etc/dekcha/config.yaml

  # Override the port
  ./server -port=3000

SEE ALSO:
  - config/config.go: Configuration file format
  - api/server.go: Router configuration
  - store/sqlite, store/postgres: Database implementations
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tlegeek1524/dekcha-backend/api"
	"github.com/tlegeek1524/dekcha-backend/config"
	"github.com/tlegeek1524/dekcha-backend/coupon"
	"github.com/tlegeek1524/dekcha-backend/loyalty"
	"github.com/tlegeek1524/dekcha-backend/store/postgres"
	"github.com/tlegeek1524/dekcha-backend/store/sqlite"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to YAML config file")
	port := flag.Int("port", 0, "override the configured HTTP port")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if *port != 0 {
		cfg.Port = *port
	}

	ctx := context.Background()

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closer.Close()

	manager := coupon.NewManager(store,
		coupon.WithValidity(time.Duration(cfg.CouponValidityDays)*24*time.Hour),
		coupon.WithCodeLength(cfg.CouponCodeLength),
	)
	service := coupon.NewService(store, manager,
		coupon.WithPointsDivisor(cfg.PointsDivisor),
		coupon.WithLogger(logger),
	)

	router := api.NewRouter(api.NewHandler(service))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (loyalty.TxStore, io.Closer, error) {
	switch cfg.Store.Driver {
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			Host:     cfg.Store.Host,
			Port:     cfg.Store.Port,
			User:     cfg.Store.User,
			Password: cfg.Store.Password,
			DBName:   cfg.Store.DBName,
			SSLMode:  cfg.Store.SSLMode,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		s, err := sqlite.New(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}
