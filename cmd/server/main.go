package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/gin-gonic/gin"

	"tradeledger/backend/internal/bootstrap"
	"tradeledger/backend/internal/config"
	"tradeledger/backend/internal/httpapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel)
	if err := validateConfig(cfg); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	app, err := bootstrap.Open(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatalf("startup failed: %v", err)
	}

	api := httpapi.New(app.Service, cfg.AllowedOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("ledger backend listening on %s (%s)", cfg.Address(), app.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
	app.Close()

	logger.Info("server stopped")
}

func validateConfig(cfg config.Config) error {
	if money.GetCurrency(cfg.DisplayCurrency) == nil {
		return fmt.Errorf("DISPLAY_CURRENCY %q is not an ISO 4217 code", cfg.DisplayCurrency)
	}
	if cfg.DatabaseURL != "" && cfg.SQLitePath != "" {
		return errors.New("set only one of DATABASE_URL and SQLITE_PATH")
	}
	if cfg.LowStockThreshold < 0 {
		return errors.New("LOW_STOCK_THRESHOLD must not be negative")
	}
	switch cfg.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return fmt.Errorf("GIN_MODE %q is not one of debug, release, test", cfg.GinMode)
	}
	return nil
}
