package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"bitcoin-tipjar-go/internal/models"
	"bitcoin-tipjar-go/internal/orchestrator"
	"bitcoin-tipjar-go/internal/rates"
	"bitcoin-tipjar-go/internal/store"
	"bitcoin-tipjar-go/internal/voltage"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	Rates        *rates.Service
	Voltage      *voltage.Service
	Orchestrator *orchestrator.Orchestrator
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(cfg *models.Config) (*Services, error) {
	zap.L().Info("Initializing Voltage payment gateway",
		zap.String("base_url", cfg.Voltage.BaseUrl),
		zap.String("wallet_id", cfg.Voltage.WalletId))
	voltageService, err := voltage.NewService(cfg.Voltage)
	if err != nil {
		return nil, err
	}

	ratesService := rates.NewService(cfg.Rates)

	orch := orchestrator.New(orchestrator.Config{
		Gateway:      voltageService,
		Converter:    ratesService,
		WalletId:     cfg.Voltage.WalletId,
		PaymentKind:  cfg.Voltage.PaymentKind,
		Instructions: cfg.Polling.Instructions,
		Settlement:   cfg.Polling.Settlement,
	})

	return &Services{
		Rates:        ratesService,
		Voltage:      voltageService,
		Orchestrator: orch,
	}, nil
}

// NewReplayStore builds the idempotency replay store named by the
// configured backend. The caller owns Close.
func NewReplayStore(ctx context.Context, cfg models.StoreConfig) (store.ReplayStore, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(cfg.Ttl), nil
	case "sqlite":
		return store.NewSqliteStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown idempotency store backend %q", cfg.Backend)
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
