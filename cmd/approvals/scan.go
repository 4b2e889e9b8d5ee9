package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"approvalScope/internal/config"
	"approvalScope/internal/indexer"
	"approvalScope/internal/storage"
)

func runScan(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	owners, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	if len(owners) == 0 {
		return fmt.Errorf("address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("scan start",
		zap.Int("owners", len(owners)),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Bool("price", !cfg.NoPrice),
	)

	scannedAt := time.Now().UTC()
	result := a.orchestrator.Scan(ctx, owners, cfg.Concurrency)

	if err := writeReport(os.Stdout, os.Stderr, owners, result); err != nil {
		return err
	}

	if a.sink != nil {
		report := storage.Report{ScanID: uuid.NewString(), ScannedAt: scannedAt, Result: result}
		if err := a.sink.PutReport(ctx, report); err != nil {
			return fmt.Errorf("store report: %w", err)
		}
	}
	return nil
}
