package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "approvals",
		Short:        "ERC20 approval exposure scanner",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Print the approval exposure of an owner address",
		RunE:  runScan,
	}

	addScanFlags(scanCmd)
	scanCmd.Flags().StringSlice("address", nil, "owner address to scan")

	root.AddCommand(scanCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve multi-address approval exposure queries over HTTP",
		RunE:  runServe,
	}

	addScanFlags(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Int("max-addresses", 50, "maximum owner addresses per request")

	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Uint64("batch-size", 0, "blocks per eth_getLogs call, 0 means one call")
	cmd.Flags().Int("concurrency", 8, "maximum concurrent owners and external calls")
	cmd.Flags().Duration("call-timeout", 15*time.Second, "timeout for each RPC call")
	cmd.Flags().Duration("scan-timeout", 0, "scan deadline, 0 waits for completion")
	cmd.Flags().Int("max-retries", 3, "maximum retry attempts for network errors")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("price-url", "https://api.coingecko.com/api/v3/simple/price", "price feed endpoint")
	cmd.Flags().Duration("price-ttl", 5*time.Minute, "price cache TTL")
	cmd.Flags().Duration("price-timeout", 10*time.Second, "timeout for each price request")
	cmd.Flags().Bool("no-price", false, "skip USD pricing")
	cmd.Flags().String("out", "", "optional JSONL report path")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for report snapshots")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
