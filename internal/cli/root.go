package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/registrygw/internal/core/config"
	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/gateway"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "registrygw",
	Short: "Registry integration gateway",
	Long: `registrygw talks to the eSocial registry over mutual TLS: it consults employer
records, events and batches, submits event batches, and serves health and metrics.`,
	Run: runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads .env and the config file and sets up logging. It exits
// the process when the configuration cannot be used.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	if cfg.Logging.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
	} else {
		stylelog.InitDefault(&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	}
	return cfg
}

// openGateway loads the configuration and builds the gateway, exiting on
// failure. The caller closes the returned scope.
func openGateway(ctx context.Context) (*gateway.Gateway, *gateway.Scope) {
	cfg := loadConfig()
	scope := gateway.NewScope(cfg)
	gw, err := scope.Gateway(ctx)
	if err != nil {
		slog.Error("Failed to initialize gateway", "error", err)
		os.Exit(1)
	}
	return gw, scope
}

// withGateway runs fn against a fresh gateway, closes it and exits with 2
// when fn reports a failed result.
func withGateway(fn func(ctx context.Context, gw *gateway.Gateway) bool) {
	ctx := context.Background()
	gw, scope := openGateway(ctx)
	ok := fn(ctx, gw)
	if err := scope.Close(); err != nil {
		slog.Warn("Error closing gateway", "error", err)
	}
	if !ok {
		os.Exit(2)
	}
}

// printResult writes r to stdout as indented JSON.
func printResult[T any](r domain.Result[T]) bool {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		slog.Error("Failed to encode result", "error", err)
		return false
	}
	return r.OK()
}
