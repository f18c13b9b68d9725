package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/registrygw/internal/health"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the health and metrics server",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, scope := openGateway(ctx)
	defer func() {
		if err := scope.Close(); err != nil {
			slog.Error("Error closing gateway", "error", err)
		}
	}()

	cfg := gw.Config()
	monitor := health.NewMonitor(gw, cfg.Certificate.WarnDays)
	server := health.NewServer(monitor, cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Report certificate problems at startup rather than on the first call.
	if res := gw.CertificateInfo(ctx); !res.OK() {
		slog.Warn("Certificate not usable", "error_code", res.Err.Code, "message", res.Err.Message)
	} else {
		slog.Info("Certificate loaded",
			"subject", res.Data.Subject,
			"not_after", res.Data.NotAfter,
			"days_until_expiry", res.Data.DaysUntilExpiry,
		)
	}

	slog.Info("Registry gateway serving",
		"config", cfgPath,
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
	case err := <-errCh:
		slog.Error("Health server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}
