package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/gateway"
	"github.com/vietddude/registrygw/internal/infra/storage/postgres"
)

var pruneOlderThan time.Duration

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the offline cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [namespace]",
	Short: "Remove cached answers of one namespace, or of all of them",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var ns domain.CacheNamespace
		if len(args) == 1 {
			ns = domain.CacheNamespace(args[0])
		}
		withGateway(func(ctx context.Context, gw *gateway.Gateway) bool {
			if err := gw.ClearCache(ctx, ns); err != nil {
				slog.Error("Failed to clear cache", "error", err)
				return false
			}
			if ns == "" {
				fmt.Println("Cleared all cache namespaces")
			} else {
				fmt.Printf("Cleared cache namespace %s\n", ns)
			}
			return true
		})
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cache rows expired for longer than the retention period (postgres backend)",
	Run:   runCachePrune,
}

func init() {
	cachePruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "retention (defaults to cache.stale_retention)")
	cacheCmd.AddCommand(cacheClearCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCachePrune(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Cache.Backend != "postgres" {
		fmt.Printf("Cache backend %q expires entries on its own; nothing to prune\n", cfg.Cache.Backend)
		return
	}

	retention := pruneOlderThan
	if retention <= 0 {
		retention = cfg.Cache.StaleRetention
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	n, err := postgres.NewCacheStore(db).Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		slog.Error("Failed to prune cache", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Pruned %d cache entries expired for more than %s\n", n, retention)
}
