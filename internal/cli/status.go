package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/gateway"
	"github.com/vietddude/registrygw/internal/health"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show certificate, circuit and cache status",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	withGateway(func(ctx context.Context, gw *gateway.Gateway) bool {
		report := health.NewMonitor(gw, gw.Config().Certificate.WarnDays).CheckHealth(ctx)

		fmt.Printf("Environment: %s\nStatus: %s\n\n", gw.Config().Environment, report.SystemStatus)

		names := make([]string, 0, len(report.Components))
		for name := range report.Components {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tMESSAGE")
		for _, name := range names {
			c := report.Components[name]
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Status, c.Message)
		}
		_ = w.Flush()

		stats := gw.BreakerStats()
		if len(stats) > 0 {
			fmt.Println()
			w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
			_, _ = fmt.Fprintln(w, "OPERATION\tCIRCUIT\tFAILURES\tTRIPS")
			for _, op := range domain.Operations {
				s, ok := stats[op]
				if !ok {
					continue
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", op, s.State, s.Failures, s.Trips)
			}
			_ = w.Flush()
		}

		return report.SystemStatus != health.StatusCritical
	})
}
