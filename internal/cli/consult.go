package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/gateway"
)

var (
	eventType string
	fromDate  string
	toDate    string
)

var consultCmd = &cobra.Command{
	Use:   "consult",
	Short: "Query the registry",
}

var consultEmployerCmd = &cobra.Command{
	Use:   "employer",
	Short: "Show the employer record of the configured employer",
	Run: func(cmd *cobra.Command, args []string) {
		withGateway(func(ctx context.Context, gw *gateway.Gateway) bool {
			return printResult(gw.ConsultEmployer(ctx))
		})
	},
}

var consultRosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "List the admission events (S-2200) that make up the employee roster",
	Run: func(cmd *cobra.Command, args []string) {
		withGateway(func(ctx context.Context, gw *gateway.Gateway) bool {
			return printResult(gw.ConsultRoster(ctx))
		})
	},
}

var consultEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List submitted events by type and period",
	Run: func(cmd *cobra.Command, args []string) {
		q := eventQuery()
		withGateway(func(ctx context.Context, gw *gateway.Gateway) bool {
			return printResult(gw.ConsultEvents(ctx, q))
		})
	},
}

var consultEventIDsCmd = &cobra.Command{
	Use:   "event-ids",
	Short: "List the identifiers of submitted events by type and period",
	Run: func(cmd *cobra.Command, args []string) {
		q := eventQuery()
		withGateway(func(ctx context.Context, gw *gateway.Gateway) bool {
			return printResult(gw.ConsultEventIDs(ctx, q))
		})
	},
}

var consultBatchCmd = &cobra.Command{
	Use:   "batch [protocol]",
	Short: "Show the processing state of a submitted batch",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withGateway(func(ctx context.Context, gw *gateway.Gateway) bool {
			return printResult(gw.ConsultBatch(ctx, args[0]))
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{consultEventsCmd, consultEventIDsCmd} {
		c.Flags().StringVar(&eventType, "type", "", "event type, e.g. S-1200")
		c.Flags().StringVar(&fromDate, "from", "", "period start (YYYY-MM-DD)")
		c.Flags().StringVar(&toDate, "to", "", "period end (YYYY-MM-DD)")
		_ = c.MarkFlagRequired("type")
	}
	consultCmd.AddCommand(consultEmployerCmd, consultRosterCmd, consultEventsCmd, consultEventIDsCmd, consultBatchCmd)
	rootCmd.AddCommand(consultCmd)
}

func eventQuery() domain.EventQuery {
	q := domain.EventQuery{EventType: eventType}
	var err error
	if q.From, err = parseDate(fromDate); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --from: %v\n", err)
		os.Exit(1)
	}
	if q.To, err = parseDate(toDate); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --to: %v\n", err)
		os.Exit(1)
	}
	return q
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}
