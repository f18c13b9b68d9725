package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/registrygw/internal/gateway"
)

var submitCmd = &cobra.Command{
	Use:   "submit [events.xml]",
	Short: "Submit a batch of signed event documents",
	Long: `Submit reads the concatenated event documents from the given file, or from
stdin when the argument is "-", wraps them in a batch and sends it once.`,
	Args: cobra.ExactArgs(1),
	Run:  runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) {
	var (
		events []byte
		err    error
	)
	if args[0] == "-" {
		events, err = io.ReadAll(os.Stdin)
	} else {
		events, err = os.ReadFile(args[0])
	}
	if err != nil {
		slog.Error("Failed to read events", "error", err)
		os.Exit(1)
	}

	withGateway(func(ctx context.Context, gw *gateway.Gateway) bool {
		return printResult(gw.SubmitBatch(ctx, string(events)))
	})
}
