package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vietddude/registrygw/internal/gateway"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Inspect the configured certificate",
}

var certInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show subject, issuer and validity of the certificate",
	Run: func(cmd *cobra.Command, args []string) {
		withGateway(func(ctx context.Context, gw *gateway.Gateway) bool {
			return printResult(gw.CertificateInfo(ctx))
		})
	},
}

func init() {
	certCmd.AddCommand(certInfoCmd)
	rootCmd.AddCommand(certCmd)
}
