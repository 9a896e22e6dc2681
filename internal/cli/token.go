package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pay2run/pay2run/token"
)

func (s *runtimeState) newTokenCommand() *cobra.Command {
	root := &cobra.Command{Use: "token", Short: "Execution credential helpers"}
	root.AddCommand(s.newTokenInspectCommand())
	return root
}

func (s *runtimeState) newTokenInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <credential>",
		Short: "Decode an execution credential without verifying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := token.Inspect(args[0])
			if err != nil {
				return err
			}

			now := time.Now()
			out := map[string]any{
				"actionId":         claims.ActionID,
				"paymentRequestId": claims.PaymentRequestID,
				"issuer":           claims.Issuer,
				"subject":          claims.Subject,
			}
			if claims.IssuedAt != nil {
				out["issuedAt"] = claims.IssuedAt.Time.UTC().Format(time.RFC3339)
			}
			if claims.ExpiresAt != nil {
				out["expiresAt"] = claims.ExpiresAt.Time.UTC().Format(time.RFC3339)
				out["expired"] = claims.Expired(now)
				out["ttl"] = claims.TTL(now).Round(time.Second).String()
			}
			return s.render(out)
		},
	}
}
