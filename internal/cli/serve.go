package cli

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pay2run/pay2run"
	"github.com/pay2run/pay2run/mcp"
	"github.com/pay2run/pay2run/runner"
	"github.com/pay2run/pay2run/sandbox"
)

func (s *runtimeState) newSandboxCommand() *cobra.Command {
	var (
		addr         string
		apiKey       string
		autoComplete string
	)

	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run a local in-memory platform for development",
		Long: `Run a local in-memory platform stand-in. It serves the management
API, issues 402 payment requests on execute, and mints demo
credentials. Complete payments by hand through
POST /sandbox/payments/{id}/complete, or pass --auto-complete to have
every payment confirm itself after a delay.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var auto time.Duration
			if autoComplete != "" {
				d, err := time.ParseDuration(autoComplete)
				if err != nil {
					return fmt.Errorf("parse --auto-complete: %w", err)
				}
				auto = d
			}

			box := sandbox.New(sandbox.Config{
				APIKey:       apiKey,
				AutoComplete: auto,
			})

			fmt.Fprintf(s.runner.stderr, "sandbox listening on %s\n", addr)
			if apiKey == "" {
				fmt.Fprintln(s.runner.stderr, "management auth disabled, pass --api-key to require a key")
			}
			return http.ListenAndServe(addr, box.Handler())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8402", "Listen address")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key required for management requests")
	cmd.Flags().StringVar(&autoComplete, "auto-complete", "", "Complete every payment after this delay (e.g. 5s)")
	return cmd
}

func (s *runtimeState) newMCPCommand() *cobra.Command {
	var (
		addr  string
		stdio bool
		noQR  bool
	)

	cmd := &cobra.Command{
		Use:   "mcp [action-id...]",
		Short: "Serve Actions as MCP tools",
		Long: `Serve Actions as MCP tools over streamable HTTP or stdio. With no
arguments every Action of the account becomes a tool; otherwise only
the listed action IDs are served. Payment requests are printed to
stderr and polling starts immediately, so payments are completed out
of band while the tool call waits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.manageClient()
			if err != nil {
				return err
			}

			var actions []pay2run.ActionConfig
			if len(args) > 0 {
				for _, id := range args {
					action, err := client.Get(cmd.Context(), id)
					if err != nil {
						return err
					}
					actions = append(actions, *action)
				}
			} else {
				actions, err = client.List(cmd.Context())
				if err != nil {
					return err
				}
			}
			if len(actions) == 0 {
				return fmt.Errorf("no actions to serve")
			}

			srv, err := mcp.NewServer(cliName, cliVersion, mcp.Config{
				BaseURL:        s.settings.BaseURL,
				PaymentHandler: s.paymentPrompt(noQR, true),
				HTTPClient:     s.httpClient(),
				RunnerOptions: []runner.Option{
					runner.WithPollInterval(s.settings.PollInterval),
					runner.WithMaxPollAttempts(s.settings.MaxPollAttempts),
					runner.WithFailureLimit(s.settings.FailureLimit),
				},
			})
			if err != nil {
				return err
			}

			seen := map[string]int{}
			for _, action := range actions {
				name := toolName(action.Name)
				seen[name]++
				if n := seen[name]; n > 1 {
					name = fmt.Sprintf("%s_%d", name, n)
				}
				if err := srv.AddAction(name, action); err != nil {
					return fmt.Errorf("register action %s: %w", action.ID, err)
				}
				fmt.Fprintf(s.runner.stderr, "tool %s -> action %s (%s %s per call)\n",
					name, action.ID, action.Payment.Price, action.Payment.Currency)
			}

			if stdio {
				return srv.ServeStdio()
			}
			fmt.Fprintf(s.runner.stderr, "mcp server listening on %s\n", addr)
			return srv.Start(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8403", "Listen address for streamable HTTP")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Serve over stdin/stdout instead of HTTP")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "Skip terminal QR codes for payment requests")
	return cmd
}

// toolName turns an Action name into an MCP tool identifier.
func toolName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	name = strings.TrimSuffix(b.String(), "_")
	if name == "" {
		return "action"
	}
	return name
}
