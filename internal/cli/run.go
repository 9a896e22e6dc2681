package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pay2run/pay2run"
	"github.com/pay2run/pay2run/payuri"
	"github.com/pay2run/pay2run/qr"
	"github.com/pay2run/pay2run/runner"
)

func (s *runtimeState) newRunCommand() *cobra.Command {
	var (
		body         string
		query        []string
		headers      []string
		pollInterval string
		maxAttempts  int
		failureLimit int
		noQR         bool
		assumePaid   bool
	)

	cmd := &cobra.Command{
		Use:   "run <action-id>",
		Short: "Execute a paid Action",
		Long: `Execute a paid Action. When the platform answers 402, the payment
request is shown with a terminal QR code; press Enter once paid to
start polling for confirmation, or type "cancel" to abort.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pay2run.RunOptions{}
			if body != "" {
				var decoded any
				if err := json.Unmarshal([]byte(body), &decoded); err != nil {
					return fmt.Errorf("parse --body: %w", err)
				}
				opts.Body = decoded
			}
			queryMap, err := parseKeyValues(query, "query")
			if err != nil {
				return err
			}
			opts.Query = queryMap
			headerMap, err := parseKeyValues(headers, "header")
			if err != nil {
				return err
			}
			opts.Headers = headerMap

			interval := s.settings.PollInterval
			if pollInterval != "" {
				interval, err = time.ParseDuration(pollInterval)
				if err != nil {
					return fmt.Errorf("parse --poll-interval: %w", err)
				}
			}
			attempts := s.settings.MaxPollAttempts
			if cmd.Flags().Changed("max-poll-attempts") {
				attempts = maxAttempts
			}
			limit := s.settings.FailureLimit
			if cmd.Flags().Changed("failure-limit") {
				limit = failureLimit
			}

			r, err := runner.New(args[0], s.paymentPrompt(noQR, assumePaid),
				runner.WithBaseURL(s.settings.BaseURL),
				runner.WithHTTPClient(s.httpClient()),
				runner.WithPollInterval(interval),
				runner.WithMaxPollAttempts(attempts),
				runner.WithFailureLimit(limit),
				runner.WithEventCallback(s.progressEvents()),
			)
			if err != nil {
				return err
			}

			data, err := r.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if s.settings.OutputMode == "plain" {
				fmt.Fprintln(s.runner.stdout, string(data))
				return nil
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, data, "", "  "); err != nil {
				fmt.Fprintln(s.runner.stdout, string(data))
				return nil
			}
			pretty.WriteByte('\n')
			_, err = s.runner.stdout.Write(pretty.Bytes())
			return err
		},
	}

	cmd.Flags().StringVar(&body, "body", "", "JSON request body")
	cmd.Flags().StringArrayVar(&query, "query", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "Request header as key=value (repeatable)")
	cmd.Flags().StringVar(&pollInterval, "poll-interval", "", "Delay between payment status polls")
	cmd.Flags().IntVar(&maxAttempts, "max-poll-attempts", 0, "Maximum payment status polls")
	cmd.Flags().IntVar(&failureLimit, "failure-limit", 0, "Consecutive failed polls before giving up (0 disables)")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "Skip the terminal QR code")
	cmd.Flags().BoolVar(&assumePaid, "assume-paid", false, "Start polling immediately without prompting")
	return cmd
}

// paymentPrompt builds the interactive hand-off: show the payment
// request, then block on stdin until the user confirms or cancels.
func (s *runtimeState) paymentPrompt(noQR, assumePaid bool) runner.PaymentHandler {
	return func(details pay2run.PaymentRequestDetails, prompt *runner.Prompt) {
		stderr := s.runner.stderr

		fmt.Fprintf(stderr, "\nPayment required (request %s)\n", details.PaymentRequestID)
		if payment, err := payuri.Parse(details.Method); err == nil {
			fmt.Fprintf(stderr, "  network:   %s\n", payment.Network)
			if payment.Recipient != "" {
				fmt.Fprintf(stderr, "  recipient: %s\n", payment.Recipient)
			}
			if payment.Token != "" {
				fmt.Fprintf(stderr, "  token:     %s\n", payment.Token)
			}
			if payment.Amount != "" {
				fmt.Fprintf(stderr, "  amount:    %s\n", payment.Amount)
			}
		}
		fmt.Fprintf(stderr, "  uri:       %s\n", details.Method.URI())

		if !noQR {
			if art, err := qr.Terminal(details.Method); err == nil {
				fmt.Fprintln(stderr)
				fmt.Fprintln(stderr, art)
			}
		}

		if assumePaid {
			fmt.Fprintln(stderr, "Polling for payment confirmation...")
			prompt.Complete()
			return
		}

		fmt.Fprint(stderr, "Press Enter once paid, or type \"cancel\": ")
		scanner := bufio.NewScanner(s.runner.stdin)
		if !scanner.Scan() {
			prompt.Cancel()
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer == "cancel" || answer == "c" {
			prompt.Cancel()
			return
		}
		fmt.Fprintln(stderr, "Polling for payment confirmation...")
		prompt.Complete()
	}
}

// progressEvents reports run milestones on stderr, leaving stdout to
// the result payload.
func (s *runtimeState) progressEvents() pay2run.EventCallback {
	return func(event pay2run.Event) {
		switch event.Type {
		case pay2run.EventPaymentCompleted:
			fmt.Fprintf(s.runner.stderr, "Payment confirmed after %d poll(s)\n", event.PollAttempts)
		case pay2run.EventPaymentCancelled:
			fmt.Fprintln(s.runner.stderr, "Payment cancelled")
		case pay2run.EventRunFailed:
			if event.Error != nil {
				fmt.Fprintf(s.runner.stderr, "Run failed: %v\n", event.Error)
			}
		}
	}
}
