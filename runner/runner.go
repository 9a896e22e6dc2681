// Package runner provides the execution orchestrator for pay2run
// Actions. A Runner drives one Action through the paid execution flow:
// an unauthenticated probe, the payment hand-off when the platform
// answers 402, polling for payment confirmation, and the authorized
// replay with the minted credential.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pay2run/pay2run"
)

// Defaults for the payment confirmation poll loop. With the default
// interval and attempt cap the polling budget is about two minutes.
const (
	DefaultPollInterval    = time.Second
	DefaultMaxPollAttempts = 120
	DefaultFailureLimit    = 15
)

// PaymentHandler presents a payment request to the payer. The runner
// invokes it once per 402, on its own goroutine, with the parsed
// details and the Prompt carrying the complete/cancel continuations.
// The handler may resolve the prompt before returning or hand it to UI
// code that resolves it later.
type PaymentHandler func(details pay2run.PaymentRequestDetails, prompt *Prompt)

// Runner executes a single Action. Its observable state (Status, Data,
// Err, PaymentDetails) always describes the most recent Run; a second
// Run on the same instance overwrites it, so callers wanting isolated
// results serialize runs or use one Runner per invocation.
type Runner struct {
	actionID string
	handler  PaymentHandler
	baseURL  string
	client   *http.Client

	pollInterval    time.Duration
	maxPollAttempts int
	failureLimit    int
	onEvent         pay2run.EventCallback

	mu      sync.Mutex
	status  pay2run.RunStatus
	data    json.RawMessage
	err     error
	details *pay2run.PaymentRequestDetails
}

// Option configures a Runner.
type Option func(*Runner) error

// New creates a Runner for the given Action. The payment handler is
// required even for Actions expected to answer without payment; a
// missing handler is a configuration error surfaced here, not at the
// first 402.
func New(actionID string, handler PaymentHandler, opts ...Option) (*Runner, error) {
	if actionID == "" {
		return nil, pay2run.ErrMissingActionID
	}
	if handler == nil {
		return nil, pay2run.ErrMissingPaymentHandler
	}

	r := &Runner{
		actionID:        actionID,
		handler:         handler,
		baseURL:         pay2run.DefaultBaseURL,
		pollInterval:    DefaultPollInterval,
		maxPollAttempts: DefaultMaxPollAttempts,
		failureLimit:    DefaultFailureLimit,
		status:          pay2run.StatusIdle,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// WithBaseURL overrides the platform endpoint, e.g. for a staging
// environment or a local sandbox.
func WithBaseURL(baseURL string) Option {
	return func(r *Runner) error {
		if baseURL == "" {
			return fmt.Errorf("runner: base URL cannot be empty")
		}
		r.baseURL = strings.TrimSuffix(baseURL, "/")
		return nil
	}
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(r *Runner) error {
		if httpClient == nil {
			return fmt.Errorf("runner: http client cannot be nil")
		}
		r.client = httpClient
		return nil
	}
}

// WithPollInterval sets the payment confirmation poll cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Runner) error {
		if interval <= 0 {
			return fmt.Errorf("runner: poll interval must be positive, got %v", interval)
		}
		r.pollInterval = interval
		return nil
	}
}

// WithMaxPollAttempts sets the poll attempt cap before the run fails
// with a payment timeout.
func WithMaxPollAttempts(attempts int) Option {
	return func(r *Runner) error {
		if attempts <= 0 {
			return fmt.Errorf("runner: max poll attempts must be positive, got %d", attempts)
		}
		r.maxPollAttempts = attempts
		return nil
	}
}

// WithFailureLimit sets how many consecutive failed polls the runner
// tolerates before failing the run as unreachable. Zero disables the
// cutoff, leaving only the attempt cap.
func WithFailureLimit(limit int) Option {
	return func(r *Runner) error {
		if limit < 0 {
			return fmt.Errorf("runner: failure limit cannot be negative, got %d", limit)
		}
		r.failureLimit = limit
		return nil
	}
}

// WithEventCallback registers a callback receiving run lifecycle
// events. Callbacks are invoked synchronously on the run's goroutine.
func WithEventCallback(callback pay2run.EventCallback) Option {
	return func(r *Runner) error {
		r.onEvent = callback
		return nil
	}
}

// Run executes the Action once and returns the result payload.
//
// The probe request goes out unauthenticated. A 2xx answer completes
// the run immediately. A 402 hands the parsed payment request to the
// payment handler and suspends the run until the prompt resolves or
// ctx is done: completion starts the confirmation poll loop and, once
// a credential is minted, replays the original request with it;
// cancellation fails the run without polling.
//
// Every outcome is recorded in the observable state before Run
// returns. Cancelling ctx aborts the hand-off wait and the poll loop
// and fails the run with ctx's error.
func (r *Runner) Run(ctx context.Context, opts pay2run.RunOptions) (json.RawMessage, error) {
	start := time.Now()

	r.mu.Lock()
	r.status = pay2run.StatusPending
	r.data = nil
	r.err = nil
	r.details = nil
	r.mu.Unlock()

	r.emit(pay2run.Event{
		Type:      pay2run.EventRunStarted,
		Timestamp: start,
		ActionID:  r.actionID,
	})

	status, body, err := r.execute(ctx, opts, "")
	if err != nil {
		return nil, r.fail(start, "", 0, err)
	}

	switch {
	case status >= 200 && status < 300:
		payload, err := parsePayload(body)
		if err != nil {
			return nil, r.fail(start, "", 0, err)
		}
		r.succeed(start, "", 0, payload)
		return payload, nil

	case status == http.StatusPaymentRequired:
		details, err := parsePaymentRequired(body)
		if err != nil {
			return nil, r.fail(start, "", 0, err)
		}
		return r.handlePayment(ctx, start, opts, *details)

	default:
		return nil, r.fail(start, "", 0, fmt.Errorf("%w: %d %s", pay2run.ErrUnexpectedStatus, status, http.StatusText(status)))
	}
}

// Status returns the state of the most recent run.
func (r *Runner) Status() pay2run.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Data returns the result payload of the most recent run, or nil when
// none succeeded yet.
func (r *Runner) Data() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Err returns the failure of the most recent run, or nil.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// PaymentDetails returns the payment request of the most recent run,
// or nil when it required no payment or was reset by cancellation.
func (r *Runner) PaymentDetails() *pay2run.PaymentRequestDetails {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.details == nil {
		return nil
	}
	details := *r.details
	return &details
}

// handlePayment drives the 402 branch: hand-off, confirmation polling
// and the authorized replay.
func (r *Runner) handlePayment(ctx context.Context, start time.Time, opts pay2run.RunOptions, details pay2run.PaymentRequestDetails) (json.RawMessage, error) {
	r.mu.Lock()
	r.status = pay2run.StatusRequiresPayment
	r.details = &details
	r.mu.Unlock()

	r.emit(pay2run.Event{
		Type:             pay2run.EventPaymentRequired,
		Timestamp:        time.Now(),
		ActionID:         r.actionID,
		PaymentRequestID: details.PaymentRequestID,
		Duration:         time.Since(start),
	})

	prompt := newPrompt()
	go r.handler(details, prompt)

	var outcome promptOutcome
	select {
	case outcome = <-prompt.outcome:
	case <-ctx.Done():
		return nil, r.fail(start, details.PaymentRequestID, 0, ctx.Err())
	}

	if outcome == outcomeCancel {
		r.mu.Lock()
		r.status = pay2run.StatusIdle
		r.details = nil
		r.err = pay2run.ErrPaymentCancelled
		r.mu.Unlock()

		r.emit(pay2run.Event{
			Type:             pay2run.EventPaymentCancelled,
			Timestamp:        time.Now(),
			ActionID:         r.actionID,
			PaymentRequestID: details.PaymentRequestID,
			Duration:         time.Since(start),
		})
		return nil, pay2run.ErrPaymentCancelled
	}

	credential, attempts, err := r.pollPayment(ctx, details.PaymentRequestID)
	if err != nil {
		return nil, r.fail(start, details.PaymentRequestID, attempts, err)
	}

	r.emit(pay2run.Event{
		Type:             pay2run.EventPaymentCompleted,
		Timestamp:        time.Now(),
		ActionID:         r.actionID,
		PaymentRequestID: details.PaymentRequestID,
		PollAttempts:     attempts,
		Duration:         time.Since(start),
	})

	status, body, err := r.execute(ctx, opts, credential)
	if err != nil {
		return nil, r.fail(start, details.PaymentRequestID, attempts, err)
	}
	if status < 200 || status >= 300 {
		return nil, r.fail(start, details.PaymentRequestID, attempts, apiError(status, body))
	}

	payload, err := parsePayload(body)
	if err != nil {
		return nil, r.fail(start, details.PaymentRequestID, attempts, err)
	}
	r.succeed(start, details.PaymentRequestID, attempts, payload)
	return payload, nil
}

// pollPayment polls the payment status endpoint at the configured
// cadence until the payment completes, the attempt cap is exhausted,
// the consecutive-failure cutoff trips, or ctx is done. A failed poll
// is a transient miss: it consumes an attempt and the loop keeps
// going, unlike a "pending" answer only in that it counts toward the
// cutoff.
func (r *Runner) pollPayment(ctx context.Context, paymentRequestID string) (string, int, error) {
	url := r.baseURL + "/v1/payments/" + paymentRequestID + "/status"
	failures := 0

	for attempt := 1; attempt <= r.maxPollAttempts; attempt++ {
		status, err := r.fetchPaymentStatus(ctx, url)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", attempt, ctx.Err()
			}
			failures++
			if r.failureLimit > 0 && failures >= r.failureLimit {
				return "", attempt, fmt.Errorf("%w: %d consecutive poll failures, last: %v", pay2run.ErrPaymentUnreachable, failures, err)
			}
		case status.Completed():
			return status.JWT, attempt, nil
		default:
			failures = 0
		}

		if attempt == r.maxPollAttempts {
			break
		}
		select {
		case <-time.After(r.pollInterval):
		case <-ctx.Done():
			return "", attempt, ctx.Err()
		}
	}

	return "", r.maxPollAttempts, pay2run.ErrPaymentTimeout
}

// fetchPaymentStatus performs one poll of the status endpoint.
func (r *Runner) fetchPaymentStatus(ctx context.Context, url string) (*pay2run.PaymentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint answered %d", resp.StatusCode)
	}

	var status pay2run.PaymentStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode payment status: %w", err)
	}
	return &status, nil
}

// execute sends one request to the execute endpoint and reads the full
// response. The credential, when present, travels as the bearer
// Authorization; caller-supplied Authorization headers are ignored.
func (r *Runner) execute(ctx context.Context, opts pay2run.RunOptions, credential string) (int, []byte, error) {
	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/execute/"+r.actionID, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range opts.Headers {
		if strings.EqualFold(key, "Authorization") {
			continue
		}
		req.Header.Set(key, value)
	}
	if len(opts.Query) > 0 {
		query := req.URL.Query()
		for key, value := range opts.Query {
			query.Set(key, value)
		}
		req.URL.RawQuery = query.Encode()
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// httpClient returns the HTTP client to use, defaulting to http.DefaultClient.
func (r *Runner) httpClient() *http.Client {
	if r.client != nil {
		return r.client
	}
	return http.DefaultClient
}

func (r *Runner) succeed(start time.Time, paymentRequestID string, attempts int, payload json.RawMessage) {
	r.mu.Lock()
	r.status = pay2run.StatusSuccess
	r.data = payload
	r.mu.Unlock()

	r.emit(pay2run.Event{
		Type:             pay2run.EventRunSucceeded,
		Timestamp:        time.Now(),
		ActionID:         r.actionID,
		PaymentRequestID: paymentRequestID,
		PollAttempts:     attempts,
		Duration:         time.Since(start),
	})
}

func (r *Runner) fail(start time.Time, paymentRequestID string, attempts int, err error) error {
	r.mu.Lock()
	r.status = pay2run.StatusError
	r.err = err
	r.mu.Unlock()

	r.emit(pay2run.Event{
		Type:             pay2run.EventRunFailed,
		Timestamp:        time.Now(),
		ActionID:         r.actionID,
		PaymentRequestID: paymentRequestID,
		PollAttempts:     attempts,
		Duration:         time.Since(start),
		Error:            err,
	})
	return err
}

func (r *Runner) emit(event pay2run.Event) {
	if r.onEvent != nil {
		r.onEvent(event)
	}
}

// parsePaymentRequired decodes and validates the 402 body.
func parsePaymentRequired(body []byte) (*pay2run.PaymentRequestDetails, error) {
	var details pay2run.PaymentRequestDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("%w: undecodable payment required body: %v", pay2run.ErrInvalidPaymentMethod, err)
	}
	if err := details.Validate(); err != nil {
		return nil, err
	}
	return &details, nil
}

// parsePayload checks that a successful execute body is well-formed
// JSON and returns it unmodified.
func parsePayload(body []byte) (json.RawMessage, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("execute response is not valid JSON")
	}
	return json.RawMessage(body), nil
}

// apiError builds the error for a non-2xx authorized replay, carrying
// the server message when the body provides one.
func apiError(status int, body []byte) error {
	apiErr := &pay2run.APIError{
		StatusCode: status,
		Message:    http.StatusText(status),
	}
	var errBody struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errBody); err == nil && errBody.Message != "" {
		apiErr.Message = errBody.Message
	}
	return apiErr
}
