package pay2run

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the client packages.
var (
	// ErrMissingAPIKey indicates a management client was constructed
	// without an API key.
	ErrMissingAPIKey = errors.New("pay2run: missing API key")

	// ErrMissingPaymentHandler indicates a runner was constructed
	// without a payment handler.
	ErrMissingPaymentHandler = errors.New("pay2run: missing payment handler")

	// ErrMissingActionID indicates a runner was constructed without an
	// Action ID.
	ErrMissingActionID = errors.New("pay2run: missing action ID")

	// ErrPaymentTimeout indicates payment confirmation did not arrive
	// within the polling budget.
	ErrPaymentTimeout = errors.New("pay2run: payment confirmation timed out")

	// ErrPaymentCancelled indicates the user cancelled the payment
	// hand-off.
	ErrPaymentCancelled = errors.New("pay2run: payment cancelled")

	// ErrPaymentUnreachable indicates the payment status endpoint failed
	// too many times in a row to keep polling.
	ErrPaymentUnreachable = errors.New("pay2run: payment status endpoint unreachable")

	// ErrUnexpectedStatus indicates the execute endpoint answered with a
	// status the protocol does not define.
	ErrUnexpectedStatus = errors.New("pay2run: unexpected response status")

	// ErrInvalidPaymentConfig indicates a creator payment config that
	// violates the one-variant rule or misses required fields.
	ErrInvalidPaymentConfig = errors.New("pay2run: invalid payment configuration")

	// ErrInvalidPaymentMethod indicates malformed payment method details
	// in a 402 response.
	ErrInvalidPaymentMethod = errors.New("pay2run: invalid payment method details")

	// ErrInvalidAmount indicates an amount string that does not parse or
	// does not fit the asset's decimals.
	ErrInvalidAmount = errors.New("pay2run: invalid amount")
)

// APIError is a non-2xx answer from the platform, carrying the HTTP
// status and the server's message when the body provided one.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the server-provided message, or the HTTP status text
	// when the body carried none.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("pay2run: api error (status %d): %s", e.StatusCode, e.Message)
}

// IsAPIError reports whether err is an *APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
