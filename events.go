package pay2run

import "time"

// EventType represents the type of run event.
type EventType string

const (
	// EventRunStarted indicates an execution run began.
	EventRunStarted EventType = "run_started"

	// EventPaymentRequired indicates the execute endpoint demanded
	// payment and the hand-off to the payment handler began.
	EventPaymentRequired EventType = "payment_required"

	// EventPaymentCompleted indicates payment confirmation arrived and a
	// credential was issued.
	EventPaymentCompleted EventType = "payment_completed"

	// EventPaymentCancelled indicates the payment hand-off was cancelled.
	EventPaymentCancelled EventType = "payment_cancelled"

	// EventRunSucceeded indicates the run finished with result data.
	EventRunSucceeded EventType = "run_succeeded"

	// EventRunFailed indicates the run finished with an error.
	EventRunFailed EventType = "run_failed"
)

// Event represents an execution run lifecycle event. Events exist for
// logging, monitoring and debugging; the run outcome is always carried
// by the Run return values, never only by an event.
type Event struct {
	// Type is the event type.
	Type EventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// ActionID is the Action being executed.
	ActionID string

	// PaymentRequestID is the payment request in flight, when one exists.
	PaymentRequestID string

	// PollAttempts is the number of status polls performed so far
	// (payment_completed and payment-related failures).
	PollAttempts int

	// Duration is the time elapsed since the run started.
	Duration time.Duration

	// Error contains error details (run_failed only).
	Error error
}

// EventCallback is a function that handles run events. Callbacks are
// invoked synchronously on the run's goroutine, so they should be fast
// to avoid blocking the flow. For longer operations, consider using
// goroutines within the callback.
type EventCallback func(Event)
