package runner

import "sync/atomic"

// promptOutcome is the resolution of a payment hand-off.
type promptOutcome int

const (
	outcomeComplete promptOutcome = iota
	outcomeCancel
)

// Prompt carries the continuations of a payment hand-off. The payment
// handler receives one Prompt per 402 and resolves it by calling
// Complete once the payer reports the payment as sent, or Cancel to
// abandon it. The first call wins; the losing continuation and any
// repeat calls are no-ops. Both methods are safe for concurrent use
// and never block, so they can be wired directly to UI events.
type Prompt struct {
	fired   atomic.Bool
	outcome chan promptOutcome
}

func newPrompt() *Prompt {
	return &Prompt{outcome: make(chan promptOutcome, 1)}
}

// Complete signals that the payer reports the payment as sent and the
// runner should start polling for confirmation. Reports whether the
// call took effect.
func (p *Prompt) Complete() bool {
	return p.resolve(outcomeComplete)
}

// Cancel abandons the payment. The run fails with a cancellation error
// and no polling starts. Reports whether the call took effect.
func (p *Prompt) Cancel() bool {
	return p.resolve(outcomeCancel)
}

func (p *Prompt) resolve(outcome promptOutcome) bool {
	if !p.fired.CompareAndSwap(false, true) {
		return false
	}
	p.outcome <- outcome
	return true
}
