// Package pay2run contains the shared type vocabulary of the pay2run
// platform: Action records and creation payloads, payment method details
// issued with 402 responses, payment status polling bodies, and the
// sentinel errors and run events used across the client packages.
//
// The management client lives in package manage, the execution
// orchestrator in package runner. This package has no network behavior
// of its own.
package pay2run

import (
	"fmt"
	"math/big"
)

// DefaultBaseURL is the production platform endpoint. Every client
// accepts an override for staging and test servers.
const DefaultBaseURL = "https://api.pay2run.com"

// Payment network identifiers used in PaymentDescriptor.Network.
const (
	// NetworkEVM identifies EVM-compatible chains (chain selected by
	// PaymentDescriptor.Chain).
	NetworkEVM = "evm"

	// NetworkSolana identifies Solana (cluster selected by
	// PaymentDescriptor.Cluster).
	NetworkSolana = "solana"
)

// PaymentDescriptor describes how calls to an Action are paid for.
// It is the public, buyer-visible projection of the creator's payment
// configuration.
type PaymentDescriptor struct {
	// Network is the payment network family ("evm" or "solana").
	Network string `json:"network"`

	// Chain is the EVM chain ID as a decimal string (EVM only).
	Chain string `json:"chain,omitempty"`

	// Cluster is the Solana cluster name (Solana only).
	Cluster string `json:"cluster,omitempty"`

	// Token is the ERC-20 contract or SPL mint address. Empty means the
	// network's native asset.
	Token string `json:"token,omitempty"`

	// Price is the per-call price as a decimal string (e.g. "0.05").
	Price string `json:"price"`

	// Currency is the currency code the price is denominated in.
	Currency string `json:"currency"`
}

// ActionConfig is the public record of a monetized Action as returned
// by the platform. Runner-side secrets, the upstream target URL, and
// header templates are stripped server-side and never appear here.
//
// ActionConfig values are immutable on the client; updates go through
// the management client and yield a fresh copy.
type ActionConfig struct {
	// ID is the server-assigned Action identifier.
	ID string `json:"id"`

	// Name is the human-readable Action name.
	Name string `json:"name"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`

	// Payment describes how calls to this Action are paid for.
	Payment PaymentDescriptor `json:"payment"`
}

// EVMPaymentConfig configures payouts on an EVM-compatible chain.
type EVMPaymentConfig struct {
	// ChainID is the chain ID as a decimal string (e.g. "8453").
	ChainID string `json:"chainId"`

	// Recipient is the 0x-prefixed payout address.
	Recipient string `json:"recipient"`

	// Token is the ERC-20 contract address. Empty means the native asset.
	Token string `json:"token,omitempty"`
}

// SolanaPaymentConfig configures payouts on Solana.
type SolanaPaymentConfig struct {
	// Cluster is the cluster name (e.g. "mainnet-beta", "devnet").
	Cluster string `json:"cluster"`

	// Recipient is the base58 payout address.
	Recipient string `json:"recipient"`

	// SPLToken is the SPL mint address. Empty means native SOL.
	SPLToken string `json:"splToken,omitempty"`
}

// CreatorPaymentConfig selects the payout rail for a new or updated
// Action. Exactly one variant must be set; Validate rejects everything
// else before a byte goes on the wire.
type CreatorPaymentConfig struct {
	// EVM holds the EVM variant when the Action pays out on an
	// EVM-compatible chain.
	EVM *EVMPaymentConfig `json:"evm,omitempty"`

	// Solana holds the Solana variant when the Action pays out on Solana.
	Solana *SolanaPaymentConfig `json:"solana,omitempty"`
}

// Validate checks that exactly one variant is set and that the active
// variant carries its required fields. Returns ErrInvalidPaymentConfig
// describing the first violation found.
func (c CreatorPaymentConfig) Validate() error {
	switch {
	case c.EVM == nil && c.Solana == nil:
		return fmt.Errorf("%w: one of evm or solana must be set", ErrInvalidPaymentConfig)
	case c.EVM != nil && c.Solana != nil:
		return fmt.Errorf("%w: evm and solana are mutually exclusive", ErrInvalidPaymentConfig)
	case c.EVM != nil:
		if c.EVM.ChainID == "" {
			return fmt.Errorf("%w: evm.chainId is required", ErrInvalidPaymentConfig)
		}
		if c.EVM.Recipient == "" {
			return fmt.Errorf("%w: evm.recipient is required", ErrInvalidPaymentConfig)
		}
	default:
		if c.Solana.Cluster == "" {
			return fmt.Errorf("%w: solana.cluster is required", ErrInvalidPaymentConfig)
		}
		if c.Solana.Recipient == "" {
			return fmt.Errorf("%w: solana.recipient is required", ErrInvalidPaymentConfig)
		}
	}
	return nil
}

// Kind returns the network family of the active variant (NetworkEVM or
// NetworkSolana). An ambiguous or empty config is an error, never a
// silent default.
func (c CreatorPaymentConfig) Kind() (string, error) {
	switch {
	case c.EVM != nil && c.Solana == nil:
		return NetworkEVM, nil
	case c.Solana != nil && c.EVM == nil:
		return NetworkSolana, nil
	default:
		return "", fmt.Errorf("%w: exactly one variant must be set", ErrInvalidPaymentConfig)
	}
}

// ActionInput is the creation payload for a new Action. Unlike
// ActionConfig it carries the full runner-side configuration, including
// the upstream target and secrets; the platform stores those privately
// and strips them from every response.
type ActionInput struct {
	// Name is the human-readable Action name.
	Name string `json:"name"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`

	// TargetURL is the upstream endpoint the platform invokes on a
	// paid call.
	TargetURL string `json:"targetUrl"`

	// Method is the HTTP method used against TargetURL.
	Method string `json:"method"`

	// Headers are header templates forwarded to the upstream endpoint.
	Headers map[string]string `json:"headers,omitempty"`

	// Secrets are named credentials substituted into Headers
	// server-side. Sent once at creation, never returned.
	Secrets map[string]string `json:"secrets,omitempty"`

	// Price is the per-call price as a decimal string.
	Price string `json:"price"`

	// Currency is the currency code the price is denominated in.
	Currency string `json:"currency"`

	// Payment selects the payout rail.
	Payment CreatorPaymentConfig `json:"payment"`
}

// ActionPatch is a partial update for an existing Action. Nil fields
// are left unchanged by the platform.
type ActionPatch struct {
	Name        *string               `json:"name,omitempty"`
	Description *string               `json:"description,omitempty"`
	TargetURL   *string               `json:"targetUrl,omitempty"`
	Method      *string               `json:"method,omitempty"`
	Headers     map[string]string     `json:"headers,omitempty"`
	Secrets     map[string]string     `json:"secrets,omitempty"`
	Price       *string               `json:"price,omitempty"`
	Currency    *string               `json:"currency,omitempty"`
	Payment     *CreatorPaymentConfig `json:"payment,omitempty"`
}

// PaymentMethodType identifies the payment method variant inside
// PaymentMethodDetails.
type PaymentMethodType string

const (
	// PaymentMethodSolanaPay is a Solana Pay URI.
	PaymentMethodSolanaPay PaymentMethodType = "solana_pay"

	// PaymentMethodEIP681 is an EIP-681 Ethereum payment URI.
	PaymentMethodEIP681 PaymentMethodType = "eip681"

	// PaymentMethodGeneric is an opaque payment URI for methods the
	// client has no structured handling for.
	PaymentMethodGeneric PaymentMethodType = "generic"
)

// SolanaPayDetails carries a Solana Pay transfer request URI.
type SolanaPayDetails struct {
	// URI is the solana: URI encoding recipient, amount and references.
	URI string `json:"uri"`
}

// EIP681Details carries an EIP-681 payment request URI.
type EIP681Details struct {
	// URI is the ethereum: URI encoding recipient, chain and amount.
	URI string `json:"uri"`
}

// GenericPaymentDetails carries an opaque payment URI plus display hints.
type GenericPaymentDetails struct {
	// URI is the payment URI to present to the payer.
	URI string `json:"uri"`

	// Label is an optional display label for the payment.
	Label string `json:"label,omitempty"`

	// Network is an optional network hint for display.
	Network string `json:"network,omitempty"`
}

// PaymentMethodDetails is the tagged union of supported payment methods.
// Type names the active variant; exactly one of the variant pointers is
// populated.
type PaymentMethodDetails struct {
	// Type names the active variant.
	Type PaymentMethodType `json:"type"`

	// SolanaPay is set when Type is PaymentMethodSolanaPay.
	SolanaPay *SolanaPayDetails `json:"solanaPay,omitempty"`

	// EIP681 is set when Type is PaymentMethodEIP681.
	EIP681 *EIP681Details `json:"eip681,omitempty"`

	// Generic is set when Type is PaymentMethodGeneric.
	Generic *GenericPaymentDetails `json:"generic,omitempty"`
}

// Validate checks that Type names a known variant and that exactly the
// matching variant is populated with a non-empty URI. Returns
// ErrInvalidPaymentMethod describing the first violation found.
func (m PaymentMethodDetails) Validate() error {
	variants := 0
	if m.SolanaPay != nil {
		variants++
	}
	if m.EIP681 != nil {
		variants++
	}
	if m.Generic != nil {
		variants++
	}
	if variants != 1 {
		return fmt.Errorf("%w: exactly one variant must be set, got %d", ErrInvalidPaymentMethod, variants)
	}

	switch m.Type {
	case PaymentMethodSolanaPay:
		if m.SolanaPay == nil {
			return fmt.Errorf("%w: type %q without solanaPay details", ErrInvalidPaymentMethod, m.Type)
		}
		if m.SolanaPay.URI == "" {
			return fmt.Errorf("%w: empty solanaPay.uri", ErrInvalidPaymentMethod)
		}
	case PaymentMethodEIP681:
		if m.EIP681 == nil {
			return fmt.Errorf("%w: type %q without eip681 details", ErrInvalidPaymentMethod, m.Type)
		}
		if m.EIP681.URI == "" {
			return fmt.Errorf("%w: empty eip681.uri", ErrInvalidPaymentMethod)
		}
	case PaymentMethodGeneric:
		if m.Generic == nil {
			return fmt.Errorf("%w: type %q without generic details", ErrInvalidPaymentMethod, m.Type)
		}
		if m.Generic.URI == "" {
			return fmt.Errorf("%w: empty generic.uri", ErrInvalidPaymentMethod)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPaymentMethod, m.Type)
	}
	return nil
}

// URI returns the payment URI of the active variant, or "" when the
// details are invalid. Callers that need the violation should use
// Validate.
func (m PaymentMethodDetails) URI() string {
	switch m.Type {
	case PaymentMethodSolanaPay:
		if m.SolanaPay != nil {
			return m.SolanaPay.URI
		}
	case PaymentMethodEIP681:
		if m.EIP681 != nil {
			return m.EIP681.URI
		}
	case PaymentMethodGeneric:
		if m.Generic != nil {
			return m.Generic.URI
		}
	}
	return ""
}

// PaymentRequestDetails is the body of a 402 response from the execute
// endpoint: the payment request to settle before the call proceeds.
type PaymentRequestDetails struct {
	// PaymentRequestID identifies the payment request for status polling.
	PaymentRequestID string `json:"paymentRequestId"`

	// Method describes how the payment can be made.
	Method PaymentMethodDetails `json:"method"`
}

// Validate checks the identifier and the method union.
func (d PaymentRequestDetails) Validate() error {
	if d.PaymentRequestID == "" {
		return fmt.Errorf("%w: empty paymentRequestId", ErrInvalidPaymentMethod)
	}
	return d.Method.Validate()
}

// Payment request statuses reported by the status endpoint.
const (
	// PaymentPending means the payment has not been confirmed yet.
	PaymentPending = "pending"

	// PaymentCompleted means the payment is confirmed and a credential
	// has been minted.
	PaymentCompleted = "completed"
)

// PaymentStatus is the body of the payment status endpoint.
type PaymentStatus struct {
	// Status is "pending" or "completed".
	Status string `json:"status"`

	// JWT is the single-use execution credential, present once Status
	// is "completed".
	JWT string `json:"jwt,omitempty"`
}

// Completed reports whether the payment is confirmed and usable: status
// "completed" with a non-empty credential.
func (s PaymentStatus) Completed() bool {
	return s.Status == PaymentCompleted && s.JWT != ""
}

// RunOptions carries the per-invocation request of an Action execution.
// The zero value is a bare call with no body, query or headers. Values
// are read once at the start of a run and never mutated.
type RunOptions struct {
	// Body is the request payload, JSON-encoded when non-nil.
	Body any

	// Query are URL query parameters added to the execute request.
	Query map[string]string

	// Headers are additional headers for the execute request. The
	// Authorization header is managed by the runner and cannot be
	// overridden here.
	Headers map[string]string
}

// RunStatus is the observable state of an execution run.
type RunStatus string

const (
	// StatusIdle means no run is in flight and none has completed since
	// the last reset.
	StatusIdle RunStatus = "idle"

	// StatusPending means the execute request is in flight or awaiting
	// payment confirmation.
	StatusPending RunStatus = "pending"

	// StatusRequiresPayment means a 402 was received and the payment
	// hand-off is in progress.
	StatusRequiresPayment RunStatus = "requires_payment"

	// StatusSuccess means the run completed and result data is available.
	StatusSuccess RunStatus = "success"

	// StatusError means the run failed and the error is available.
	StatusError RunStatus = "error"
)

// AmountToBigInt converts a decimal amount string to *big.Int in atomic
// units. For example, "1.5" with 6 decimals becomes 1500000. Returns
// ErrInvalidAmount if the amount is negative, has more fractional
// digits than decimals, or does not parse.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, ErrInvalidAmount
	}

	value := new(big.Rat)
	if _, ok := value.SetString(amount); !ok {
		return nil, ErrInvalidAmount
	}
	if value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value.Mul(value, scale)

	if value.Denom().Cmp(big.NewInt(1)) != 0 {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(value.Num()), nil
}

// BigIntToAmount converts a *big.Int in atomic units to a decimal
// string. For example, 1500000 with 6 decimals becomes "1.500000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	rat := new(big.Rat).SetInt(value)
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	rat.Quo(rat, scale)

	return rat.FloatString(decimals)
}
