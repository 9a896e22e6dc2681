// Package payuri parses and validates the payment URIs carried in
// payment method details: EIP-681 Ethereum payment requests and Solana
// Pay transfer requests. Parsing is display- and validation-oriented
// only; this package never constructs or signs transactions.
package payuri

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"

	"github.com/pay2run/pay2run"
)

// ErrInvalidURI indicates a payment URI that does not conform to its
// scheme. Parse errors wrap it with the specific violation.
var ErrInvalidURI = errors.New("payuri: invalid payment uri")

// EIP681 is a parsed EIP-681 payment request
// (ethereum:<target>[@chainId][/transfer]?...).
type EIP681 struct {
	// Recipient is the payout address: the URI target for native
	// transfers, the address parameter for ERC-20 transfers.
	Recipient common.Address

	// ChainID is the chain named by the @chainId suffix. Defaults to 1
	// when the URI carries none.
	ChainID *big.Int

	// Token is the ERC-20 contract for transfer requests. The zero
	// address means a native transfer.
	Token common.Address

	// Amount is the payment amount in atomic units (wei for native,
	// token units for transfer). Nil when the URI names none.
	Amount *big.Int
}

// IsToken reports whether the request is an ERC-20 transfer rather
// than a native transfer.
func (e *EIP681) IsToken() bool {
	return e.Token != (common.Address{})
}

// String renders the request back as a normalized EIP-681 URI with
// EIP-55 checksummed addresses.
func (e *EIP681) String() string {
	var b strings.Builder
	b.WriteString("ethereum:")
	if e.IsToken() {
		b.WriteString(e.Token.Hex())
	} else {
		b.WriteString(e.Recipient.Hex())
	}
	if e.ChainID != nil {
		b.WriteString("@")
		b.WriteString(e.ChainID.String())
	}
	if e.IsToken() {
		b.WriteString("/transfer?address=")
		b.WriteString(e.Recipient.Hex())
		if e.Amount != nil {
			b.WriteString("&uint256=")
			b.WriteString(e.Amount.String())
		}
	} else if e.Amount != nil {
		b.WriteString("?value=")
		b.WriteString(e.Amount.String())
	}
	return b.String()
}

// ParseEIP681 parses an EIP-681 payment request URI. Supported shapes
// are the native transfer (ethereum:0xRecipient@chain?value=N) and the
// ERC-20 transfer (ethereum:0xToken@chain/transfer?address=0xRecipient&uint256=N).
// Other target functions are rejected.
func ParseEIP681(raw string) (*EIP681, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "ethereum" {
		return nil, fmt.Errorf("%w: scheme %q, want ethereum", ErrInvalidURI, u.Scheme)
	}

	// EIP-681 allows a "pay-" prefix before the target address.
	target := strings.TrimPrefix(u.Opaque, "pay-")
	if target == "" {
		return nil, fmt.Errorf("%w: missing target address", ErrInvalidURI)
	}

	var function string
	if i := strings.IndexByte(target, '/'); i >= 0 {
		target, function = target[:i], target[i+1:]
	}

	chainID := big.NewInt(1)
	if i := strings.IndexByte(target, '@'); i >= 0 {
		id, ok := new(big.Int).SetString(target[i+1:], 10)
		if !ok || id.Sign() <= 0 {
			return nil, fmt.Errorf("%w: bad chain id %q", ErrInvalidURI, target[i+1:])
		}
		target, chainID = target[:i], id
	}

	if !common.IsHexAddress(target) {
		return nil, fmt.Errorf("%w: bad target address %q", ErrInvalidURI, target)
	}

	params := u.Query()
	parsed := &EIP681{ChainID: chainID}

	switch function {
	case "":
		parsed.Recipient = common.HexToAddress(target)
		if v := params.Get("value"); v != "" {
			amount, err := parseAtomicValue(v)
			if err != nil {
				return nil, fmt.Errorf("%w: bad value %q", ErrInvalidURI, v)
			}
			parsed.Amount = amount
		}
	case "transfer":
		parsed.Token = common.HexToAddress(target)
		recipient := params.Get("address")
		if !common.IsHexAddress(recipient) {
			return nil, fmt.Errorf("%w: bad transfer recipient %q", ErrInvalidURI, recipient)
		}
		parsed.Recipient = common.HexToAddress(recipient)
		if v := params.Get("uint256"); v != "" {
			amount, err := parseAtomicValue(v)
			if err != nil {
				return nil, fmt.Errorf("%w: bad uint256 %q", ErrInvalidURI, v)
			}
			parsed.Amount = amount
		}
	default:
		return nil, fmt.Errorf("%w: unsupported function %q", ErrInvalidURI, function)
	}

	return parsed, nil
}

// parseAtomicValue parses an EIP-681 amount, which may use scientific
// notation ("5e16"). The result must be a non-negative integer.
func parseAtomicValue(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("not a number")
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("negative")
	}
	if !r.IsInt() {
		return nil, fmt.Errorf("not an integer")
	}
	return new(big.Int).Set(r.Num()), nil
}

// SolanaPay is a parsed Solana Pay transfer request
// (solana:<recipient>?amount=...&spl-token=...&reference=...).
type SolanaPay struct {
	// Recipient is the payout account.
	Recipient solana.PublicKey

	// Amount is the payment amount in display units (SOL or token UI
	// amount) as the URI carries it. Empty when the URI names none.
	Amount string

	// SPLToken is the mint of the requested token. Nil means native SOL.
	SPLToken *solana.PublicKey

	// References are the transaction reference accounts used by the
	// platform to locate the on-chain payment.
	References []solana.PublicKey

	// Label, Message and Memo are display hints from the URI.
	Label   string
	Message string
	Memo    string
}

// String renders the request back as a normalized Solana Pay URI.
func (s *SolanaPay) String() string {
	var b strings.Builder
	b.WriteString("solana:")
	b.WriteString(s.Recipient.String())

	sep := byte('?')
	write := func(key, value string) {
		b.WriteByte(sep)
		sep = '&'
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
	}

	if s.Amount != "" {
		write("amount", s.Amount)
	}
	if s.SPLToken != nil {
		write("spl-token", s.SPLToken.String())
	}
	for _, ref := range s.References {
		write("reference", ref.String())
	}
	if s.Label != "" {
		write("label", url.QueryEscape(s.Label))
	}
	if s.Message != "" {
		write("message", url.QueryEscape(s.Message))
	}
	if s.Memo != "" {
		write("memo", url.QueryEscape(s.Memo))
	}
	return b.String()
}

// ParseSolanaPay parses a Solana Pay transfer request URI.
func ParseSolanaPay(raw string) (*SolanaPay, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "solana" {
		return nil, fmt.Errorf("%w: scheme %q, want solana", ErrInvalidURI, u.Scheme)
	}
	if u.Opaque == "" {
		return nil, fmt.Errorf("%w: missing recipient", ErrInvalidURI)
	}

	recipient, err := solana.PublicKeyFromBase58(u.Opaque)
	if err != nil {
		return nil, fmt.Errorf("%w: bad recipient %q: %v", ErrInvalidURI, u.Opaque, err)
	}

	params := u.Query()
	parsed := &SolanaPay{
		Recipient: recipient,
		Label:     params.Get("label"),
		Message:   params.Get("message"),
		Memo:      params.Get("memo"),
	}

	if amount := params.Get("amount"); amount != "" {
		r, ok := new(big.Rat).SetString(amount)
		if !ok || r.Sign() < 0 {
			return nil, fmt.Errorf("%w: bad amount %q", ErrInvalidURI, amount)
		}
		parsed.Amount = amount
	}

	if mint := params.Get("spl-token"); mint != "" {
		pk, err := solana.PublicKeyFromBase58(mint)
		if err != nil {
			return nil, fmt.Errorf("%w: bad spl-token %q: %v", ErrInvalidURI, mint, err)
		}
		parsed.SPLToken = &pk
	}

	for _, ref := range params["reference"] {
		pk, err := solana.PublicKeyFromBase58(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: bad reference %q: %v", ErrInvalidURI, ref, err)
		}
		parsed.References = append(parsed.References, pk)
	}

	return parsed, nil
}

// Payment is the network-independent projection of parsed payment
// method details, suitable for display and logging.
type Payment struct {
	// Method is the source variant.
	Method pay2run.PaymentMethodType

	// Network is a CAIP-2 style identifier: "eip155:<chainId>" for
	// EIP-681, "solana" for Solana Pay, the display hint for generic.
	Network string

	// Recipient is the payout address in its native encoding.
	Recipient string

	// Token is the ERC-20 contract or SPL mint, empty for the native
	// asset or when unknown.
	Token string

	// Amount is the amount as the URI carries it: atomic units for
	// EIP-681, display units for Solana Pay. Empty when absent.
	Amount string

	// Label is a display label when the method provides one.
	Label string

	// URI is the payment URI to present to the payer.
	URI string
}

// Parse projects validated payment method details into a Payment.
// EIP-681 and Solana Pay URIs are fully parsed; generic details pass
// through with their display hints.
func Parse(m pay2run.PaymentMethodDetails) (*Payment, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	switch m.Type {
	case pay2run.PaymentMethodEIP681:
		parsed, err := ParseEIP681(m.EIP681.URI)
		if err != nil {
			return nil, err
		}
		p := &Payment{
			Method:    m.Type,
			Network:   "eip155:" + parsed.ChainID.String(),
			Recipient: parsed.Recipient.Hex(),
			URI:       m.EIP681.URI,
		}
		if parsed.IsToken() {
			p.Token = parsed.Token.Hex()
		}
		if parsed.Amount != nil {
			p.Amount = parsed.Amount.String()
		}
		return p, nil

	case pay2run.PaymentMethodSolanaPay:
		parsed, err := ParseSolanaPay(m.SolanaPay.URI)
		if err != nil {
			return nil, err
		}
		p := &Payment{
			Method:    m.Type,
			Network:   "solana",
			Recipient: parsed.Recipient.String(),
			Amount:    parsed.Amount,
			Label:     parsed.Label,
			URI:       m.SolanaPay.URI,
		}
		if parsed.SPLToken != nil {
			p.Token = parsed.SPLToken.String()
		}
		return p, nil

	case pay2run.PaymentMethodGeneric:
		return &Payment{
			Method:  m.Type,
			Network: m.Generic.Network,
			Label:   m.Generic.Label,
			URI:     m.Generic.URI,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", pay2run.ErrInvalidPaymentMethod, m.Type)
	}
}
