// Package token inspects pay2run execution credentials. Credentials
// are JWTs minted by the platform once a payment completes; the
// platform verifies them on the authorized replay, so clients decode
// claims without signature verification, for display and expiry
// scheduling only.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed indicates a credential that is not a decodable JWT.
var ErrMalformed = errors.New("token: malformed credential")

// Claims extends standard JWT claims with the platform fields minted
// into execution credentials.
type Claims struct {
	jwt.RegisteredClaims

	// ActionID is the Action the credential authorizes.
	ActionID string `json:"actionId,omitempty"`

	// PaymentRequestID is the payment request the credential settles.
	PaymentRequestID string `json:"paymentRequestId,omitempty"`
}

var parser = jwt.NewParser()

// Inspect decodes the claims of a credential without verifying its
// signature.
func Inspect(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// TTL returns the remaining lifetime of the credential at now, or 0
// when it is expired or carries no expiry.
func (c *Claims) TTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	ttl := c.ExpiresAt.Time.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Expired reports whether the credential's expiry has passed at now.
// A credential without an expiry never expires.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time)
}
