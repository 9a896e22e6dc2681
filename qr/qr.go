// Package qr renders payment method details as QR codes, as PNG bytes
// for UIs and as block characters for terminals.
package qr

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/skip2/go-qrcode"

	"github.com/pay2run/pay2run"
)

// PNG renders the payment URI of the details as a PNG image with the
// given edge length in pixels.
func PNG(details pay2run.PaymentMethodDetails, size int) ([]byte, error) {
	uri, err := paymentURI(details)
	if err != nil {
		return nil, err
	}

	code, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, code.Image(size)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// Terminal renders the payment URI of the details as a half-block
// string for terminal display.
func Terminal(details pay2run.PaymentMethodDetails) (string, error) {
	uri, err := paymentURI(details)
	if err != nil {
		return "", err
	}

	code, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code: %w", err)
	}
	return code.ToSmallString(false), nil
}

func paymentURI(details pay2run.PaymentMethodDetails) (string, error) {
	if err := details.Validate(); err != nil {
		return "", err
	}
	return details.URI(), nil
}
