package payment

import (
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/valecashback/valecashback/internal/apperrors"
)

const (
	payloadScheme = "valecashback"
	payloadHost   = "pay"

	defaultQRSize = 256
)

// EncodePayload builds the string that goes into the QR image
func EncodePayload(code string) string {
	return fmt.Sprintf("%s://%s?code=%s", payloadScheme, payloadHost, url.QueryEscape(code))
}

// ParsePayload extracts the token code from scanned QR data.
// Bare codes are accepted too, so a token code pasted by hand still works.
func ParsePayload(data string) (string, error) {
	if data == "" {
		return "", apperrors.ErrQRPayloadEmpty
	}

	u, err := url.Parse(data)
	if err != nil || u.Scheme == "" {
		// Not a URI, treat the whole payload as the code
		return data, nil
	}

	if u.Scheme != payloadScheme || u.Host != payloadHost {
		return "", apperrors.ErrQRPayloadInvalid
	}

	code := u.Query().Get("code")
	if code == "" {
		return "", apperrors.ErrQRPayloadInvalid
	}

	return code, nil
}

// RenderPNG encodes the token code into a scannable PNG.
// An empty code is an error, never a placeholder image.
func RenderPNG(code string, size int) ([]byte, error) {
	if code == "" {
		return nil, apperrors.ErrQRPayloadEmpty
	}

	if size <= 0 {
		size = defaultQRSize
	}

	png, err := qrcode.Encode(EncodePayload(code), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("can't render qr code. Err: %w", err)
	}

	return png, nil
}
