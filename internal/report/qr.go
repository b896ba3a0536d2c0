package report

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	digestHexLen  = 64
	defaultQRSize = 160
)

var ErrDigest = errors.New("digest is not a hex SHA-256")

// DigestToQR renders a SHA-256 digest as a PNG QR code at High recovery.
// The payload is the upper-case hex digest, which QR encodes in
// alphanumeric mode. An optional "sha256:" prefix is accepted.
func DigestToQR(digest string, size int) ([]byte, error) {
	payload, err := digestPayload(digest)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = defaultQRSize
	}
	q, err := qrcode.New(payload, qrcode.High)
	if err != nil {
		return nil, fmt.Errorf("encode digest: %w", err)
	}
	return q.PNG(size)
}

func digestPayload(digest string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(digest))
	d = strings.TrimPrefix(d, "sha256:")
	if len(d) != digestHexLen {
		return "", fmt.Errorf("%w: %d characters", ErrDigest, len(d))
	}
	if _, err := hex.DecodeString(d); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDigest, err)
	}
	return strings.ToUpper(d), nil
}
