// Package signature signs and verifies relay payloads with HMAC-SHA256.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Header carries the signature on inbound events and outbound deliveries.
const Header = "X-Relay-Signature"

var (
	ErrMissing  = errors.New("signature missing")
	ErrMismatch = errors.New("signature mismatch")
)

// Sign returns "sha256=<hex>" for body under secret.
func Sign(secret string, body []byte) string {
	return "sha256=" + hex.EncodeToString(mac(secret, body))
}

// Verify checks a signature produced by Sign. Both "sha256=<hex>" and bare hex
// are accepted.
func Verify(secret string, body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissing
	}

	actualHex := signature
	if prefix, rest, ok := strings.Cut(signature, "="); ok {
		if prefix != "sha256" {
			return fmt.Errorf("unsupported signature scheme %q", prefix)
		}
		actualHex = rest
	}

	actual, err := hex.DecodeString(actualHex)
	if err != nil {
		return fmt.Errorf("invalid signature format: %w", err)
	}

	if !hmac.Equal(mac(secret, body), actual) {
		return ErrMismatch
	}
	return nil
}

func mac(secret string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}
