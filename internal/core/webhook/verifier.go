// Package webhook authenticates inbound gateway callbacks.
//
// Gateways sign callbacks in different ways. Each one is described by a
// Scheme value and checked by the single Verify function, which must run
// before the body is parsed or routed.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/palmera/payments/internal/core"
)

// Scheme is one of SharedSecretScheme or HMACScheme.
type Scheme interface {
	scheme()
}

// SharedSecretScheme expects Header to carry Secret verbatim.
type SharedSecretScheme struct {
	Header string
	Secret string
}

// Algorithm selects the HMAC hash.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// HMACScheme expects Header to carry hex(HMAC-Algorithm(Key, body)).
type HMACScheme struct {
	Header    string
	Algorithm Algorithm
	Key       string
}

func (SharedSecretScheme) scheme() {}
func (HMACScheme) scheme()         {}

// Verify checks body and headers against s. Every failure wraps
// core.ErrInvalidSignature.
func Verify(s Scheme, body []byte, headers map[string][]string) error {
	switch s := s.(type) {
	case SharedSecretScheme:
		if s.Secret == "" {
			return fmt.Errorf("%w: webhook secret not configured", core.ErrInvalidSignature)
		}
		got := HeaderValue(headers, s.Header)
		if got == "" {
			return fmt.Errorf("%w: missing %s header", core.ErrInvalidSignature, s.Header)
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.Secret)) != 1 {
			return fmt.Errorf("%w: %s mismatch", core.ErrInvalidSignature, s.Header)
		}
		return nil

	case HMACScheme:
		if s.Key == "" {
			return fmt.Errorf("%w: webhook secret not configured", core.ErrInvalidSignature)
		}
		newHash, err := s.Algorithm.hash()
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
		}
		got := HeaderValue(headers, s.Header)
		if got == "" {
			return fmt.Errorf("%w: missing %s header", core.ErrInvalidSignature, s.Header)
		}
		sig, err := hex.DecodeString(strings.TrimSpace(got))
		if err != nil {
			return fmt.Errorf("%w: malformed %s header", core.ErrInvalidSignature, s.Header)
		}
		mac := hmac.New(newHash, []byte(s.Key))
		mac.Write(body)
		if !hmac.Equal(sig, mac.Sum(nil)) {
			return fmt.Errorf("%w: %s mismatch", core.ErrInvalidSignature, s.Header)
		}
		return nil
	}
	return fmt.Errorf("%w: no verification scheme", core.ErrInvalidSignature)
}

// Sign returns the header value an HMACScheme expects for body.
func Sign(s HMACScheme, body []byte) (string, error) {
	newHash, err := s.Algorithm.hash()
	if err != nil {
		return "", err
	}
	mac := hmac.New(newHash, []byte(s.Key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// HeaderValue looks a header up case-insensitively, so raw maps built by
// callers work as well as canonicalized http.Header values.
func HeaderValue(headers map[string][]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func (a Algorithm) hash() (func() hash.Hash, error) {
	switch a {
	case SHA512:
		return sha512.New, nil
	case SHA256:
		return sha256.New, nil
	}
	return nil, fmt.Errorf("unsupported hmac algorithm %q", a)
}
