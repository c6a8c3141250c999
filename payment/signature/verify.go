// Package signature authenticates webhook deliveries from the monitoring service.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"go-paywatch/payment"
)

const DefaultTolerance = 300 * time.Second

type Verifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		Secret:    secret,
		Tolerance: tolerance,
		Now:       time.Now,
	}
}

// Verify checks signatureHeader against HMAC-SHA256(secret, timestamp + "." + body).
// It fails closed: any missing input is an auth error and a missing secret is a
// configuration error.
func (v *Verifier) Verify(body []byte, signatureHeader, timestampHeader string) error {
	if v.Secret == "" {
		return payment.ConfigurationError("webhook secret is not configured")
	}

	sig := strings.TrimSpace(signatureHeader)
	ts := strings.TrimSpace(timestampHeader)
	if sig == "" {
		return payment.AuthError("missing signature")
	}
	if ts == "" {
		return payment.AuthError("missing timestamp")
	}
	if len(body) == 0 {
		return payment.AuthError("missing body")
	}

	sent, err := ParseTimestamp(ts)
	if err != nil {
		return payment.AuthError("unparseable timestamp")
	}
	skew := v.Now().Sub(sent)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.Tolerance {
		return payment.AuthError("timestamp outside tolerance")
	}

	given, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return payment.AuthError("malformed signature")
	}
	if !hmac.Equal(given, mac(v.Secret, ts, body)) {
		return payment.AuthError("signature mismatch")
	}
	return nil
}

// Sign returns the hex signature a sender attaches for body at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	return hex.EncodeToString(mac(secret, timestamp, body))
}

func mac(secret, timestamp string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return h.Sum(nil)
}

// ParseTimestamp accepts unix seconds, unix milliseconds or RFC3339.
func ParseTimestamp(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if len(s) >= 13 {
			return time.UnixMilli(n), nil
		}
		return time.Unix(n, 0), nil
	}
	return time.Parse(time.RFC3339, s)
}
