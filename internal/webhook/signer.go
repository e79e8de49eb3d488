// Package webhook delivers signed notifications to developer endpoints.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Delivery request headers.
const (
	HeaderSignature  = "X-VRStore-Signature"
	HeaderTimestamp  = "X-VRStore-Timestamp"
	HeaderDeliveryID = "X-VRStore-Delivery-Id"
	HeaderEvent      = "X-VRStore-Event"
)

// DefaultTolerance bounds the clock skew a receiver accepts.
const DefaultTolerance = 5 * time.Minute

const secretPrefix = "whsec_"

var (
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
	ErrMissingSignature = errors.New("webhook signature headers missing")
)

// Signature is the HMAC-SHA256 of "{unix}.{body}" keyed by the endpoint
// secret, hex encoded.
type Signature struct {
	Timestamp int64
	Value     string
}

// Sign computes the signature of payload at the given time.
func Sign(secret string, at time.Time, payload []byte) Signature {
	ts := at.Unix()
	return Signature{Timestamp: ts, Value: hexMAC(secret, ts, payload)}
}

// Apply writes the signature and timestamp headers.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Value)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
}

// Verify checks the signature headers of a received delivery against
// secret. now is the receiver's clock.
func Verify(secret string, h http.Header, payload []byte, tolerance time.Duration, now time.Time) error {
	value := h.Get(HeaderSignature)
	ts, err := strconv.ParseInt(h.Get(HeaderTimestamp), 10, 64)
	if value == "" || err != nil {
		return ErrMissingSignature
	}
	if skew := now.Sub(time.Unix(ts, 0)); skew > tolerance || skew < -tolerance {
		return ErrStaleTimestamp
	}
	if !hmac.Equal([]byte(hexMAC(secret, ts, payload)), []byte(value)) {
		return ErrInvalidSignature
	}
	return nil
}

func hexMAC(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(strconv.AppendInt(nil, ts, 10))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// NewSecret returns a random signing secret. It is shown to the developer
// once and kept server-side to sign deliveries.
func NewSecret() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return secretPrefix + hex.EncodeToString(b[:]), nil
}
