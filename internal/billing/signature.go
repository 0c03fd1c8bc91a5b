// Package billing consumes signed subscription lifecycle events from
// the payment processor and reconciles user entitlements.
package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedSignature is returned when the header cannot be parsed.
	ErrMalformedSignature = errors.New("malformed signature header")
	// ErrReplayWindowExceeded is returned when the timestamp is outside
	// the accepted window.
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
)

// DefaultReplayWindow is the default replay protection window.
const DefaultReplayWindow = 5 * time.Minute

// ComputeSignature creates the HMAC-SHA256 signature for a payload.
// The canonical string format is: "{timestamp}.{payload}"
func ComputeSignature(secret string, timestamp int64, payload []byte) string {
	canonical := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader renders the processor's signature header for a
// payload. Used by tests and the local event simulator.
func SignatureHeader(secret string, timestamp int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, ComputeSignature(secret, timestamp, payload))
}

// VerifySignature checks a processor signature header of the form
// "t={unix},v1={hexmac}" against the raw payload, with replay
// protection. An unverified payload must never be processed.
func VerifySignature(secret, header string, payload []byte, replayWindow time.Duration) error {
	// An empty secret verifies nothing: a missing configuration must
	// fail closed rather than match HMACs keyed on the empty string.
	if secret == "" {
		return ErrInvalidSignature
	}

	timestamp, sig, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	if abs(now-timestamp) > int64(replayWindow.Seconds()) {
		return ErrReplayWindowExceeded
	}

	expected := ComputeSignature(secret, timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalidSignature
	}

	return nil
}

func parseSignatureHeader(header string) (int64, string, error) {
	var timestamp int64
	var sig string

	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, "", ErrMalformedSignature
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", ErrMalformedSignature
			}
			timestamp = ts
		case "v1":
			sig = v
		}
	}

	if timestamp == 0 || sig == "" {
		return 0, "", ErrMalformedSignature
	}
	return timestamp, sig, nil
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
