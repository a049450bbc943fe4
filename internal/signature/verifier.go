// Package signature authenticates inbound requests cryptographically.
//
// Callers sign METHOD|PATH|TIMESTAMP|BODY with their shared secret
// (HMAC-SHA256, hex) and send the signature, the millisecond timestamp, and
// the secret itself in headers. The verifier checks freshness against a fixed
// window, checks the claimed secret against the tenant's stored fingerprint,
// and recomputes the keyed hash — all in memory, no I/O, no retries. A failed
// check is terminal for the request.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"filegate/pkg/secrets"
)

// Machine-readable rejection codes returned to API callers.
const (
	CodeMissingSignature = "MISSING_SIGNATURE"
	CodeMissingTimestamp = "MISSING_TIMESTAMP"
	CodeInvalidTimestamp = "INVALID_TIMESTAMP"
	CodeExpiredTimestamp = "EXPIRED_TIMESTAMP"
	CodeMissingSecret    = "MISSING_SECRET"
	CodeInvalidSecret    = "INVALID_SECRET"
	CodeInvalidSignature = "INVALID_SIGNATURE"
)

// Error is a terminal authentication failure with a stable machine code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Request carries the pieces of an inbound request the verifier inspects.
// Header extraction happens in middleware; the verifier itself never touches
// net/http so it stays trivially testable.
type Request struct {
	Method    string
	Path      string
	Body      []byte
	Signature string // claimed signature, hex
	Timestamp string // epoch milliseconds, as sent on the wire
	Secret    string // claimed shared secret
}

// Result reports a successful verification.
type Result struct {
	// LegacyBypass is set when the tenant has no stored fingerprint and the
	// request was passed through unauthenticated. This is an intentional weak
	// path for pre-migration tenants; callers should log and count it.
	LegacyBypass bool
}

// Verifier checks request signatures against per-tenant secret fingerprints.
// Purely CPU-bound and safe for concurrent use.
type Verifier struct {
	maxAge     time.Duration
	futureSkew time.Duration
	now        func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithMaxAge overrides the replay window (default 5 minutes).
func WithMaxAge(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.maxAge = d
		}
	}
}

// WithFutureSkew overrides the allowance for client clocks running ahead
// (default 30 seconds).
func WithFutureSkew(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.futureSkew = d
		}
	}
}

// WithClock pins the verifier's clock for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// New creates a Verifier with default freshness bounds.
func New(opts ...Option) *Verifier {
	v := &Verifier{
		maxAge:     5 * time.Minute,
		futureSkew: 30 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify authenticates a request against the tenant's stored secret
// fingerprint. A nil error means the request is authentic and fresh; check
// Result.LegacyBypass before treating it as cryptographically verified.
func (v *Verifier) Verify(req Request, storedFingerprint string) (*Result, error) {
	// Pre-migration tenants have no fingerprint on record. They pass through
	// unauthenticated until their secret is provisioned; the flag lets callers
	// surface how much traffic still rides this path.
	if storedFingerprint == "" {
		return &Result{LegacyBypass: true}, nil
	}

	if req.Signature == "" {
		return nil, &Error{Code: CodeMissingSignature, Message: "signature header is required"}
	}
	if req.Timestamp == "" {
		return nil, &Error{Code: CodeMissingTimestamp, Message: "timestamp header is required"}
	}

	millis, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return nil, &Error{Code: CodeInvalidTimestamp, Message: "timestamp must be epoch milliseconds"}
	}

	now := v.now()
	sent := time.UnixMilli(millis)
	age := now.Sub(sent)
	if age > v.maxAge || age < -v.futureSkew {
		return nil, &Error{
			Code:    CodeExpiredTimestamp,
			Message: fmt.Sprintf("timestamp outside the accepted window (age %ds)", int64(age.Seconds())),
		}
	}

	if req.Secret == "" {
		return nil, &Error{Code: CodeMissingSecret, Message: "secret header is required"}
	}
	if !secrets.FingerprintMatches(req.Secret, storedFingerprint) {
		return nil, &Error{Code: CodeInvalidSecret, Message: "secret does not match stored fingerprint"}
	}

	expected := Sign(req.Method, req.Path, req.Timestamp, req.Body, req.Secret)
	if !hmac.Equal([]byte(expected), []byte(req.Signature)) {
		return nil, &Error{Code: CodeInvalidSignature, Message: "signature mismatch"}
	}

	return &Result{}, nil
}

// Sign computes the request signature for the canonical string
// METHOD|PATH|TIMESTAMP|BODY under the given secret. Exported so clients and
// the signtool produce byte-identical signatures.
func Sign(method, path, timestamp string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method))
	mac.Write([]byte{'|'})
	mac.Write([]byte(path))
	mac.Write([]byte{'|'})
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'|'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
