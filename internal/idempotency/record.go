// Package idempotency guards order creation against replayed requests that
// carry the same Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Status of a stored key.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
)

// DefaultTTL is how long a key is remembered when no TTL is configured.
const DefaultTTL = 48 * time.Hour

// Record is the persisted state of one key.
type Record struct {
	Key            string `dynamodbav:"idempotency_key"` // PK
	Fingerprint    string `dynamodbav:"fingerprint,omitempty"`
	Status         Status `dynamodbav:"status"`
	OrderID        int64  `dynamodbav:"order_id,omitempty"`
	ResponseStatus int    `dynamodbav:"response_status,omitempty"`
	// ResponseBody holds the small JSON body returned on first success.
	ResponseBody string    `dynamodbav:"response_body,omitempty"`
	Note         string    `dynamodbav:"note,omitempty"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
	ExpiresAt    int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}

// Outcome of claiming a key.
type Outcome int

const (
	// OutcomeNew means the caller owns the key and should process the request.
	OutcomeNew Outcome = iota
	// OutcomeReplay means a stored response exists and should be returned as is.
	OutcomeReplay
	// OutcomeInProgress means another request holds the key.
	OutcomeInProgress
)

// Claim is the result of Keeper.Claim.
type Claim struct {
	Outcome Outcome
	Record  Record
}

// ErrFingerprintMismatch is returned when a key is reused for a different request body.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with a different request")

// Keeper stores idempotency keys. Claim succeeds for unknown, expired and
// failed keys; Complete stores the response to replay; Fail lets a later
// request with the same key try again.
type Keeper interface {
	Claim(ctx context.Context, key, fingerprint string) (Claim, error)
	Complete(ctx context.Context, key string, orderID int64, status int, body string) error
	Fail(ctx context.Context, key, note string) error
}

// Fingerprint hashes a request body so key reuse across different requests is detected.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func existingClaim(rec Record, fingerprint string) (Claim, error) {
	if rec.Fingerprint != "" && fingerprint != "" && rec.Fingerprint != fingerprint {
		return Claim{}, ErrFingerprintMismatch
	}
	if rec.Status == StatusDone {
		return Claim{Outcome: OutcomeReplay, Record: rec}, nil
	}
	return Claim{Outcome: OutcomeInProgress, Record: rec}, nil
}
