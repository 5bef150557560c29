package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory keeps keys in process, for local runs and tests.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory returns an empty Memory keeper. A non-positive ttl uses DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{records: make(map[string]Record), ttl: ttl, now: time.Now}
}

func (m *Memory) Claim(_ context.Context, key, fingerprint string) (Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	rec, ok := m.records[key]
	if ok && rec.ExpiresAt > now.Unix() && rec.Status != StatusFailed {
		return existingClaim(rec, fingerprint)
	}
	rec = Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(m.ttl).Unix(),
	}
	m.records[key] = rec
	return Claim{Outcome: OutcomeNew, Record: rec}, nil
}

func (m *Memory) Complete(_ context.Context, key string, orderID int64, status int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return fmt.Errorf("idempotency key %q not claimed", key)
	}
	now := m.now().UTC()
	rec.Status = StatusDone
	rec.OrderID = orderID
	rec.ResponseStatus = status
	rec.ResponseBody = body
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(m.ttl).Unix()
	m.records[key] = rec
	return nil
}

func (m *Memory) Fail(_ context.Context, key, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil
	}
	rec.Status = StatusFailed
	rec.Note = note
	rec.UpdatedAt = m.now().UTC()
	m.records[key] = rec
	return nil
}
