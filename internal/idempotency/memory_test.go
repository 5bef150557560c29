package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	c, err := m.Claim(ctx, "k", "fp")
	if err != nil || c.Outcome != OutcomeNew {
		t.Fatalf("first claim: %v %v", c.Outcome, err)
	}
	c, _ = m.Claim(ctx, "k", "fp")
	if c.Outcome != OutcomeInProgress {
		t.Fatalf("expected in-progress, got %v", c.Outcome)
	}
	if _, err := m.Claim(ctx, "k", "other"); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	if err := m.Fail(ctx, "k", "boom"); err != nil {
		t.Fatal(err)
	}
	c, _ = m.Claim(ctx, "k", "fp")
	if c.Outcome != OutcomeNew {
		t.Fatalf("failed key should be reclaimable, got %v", c.Outcome)
	}

	if err := m.Complete(ctx, "k", 3, 201, `{"id":3}`); err != nil {
		t.Fatal(err)
	}
	c, _ = m.Claim(ctx, "k", "fp")
	if c.Outcome != OutcomeReplay || c.Record.ResponseBody != `{"id":3}` {
		t.Fatalf("expected replay, got %+v", c)
	}

	now = now.Add(61 * time.Minute)
	c, _ = m.Claim(ctx, "k", "fp")
	if c.Outcome != OutcomeNew {
		t.Fatalf("expired key should be reclaimable, got %v", c.Outcome)
	}

	if err := m.Complete(ctx, "never-claimed", 1, 201, ""); err == nil {
		t.Fatal("expected error completing an unclaimed key")
	}
}
