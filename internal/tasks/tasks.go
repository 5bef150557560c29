// Package tasks carries deferred follow-up work between the API and the worker.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

// KindConfirmVerification re-runs the post-verification confirm step.
const KindConfirmVerification = "verification.confirm"

// Task is the queued message body.
type Task struct {
	Kind          string    `json:"kind"`
	OrderID       int64     `json:"orderId"`
	CorrelationID string    `json:"correlationId"`
	EnqueuedAt    time.Time `json:"enqueuedAt"`
	Reason        string    `json:"reason,omitempty"`
}

// NewConfirmTask builds a confirm task for orderID.
func NewConfirmTask(orderID int64, reason string, now time.Time) Task {
	return Task{
		Kind:          KindConfirmVerification,
		OrderID:       orderID,
		CorrelationID: uuid.NewString(),
		EnqueuedAt:    now.UTC(),
		Reason:        reason,
	}
}

// Decode parses and validates a queued task.
func Decode(body string) (Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return Task{}, fmt.Errorf("invalid task body: %w", err)
	}
	if t.Kind != KindConfirmVerification {
		return Task{}, fmt.Errorf("unknown task kind %q", t.Kind)
	}
	if t.OrderID <= 0 {
		return Task{}, errors.New("task has no order id")
	}
	return t, nil
}

// Queue accepts follow-up tasks.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
}

// SQSQueue sends tasks to an SQS queue consumed by cmd/worker.
type SQSQueue struct {
	pub *aws.Publisher
}

// NewSQSQueue returns a queue bound to queueURL.
func NewSQSQueue(client aws.SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{pub: aws.NewPublisher(client, queueURL)}
}

func (q *SQSQueue) Enqueue(ctx context.Context, t Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	orderID := strconv.FormatInt(t.OrderID, 10)
	return q.pub.Send(ctx, aws.Message{
		Body: string(body),
		Attributes: map[string]string{
			"kind":           t.Kind,
			"order_id":       orderID,
			"correlation_id": t.CorrelationID,
		},
		GroupID: orderID,
		DedupID: t.CorrelationID,
	})
}

// Memory keeps tasks in process.
type Memory struct {
	mu    sync.Mutex
	tasks []Task
	// Err, when set, fails every Enqueue.
	Err error
}

func (m *Memory) Enqueue(_ context.Context, t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.tasks = append(m.tasks, t)
	return nil
}

// Tasks returns a snapshot of queued tasks.
func (m *Memory) Tasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, len(m.tasks))
	copy(out, m.tasks)
	return out
}
