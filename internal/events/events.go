// Package events publishes order lifecycle events for external listeners.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// Type names a lifecycle event.
type Type string

const (
	TypeOrderCreated          Type = "order.created"
	TypePaymentUpdated        Type = "order.payment.updated"
	TypeVerificationPlaced    Type = "order.verification.placed"
	TypeVerificationConfirmed Type = "order.verification.confirmed"
	TypeVerificationRejected  Type = "order.verification.rejected"
	TypeDeliveryUpdated       Type = "order.delivery.updated"
	TypeRefundRequested       Type = "order.refund.requested"
)

// Event describes one committed transition.
type Event struct {
	ID             string               `json:"id"`
	Type           Type                 `json:"type"`
	OrderID        int64                `json:"orderId"`
	PreviousStatus orders.Status        `json:"previousStatus,omitempty"`
	Status         orders.Status        `json:"status"`
	PaymentStatus  orders.PaymentStatus `json:"paymentStatus"`
	OccurredAt     time.Time            `json:"occurredAt"`
	Metadata       map[string]string    `json:"metadata,omitempty"`
}

// New builds an event for the transition from previous to current.
func New(typ Type, previous orders.Status, current orders.Order, at time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           typ,
		OrderID:        current.ID,
		PreviousStatus: previous,
		Status:         current.Status,
		PaymentStatus:  current.PaymentStatus,
		OccurredAt:     at.UTC(),
	}
}

// With returns a copy of e carrying an extra metadata entry.
func (e Event) With(key, value string) Event {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Emit publishes ev and logs a failure. The transition it describes is already
// committed, so a publish failure is never returned to the caller.
func Emit(ctx context.Context, pub Publisher, logger *zap.Logger, ev Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ev); err != nil && logger != nil {
		logger.Warn("event publish failed",
			zap.String("event_type", string(ev.Type)),
			zap.Int64("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
}

// SQSPublisher sends events as JSON messages to an SQS queue.
type SQSPublisher struct {
	pub *aws.Publisher
}

// NewSQSPublisher returns a publisher bound to queueURL.
func NewSQSPublisher(client aws.SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{pub: aws.NewPublisher(client, queueURL)}
}

func (p *SQSPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	orderID := strconv.FormatInt(ev.OrderID, 10)
	return p.pub.Send(ctx, aws.Message{
		Body: string(body),
		Attributes: map[string]string{
			"event_type": string(ev.Type),
			"order_id":   orderID,
			"event_id":   ev.ID,
		},
		GroupID: orderID,
		DedupID: ev.ID,
	})
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	// Err, when set, is returned from every Publish after recording.
	Err error
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Events returns a snapshot of recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	evs := r.Events()
	out := make([]Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
