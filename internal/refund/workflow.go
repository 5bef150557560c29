// Package refund records customer refund requests against orders. Settling
// the refund is handled by financial operations outside this service.
package refund

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/events"
	"github.com/imrishuroy/go-order-lifecycle/internal/metrics"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// Workflow creates refund requests.
type Workflow struct {
	store   *orders.Store
	events  events.Publisher
	metrics metrics.Recorder
	logger  *zap.Logger
	now     func() time.Time
	idGen   func(time.Time) string
}

type Option func(*Workflow)

func WithEvents(p events.Publisher) Option { return func(w *Workflow) { w.events = p } }

func WithMetrics(m metrics.Recorder) Option { return func(w *Workflow) { w.metrics = m } }

func WithClock(now func() time.Time) Option { return func(w *Workflow) { w.now = now } }

// WithIDGenerator overrides how refund ids are minted.
func WithIDGenerator(gen func(time.Time) string) Option {
	return func(w *Workflow) {
		if gen != nil {
			w.idGen = gen
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

func New(store *orders.Store, opts ...Option) *Workflow {
	w := &Workflow{
		store:   store,
		events:  events.Nop{},
		metrics: metrics.Nop{},
		logger:  zap.NewNop(),
		now:     time.Now,
		idGen: func(t time.Time) string {
			return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ProcessRefund attaches a pending refund to the order and moves it to
// refund_requested. The amount must be positive and at most the order total,
// and an order carries at most one refund request.
func (w *Workflow) ProcessRefund(ctx context.Context, id int64, amount float64, reason string) (orders.Order, error) {
	const op = "refund.ProcessRefund"
	if amount <= 0 {
		return orders.Order{}, orders.E(orders.KindValidation, op, id, "refund amount must be greater than zero")
	}

	var previous orders.Status
	updated, err := w.store.Update(ctx, id, func(o *orders.Order) error {
		if o.RefundRequested || o.Refund != nil {
			return orders.E(orders.KindValidation, op, id, "a refund was already requested for this order")
		}
		if decimal.NewFromFloat(amount).GreaterThan(decimal.NewFromFloat(o.Amount())) {
			return orders.E(orders.KindValidation, op, id, "refund amount exceeds the order total")
		}
		now := w.now().UTC()
		previous = o.Status
		o.Refund = &orders.Refund{
			ID:          w.idGen(now),
			OrderID:     o.ID,
			Amount:      amount,
			Reason:      strings.TrimSpace(reason),
			Status:      orders.RefundPending,
			RequestedAt: now,
		}
		o.RefundRequested = true
		o.Status = orders.StatusRefundRequested
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	w.logger.Info("refund requested",
		zap.Int64("order_id", id),
		zap.String("refund_id", updated.Refund.ID),
		zap.Float64("amount", amount),
	)
	w.metrics.Count(ctx, metrics.RefundRequested, map[string]string{"method": string(updated.PaymentMethod)})
	events.Emit(ctx, w.events, w.logger, events.New(events.TypeRefundRequested, previous, updated, w.now()).
		With("refund_id", updated.Refund.ID))
	return updated, nil
}
