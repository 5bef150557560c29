// Package delivery keeps an order's status in step with courier progress.
package delivery

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/events"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// Service applies courier assignments and delivery updates.
type Service struct {
	store  *orders.Store
	events events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithEvents(p events.Publisher) Option { return func(s *Service) { s.events = p } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(store *orders.Store, opts ...Option) *Service {
	s := &Service{store: store, events: events.Nop{}, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssignCourier hands the order to a delivery person.
func (s *Service) AssignCourier(ctx context.Context, id int64, deliveryPersonID string) (orders.Order, error) {
	const op = "delivery.AssignCourier"
	deliveryPersonID = strings.TrimSpace(deliveryPersonID)
	if deliveryPersonID == "" {
		return orders.Order{}, orders.E(orders.KindValidation, op, id, "delivery person id is required")
	}
	return s.apply(ctx, op, id, orders.DeliveryAssigned, nil, func(o *orders.Order) {
		o.DeliveryPersonID = deliveryPersonID
	})
}

// UpdateStatus records a delivery status change together with the order status
// it implies. actualDelivery defaults to now when the order is delivered.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status orders.DeliveryStatus, actualDelivery *time.Time) (orders.Order, error) {
	const op = "delivery.UpdateStatus"
	if !status.Valid() {
		return orders.Order{}, orders.E(orders.KindValidation, op, id, "unknown delivery status \""+string(status)+"\"")
	}
	return s.apply(ctx, op, id, status, actualDelivery, nil)
}

func (s *Service) apply(ctx context.Context, op string, id int64, status orders.DeliveryStatus, actualDelivery *time.Time, extra func(*orders.Order)) (orders.Order, error) {
	var previous orders.Status
	updated, err := s.store.Update(ctx, id, func(o *orders.Order) error {
		now := s.now().UTC()
		previous = o.Status
		if extra != nil {
			extra(o)
		}
		o.DeliveryStatus = status
		if mapped, ok := orders.OrderStatusFor(status); ok {
			o.Status = mapped
		}
		switch {
		case actualDelivery != nil:
			o.ActualDelivery = orders.TimePtr(actualDelivery.UTC())
		case status == orders.DeliveryDelivered:
			o.ActualDelivery = orders.TimePtr(now)
		}
		o.DeliveryStatusUpdatedAt = orders.TimePtr(now)
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	s.logger.Info("delivery updated",
		zap.String("op", op),
		zap.Int64("order_id", id),
		zap.String("delivery_status", string(status)),
		zap.String("status", string(updated.Status)),
	)
	ev := events.New(events.TypeDeliveryUpdated, previous, updated, s.now()).
		With("delivery_status", string(status))
	if updated.DeliveryPersonID != "" {
		ev = ev.With("delivery_person_id", updated.DeliveryPersonID)
	}
	events.Emit(ctx, s.events, s.logger, ev)
	return updated, nil
}

// ByCourier lists orders assigned to deliveryPersonID.
func (s *Service) ByCourier(ctx context.Context, deliveryPersonID string) ([]orders.Order, error) {
	return s.store.List(ctx, orders.ByDeliveryPerson(deliveryPersonID))
}

// ByStatus lists orders in the given delivery status.
func (s *Service) ByStatus(ctx context.Context, status orders.DeliveryStatus) ([]orders.Order, error) {
	return s.store.List(ctx, orders.ByDeliveryStatus(status))
}
