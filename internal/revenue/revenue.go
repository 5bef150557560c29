// Package revenue aggregates order totals for reporting. It only reads.
package revenue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// UnknownMethod groups orders stored without a payment method.
const UnknownMethod = "unknown"

// Reporter computes revenue figures over the order store.
type Reporter struct {
	store *orders.Store
	now   func() time.Time
	loc   *time.Location
}

type Option func(*Reporter)

func WithClock(now func() time.Time) Option { return func(r *Reporter) { r.now = now } }

// WithLocation sets the calendar the current month is taken from. UTC by default.
func WithLocation(loc *time.Location) Option {
	return func(r *Reporter) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func New(store *orders.Store, opts ...Option) *Reporter {
	r := &Reporter{store: store, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Monthly sums the amount of every order created in the current calendar month.
func (r *Reporter) Monthly(ctx context.Context) (float64, error) {
	now := r.now().In(r.loc)
	list, err := r.store.List(ctx, func(o orders.Order) bool {
		created := o.CreatedAt.In(r.loc)
		return created.Year() == now.Year() && created.Month() == now.Month()
	})
	if err != nil {
		return 0, err
	}
	sum := decimal.Zero
	for _, o := range list {
		sum = sum.Add(decimal.NewFromFloat(o.Amount()))
	}
	return sum.InexactFloat64(), nil
}

// ByPaymentMethod sums order amounts per payment method across all orders.
func (r *Reporter) ByPaymentMethod(ctx context.Context) (map[string]float64, error) {
	list, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sums := make(map[string]decimal.Decimal)
	for _, o := range list {
		method := string(o.PaymentMethod)
		if method == "" {
			method = UnknownMethod
		}
		sums[method] = sums[method].Add(decimal.NewFromFloat(o.Amount()))
	}
	out := make(map[string]float64, len(sums))
	for method, sum := range sums {
		out[method] = sum.InexactFloat64()
	}
	return out, nil
}
