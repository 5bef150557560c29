package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultMaxAttempts = 3

// Predicate selects orders in List.
type Predicate func(Order) bool

// Store owns the authoritative collection of orders. Writes to one order are
// serialized by a per-id lock inside the process and by version compare-and-swap
// in the backend across processes.
type Store struct {
	backend     Backend
	nowFunc     func() time.Time
	logger      *zap.Logger
	maxAttempts int

	locks keyedMutex

	allocMu  sync.Mutex
	reserved map[int64]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for createdAt/updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFunc = now }
}

// WithLogger sets the logger used for conflict diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a new orders Store over backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		nowFunc:     time.Now,
		logger:      zap.NewNop(),
		maxAttempts: defaultMaxAttempts,
		locks:       keyedMutex{locks: map[int64]*refLock{}},
		reserved:    map[int64]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextID scans current ids and returns max+1. Gaps and ordering are irrelevant.
func (s *Store) NextID(ctx context.Context) (int64, error) {
	all, err := s.backend.Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan orders: %w", err)
	}
	return maxID(all) + 1, nil
}

// Reserve hands out the next id and keeps it from being handed out again until
// release is called. Callers that must know an order's id before persisting it
// (e.g. to debit a wallet against it) reserve first and Create afterwards.
func (s *Store) Reserve(ctx context.Context) (int64, func(), error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	all, err := s.backend.Scan(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("scan orders: %w", err)
	}
	next := maxID(all)
	for id := range s.reserved {
		if id > next {
			next = id
		}
	}
	next++
	s.reserved[next] = struct{}{}

	release := func() {
		s.allocMu.Lock()
		delete(s.reserved, next)
		s.allocMu.Unlock()
	}
	return next, release, nil
}

// Create persists a fully assembled order. A zero id is replaced by the next free id.
func (s *Store) Create(ctx context.Context, o Order) (Order, error) {
	const op = "orders.Create"
	if o.ID == 0 {
		id, release, err := s.Reserve(ctx)
		if err != nil {
			return Order{}, err
		}
		defer release()
		o.ID = id
	}

	now := s.nowFunc()
	o = o.Clone()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Version = 1
	ReconcileTotals(&o)

	if err := s.backend.Insert(ctx, o); err != nil {
		if errors.Is(err, errExists) {
			return Order{}, Wrap(KindConflict, op, o.ID, err, "order id already exists")
		}
		return Order{}, fmt.Errorf("insert order %d: %w", o.ID, err)
	}
	return o.Clone(), nil
}

// Get returns a copy of the order or a NotFound error.
func (s *Store) Get(ctx context.Context, id int64) (Order, error) {
	o, err := s.backend.Load(ctx, id)
	if err != nil {
		return Order{}, fmt.Errorf("load order %d: %w", id, err)
	}
	if o == nil {
		return Order{}, E(KindNotFound, "orders.Get", id, "order not found")
	}
	return *o, nil
}

// Update applies mutate to a copy of the current record and writes the merged
// result. Fields set by mutate win over stored ones. If mutate returns an error
// nothing is written and the error is returned unchanged. mutate may run more
// than once when a concurrent writer in another process wins the race, so it
// must derive its changes from the order it is given.
func (s *Store) Update(ctx context.Context, id int64, mutate func(*Order) error) (Order, error) {
	const op = "orders.Update"
	unlock := s.locks.lock(id)
	defer unlock()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		cur, err := s.backend.Load(ctx, id)
		if err != nil {
			return Order{}, fmt.Errorf("load order %d: %w", id, err)
		}
		if cur == nil {
			return Order{}, E(KindNotFound, op, id, "order not found")
		}

		next := cur.Clone()
		if err := mutate(&next); err != nil {
			return Order{}, err
		}
		next.ID = id
		next.CreatedAt = cur.CreatedAt
		next.UpdatedAt = s.nowFunc()
		next.Version = cur.Version + 1
		ReconcileTotals(&next)

		err = s.backend.Replace(ctx, next, cur.Version)
		if err == nil {
			return next.Clone(), nil
		}
		if !errors.Is(err, errVersionMismatch) {
			return Order{}, fmt.Errorf("replace order %d: %w", id, err)
		}
		s.logger.Warn("order write conflict, retrying",
			zap.Int64("order_id", id),
			zap.Int("attempt", attempt),
			zap.Int64("version", cur.Version))
	}
	return Order{}, E(KindConflict, op, id, "concurrent updates exhausted retries")
}

// Delete physically removes an order.
func (s *Store) Delete(ctx context.Context, id int64) error {
	unlock := s.locks.lock(id)
	defer unlock()

	ok, err := s.backend.Remove(ctx, id)
	if err != nil {
		return fmt.Errorf("remove order %d: %w", id, err)
	}
	if !ok {
		return E(KindNotFound, "orders.Delete", id, "order not found")
	}
	return nil
}

// List returns orders matching every predicate, ordered by id.
func (s *Store) List(ctx context.Context, preds ...Predicate) ([]Order, error) {
	all, err := s.backend.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	out := all[:0]
	for _, o := range all {
		if matches(o, preds) {
			out = append(out, o)
		}
	}
	return out, nil
}

func matches(o Order, preds []Predicate) bool {
	for _, p := range preds {
		if p != nil && !p(o) {
			return false
		}
	}
	return true
}

func maxID(list []Order) int64 {
	var m int64
	for _, o := range list {
		if o.ID > m {
			m = o.ID
		}
	}
	return m
}

// ByPaymentStatus selects orders in the given payment status.
func ByPaymentStatus(st PaymentStatus) Predicate {
	return func(o Order) bool { return o.PaymentStatus == st }
}

// ByPaymentMethod selects orders paid with m.
func ByPaymentMethod(m PaymentMethod) Predicate {
	return func(o Order) bool { return o.PaymentMethod == m }
}

// ByDeliveryStatus selects orders in the given delivery status.
func ByDeliveryStatus(st DeliveryStatus) Predicate {
	return func(o Order) bool { return o.DeliveryStatus == st }
}

// ByDeliveryPerson selects orders assigned to a courier.
func ByDeliveryPerson(personID string) Predicate {
	return func(o Order) bool { return o.DeliveryPersonID == personID }
}

type refLock struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per order id and frees it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

func (k *keyedMutex) lock(id int64) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
