package orders

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// errVersionMismatch is returned by a Backend when a conditional write lost a race.
var errVersionMismatch = errors.New("orders: version mismatch")

// errExists is returned by Backend.Insert when the id is already taken.
var errExists = errors.New("orders: id already exists")

// Backend persists whole Order records. Implementations must return copies and
// never retain caller-owned nested state.
type Backend interface {
	// Load returns (nil, nil) when the order does not exist.
	Load(ctx context.Context, id int64) (*Order, error)
	// Insert stores a new order, failing with errExists if the id is taken.
	Insert(ctx context.Context, o Order) error
	// Replace overwrites an order only if its stored version equals prevVersion.
	Replace(ctx context.Context, o Order, prevVersion int64) error
	// Remove deletes an order and reports whether it existed.
	Remove(ctx context.Context, id int64) (bool, error)
	// Scan returns every stored order ordered by id.
	Scan(ctx context.Context) ([]Order, error)
}

// MemoryBackend keeps orders in a map keyed by id.
type MemoryBackend struct {
	mu     sync.RWMutex
	orders map[int64]Order
}

// NewMemoryBackend returns an empty MemoryBackend, optionally seeded.
func NewMemoryBackend(seed ...Order) *MemoryBackend {
	m := &MemoryBackend{orders: make(map[int64]Order, len(seed))}
	for _, o := range seed {
		m.orders[o.ID] = o.Clone()
	}
	return m
}

func (m *MemoryBackend) Load(_ context.Context, id int64) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	c := o.Clone()
	return &c, nil
}

func (m *MemoryBackend) Insert(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return errExists
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MemoryBackend) Replace(_ context.Context, o Order, prevVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok || cur.Version != prevVersion {
		return errVersionMismatch
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MemoryBackend) Remove(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return false, nil
	}
	delete(m.orders, id)
	return true, nil
}

func (m *MemoryBackend) Scan(_ context.Context) ([]Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o.Clone())
	}
	sortByID(out)
	return out, nil
}

func sortByID(list []Order) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
