package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
)

// OrderInserter is the order half of a session insert.
type OrderInserter interface {
	Insert(ctx context.Context, o *order.Order) error
}

type Memory struct {
	mu     sync.Mutex
	nextID int64
	byID   map[string]*Session
	byKey  map[string]string
	orders OrderInserter
	now    func() time.Time
}

// NewMemory keeps sessions in process. orders receives the order of each
// inserted session and may be nil when only bare sessions are inserted.
func NewMemory(orders OrderInserter) *Memory {
	return &Memory{byID: map[string]*Session{}, byKey: map[string]string{}, orders: orders, now: time.Now}
}

// Insert checks every session constraint before the order is written, so a
// rejected session never leaves its order behind.
func (m *Memory) Insert(ctx context.Context, s *Session, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.IdempotencyKey != "" {
		if _, ok := m.byKey[s.IdempotencyKey]; ok {
			return ErrDuplicateIdempotencyKey
		}
	}
	if _, ok := m.byID[s.ProtocolID]; ok {
		return ErrConflict
	}
	if o != nil {
		if m.orders == nil {
			return errors.New("no order store configured")
		}
		if err := m.orders.Insert(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
	}
	m.nextID++
	now := m.now().UTC()
	s.ID = m.nextID
	s.Version = 1
	s.CreatedAt, s.UpdatedAt = now, now
	cp := *s
	m.byID[s.ProtocolID] = &cp
	if s.IdempotencyKey != "" {
		m.byKey[s.IdempotencyKey] = s.ProtocolID
	}
	return nil
}

func (m *Memory) FindByProtocolID(_ context.Context, protocolID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[protocolID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) FindByIdempotencyKey(ctx context.Context, key string) (*Session, error) {
	m.mu.Lock()
	id, ok := m.byKey[key]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.FindByProtocolID(ctx, id)
}

func (m *Memory) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[s.ProtocolID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != s.Version {
		return ErrConflict
	}
	s.Version++
	s.UpdatedAt = m.now().UTC()
	cp := *s
	m.byID[s.ProtocolID] = &cp
	return nil
}
