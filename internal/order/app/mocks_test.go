package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/lymian/kirbook-pedido-rest/internal/order/domain"
	"github.com/lymian/kirbook-pedido-rest/internal/order/stockjournal"
)

// mockStore is an in-memory OrderStore. It clones aggregates on the way in
// and out so tests observe only what was explicitly persisted.
type mockStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newMockStore() *mockStore {
	return &mockStore{orders: make(map[string]*domain.Order)}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return &c
}

func (s *mockStore) Create(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("duplicate order %s", o.ID)
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *mockStore) Get(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return cloneOrder(o), nil
}

func (s *mockStore) FindByOwner(_ context.Context, ownerID string) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if o.OwnerID == ownerID {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (s *mockStore) FindAll(_ context.Context) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Order
	for _, o := range s.orders {
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (s *mockStore) Update(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, o.ID)
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *mockStore) TransitionStatus(_ context.Context, id string, from, to domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if o.Status != from {
		return fmt.Errorf("%w: %s", domain.ErrNotPending, id)
	}
	o.Status = to
	return nil
}

func (s *mockStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	delete(s.orders, id)
	return nil
}

func (s *mockStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// mockIdentity implements IdentityGateway with function fields.
type mockIdentity struct {
	validateFunc func(ctx context.Context, token string) (AuthContext, error)
	lookupFunc   func(ctx context.Context, id string) (UserRecord, error)
}

func (m *mockIdentity) ValidateToken(ctx context.Context, token string) (AuthContext, error) {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, token)
	}
	return AuthContext{}, nil
}

func (m *mockIdentity) LookupUser(ctx context.Context, id string) (UserRecord, error) {
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, id)
	}
	return UserRecord{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
}

// mockInventory implements InventoryGateway with function fields and records
// decrement calls in order.
type mockInventory struct {
	mu            sync.Mutex
	getFunc       func(ctx context.Context, itemID string) (ItemSnapshot, error)
	lookupFunc    func(ctx context.Context, itemID string) (ItemSnapshot, error)
	decrementFunc func(ctx context.Context, itemID string, quantity int) error
	decrements    []string
}

func (m *mockInventory) GetItem(ctx context.Context, itemID string) (ItemSnapshot, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, itemID)
	}
	return ItemSnapshot{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
}

func (m *mockInventory) LookupItem(ctx context.Context, itemID string) (ItemSnapshot, error) {
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, itemID)
	}
	return m.GetItem(ctx, itemID)
}

func (m *mockInventory) DecrementStock(ctx context.Context, itemID string, quantity int) error {
	m.mu.Lock()
	m.decrements = append(m.decrements, itemID)
	m.mu.Unlock()
	if m.decrementFunc != nil {
		return m.decrementFunc(ctx, itemID, quantity)
	}
	return nil
}

func (m *mockInventory) decrementCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.decrements...)
}

// mockJournal records stockjournal entries in memory.
type mockJournal struct {
	mu      sync.Mutex
	entries []stockjournal.Entry
}

func (m *mockJournal) Save(_ context.Context, entry *stockjournal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockJournal) ListByOrder(_ context.Context, orderID string) ([]stockjournal.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []stockjournal.Entry
	for _, e := range m.entries {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockJournal) statuses() []stockjournal.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]stockjournal.Status, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Status)
	}
	return out
}
