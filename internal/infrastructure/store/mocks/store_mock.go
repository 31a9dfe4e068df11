package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/model"
)

// MockStore wraps a real store and fails selected operations inside
// transactions, so callers' rollback paths can be exercised.
type MockStore struct {
	store.Store

	mu sync.Mutex
	// Failures maps an operation name, such as "CreateOrderLine", to the error it returns.
	Failures map[string]error
	// Calls records transactional operations in call order.
	Calls []string
	// TxCount counts WithTx invocations.
	TxCount int
}

// NewMockStore wraps s. A nil s is backed by a fresh MemoryStore.
func NewMockStore(s store.Store) *MockStore {
	if s == nil {
		s = store.NewMemoryStore()
	}
	return &MockStore{Store: s, Failures: make(map[string]error)}
}

// FailOn makes op return err from now on.
func (m *MockStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures[op] = err
}

func (m *MockStore) record(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, op)
	return m.Failures[op]
}

func (m *MockStore) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (m *MockStore) WithTx(ctx context.Context, fn func(tx store.Queries) error) error {
	m.mu.Lock()
	m.TxCount++
	m.mu.Unlock()

	return m.Store.WithTx(ctx, func(tx store.Queries) error {
		return fn(&mockQueries{Queries: tx, m: m})
	})
}

// mockQueries intercepts the write operations of a transaction.
type mockQueries struct {
	store.Queries
	m *MockStore
}

func (q *mockQueries) DecrementStock(ctx context.Context, productID string, amount int) (bool, error) {
	if err := q.m.record("DecrementStock"); err != nil {
		return false, err
	}
	return q.Queries.DecrementStock(ctx, productID, amount)
}

func (q *mockQueries) IncrementDiscountUsage(ctx context.Context, code string) (bool, error) {
	if err := q.m.record("IncrementDiscountUsage"); err != nil {
		return false, err
	}
	return q.Queries.IncrementDiscountUsage(ctx, code)
}

func (q *mockQueries) CreateOrder(ctx context.Context, o *model.Order) error {
	if err := q.m.record("CreateOrder"); err != nil {
		return err
	}
	return q.Queries.CreateOrder(ctx, o)
}

func (q *mockQueries) CreateOrderLine(ctx context.Context, l *model.OrderLine) error {
	if err := q.m.record("CreateOrderLine"); err != nil {
		return err
	}
	return q.Queries.CreateOrderLine(ctx, l)
}

func (q *mockQueries) DeleteCartLines(ctx context.Context, cartID string) error {
	if err := q.m.record("DeleteCartLines"); err != nil {
		return err
	}
	return q.Queries.DeleteCartLines(ctx, cartID)
}

func (q *mockQueries) SetCartActive(ctx context.Context, cartID string, active bool) error {
	if err := q.m.record("SetCartActive"); err != nil {
		return err
	}
	return q.Queries.SetCartActive(ctx, cartID, active)
}
