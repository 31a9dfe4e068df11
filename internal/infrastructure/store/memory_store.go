package store

import (
	"context"
	"sort"
	"sync"

	"github.com/example/ec-checkout/internal/model"
)

// MemoryStore is an in-memory Store. A transaction holds the write lock for its
// whole duration and works on a copy of the state that is swapped in on commit,
// so concurrent transactions are serializable.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// WithTx runs fn against a private copy of the state and publishes it only if fn succeeds.
// fn must use tx exclusively; calling back into the MemoryStore deadlocks.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(working); err != nil {
		return err
	}
	s.state = working
	return nil
}

func view[T any](s *MemoryStore, fn func(st *memState) (T, error)) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

func (s *MemoryStore) write(fn func(st *memState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *MemoryStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return view(s, func(st *memState) (*model.Product, error) { return st.GetProduct(ctx, id) })
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]*model.Product, error) {
	return view(s, func(st *memState) ([]*model.Product, error) { return st.ListProducts(ctx) })
}

func (s *MemoryStore) CreateProduct(ctx context.Context, p *model.Product) error {
	return s.write(func(st *memState) error { return st.CreateProduct(ctx, p) })
}

func (s *MemoryStore) DecrementStock(ctx context.Context, productID string, amount int) (bool, error) {
	var ok bool
	err := s.write(func(st *memState) error {
		var err error
		ok, err = st.DecrementStock(ctx, productID, amount)
		return err
	})
	return ok, err
}

func (s *MemoryStore) IncrementStock(ctx context.Context, productID string, amount int) error {
	return s.write(func(st *memState) error { return st.IncrementStock(ctx, productID, amount) })
}

func (s *MemoryStore) LockOwner(ctx context.Context, ownerID string) error {
	return nil
}

func (s *MemoryStore) GetCart(ctx context.Context, id string) (*model.Cart, error) {
	return view(s, func(st *memState) (*model.Cart, error) { return st.GetCart(ctx, id) })
}

func (s *MemoryStore) GetActiveCart(ctx context.Context, ownerID string) (*model.Cart, error) {
	return view(s, func(st *memState) (*model.Cart, error) { return st.GetActiveCart(ctx, ownerID) })
}

func (s *MemoryStore) ListCarts(ctx context.Context, ownerID string) ([]*model.Cart, error) {
	return view(s, func(st *memState) ([]*model.Cart, error) { return st.ListCarts(ctx, ownerID) })
}

func (s *MemoryStore) CreateCart(ctx context.Context, c *model.Cart) error {
	return s.write(func(st *memState) error { return st.CreateCart(ctx, c) })
}

func (s *MemoryStore) DeactivateCarts(ctx context.Context, ownerID string) error {
	return s.write(func(st *memState) error { return st.DeactivateCarts(ctx, ownerID) })
}

func (s *MemoryStore) SetCartActive(ctx context.Context, cartID string, active bool) error {
	return s.write(func(st *memState) error { return st.SetCartActive(ctx, cartID, active) })
}

func (s *MemoryStore) GetCartLine(ctx context.Context, cartID, productID string) (*model.CartLine, error) {
	return view(s, func(st *memState) (*model.CartLine, error) { return st.GetCartLine(ctx, cartID, productID) })
}

func (s *MemoryStore) ListCartLines(ctx context.Context, cartID string) ([]*model.CartLine, error) {
	return view(s, func(st *memState) ([]*model.CartLine, error) { return st.ListCartLines(ctx, cartID) })
}

func (s *MemoryStore) UpsertCartLine(ctx context.Context, line *model.CartLine) error {
	return s.write(func(st *memState) error { return st.UpsertCartLine(ctx, line) })
}

func (s *MemoryStore) DeleteCartLine(ctx context.Context, cartID, productID string) error {
	return s.write(func(st *memState) error { return st.DeleteCartLine(ctx, cartID, productID) })
}

func (s *MemoryStore) DeleteCartLines(ctx context.Context, cartID string) error {
	return s.write(func(st *memState) error { return st.DeleteCartLines(ctx, cartID) })
}

func (s *MemoryStore) GetDiscountCode(ctx context.Context, code string) (*model.DiscountCode, error) {
	return view(s, func(st *memState) (*model.DiscountCode, error) { return st.GetDiscountCode(ctx, code) })
}

func (s *MemoryStore) CreateDiscountCode(ctx context.Context, d *model.DiscountCode) error {
	return s.write(func(st *memState) error { return st.CreateDiscountCode(ctx, d) })
}

func (s *MemoryStore) IncrementDiscountUsage(ctx context.Context, code string) (bool, error) {
	var ok bool
	err := s.write(func(st *memState) error {
		var err error
		ok, err = st.IncrementDiscountUsage(ctx, code)
		return err
	})
	return ok, err
}

func (s *MemoryStore) CreateOrder(ctx context.Context, o *model.Order) error {
	return s.write(func(st *memState) error { return st.CreateOrder(ctx, o) })
}

func (s *MemoryStore) CreateOrderLine(ctx context.Context, l *model.OrderLine) error {
	return s.write(func(st *memState) error { return st.CreateOrderLine(ctx, l) })
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return view(s, func(st *memState) (*model.Order, error) { return st.GetOrder(ctx, id) })
}

func (s *MemoryStore) ListOrders(ctx context.Context, ownerID string) ([]*model.Order, error) {
	return view(s, func(st *memState) ([]*model.Order, error) { return st.ListOrders(ctx, ownerID) })
}

func (s *MemoryStore) ListOrderLines(ctx context.Context, orderID string) ([]*model.OrderLine, error) {
	return view(s, func(st *memState) ([]*model.OrderLine, error) { return st.ListOrderLines(ctx, orderID) })
}

// memState holds values, never shared pointers, so clone is a plain copy.
type memState struct {
	products   map[string]model.Product
	carts      map[string]model.Cart
	cartSeq    map[string]int
	lines      map[string][]model.CartLine // cartID -> lines in insertion order
	discounts  map[string]model.DiscountCode
	orders     map[string]model.Order
	orderLines map[string][]model.OrderLine
	seq        int
}

func newMemState() *memState {
	return &memState{
		products:   make(map[string]model.Product),
		carts:      make(map[string]model.Cart),
		cartSeq:    make(map[string]int),
		lines:      make(map[string][]model.CartLine),
		discounts:  make(map[string]model.DiscountCode),
		orders:     make(map[string]model.Order),
		orderLines: make(map[string][]model.OrderLine),
	}
}

func (st *memState) clone() *memState {
	c := newMemState()
	c.seq = st.seq
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.carts {
		c.carts[k] = v
	}
	for k, v := range st.cartSeq {
		c.cartSeq[k] = v
	}
	for k, v := range st.lines {
		c.lines[k] = append([]model.CartLine(nil), v...)
	}
	for k, v := range st.discounts {
		c.discounts[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.orderLines {
		c.orderLines[k] = append([]model.OrderLine(nil), v...)
	}
	return c
}

func (st *memState) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (st *memState) ListProducts(ctx context.Context) ([]*model.Product, error) {
	products := make([]*model.Product, 0, len(st.products))
	for _, p := range st.products {
		p := p
		products = append(products, &p)
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].ID < products[j].ID
	})
	return products, nil
}

func (st *memState) CreateProduct(ctx context.Context, p *model.Product) error {
	if _, exists := st.products[p.ID]; exists {
		return ErrDuplicate
	}
	st.products[p.ID] = *p
	return nil
}

func (st *memState) DecrementStock(ctx context.Context, productID string, amount int) (bool, error) {
	p, ok := st.products[productID]
	if !ok || p.Stock < amount {
		return false, nil
	}
	p.Stock -= amount
	st.products[productID] = p
	return true, nil
}

func (st *memState) IncrementStock(ctx context.Context, productID string, amount int) error {
	p, ok := st.products[productID]
	if !ok {
		return ErrNotFound
	}
	p.Stock += amount
	st.products[productID] = p
	return nil
}

func (st *memState) LockOwner(ctx context.Context, ownerID string) error {
	return nil
}

func (st *memState) GetCart(ctx context.Context, id string) (*model.Cart, error) {
	c, ok := st.carts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (st *memState) GetActiveCart(ctx context.Context, ownerID string) (*model.Cart, error) {
	for _, c := range st.carts {
		if c.OwnerID == ownerID && c.Active {
			c := c
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (st *memState) ListCarts(ctx context.Context, ownerID string) ([]*model.Cart, error) {
	var carts []*model.Cart
	for _, c := range st.carts {
		if c.OwnerID == ownerID {
			c := c
			carts = append(carts, &c)
		}
	}
	sort.Slice(carts, func(i, j int) bool {
		return st.cartSeq[carts[i].ID] < st.cartSeq[carts[j].ID]
	})
	return carts, nil
}

func (st *memState) CreateCart(ctx context.Context, c *model.Cart) error {
	if _, exists := st.carts[c.ID]; exists {
		return ErrDuplicate
	}
	st.seq++
	st.carts[c.ID] = *c
	st.cartSeq[c.ID] = st.seq
	return nil
}

func (st *memState) DeactivateCarts(ctx context.Context, ownerID string) error {
	for id, c := range st.carts {
		if c.OwnerID == ownerID && c.Active {
			c.Active = false
			st.carts[id] = c
		}
	}
	return nil
}

func (st *memState) SetCartActive(ctx context.Context, cartID string, active bool) error {
	c, ok := st.carts[cartID]
	if !ok {
		return ErrNotFound
	}
	c.Active = active
	st.carts[cartID] = c
	return nil
}

func (st *memState) GetCartLine(ctx context.Context, cartID, productID string) (*model.CartLine, error) {
	for _, l := range st.lines[cartID] {
		if l.ProductID == productID {
			l := l
			return &l, nil
		}
	}
	return nil, ErrNotFound
}

func (st *memState) ListCartLines(ctx context.Context, cartID string) ([]*model.CartLine, error) {
	lines := make([]*model.CartLine, 0, len(st.lines[cartID]))
	for _, l := range st.lines[cartID] {
		l := l
		lines = append(lines, &l)
	}
	return lines, nil
}

func (st *memState) UpsertCartLine(ctx context.Context, line *model.CartLine) error {
	lines := st.lines[line.CartID]
	for i := range lines {
		if lines[i].ProductID == line.ProductID {
			lines[i].Quantity = line.Quantity
			return nil
		}
	}
	st.lines[line.CartID] = append(lines, *line)
	return nil
}

func (st *memState) DeleteCartLine(ctx context.Context, cartID, productID string) error {
	lines := st.lines[cartID]
	for i := range lines {
		if lines[i].ProductID == productID {
			st.lines[cartID] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (st *memState) DeleteCartLines(ctx context.Context, cartID string) error {
	delete(st.lines, cartID)
	return nil
}

func (st *memState) GetDiscountCode(ctx context.Context, code string) (*model.DiscountCode, error) {
	d, ok := st.discounts[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (st *memState) CreateDiscountCode(ctx context.Context, d *model.DiscountCode) error {
	if _, exists := st.discounts[d.Code]; exists {
		return ErrDuplicate
	}
	st.discounts[d.Code] = *d
	return nil
}

func (st *memState) IncrementDiscountUsage(ctx context.Context, code string) (bool, error) {
	d, ok := st.discounts[code]
	if !ok {
		return false, nil
	}
	if d.UsageLimit != nil && d.TimesUsed >= *d.UsageLimit {
		return false, nil
	}
	d.TimesUsed++
	st.discounts[code] = d
	return true, nil
}

func (st *memState) CreateOrder(ctx context.Context, o *model.Order) error {
	if _, exists := st.orders[o.ID]; exists {
		return ErrDuplicate
	}
	st.orders[o.ID] = *o
	return nil
}

func (st *memState) CreateOrderLine(ctx context.Context, l *model.OrderLine) error {
	if _, ok := st.orders[l.OrderID]; !ok {
		return ErrNotFound
	}
	st.orderLines[l.OrderID] = append(st.orderLines[l.OrderID], *l)
	return nil
}

func (st *memState) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (st *memState) ListOrders(ctx context.Context, ownerID string) ([]*model.Order, error) {
	var orders []*model.Order
	for _, o := range st.orders {
		if o.OwnerID == ownerID {
			o := o
			orders = append(orders, &o)
		}
	}
	// newest first, like the SQL store
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (st *memState) ListOrderLines(ctx context.Context, orderID string) ([]*model.OrderLine, error) {
	lines := make([]*model.OrderLine, 0, len(st.orderLines[orderID]))
	for _, l := range st.orderLines[orderID] {
		l := l
		lines = append(lines, &l)
	}
	return lines, nil
}
