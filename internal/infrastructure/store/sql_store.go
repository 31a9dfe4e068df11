package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-checkout/internal/model"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store on PostgreSQL or SQLite. Both dialects accept the
// same $N placeholders and ON CONFLICT clauses.
type SQLStore struct {
	sqlQueries
	db *sql.DB
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{
		sqlQueries: sqlQueries{q: db, driver: driver},
		db:         db,
	}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(sqlQueries{q: tx, driver: s.driver}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqlQueries struct {
	q      querier
	driver string
}

// mapError converts driver-specific errors into store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrDuplicate
		}
	}
	return err
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Products

func (s sqlQueries) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p := &model.Product{}
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, price, stock, created_at FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (s sqlQueries) ListProducts(ctx context.Context) ([]*model.Product, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, price, stock, created_at FROM products ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p := &model.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s sqlQueries) CreateProduct(ctx context.Context, p *model.Product) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO products (id, name, price, stock, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Price, p.Stock, p.CreatedAt,
	)
	return mapError(err)
}

func (s sqlQueries) DecrementStock(ctx context.Context, productID string, amount int) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
		productID, amount,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s sqlQueries) IncrementStock(ctx context.Context, productID string, amount int) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE products SET stock = stock + $2 WHERE id = $1`,
		productID, amount,
	)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Carts

func (s sqlQueries) LockOwner(ctx context.Context, ownerID string) error {
	if s.driver != DriverPostgres {
		// SQLite has a single writer connection, so the transaction is already exclusive.
		return nil
	}
	_, err := s.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerID)
	return err
}

const cartColumns = `id, owner_id, name, active, created_at`

func scanCart(row interface{ Scan(...any) error }) (*model.Cart, error) {
	c := &model.Cart{}
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Active, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (s sqlQueries) GetCart(ctx context.Context, id string) (*model.Cart, error) {
	c, err := scanCart(s.q.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

func (s sqlQueries) GetActiveCart(ctx context.Context, ownerID string) (*model.Cart, error) {
	c, err := scanCart(s.q.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE owner_id = $1 AND active = $2`, ownerID, true))
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

func (s sqlQueries) ListCarts(ctx context.Context, ownerID string) ([]*model.Cart, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query carts: %w", err)
	}
	defer rows.Close()

	var carts []*model.Cart
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart: %w", err)
		}
		carts = append(carts, c)
	}
	return carts, rows.Err()
}

func (s sqlQueries) CreateCart(ctx context.Context, c *model.Cart) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO carts (`+cartColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.OwnerID, c.Name, c.Active, c.CreatedAt,
	)
	return mapError(err)
}

func (s sqlQueries) DeactivateCarts(ctx context.Context, ownerID string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE carts SET active = $2 WHERE owner_id = $1 AND active = $3`,
		ownerID, false, true,
	)
	return err
}

func (s sqlQueries) SetCartActive(ctx context.Context, cartID string, active bool) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE carts SET active = $2 WHERE id = $1`, cartID, active)
	if err != nil {
		return mapError(err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Cart lines

func (s sqlQueries) GetCartLine(ctx context.Context, cartID, productID string) (*model.CartLine, error) {
	l := &model.CartLine{}
	err := s.q.QueryRowContext(ctx,
		`SELECT cart_id, product_id, quantity FROM cart_lines WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID,
	).Scan(&l.CartID, &l.ProductID, &l.Quantity)
	if err != nil {
		return nil, mapError(err)
	}
	return l, nil
}

func (s sqlQueries) ListCartLines(ctx context.Context, cartID string) ([]*model.CartLine, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT cart_id, product_id, quantity FROM cart_lines WHERE cart_id = $1 ORDER BY id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []*model.CartLine
	for rows.Next() {
		l := &model.CartLine{}
		if err := rows.Scan(&l.CartID, &l.ProductID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s sqlQueries) UpsertCartLine(ctx context.Context, line *model.CartLine) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO cart_lines (cart_id, product_id, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		line.CartID, line.ProductID, line.Quantity,
	)
	return mapError(err)
}

func (s sqlQueries) DeleteCartLine(ctx context.Context, cartID, productID string) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM cart_lines WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	return err
}

func (s sqlQueries) DeleteCartLines(ctx context.Context, cartID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID)
	return err
}

// Discount codes

func (s sqlQueries) GetDiscountCode(ctx context.Context, code string) (*model.DiscountCode, error) {
	var (
		d         model.DiscountCode
		expiresAt sql.NullTime
		limit     sql.NullInt64
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT code, percent, active, expires_at, usage_limit, times_used FROM discount_codes WHERE code = $1`,
		code,
	).Scan(&d.Code, &d.Percent, &d.Active, &expiresAt, &limit, &d.TimesUsed)
	if err != nil {
		return nil, mapError(err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		d.ExpiresAt = &t
	}
	if limit.Valid {
		n := int(limit.Int64)
		d.UsageLimit = &n
	}
	return &d, nil
}

func (s sqlQueries) CreateDiscountCode(ctx context.Context, d *model.DiscountCode) error {
	var (
		expiresAt sql.NullTime
		limit     sql.NullInt64
	)
	if d.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *d.ExpiresAt, Valid: true}
	}
	if d.UsageLimit != nil {
		limit = sql.NullInt64{Int64: int64(*d.UsageLimit), Valid: true}
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO discount_codes (code, percent, active, expires_at, usage_limit, times_used)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.Code, d.Percent, d.Active, expiresAt, limit, d.TimesUsed,
	)
	return mapError(err)
}

func (s sqlQueries) IncrementDiscountUsage(ctx context.Context, code string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE discount_codes SET times_used = times_used + 1
		 WHERE code = $1 AND (usage_limit IS NULL OR times_used < usage_limit)`,
		code,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// Orders

const orderColumns = `id, owner_id, created_at, subtotal, discount_code, discount_amount, tax_amount, shipping_cost, total`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var (
		o    model.Order
		code sql.NullString
	)
	err := row.Scan(&o.ID, &o.OwnerID, &o.CreatedAt, &o.Subtotal, &code,
		&o.DiscountAmount, &o.TaxAmount, &o.ShippingCost, &o.Total)
	if err != nil {
		return nil, err
	}
	if code.Valid {
		c := code.String
		o.DiscountCode = &c
	}
	return &o, nil
}

func (s sqlQueries) CreateOrder(ctx context.Context, o *model.Order) error {
	var code sql.NullString
	if o.DiscountCode != nil {
		code = sql.NullString{String: *o.DiscountCode, Valid: true}
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.OwnerID, o.CreatedAt, o.Subtotal, code,
		o.DiscountAmount, o.TaxAmount, o.ShippingCost, o.Total,
	)
	return mapError(err)
}

func (s sqlQueries) CreateOrderLine(ctx context.Context, l *model.OrderLine) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO order_lines (id, order_id, product_id, quantity, price_at_purchase)
		 VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.OrderID, l.ProductID, l.Quantity, l.PriceAtPurchase,
	)
	return mapError(err)
}

func (s sqlQueries) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(s.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return o, nil
}

func (s sqlQueries) ListOrders(ctx context.Context, ownerID string) ([]*model.Order, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s sqlQueries) ListOrderLines(ctx context.Context, orderID string) ([]*model.OrderLine, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, price_at_purchase
		 FROM order_lines WHERE order_id = $1 ORDER BY seq`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	var lines []*model.OrderLine
	for rows.Next() {
		l := &model.OrderLine{}
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.PriceAtPurchase); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
