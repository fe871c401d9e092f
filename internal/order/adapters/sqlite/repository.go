// Package sqlite is the SQLite-backed app.OrderStore.
//
// Writes are whole-aggregate: Create and Update run in one transaction and an
// update replaces the full line set (delete-then-insert) rather than relying
// on any cascade semantics. WAL mode is enabled so list reads do not block
// writers.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lymian/kirbook-pedido-rest/internal/order/domain"

	// Pure-Go SQLite driver; no CGO required.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id         TEXT PRIMARY KEY,
    owner_id   TEXT NOT NULL,
    status     TEXT NOT NULL,
    total      REAL NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS order_lines (
    id         TEXT PRIMARY KEY,
    order_id   TEXT    NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    item_id    TEXT    NOT NULL,
    quantity   INTEGER NOT NULL,
    unit_price REAL    NOT NULL,

    -- Preserves line order; finalize decrements in exactly this order.
    position   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_owner_id ON orders(owner_id);
CREATE INDEX IF NOT EXISTS idx_order_lines_order_id ON order_lines(order_id, position);
`

const timeLayout = "2006-01-02T15:04:05.999999999Z"

// Repository implements app.OrderStore on SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// foreign_keys is enabled so deleting an order cascades to its lines.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("orderstore: open %q: %w", path, err)
	}

	// Single writer connection: SQLite's sweet spot.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("orderstore: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Create(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("orderstore: begin create: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, owner_id, status, total, created_at) VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.OwnerID, string(o.Status), o.Total, o.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("orderstore: insert order %q: %w", o.ID, err)
	}
	if err := insertLines(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, status, total, created_at FROM orders WHERE id = ?`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if o.Lines, err = r.loadLines(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repository) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	return r.findWhere(ctx,
		`SELECT id, owner_id, status, total, created_at FROM orders WHERE owner_id = ? ORDER BY created_at, id`,
		ownerID)
}

func (r *Repository) FindAll(ctx context.Context) ([]*domain.Order, error) {
	return r.findWhere(ctx,
		`SELECT id, owner_id, status, total, created_at FROM orders ORDER BY created_at, id`)
}

// Update replaces the whole aggregate: order row plus the full line set.
func (r *Repository) Update(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("orderstore: begin update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET owner_id = ?, status = ?, total = ? WHERE id = ?`,
		o.OwnerID, string(o.Status), o.Total, o.ID)
	if err != nil {
		return fmt.Errorf("orderstore: update order %q: %w", o.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, o.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, o.ID); err != nil {
		return fmt.Errorf("orderstore: clear lines of %q: %w", o.ID, err)
	}
	if err := insertLines(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

// TransitionStatus flips status only when the stored status equals from. The
// conditional UPDATE makes the read-then-write atomic, so two finalize calls
// cannot both observe PENDING here.
func (r *Repository) TransitionStatus(ctx context.Context, id string, from, to domain.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("orderstore: transition %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("orderstore: transition %q: %w", id, err)
	}
	return fmt.Errorf("%w: %s", domain.ErrNotPending, id)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("orderstore: delete %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return nil
}

func (r *Repository) findWhere(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orderstore: query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orderstore: iterate orders: %w", err)
	}
	for _, o := range orders {
		if o.Lines, err = r.loadLines(ctx, o.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *Repository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, item_id, quantity, unit_price FROM order_lines WHERE order_id = ? ORDER BY position`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("orderstore: query lines of %q: %w", orderID, err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ItemID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("orderstore: scan line of %q: %w", orderID, err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func insertLines(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	for i, l := range o.Lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_lines (id, order_id, item_id, quantity, unit_price, position) VALUES (?, ?, ?, ?, ?, ?)`,
			l.ID, o.ID, l.ItemID, l.Quantity, l.UnitPrice, i)
		if err != nil {
			return fmt.Errorf("orderstore: insert line %q: %w", l.ID, err)
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOrder(row scannable) (*domain.Order, error) {
	var o domain.Order
	var status, createdAt string
	if err := row.Scan(&o.ID, &o.OwnerID, &status, &o.Total, &createdAt); err != nil {
		return nil, err
	}
	o.Status = domain.Status(status)

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("orderstore: parse time %q: %w", createdAt, err)
	}
	o.CreatedAt = t
	return &o, nil
}
