// Package sqlite is the SQLite-backed stockjournal.Repository.
//
// WAL mode is enabled on Open so journal writes from an in-flight finalize do
// not block audit reads.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lymian/kirbook-pedido-rest/internal/order/stockjournal"

	// Pure-Go SQLite driver; no CGO, so Alpine images build cleanly.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS stock_journal (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Order being finalized. Multiple rows per order: one per transition.
    order_id      TEXT    NOT NULL,

    status        TEXT    NOT NULL,

    -- Line the row refers to; empty on STARTED/COMPLETED rows.
    item_id       TEXT    NOT NULL DEFAULT '',
    quantity      INTEGER NOT NULL DEFAULT 0,

    error_message TEXT    NOT NULL DEFAULT '',

    -- W3C trace/span ids of the finalize attempt's active span.
    trace_id      TEXT    NOT NULL DEFAULT '',
    span_id       TEXT    NOT NULL DEFAULT '',

    -- RFC3339 stored as TEXT, the SQLite idiom.
    recorded_at   TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stock_journal_order_id ON stock_journal(order_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_stock_journal_trace_id ON stock_journal(trace_id);
`

const timeLayout = "2006-01-02T15:04:05.999999999Z"

// Repository implements stockjournal.Repository on SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path and applies the schema.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("stockjournal: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("stockjournal: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Save appends one journal row. Safe for concurrent use.
func (r *Repository) Save(ctx context.Context, entry *stockjournal.Entry) error {
	const q = `
		INSERT INTO stock_journal
			(order_id, status, item_id, quantity, error_message, trace_id, span_id, recorded_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.OrderID,
		string(entry.Status),
		entry.ItemID,
		entry.Quantity,
		entry.ErrorMessage,
		entry.TraceID,
		entry.SpanID,
		entry.RecordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("stockjournal: save entry for %q: %w", entry.OrderID, err)
	}
	return nil
}

// ListByOrder returns every row for an order, oldest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID string) ([]stockjournal.Entry, error) {
	const q = `
		SELECT order_id, status, item_id, quantity, error_message, trace_id, span_id, recorded_at
		FROM   stock_journal
		WHERE  order_id = ?
		ORDER  BY recorded_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("stockjournal: list for %q: %w", orderID, err)
	}
	defer rows.Close()

	var entries []stockjournal.Entry
	for rows.Next() {
		var e stockjournal.Entry
		var recordedAt string
		if err := rows.Scan(&e.OrderID, &e.Status, &e.ItemID, &e.Quantity, &e.ErrorMessage, &e.TraceID, &e.SpanID, &recordedAt); err != nil {
			return nil, fmt.Errorf("stockjournal: scan row for %q: %w", orderID, err)
		}
		e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("stockjournal: parse time %q: %w", recordedAt, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
