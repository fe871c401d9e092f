package stockjournal

import "context"

// Repository is the port for persisting journal rows. The orchestrator depends
// on this abstraction so the SQLite implementation can be swapped for
// Postgres or an in-memory double in tests.
type Repository interface {
	// Save appends one row; the journal is append-only, never an upsert.
	Save(ctx context.Context, entry *Entry) error

	// ListByOrder returns all rows for an order, oldest first.
	ListByOrder(ctx context.Context, orderID string) ([]Entry, error)
}
