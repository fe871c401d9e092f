// Package stockjournal records every stock-deduction step a finalize attempt
// performs against the remote catalog.
//
// Stock decrements are per-item atomic at the remote but there is no
// cross-line transaction: when a mid-sequence decrement fails, the lines
// already deducted stay deducted and the order stays PENDING. The journal is
// the durable record of exactly which deductions went through, so an operator
// (or a future repair job) can reconcile the catalog, and the trace_id column
// links each row to the distributed trace of the attempt.
package stockjournal

import "time"

// Status is the lifecycle state of a finalize attempt at the moment a row is
// written.
type Status string

const (
	StatusStarted     Status = "STARTED"
	StatusDecremented Status = "DECREMENTED"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
)

// Entry is a single append-only row. One STARTED row opens an attempt, one
// DECREMENTED row follows each successful per-line deduction, and exactly one
// of COMPLETED or FAILED closes it.
type Entry struct {
	// OrderID identifies the order being finalized; joins with business data.
	OrderID string

	Status Status

	// ItemID and Quantity describe the line a DECREMENTED or FAILED row refers
	// to. Empty/zero on STARTED and COMPLETED rows.
	ItemID   string
	Quantity int

	// ErrorMessage carries the failing call's error on FAILED rows.
	ErrorMessage string

	// TraceID and SpanID come from the OpenTelemetry span active when the row
	// was written, so a journal row can be followed into the full trace.
	TraceID string
	SpanID  string

	RecordedAt time.Time
}
