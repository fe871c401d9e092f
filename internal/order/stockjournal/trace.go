package stockjournal

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// NewEntry builds a journal row with trace identifiers taken from the active
// OpenTelemetry span in ctx. If no span is recording (unit tests, background
// jobs) both identifiers are left empty.
func NewEntry(ctx context.Context, orderID string, status Status, itemID string, quantity int, errMsg string) *Entry {
	e := &Entry{
		OrderID:      orderID,
		Status:       status,
		ItemID:       itemID,
		Quantity:     quantity,
		ErrorMessage: errMsg,
		RecordedAt:   time.Now().UTC(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		e.TraceID = sc.TraceID().String()
		e.SpanID = sc.SpanID().String()
	}
	return e
}
