package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("order: not found")
	ErrNoLines         = errors.New("order: at least one line is required")
	ErrInvalidQuantity = errors.New("order: line quantity must be at least 1")
	ErrNotPending      = errors.New("order: not in PENDING state")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFinalized Status = "FINALIZED"
)

// Order is the aggregate root. It owns its lines exclusively; Total is always
// derived from them via Recalculate and never set directly.
type Order struct {
	ID        string
	OwnerID   string
	Status    Status
	Total     float64
	Lines     []OrderLine
	CreatedAt time.Time
}

// OrderLine is one item+quantity entry. UnitPrice is the net price captured
// from the inventory snapshot when the line was created or last replaced; it
// does not float with later catalog price changes. OrderID is a non-owning
// back-reference used only for navigation.
type OrderLine struct {
	ID        string
	OrderID   string
	ItemID    string
	Quantity  int
	UnitPrice float64
}

func (l OrderLine) Subtotal() float64 {
	return float64(l.Quantity) * l.UnitPrice
}

func New(id, ownerID string, lines []OrderLine) (*Order, error) {
	o := &Order{
		ID:        id,
		OwnerID:   ownerID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.ReplaceLines(lines); err != nil {
		return nil, err
	}
	return o, nil
}

// ReplaceLines swaps the full line set and recomputes the total. Rejected once
// the order is finalized: lines and total are immutable after that point.
func (o *Order) ReplaceLines(lines []OrderLine) error {
	if o.Status == StatusFinalized {
		return ErrNotPending
	}
	if len(lines) == 0 {
		return ErrNoLines
	}
	for i := range lines {
		if lines[i].Quantity < 1 {
			return ErrInvalidQuantity
		}
		lines[i].OrderID = o.ID
	}
	o.Lines = lines
	o.Recalculate()
	return nil
}

func (o *Order) Recalculate() {
	var total float64
	for _, l := range o.Lines {
		total += l.Subtotal()
	}
	o.Total = total
}

// Finalize moves the order to its terminal state. Not idempotent.
func (o *Order) Finalize() error {
	if o.Status != StatusPending {
		return ErrNotPending
	}
	o.Status = StatusFinalized
	return nil
}
