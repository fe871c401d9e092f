package app

import (
	"errors"
	"fmt"
)

// Authorization failures, surfaced verbatim to the caller.
var (
	ErrMissingToken        = errors.New("auth: token missing or not a bearer header")
	ErrInvalidToken        = errors.New("auth: token invalid or expired")
	ErrForbidden           = errors.New("auth: insufficient role")
	ErrIdentityUnavailable = errors.New("auth: identity service unavailable")
)

// ErrOwnerNotFound is returned by admin order creation when the target
// customer does not exist in the identity system.
var ErrOwnerNotFound = errors.New("order: owner not known to identity service")

type LineErrorReason string

const (
	LineNotFound          LineErrorReason = "NOT_FOUND"
	LineInactive          LineErrorReason = "INACTIVE"
	LineInsufficientStock LineErrorReason = "INSUFFICIENT_STOCK"
	LineRemoteUnavailable LineErrorReason = "REMOTE_UNAVAILABLE"
)

// LineError describes why one requested line failed validation.
type LineError struct {
	ItemID  string
	Reason  LineErrorReason
	Message string
}

func (e LineError) Error() string {
	return fmt.Sprintf("item %s: %s", e.ItemID, e.Message)
}

// ValidationError carries every failing line of a submission, not just the
// first: the caller gets all problems in one response.
type ValidationError struct {
	Lines []LineError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("order validation failed for %d line(s)", len(e.Lines))
}

// StockUpdateError is fatal to a finalize call. Lines decremented before the
// failing one are not rolled back; the order stays PENDING and the stock
// journal records which deductions went through.
type StockUpdateError struct {
	ItemID string
	Err    error
}

func (e *StockUpdateError) Error() string {
	return fmt.Sprintf("stock update failed for item %s: %v", e.ItemID, e.Err)
}

func (e *StockUpdateError) Unwrap() error { return e.Err }
