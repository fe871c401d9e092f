package app

import (
	"context"
	"errors"

	"github.com/lymian/kirbook-pedido-rest/internal/order/domain"
)

type Role string

const (
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
)

// AuthContext is what the identity service says about a presented token.
// Valid=false is a normal result, not a transport error; callers must check it.
type AuthContext struct {
	SubjectID  string
	Username   string
	Email      string
	GivenName  string
	FamilyName string
	Role       Role
	Valid      bool
}

// UserRecord is the identity service's view of a user, used only to enrich
// admin listings with owner display data.
type UserRecord struct {
	ID       string
	Username string
	Email    string
	Role     Role
}

// ItemSnapshot is a point-in-time copy of a catalog item. Never persisted;
// prices are frozen into order lines at capture time instead.
type ItemSnapshot struct {
	ID              string
	Title           string
	Synopsis        string
	Author          string
	Category        string
	PublishDate     string
	UnitPrice       float64
	DiscountPercent float64
	Stock           int
	Active          bool
}

// Gateway error classes. Adapters translate transport and status-code detail
// into these sentinels (wrapped, so the detail stays on the chain).
var (
	ErrIdentityUnreachable  = errors.New("identity: unreachable")
	ErrIdentityMalformed    = errors.New("identity: malformed response")
	ErrUserNotFound         = errors.New("identity: user not found")
	ErrItemNotFound         = errors.New("inventory: item not found")
	ErrInsufficientStock    = errors.New("inventory: insufficient stock")
	ErrInventoryUnreachable = errors.New("inventory: unreachable")
)

// IdentityGateway wraps the identity RPC. No retries happen inside the
// gateway; the caller owns any retry policy.
type IdentityGateway interface {
	ValidateToken(ctx context.Context, token string) (AuthContext, error)
	LookupUser(ctx context.Context, id string) (UserRecord, error)
}

// InventoryGateway wraps the catalog HTTP API. GetItem always reads fresh
// remote state (it feeds validation and pricing); LookupItem is the display
// path and may serve a cached snapshot. DecrementStock is per-item atomic at
// the remote — there is no cross-line atomicity.
type InventoryGateway interface {
	GetItem(ctx context.Context, itemID string) (ItemSnapshot, error)
	LookupItem(ctx context.Context, itemID string) (ItemSnapshot, error)
	DecrementStock(ctx context.Context, itemID string, quantity int) error
}

// OrderStore is whole-aggregate persistence: Create and Update write the
// order and its full line set in one transaction, Delete cascades to lines.
type OrderStore interface {
	Create(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	FindByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error)
	FindAll(ctx context.Context) ([]*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
	// TransitionStatus flips status only if the stored status equals from;
	// returns domain.ErrNotPending when it does not, domain.ErrNotFound when
	// the order is absent. This is the store-side guard against two finalize
	// calls both observing PENDING.
	TransitionStatus(ctx context.Context, id string, from, to domain.Status) error
	Delete(ctx context.Context, id string) error
}
