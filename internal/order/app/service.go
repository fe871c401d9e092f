package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/lymian/kirbook-pedido-rest/internal/order/domain"
	"github.com/lymian/kirbook-pedido-rest/internal/order/stockjournal"
)

const bearerPrefix = "Bearer "

// enrichLimit bounds the fan-out of display lookups in list operations.
const enrichLimit = 4

// LineRequest is one requested line of a submission or update.
type LineRequest struct {
	ItemID   string
	Quantity int
}

// OwnerDetail is best-effort owner display data. Known=false means the
// identity lookup degraded and only the ID is reliable.
type OwnerDetail struct {
	ID         string
	Username   string
	Email      string
	GivenName  string
	FamilyName string
	Role       Role
	Known      bool
}

// LineDetail pairs a stored line with the current catalog snapshot of its
// item. Item is nil when the display lookup degraded.
type LineDetail struct {
	Line domain.OrderLine
	Item *ItemSnapshot
}

// OrderDetail is an order enriched for display.
type OrderDetail struct {
	Order domain.Order
	Owner OwnerDetail
	Lines []LineDetail
}

// Service is the order orchestrator: it authorizes actors against the
// identity service, validates and prices lines against the catalog, persists
// orders, and drives the finalize transition. Stateless between calls except
// for the per-order finalize locks.
type Service struct {
	store     OrderStore
	identity  IdentityGateway
	inventory InventoryGateway
	journal   stockjournal.Repository // nil-safe: journaling skipped if nil
	log       *slog.Logger
	tracer    trace.Tracer

	newID func() string
	now   func() time.Time

	mu         sync.Mutex
	finalizing map[string]*sync.Mutex
}

func NewService(store OrderStore, identity IdentityGateway, inventory InventoryGateway, journal stockjournal.Repository, log *slog.Logger) *Service {
	return &Service{
		store:      store,
		identity:   identity,
		inventory:  inventory,
		journal:    journal,
		log:        log,
		tracer:     otel.Tracer("order-service"),
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
		finalizing: make(map[string]*sync.Mutex),
	}
}

// Authorize is the shared precondition of every authenticated operation: the
// header must carry a bearer token, the token must validate, and the actor
// must hold exactly the required role.
func (s *Service) Authorize(ctx context.Context, tokenHeader string, required Role) (AuthContext, error) {
	if !strings.HasPrefix(tokenHeader, bearerPrefix) {
		return AuthContext{}, ErrMissingToken
	}
	token := strings.TrimPrefix(tokenHeader, bearerPrefix)

	auth, err := s.identity.ValidateToken(ctx, token)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	if !auth.Valid {
		return AuthContext{}, ErrInvalidToken
	}
	if auth.Role != required {
		return AuthContext{}, ErrForbidden
	}
	return auth, nil
}

// SubmitOrder is the user self-service path: validate every line against the
// catalog, price them from the same snapshots, persist the aggregate as
// PENDING. Validation failures are accumulated across all lines and returned
// as one batch; nothing is persisted and no stock is touched in that case.
func (s *Service) SubmitOrder(ctx context.Context, tokenHeader string, reqs []LineRequest) (*OrderDetail, error) {
	ctx, span := s.tracer.Start(ctx, "SubmitOrder")
	defer span.End()

	auth, err := s.Authorize(ctx, tokenHeader, RoleUser)
	if err != nil {
		return nil, err
	}

	snaps, err := s.validateLines(ctx, reqs)
	if err != nil {
		return nil, err
	}

	order, err := s.buildOrder(auth.SubjectID, reqs, snaps)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.InfoContext(ctx, "order submitted",
		"order_id", order.ID, "owner_id", order.OwnerID, "lines", len(order.Lines), "total", order.Total)

	detail := &OrderDetail{Order: *order, Owner: ownerFromAuth(auth), Lines: linesFromSnapshots(order.Lines, snaps)}
	return detail, nil
}

// CreateOrder is the admin path: the order is created on behalf of a customer,
// who must exist in the identity system. Validation and pricing are identical
// to SubmitOrder.
func (s *Service) CreateOrder(ctx context.Context, tokenHeader, customerID string, reqs []LineRequest) (*OrderDetail, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder")
	defer span.End()

	if _, err := s.Authorize(ctx, tokenHeader, RoleAdmin); err != nil {
		return nil, err
	}

	user, err := s.identity.LookupUser(ctx, customerID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrOwnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	snaps, err := s.validateLines(ctx, reqs)
	if err != nil {
		return nil, err
	}

	order, err := s.buildOrder(customerID, reqs, snaps)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.InfoContext(ctx, "order created by admin",
		"order_id", order.ID, "owner_id", order.OwnerID, "total", order.Total)

	detail := &OrderDetail{Order: *order, Owner: ownerFromRecord(user), Lines: linesFromSnapshots(order.Lines, snaps)}
	return detail, nil
}

// UpdateOrder replaces the full line set of a PENDING order. The replacement
// lines go through the same batch validation as a submission, and their unit
// prices are re-captured from the current catalog snapshots.
func (s *Service) UpdateOrder(ctx context.Context, tokenHeader, orderID string, reqs []LineRequest) (*OrderDetail, error) {
	ctx, span := s.tracer.Start(ctx, "UpdateOrder")
	defer span.End()

	if _, err := s.Authorize(ctx, tokenHeader, RoleAdmin); err != nil {
		return nil, err
	}

	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	snaps, err := s.validateLines(ctx, reqs)
	if err != nil {
		return nil, err
	}

	lines := s.pricedLines(order.ID, reqs, snaps)
	if err := order.ReplaceLines(lines); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order %s: %w", orderID, err)
	}

	s.log.InfoContext(ctx, "order updated", "order_id", order.ID, "lines", len(order.Lines), "total", order.Total)

	detail := &OrderDetail{Order: *order, Owner: s.lookupOwner(ctx, order.OwnerID), Lines: linesFromSnapshots(order.Lines, snaps)}
	return detail, nil
}

// DeleteOrder removes the aggregate unconditionally, whatever its status.
// Lines cascade with it.
func (s *Service) DeleteOrder(ctx context.Context, tokenHeader, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "DeleteOrder")
	defer span.End()

	if _, err := s.Authorize(ctx, tokenHeader, RoleAdmin); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, orderID); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "order deleted", "order_id", orderID)
	return nil
}

// FinalizeOrder drives the irreversible PENDING→FINALIZED transition. Stock
// decrements are issued sequentially in line order; a failure aborts the call
// with the failing item id, leaves the order PENDING and does not roll back
// the decrements already issued — the stock journal records exactly how far
// the attempt got. Concurrent finalize calls on the same order are serialized
// here and additionally guarded by the store's conditional transition.
func (s *Service) FinalizeOrder(ctx context.Context, tokenHeader, orderID string) (*OrderDetail, error) {
	ctx, span := s.tracer.Start(ctx, "FinalizeOrder")
	defer span.End()

	if _, err := s.Authorize(ctx, tokenHeader, RoleAdmin); err != nil {
		return nil, err
	}

	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusPending {
		return nil, domain.ErrNotPending
	}

	s.journalSave(ctx, stockjournal.NewEntry(ctx, orderID, stockjournal.StatusStarted, "", 0, ""))

	for _, line := range order.Lines {
		if err := s.inventory.DecrementStock(ctx, line.ItemID, line.Quantity); err != nil {
			s.journalSave(ctx, stockjournal.NewEntry(ctx, orderID, stockjournal.StatusFailed, line.ItemID, line.Quantity, err.Error()))
			s.log.ErrorContext(ctx, "stock decrement failed, order left pending",
				"order_id", orderID, "item_id", line.ItemID, "error", err)
			return nil, &StockUpdateError{ItemID: line.ItemID, Err: err}
		}
		s.journalSave(ctx, stockjournal.NewEntry(ctx, orderID, stockjournal.StatusDecremented, line.ItemID, line.Quantity, ""))
	}

	if err := order.Finalize(); err != nil {
		return nil, err
	}
	if err := s.store.TransitionStatus(ctx, orderID, domain.StatusPending, domain.StatusFinalized); err != nil {
		return nil, fmt.Errorf("finalize order %s: %w", orderID, err)
	}
	s.journalSave(ctx, stockjournal.NewEntry(ctx, orderID, stockjournal.StatusCompleted, "", 0, ""))

	s.log.InfoContext(ctx, "order finalized", "order_id", orderID, "lines", len(order.Lines))

	detail := &OrderDetail{Order: *order, Owner: s.lookupOwner(ctx, order.OwnerID)}
	detail.Lines = s.enrichLines(ctx, order.Lines)
	return detail, nil
}

// ListOwnedOrders returns the caller's own orders, each line enriched with
// the current catalog snapshot of its item. A failed snapshot lookup degrades
// that single line, never the list.
func (s *Service) ListOwnedOrders(ctx context.Context, tokenHeader string) ([]OrderDetail, error) {
	ctx, span := s.tracer.Start(ctx, "ListOwnedOrders")
	defer span.End()

	auth, err := s.Authorize(ctx, tokenHeader, RoleUser)
	if err != nil {
		return nil, err
	}

	orders, err := s.store.FindByOwner(ctx, auth.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("find orders for %s: %w", auth.SubjectID, err)
	}

	owner := ownerFromAuth(auth)
	details := make([]OrderDetail, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichLimit)
	for i, o := range orders {
		details[i] = OrderDetail{Order: *o, Owner: owner}
		g.Go(func() error {
			details[i].Lines = s.enrichLines(gctx, o.Lines)
			return nil
		})
	}
	_ = g.Wait() // enrichment never fails, it degrades
	return details, nil
}

// ListAllOrders returns every order with owner detail resolved through the
// identity service. A failed owner lookup degrades that order's owner to
// unknown but never drops the order.
func (s *Service) ListAllOrders(ctx context.Context, tokenHeader string) ([]OrderDetail, error) {
	ctx, span := s.tracer.Start(ctx, "ListAllOrders")
	defer span.End()

	if _, err := s.Authorize(ctx, tokenHeader, RoleAdmin); err != nil {
		return nil, err
	}

	orders, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("find all orders: %w", err)
	}

	details := make([]OrderDetail, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichLimit)
	for i, o := range orders {
		details[i] = OrderDetail{Order: *o}
		g.Go(func() error {
			details[i].Owner = s.lookupOwner(gctx, o.OwnerID)
			details[i].Lines = s.enrichLines(gctx, o.Lines)
			return nil
		})
	}
	_ = g.Wait()
	return details, nil
}

// GetOrder returns the raw stored aggregate.
func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.store.Get(ctx, id)
}

// ListOrders returns every raw stored aggregate.
func (s *Service) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.store.FindAll(ctx)
}

// validateLines checks every requested line against the catalog and collects
// all failures instead of stopping at the first. On success it returns the
// snapshots keyed by item id so pricing reuses the exact state it validated.
func (s *Service) validateLines(ctx context.Context, reqs []LineRequest) (map[string]ItemSnapshot, error) {
	var lineErrs []LineError
	snaps := make(map[string]ItemSnapshot, len(reqs))

	for _, r := range reqs {
		snap, err := s.inventory.GetItem(ctx, r.ItemID)
		switch {
		case errors.Is(err, ErrItemNotFound):
			lineErrs = append(lineErrs, LineError{ItemID: r.ItemID, Reason: LineNotFound,
				Message: "item does not exist"})
		case err != nil:
			lineErrs = append(lineErrs, LineError{ItemID: r.ItemID, Reason: LineRemoteUnavailable,
				Message: fmt.Sprintf("could not read item: %v", err)})
		case !snap.Active:
			lineErrs = append(lineErrs, LineError{ItemID: r.ItemID, Reason: LineInactive,
				Message: "item is not available"})
		case r.Quantity > snap.Stock:
			lineErrs = append(lineErrs, LineError{ItemID: r.ItemID, Reason: LineInsufficientStock,
				Message: fmt.Sprintf("insufficient stock for %q: %d available", snap.Title, snap.Stock)})
		default:
			snaps[r.ItemID] = snap
		}
	}

	if len(lineErrs) > 0 {
		return nil, &ValidationError{Lines: lineErrs}
	}
	return snaps, nil
}

func (s *Service) buildOrder(ownerID string, reqs []LineRequest, snaps map[string]ItemSnapshot) (*domain.Order, error) {
	id := s.newID()
	order, err := domain.New(id, ownerID, s.pricedLines(id, reqs, snaps))
	if err != nil {
		return nil, err
	}
	order.CreatedAt = s.now()
	return order, nil
}

// pricedLines freezes the net unit price from the validated snapshots into
// new lines, preserving request order.
func (s *Service) pricedLines(orderID string, reqs []LineRequest, snaps map[string]ItemSnapshot) []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(reqs))
	for _, r := range reqs {
		snap := snaps[r.ItemID]
		net, _ := domain.PriceLine(snap.UnitPrice, snap.DiscountPercent, r.Quantity)
		lines = append(lines, domain.OrderLine{
			ID:        s.newID(),
			OrderID:   orderID,
			ItemID:    r.ItemID,
			Quantity:  r.Quantity,
			UnitPrice: net,
		})
	}
	return lines
}

// enrichLines resolves the current snapshot of each line's item for display.
// Lookup failures leave Item nil.
func (s *Service) enrichLines(ctx context.Context, lines []domain.OrderLine) []LineDetail {
	details := make([]LineDetail, len(lines))
	for i, l := range lines {
		details[i] = LineDetail{Line: l}
		snap, err := s.inventory.LookupItem(ctx, l.ItemID)
		if err != nil {
			s.log.DebugContext(ctx, "item enrichment degraded", "item_id", l.ItemID, "error", err)
			continue
		}
		details[i].Item = &snap
	}
	return details
}

// lookupOwner resolves owner display data best-effort.
func (s *Service) lookupOwner(ctx context.Context, ownerID string) OwnerDetail {
	user, err := s.identity.LookupUser(ctx, ownerID)
	if err != nil {
		s.log.DebugContext(ctx, "owner enrichment degraded", "owner_id", ownerID, "error", err)
		return OwnerDetail{ID: ownerID}
	}
	return ownerFromRecord(user)
}

// lockOrder serializes finalize attempts per order id within this process.
func (s *Service) lockOrder(orderID string) func() {
	s.mu.Lock()
	m, ok := s.finalizing[orderID]
	if !ok {
		m = &sync.Mutex{}
		s.finalizing[orderID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (s *Service) journalSave(ctx context.Context, entry *stockjournal.Entry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Save(ctx, entry); err != nil {
		s.log.WarnContext(ctx, "stock journal write failed",
			"order_id", entry.OrderID, "status", entry.Status, "error", err)
	}
}

func ownerFromAuth(auth AuthContext) OwnerDetail {
	return OwnerDetail{
		ID:         auth.SubjectID,
		Username:   auth.Username,
		Email:      auth.Email,
		GivenName:  auth.GivenName,
		FamilyName: auth.FamilyName,
		Role:       auth.Role,
		Known:      true,
	}
}

func ownerFromRecord(u UserRecord) OwnerDetail {
	return OwnerDetail{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		Known:    true,
	}
}

func linesFromSnapshots(lines []domain.OrderLine, snaps map[string]ItemSnapshot) []LineDetail {
	details := make([]LineDetail, len(lines))
	for i, l := range lines {
		details[i] = LineDetail{Line: l}
		if snap, ok := snaps[l.ItemID]; ok {
			details[i].Item = &snap
		}
	}
	return details
}
