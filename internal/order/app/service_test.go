package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lymian/kirbook-pedido-rest/internal/order/domain"
	"github.com/lymian/kirbook-pedido-rest/internal/order/stockjournal"
)

const (
	userToken  = "Bearer user-token"
	adminToken = "Bearer admin-token"
)

func testIdentity() *mockIdentity {
	return &mockIdentity{
		validateFunc: func(_ context.Context, token string) (AuthContext, error) {
			switch token {
			case "user-token":
				return AuthContext{SubjectID: "u1", Username: "ana", Email: "ana@kirbook.com", Role: RoleUser, Valid: true}, nil
			case "admin-token":
				return AuthContext{SubjectID: "a1", Username: "root", Role: RoleAdmin, Valid: true}, nil
			default:
				return AuthContext{Valid: false}, nil
			}
		},
		lookupFunc: func(_ context.Context, id string) (UserRecord, error) {
			if id == "u1" {
				return UserRecord{ID: "u1", Username: "ana", Email: "ana@kirbook.com", Role: RoleUser}, nil
			}
			return UserRecord{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
		},
	}
}

func testCatalog() map[string]ItemSnapshot {
	return map[string]ItemSnapshot{
		"1": {ID: "1", Title: "Dune", UnitPrice: 10.00, DiscountPercent: 0, Stock: 5, Active: true},
		"2": {ID: "2", Title: "Neuromancer", UnitPrice: 5.00, DiscountPercent: 20, Stock: 3, Active: true},
		"3": {ID: "3", Title: "Out of print", UnitPrice: 7.00, Stock: 9, Active: false},
	}
}

func testInventory() *mockInventory {
	catalog := testCatalog()
	return &mockInventory{
		getFunc: func(_ context.Context, itemID string) (ItemSnapshot, error) {
			if snap, ok := catalog[itemID]; ok {
				return snap, nil
			}
			return ItemSnapshot{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		},
	}
}

func newTestService(store OrderStore, id IdentityGateway, inv InventoryGateway, journal stockjournal.Repository) *Service {
	return NewService(store, id, inv, journal, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedOrder(t *testing.T, store *mockStore, id, owner string, status domain.Status, lines ...domain.OrderLine) {
	t.Helper()
	o := &domain.Order{ID: id, OwnerID: owner, Status: status, Lines: lines, CreatedAt: time.Now().UTC()}
	o.Recalculate()
	require.NoError(t, store.Create(context.Background(), o))
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		required Role
		identity *mockIdentity
		wantErr  error
	}{
		{"valid user token", userToken, RoleUser, testIdentity(), nil},
		{"valid admin token", adminToken, RoleAdmin, testIdentity(), nil},
		{"empty header", "", RoleUser, testIdentity(), ErrMissingToken},
		{"wrong scheme", "Token abc", RoleUser, testIdentity(), ErrMissingToken},
		{"invalid token", "Bearer nope", RoleUser, testIdentity(), ErrInvalidToken},
		{"wrong role", userToken, RoleAdmin, testIdentity(), ErrForbidden},
		{"identity down", userToken, RoleUser, &mockIdentity{
			validateFunc: func(context.Context, string) (AuthContext, error) {
				return AuthContext{}, ErrIdentityUnreachable
			},
		}, ErrIdentityUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMockStore(), tt.identity, testInventory(), nil)
			auth, err := svc.Authorize(context.Background(), tt.header, tt.required)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, auth.Valid)
			assert.Equal(t, tt.required, auth.Role)
		})
	}
}

func TestSubmitOrder(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, testIdentity(), testInventory(), nil)

	detail, err := svc.SubmitOrder(context.Background(), userToken, []LineRequest{
		{ItemID: "1", Quantity: 2},
		{ItemID: "2", Quantity: 1},
	})
	require.NoError(t, err)

	// 2*10.00 + 1*(5.00 - 20%) = 24.00
	assert.Equal(t, 24.00, detail.Order.Total)
	assert.Equal(t, domain.StatusPending, detail.Order.Status)
	assert.Equal(t, "u1", detail.Order.OwnerID)

	require.Len(t, detail.Lines, 2)
	assert.Equal(t, 10.00, detail.Lines[0].Line.UnitPrice)
	assert.Equal(t, 4.00, detail.Lines[1].Line.UnitPrice)
	require.NotNil(t, detail.Lines[0].Item)
	assert.Equal(t, "Dune", detail.Lines[0].Item.Title)

	// Owner detail comes from the auth context, no extra identity call.
	assert.True(t, detail.Owner.Known)
	assert.Equal(t, "ana", detail.Owner.Username)

	stored, err := store.Get(context.Background(), detail.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, 24.00, stored.Total)
	assert.Len(t, stored.Lines, 2)
}

func TestSubmitOrderReportsEveryFailingLine(t *testing.T) {
	store := newMockStore()
	catalog := testCatalog()
	inv := &mockInventory{
		getFunc: func(_ context.Context, itemID string) (ItemSnapshot, error) {
			if itemID == "boom" {
				return ItemSnapshot{}, fmt.Errorf("%w: connection refused", ErrInventoryUnreachable)
			}
			if snap, ok := catalog[itemID]; ok {
				return snap, nil
			}
			return ItemSnapshot{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		},
	}
	svc := newTestService(store, testIdentity(), inv, nil)

	_, err := svc.SubmitOrder(context.Background(), userToken, []LineRequest{
		{ItemID: "missing", Quantity: 1},
		{ItemID: "3", Quantity: 1},
		{ItemID: "2", Quantity: 99},
		{ItemID: "boom", Quantity: 1},
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Lines, 4)
	assert.Equal(t, LineNotFound, vErr.Lines[0].Reason)
	assert.Equal(t, LineInactive, vErr.Lines[1].Reason)
	assert.Equal(t, LineInsufficientStock, vErr.Lines[2].Reason)
	assert.Equal(t, LineRemoteUnavailable, vErr.Lines[3].Reason)

	assert.Zero(t, store.count(), "no partial order may be created")
	assert.Empty(t, inv.decrementCalls(), "no stock may be touched")
}

func TestSubmitOrderForbiddenForAdmins(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, testIdentity(), testInventory(), nil)

	_, err := svc.SubmitOrder(context.Background(), adminToken, []LineRequest{{ItemID: "1", Quantity: 1}})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, store.count())
}

func TestFinalizeOrder(t *testing.T) {
	store := newMockStore()
	inv := testInventory()
	journal := &mockJournal{}
	svc := newTestService(store, testIdentity(), inv, journal)

	seedOrder(t, store, "o1", "u1", domain.StatusPending,
		domain.OrderLine{ID: "l1", ItemID: "1", Quantity: 2, UnitPrice: 10},
		domain.OrderLine{ID: "l2", ItemID: "2", Quantity: 1, UnitPrice: 4},
	)

	detail, err := svc.FinalizeOrder(context.Background(), adminToken, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, detail.Order.Status)

	// Exactly one decrement per line, in line order.
	assert.Equal(t, []string{"1", "2"}, inv.decrementCalls())

	stored, err := store.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, stored.Status)

	assert.Equal(t, []stockjournal.Status{
		stockjournal.StatusStarted,
		stockjournal.StatusDecremented,
		stockjournal.StatusDecremented,
		stockjournal.StatusCompleted,
	}, journal.statuses())
}

func TestFinalizeOrderTwice(t *testing.T) {
	store := newMockStore()
	inv := testInventory()
	svc := newTestService(store, testIdentity(), inv, nil)

	seedOrder(t, store, "o1", "u1", domain.StatusPending,
		domain.OrderLine{ID: "l1", ItemID: "1", Quantity: 1, UnitPrice: 10},
	)

	_, err := svc.FinalizeOrder(context.Background(), adminToken, "o1")
	require.NoError(t, err)

	_, err = svc.FinalizeOrder(context.Background(), adminToken, "o1")
	assert.ErrorIs(t, err, domain.ErrNotPending)
	assert.Len(t, inv.decrementCalls(), 1, "second call must not decrement")
}

func TestFinalizeOrderMidSequenceFailure(t *testing.T) {
	store := newMockStore()
	journal := &mockJournal{}
	inv := testInventory()
	inv.decrementFunc = func(_ context.Context, itemID string, _ int) error {
		if itemID == "2" {
			return fmt.Errorf("%w: item 2", ErrInsufficientStock)
		}
		return nil
	}
	svc := newTestService(store, testIdentity(), inv, journal)

	seedOrder(t, store, "o1", "u1", domain.StatusPending,
		domain.OrderLine{ID: "l1", ItemID: "1", Quantity: 1, UnitPrice: 10},
		domain.OrderLine{ID: "l2", ItemID: "2", Quantity: 1, UnitPrice: 4},
		domain.OrderLine{ID: "l3", ItemID: "3", Quantity: 1, UnitPrice: 7},
	)

	_, err := svc.FinalizeOrder(context.Background(), adminToken, "o1")

	var sErr *StockUpdateError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "2", sErr.ItemID)

	// The first line was deducted, the third never attempted, nothing rolled back.
	assert.Equal(t, []string{"1", "2"}, inv.decrementCalls())

	stored, err := store.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)

	statuses := journal.statuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, stockjournal.StatusFailed, statuses[len(statuses)-1])
}

func TestFinalizeOrderNotFound(t *testing.T) {
	svc := newTestService(newMockStore(), testIdentity(), testInventory(), nil)
	_, err := svc.FinalizeOrder(context.Background(), adminToken, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListOwnedOrders(t *testing.T) {
	store := newMockStore()
	inv := testInventory()
	inv.lookupFunc = func(_ context.Context, itemID string) (ItemSnapshot, error) {
		if itemID == "2" {
			return ItemSnapshot{}, fmt.Errorf("%w: timeout", ErrInventoryUnreachable)
		}
		return testCatalog()[itemID], nil
	}
	svc := newTestService(store, testIdentity(), inv, nil)

	seedOrder(t, store, "o1", "u1", domain.StatusPending,
		domain.OrderLine{ID: "l1", ItemID: "1", Quantity: 1, UnitPrice: 10},
		domain.OrderLine{ID: "l2", ItemID: "2", Quantity: 1, UnitPrice: 4},
	)
	seedOrder(t, store, "o2", "someone-else", domain.StatusPending,
		domain.OrderLine{ID: "l3", ItemID: "1", Quantity: 1, UnitPrice: 10},
	)

	details, err := svc.ListOwnedOrders(context.Background(), userToken)
	require.NoError(t, err)
	require.Len(t, details, 1, "only the caller's orders")

	require.Len(t, details[0].Lines, 2)
	assert.NotNil(t, details[0].Lines[0].Item, "reachable item is enriched")
	assert.Nil(t, details[0].Lines[1].Item, "failed lookup degrades the single line")
	assert.True(t, details[0].Owner.Known)
}

func TestListAllOrdersDegradesUnknownOwners(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, testIdentity(), testInventory(), nil)

	seedOrder(t, store, "o1", "u1", domain.StatusPending,
		domain.OrderLine{ID: "l1", ItemID: "1", Quantity: 1, UnitPrice: 10})
	seedOrder(t, store, "o2", "ghost", domain.StatusFinalized,
		domain.OrderLine{ID: "l2", ItemID: "2", Quantity: 1, UnitPrice: 4})

	details, err := svc.ListAllOrders(context.Background(), adminToken)
	require.NoError(t, err)
	require.Len(t, details, 2, "a failed owner lookup must not drop the order")

	byID := map[string]OrderDetail{}
	for _, d := range details {
		byID[d.Order.ID] = d
	}
	assert.True(t, byID["o1"].Owner.Known)
	assert.Equal(t, "ana", byID["o1"].Owner.Username)
	assert.False(t, byID["o2"].Owner.Known)
	assert.Equal(t, "ghost", byID["o2"].Owner.ID)
}

func TestListAllOrdersRequiresAdmin(t *testing.T) {
	svc := newTestService(newMockStore(), testIdentity(), testInventory(), nil)
	_, err := svc.ListAllOrders(context.Background(), userToken)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateOrderForCustomer(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, testIdentity(), testInventory(), nil)

	detail, err := svc.CreateOrder(context.Background(), adminToken, "u1", []LineRequest{
		{ItemID: "2", Quantity: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, "u1", detail.Order.OwnerID)
	assert.Equal(t, 8.00, detail.Order.Total)
	assert.True(t, detail.Owner.Known)
	assert.Equal(t, 1, store.count())
}

func TestCreateOrderUnknownCustomer(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, testIdentity(), testInventory(), nil)

	_, err := svc.CreateOrder(context.Background(), adminToken, "ghost", []LineRequest{
		{ItemID: "1", Quantity: 1},
	})
	assert.ErrorIs(t, err, ErrOwnerNotFound)
	assert.Zero(t, store.count())
}

func TestUpdateOrderReplacesLines(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, testIdentity(), testInventory(), nil)

	seedOrder(t, store, "o1", "u1", domain.StatusPending,
		domain.OrderLine{ID: "l1", ItemID: "1", Quantity: 1, UnitPrice: 10})

	detail, err := svc.UpdateOrder(context.Background(), adminToken, "o1", []LineRequest{
		{ItemID: "2", Quantity: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, 8.00, detail.Order.Total)
	require.Len(t, detail.Lines, 1)
	assert.Equal(t, "2", detail.Lines[0].Line.ItemID)
	assert.Equal(t, 4.00, detail.Lines[0].Line.UnitPrice, "price re-captured at update time")

	stored, err := store.Get(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, "2", stored.Lines[0].ItemID)
}

func TestUpdateOrderRejectedWhenFinalized(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, testIdentity(), testInventory(), nil)

	seedOrder(t, store, "o1", "u1", domain.StatusFinalized,
		domain.OrderLine{ID: "l1", ItemID: "1", Quantity: 1, UnitPrice: 10})

	_, err := svc.UpdateOrder(context.Background(), adminToken, "o1", []LineRequest{
		{ItemID: "2", Quantity: 1},
	})
	assert.ErrorIs(t, err, domain.ErrNotPending)
}

func TestDeleteOrder(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, testIdentity(), testInventory(), nil)

	seedOrder(t, store, "o1", "u1", domain.StatusFinalized,
		domain.OrderLine{ID: "l1", ItemID: "1", Quantity: 1, UnitPrice: 10})

	require.NoError(t, svc.DeleteOrder(context.Background(), adminToken, "o1"))
	assert.Zero(t, store.count())

	err := svc.DeleteOrder(context.Background(), adminToken, "o1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
