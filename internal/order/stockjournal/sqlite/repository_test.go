package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lymian/kirbook-pedido-rest/internal/order/stockjournal"
)

func TestSaveAndListByOrder(t *testing.T) {
	repo, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ctx := context.Background()

	entries := []*stockjournal.Entry{
		stockjournal.NewEntry(ctx, "o1", stockjournal.StatusStarted, "", 0, ""),
		stockjournal.NewEntry(ctx, "o1", stockjournal.StatusDecremented, "item-1", 2, ""),
		stockjournal.NewEntry(ctx, "o1", stockjournal.StatusFailed, "item-2", 1, "insufficient stock"),
		stockjournal.NewEntry(ctx, "o2", stockjournal.StatusStarted, "", 0, ""),
	}
	for _, e := range entries {
		require.NoError(t, repo.Save(ctx, e))
	}

	got, err := repo.ListByOrder(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, stockjournal.StatusStarted, got[0].Status)
	assert.Equal(t, stockjournal.StatusDecremented, got[1].Status)
	assert.Equal(t, "item-1", got[1].ItemID)
	assert.Equal(t, 2, got[1].Quantity)
	assert.Equal(t, stockjournal.StatusFailed, got[2].Status)
	assert.Equal(t, "insufficient stock", got[2].ErrorMessage)

	other, err := repo.ListByOrder(ctx, "o2")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	none, err := repo.ListByOrder(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}
