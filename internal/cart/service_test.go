package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ckmerch/backend-store/internal/catalog"
	"github.com/ckmerch/backend-store/internal/common"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cat, err := catalog.Default()
	require.NoError(t, err)

	svc := &Service{
		Store:   &Store{R: client, TTL: time.Hour},
		Catalog: cat,
		Engine:  cat.Engine(1000),
	}
	return svc, mr
}

func TestAddItemMergesSameSKU(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "acc-1", "2_1", 1)
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, "acc-1", "2_1", 2)
	require.NoError(t, err)

	require.Len(t, view.Lines, 1)
	require.Equal(t, 3, view.Lines[0].Qty)
	require.Equal(t, int64(900), int64(view.Quote.OriginalTotal))
}

func TestAddItemRejectsUnknownSKU(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AddItem(context.Background(), "acc-1", "999", 1)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestAddItemRejectsNonPositiveQty(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AddItem(context.Background(), "acc-1", "2_1", 0)
	require.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = svc.AddItem(context.Background(), "acc-1", "2_1", -2)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSetQtyZeroRemovesLine(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "acc-1", "2_1", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "acc-1", "5", 1)
	require.NoError(t, err)

	view, err := svc.SetQty(ctx, "acc-1", "2_1", 0)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	require.Equal(t, "5", view.Lines[0].SKU)
}

func TestSetQtyMissingLine(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SetQty(context.Background(), "acc-1", "2_1", 3)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestQuoteReflectsComboInCartView(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// tee + towel matches Bundle A
	_, err := svc.AddItem(ctx, "acc-1", "2_3", 1)
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, "acc-1", "5", 1)
	require.NoError(t, err)

	require.Equal(t, int64(500), int64(view.Quote.OriginalTotal))
	require.Equal(t, int64(100), int64(view.Quote.ComboDiscountTotal))
	require.Equal(t, int64(400), int64(view.Quote.FinalTotal))
	require.Len(t, view.Quote.AppliedCombos, 1)
	require.Equal(t, "bundle-a", view.Quote.AppliedCombos[0].ComboID)
}

func TestCartExpiresWithTTL(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "acc-1", "1", 1)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	view, err := svc.Get(ctx, "acc-1")
	require.NoError(t, err)
	require.Empty(t, view.Lines)
}

func TestWriteRefreshesTTL(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "acc-1", "1", 1)
	require.NoError(t, err)

	mr.FastForward(30 * time.Minute)
	_, err = svc.AddItem(ctx, "acc-1", "3", 1)
	require.NoError(t, err)
	mr.FastForward(45 * time.Minute)

	view, err := svc.Get(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
}

func TestClearEmptiesCart(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "acc-1", "1", 1)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "acc-1"))

	view, err := svc.Get(ctx, "acc-1")
	require.NoError(t, err)
	require.Empty(t, view.Lines)
	require.Equal(t, int64(0), int64(view.Quote.FinalTotal))
}

func TestLinesPreserveInsertionOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, sku := range []string{"8", "7_1", "2_1"} {
		_, err := svc.AddItem(ctx, "acc-1", sku, 1)
		require.NoError(t, err)
	}
	view, err := svc.Get(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, "8", view.Lines[0].SKU)
	require.Equal(t, "7_1", view.Lines[1].SKU)
	require.Equal(t, "2_1", view.Lines[2].SKU)
}
