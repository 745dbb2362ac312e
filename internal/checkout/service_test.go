package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ckmerch/backend-store/internal/cart"
	"github.com/ckmerch/backend-store/internal/catalog"
	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/events"
	"github.com/ckmerch/backend-store/internal/lock"
	"github.com/ckmerch/backend-store/internal/order"
)

type fakeOrderStore struct {
	inserted []order.Order
	err      error
}

func (f *fakeOrderStore) Insert(_ context.Context, o *order.Order) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, *o)
	return nil
}

type fakeEventStore struct {
	emitted []string
}

func (f *fakeEventStore) InsertEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	f.emitted = append(f.emitted, topic)
	return events.Event{ID: uuid.New(), Topic: topic, AggregateID: aggregateID, Payload: payload, OccurredAt: time.Now()}, nil
}

func newTestCheckout(t *testing.T) (*Service, *fakeOrderStore, *fakeEventStore, *cart.Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cat, err := catalog.Default()
	require.NoError(t, err)
	engine := cat.Engine(1000)

	carts := &cart.Service{
		Store:   &cart.Store{R: client, TTL: time.Hour},
		Catalog: cat,
		Engine:  engine,
	}
	orders := &fakeOrderStore{}
	eventStore := &fakeEventStore{}
	svc := &Service{
		Cart:      carts,
		Orders:    orders,
		Bus:       &events.Bus{Store: eventStore},
		Engine:    engine,
		Privilege: func(email string) bool { return email == "principal@school.edu" },
		Currency:  "TWD",
	}
	return svc, orders, eventStore, carts
}

func TestSubmitEmptyCartConflicts(t *testing.T) {
	svc, _, _, _ := newTestCheckout(t)
	_, err := svc.Submit(context.Background(), SubmitInput{AccountID: "acc-1", AccountEmail: "buyer@school.edu"})
	require.Error(t, err)
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, "CART_EMPTY", app.Code)
}

func TestSubmitPersistsRepricedOrder(t *testing.T) {
	svc, orders, eventStore, carts := newTestCheckout(t)
	ctx := context.Background()

	// tee + towel -> Bundle A
	_, err := carts.AddItem(ctx, "acc-1", "2_1", 1)
	require.NoError(t, err)
	_, err = carts.AddItem(ctx, "acc-1", "5", 1)
	require.NoError(t, err)

	result, err := svc.Submit(ctx, SubmitInput{
		AccountID:    "acc-1",
		AccountEmail: "buyer@school.edu",
		ContactName:  "Dana Cruz",
		ContactPhone: "0917 000 1234",
		Note:         "please deliver to room 204",
	})
	require.NoError(t, err)

	require.Len(t, orders.inserted, 1)
	ord := orders.inserted[0]
	require.Equal(t, order.StatusSubmitted, ord.Status)
	require.Equal(t, "Dana Cruz", ord.ContactName)
	require.Equal(t, "0917 000 1234", ord.ContactPhone)
	require.Equal(t, "please deliver to room 204", ord.Note)
	require.Equal(t, int64(500), int64(ord.OriginalTotal))
	require.Equal(t, int64(100), int64(ord.ComboDiscount))
	require.Equal(t, int64(400), int64(ord.FinalTotal))
	require.False(t, ord.OverrideApplied)
	require.Len(t, ord.Items, 2)
	require.Equal(t, result.Order.ID, ord.ID)

	require.Equal(t, []string{events.TopicOrderCreated}, eventStore.emitted)

	// cart is cleared after a successful submit
	view, err := carts.Get(ctx, "acc-1")
	require.NoError(t, err)
	require.Empty(t, view.Lines)
}

func TestSubmitOverrideRequiresPrivilege(t *testing.T) {
	svc, orders, _, carts := newTestCheckout(t)
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "acc-1", "1", 1)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitInput{AccountID: "acc-1", AccountEmail: "student@school.edu", Override: true})
	require.ErrorIs(t, err, common.ErrForbidden)
	require.Empty(t, orders.inserted)

	// cart must be untouched after a rejected submit
	view, err := carts.Get(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
}

func TestSubmitOverrideWaivesTotal(t *testing.T) {
	svc, orders, _, carts := newTestCheckout(t)
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "acc-1", "1", 1)
	require.NoError(t, err)

	result, err := svc.Submit(ctx, SubmitInput{AccountID: "acc-1", AccountEmail: "principal@school.edu", Override: true})
	require.NoError(t, err)
	require.True(t, result.Order.OverrideApplied)
	require.Equal(t, int64(0), int64(result.Order.FinalTotal))
	require.Equal(t, int64(700), int64(result.Order.OriginalTotal))
	require.Len(t, orders.inserted, 1)
}

func TestSubmitGiftThresholdApplied(t *testing.T) {
	svc, orders, _, carts := newTestCheckout(t)
	ctx := context.Background()

	// bag (750) + hoodie white (650) + keychain (50) = 1450, no combo;
	// 1450 - 50 >= 1000 so the keychain is free.
	for _, sku := range []string{"6", "4_1", "7_1"} {
		_, err := carts.AddItem(ctx, "acc-1", sku, 1)
		require.NoError(t, err)
	}
	result, err := svc.Submit(ctx, SubmitInput{AccountID: "acc-1", AccountEmail: "buyer@school.edu"})
	require.NoError(t, err)
	require.Equal(t, int64(50), int64(result.Quote.GiftDiscount))
	require.Equal(t, int64(1400), int64(result.Order.FinalTotal))
	require.Len(t, orders.inserted, 1)
}

func TestSubmitStoreFailureKeepsCart(t *testing.T) {
	svc, orders, _, carts := newTestCheckout(t)
	orders.err = context.DeadlineExceeded
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "acc-1", "1", 1)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitInput{AccountID: "acc-1", AccountEmail: "buyer@school.edu"})
	require.Error(t, err)

	view, err := carts.Get(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
}

func TestSubmitWithLockerConfigured(t *testing.T) {
	svc, orders, _, carts := newTestCheckout(t)
	svc.Lock = lock.Locker{R: carts.Store.R, RetryBackoff: 5 * time.Millisecond}
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "acc-1", "2_1", 1)
	require.NoError(t, err)

	result, err := svc.Submit(ctx, SubmitInput{AccountID: "acc-1", AccountEmail: "buyer@school.edu"})
	require.NoError(t, err)
	require.Len(t, orders.inserted, 1)
	require.Equal(t, int64(300), int64(result.Order.FinalTotal))

	// Lock must be released after a successful submit.
	exists := carts.Store.R.Exists(ctx, "checkout:acc-1").Val()
	require.Zero(t, exists)
}
