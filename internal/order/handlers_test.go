package order

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ckmerch/backend-store/internal/common"
)

type fakeStore struct {
	orders      map[uuid.UUID]Order
	transitions []string
}

func (f *fakeStore) GetForAccount(ctx context.Context, id uuid.UUID, accountID string) (Order, error) {
	o, ok := f.orders[id]
	if !ok || o.AccountID != accountID {
		return Order{}, common.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) ListForAccount(ctx context.Context, accountID string, limit, offset int) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		if o.AccountID == accountID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) CountForAccount(ctx context.Context, accountID string) (int64, error) {
	orders, _ := f.ListForAccount(ctx, accountID, 0, 0)
	return int64(len(orders)), nil
}

func (f *fakeStore) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return Order{}, common.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) ListAll(ctx context.Context, status Status, limit, offset int) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) GetStatus(ctx context.Context, id uuid.UUID) (Status, error) {
	o, ok := f.orders[id]
	if !ok {
		return "", common.ErrNotFound
	}
	return o.Status, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	o, ok := f.orders[id]
	if !ok || o.Status != from {
		return common.ErrNotFound
	}
	o.Status = to
	f.orders[id] = o
	f.transitions = append(f.transitions, string(from)+">"+string(to))
	return nil
}

func authedRequest(method, target string, body string, accountID string) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(common.WithAccount(req.Context(), accountID, accountID+"@school.edu"))
	return req
}

// The buyer routes are mounted with an {orderId} placeholder. A valid order
// id in the path must reach the store, not bounce as invalid input.
func TestHandlerGetResolvesOrderIDFromRoute(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{orders: map[uuid.UUID]Order{
		id: {ID: id, AccountID: "acc-1", Status: StatusSubmitted, FinalTotal: 400},
	}}
	h := &Handler{Store: store}

	r := chi.NewRouter()
	r.Get("/orders/{orderId}", h.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodGet, "/orders/"+id.String(), "", "acc-1"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), id.String())
}

func TestHandlerGetRejectsMalformedOrderID(t *testing.T) {
	h := &Handler{Store: &fakeStore{orders: map[uuid.UUID]Order{}}}
	r := chi.NewRouter()
	r.Get("/orders/{orderId}", h.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodGet, "/orders/not-a-uuid", "", "acc-1"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestHandlerCancelResolvesOrderIDFromRoute(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{orders: map[uuid.UUID]Order{
		id: {ID: id, AccountID: "acc-1", Status: StatusSubmitted},
	}}
	h := &Handler{Store: store}

	r := chi.NewRouter()
	r.Post("/orders/{orderId}/cancel", h.Cancel)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/orders/"+id.String()+"/cancel", "", "acc-1"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []string{"SUBMITTED>CANCELED"}, store.transitions)
}

func TestAdminPatchStatusResolvesOrderIDFromRoute(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{orders: map[uuid.UUID]Order{
		id: {ID: id, AccountID: "acc-1", Status: StatusSubmitted},
	}}
	h := &AdminHandler{Store: store}

	r := chi.NewRouter()
	r.Patch("/admin/orders/{orderId}/status", h.PatchStatus)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPatch,
		"/admin/orders/"+id.String()+"/status", `{"status":"PAID"}`, "staff-1"))

	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.Equal(t, []string{"SUBMITTED>PAID"}, store.transitions)
}

func TestAdminGetResolvesOrderIDFromRoute(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{orders: map[uuid.UUID]Order{
		id: {ID: id, AccountID: "acc-1", Status: StatusPaid},
	}}
	h := &AdminHandler{Store: store}

	r := chi.NewRouter()
	r.Get("/admin/orders/{orderId}", h.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodGet, "/admin/orders/"+id.String(), "", "staff-1"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), id.String())
}
