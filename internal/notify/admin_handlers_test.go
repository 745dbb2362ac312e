package notify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ckmerch/backend-store/internal/events"
	"github.com/ckmerch/backend-store/internal/notify"
)

type adminFakeStore struct {
	notify.Store

	endpoint   notify.Endpoint
	updated    []notify.Endpoint
	deleted    []uuid.UUID
	deliveries []notify.Delivery
	listedFor  []uuid.UUID
}

func (f *adminFakeStore) GetEndpoint(_ context.Context, id uuid.UUID) (notify.Endpoint, error) {
	if id != f.endpoint.ID {
		return notify.Endpoint{}, context.Canceled
	}
	return f.endpoint, nil
}

func (f *adminFakeStore) UpdateEndpoint(_ context.Context, ep notify.Endpoint) (notify.Endpoint, error) {
	f.updated = append(f.updated, ep)
	return ep, nil
}

func (f *adminFakeStore) DeleteEndpoint(_ context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *adminFakeStore) ListDeliveries(_ context.Context, endpointID uuid.UUID, limit, offset int) ([]notify.Delivery, error) {
	f.listedFor = append(f.listedFor, endpointID)
	return f.deliveries, nil
}

// The webhook admin routes are mounted with an {endpointId} placeholder. A
// valid endpoint id in the path must reach the store, not bounce as invalid
// input.
func TestAdminUpdateResolvesEndpointIDFromRoute(t *testing.T) {
	endpoint := notify.Endpoint{
		ID:     uuid.New(),
		URL:    "https://hooks.example/orders",
		Topics: []string{events.TopicOrderPaid},
		Active: true,
	}
	store := &adminFakeStore{endpoint: endpoint}
	h := &notify.AdminHandler{Store: store}

	r := chi.NewRouter()
	r.Put("/admin/webhooks/{endpointId}", h.Update)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/admin/webhooks/"+endpoint.ID.String(),
		strings.NewReader(`{"url":"https://hooks.example/v2"}`))
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, store.updated, 1)
	require.Equal(t, "https://hooks.example/v2", store.updated[0].URL)
}

func TestAdminDeleteResolvesEndpointIDFromRoute(t *testing.T) {
	id := uuid.New()
	store := &adminFakeStore{endpoint: notify.Endpoint{ID: id}}
	h := &notify.AdminHandler{Store: store}

	r := chi.NewRouter()
	r.Delete("/admin/webhooks/{endpointId}", h.Delete)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/webhooks/"+id.String(), nil))

	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.Equal(t, []uuid.UUID{id}, store.deleted)
}

func TestAdminListDeliveriesResolvesEndpointIDFromRoute(t *testing.T) {
	id := uuid.New()
	store := &adminFakeStore{
		endpoint:   notify.Endpoint{ID: id},
		deliveries: []notify.Delivery{{ID: uuid.New(), EndpointID: id, Status: notify.DeliveryDelivered}},
	}
	h := &notify.AdminHandler{Store: store}

	r := chi.NewRouter()
	r.Get("/admin/webhooks/{endpointId}/deliveries", h.ListDeliveries)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/webhooks/"+id.String()+"/deliveries", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []uuid.UUID{id}, store.listedFor)
}

func TestAdminUpdateRejectsMalformedEndpointID(t *testing.T) {
	h := &notify.AdminHandler{Store: &adminFakeStore{}}
	r := chi.NewRouter()
	r.Put("/admin/webhooks/{endpointId}", h.Update)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/webhooks/nope", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_INPUT")
}
