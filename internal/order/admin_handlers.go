package order

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/events"
	"github.com/ckmerch/backend-store/internal/obs"
)

// AdminStore is the slice of order persistence the staff handlers need.
type AdminStore interface {
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	ListAll(ctx context.Context, status Status, limit, offset int) ([]Order, error)
	GetStatus(ctx context.Context, id uuid.UUID) (Status, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error
}

// AdminHandler provides fulfillment management for sale staff.
type AdminHandler struct {
	Store AdminStore
	Bus   *events.Bus
	Log   zerolog.Logger
}

// List returns orders across all accounts, optionally filtered by status.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	pg := common.ParsePagination(r, 50, 200)
	var status Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := ParseStatus(raw)
		if !ok {
			common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "unsupported status filter", nil)
			return
		}
		status = parsed
	}
	orders, err := h.Store.ListAll(r.Context(), status, pg.PerPage, pg.Offset())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": pg,
	})
}

// Get returns any order by id.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid order id", nil)
		return
	}
	ord, err := h.Store.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ord})
}

// PatchStatus moves an order through the fulfillment machine.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid order id", nil)
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body", nil)
		return
	}
	target, ok := ParseStatus(payload.Status)
	if !ok || target == StatusSubmitted {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "unsupported target status", nil)
		return
	}
	current, err := h.Store.GetStatus(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if !CanTransition(current, target) {
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "transition not allowed", map[string]any{
			"from": current,
			"to":   target,
		})
		return
	}
	if err := h.Store.UpdateStatus(r.Context(), id, current, target); err != nil {
		common.WriteError(w, err)
		return
	}
	if obs.OrderStatusTransitions != nil {
		obs.OrderStatusTransitions.WithLabelValues(string(current), string(target)).Inc()
	}
	h.emit(r, id, target)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) emit(r *http.Request, id uuid.UUID, target Status) {
	if h.Bus == nil {
		return
	}
	topic := ""
	switch target {
	case StatusPaid:
		topic = events.TopicOrderPaid
	case StatusDelivered:
		topic = events.TopicOrderDelivered
	case StatusCanceled:
		topic = events.TopicOrderCanceled
	}
	if topic == "" {
		return
	}
	payload := map[string]any{
		"orderId": id.String(),
		"status":  string(target),
	}
	if _, err := h.Bus.Emit(r.Context(), topic, id, payload); err != nil {
		h.Log.Warn().Err(err).Str("order_id", id.String()).Str("topic", topic).Msg("emit status event")
	}
}
