package order

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/events"
)

// BuyerStore is the slice of order persistence the buyer handlers need.
type BuyerStore interface {
	GetForAccount(ctx context.Context, id uuid.UUID, accountID string) (Order, error)
	ListForAccount(ctx context.Context, accountID string, limit, offset int) ([]Order, error)
	CountForAccount(ctx context.Context, accountID string) (int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error
}

// Handler serves buyer-facing order endpoints.
type Handler struct {
	Store BuyerStore
	Bus   *events.Bus
	Log   zerolog.Logger
}

// List returns the caller's orders, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := common.AccountID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "account identity required", nil)
		return
	}
	pg := common.ParsePagination(r, 20, 100)
	total, err := h.Store.CountForAccount(r.Context(), accountID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	orders, err := h.Store.ListForAccount(r.Context(), accountID, pg.PerPage, pg.Offset())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	pg.TotalItems = int(total)
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": pg,
	})
}

// Get returns a single order owned by the caller.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := common.AccountID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "account identity required", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid order id", nil)
		return
	}
	ord, err := h.Store.GetForAccount(r.Context(), id, accountID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ord})
}

// Cancel lets a buyer withdraw an order that has not been paid yet.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	accountID, ok := common.AccountID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "account identity required", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid order id", nil)
		return
	}
	ord, err := h.Store.GetForAccount(r.Context(), id, accountID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if ord.Status != StatusSubmitted {
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "only submitted orders can be canceled", nil)
		return
	}
	if err := h.Store.UpdateStatus(r.Context(), id, StatusSubmitted, StatusCanceled); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Bus != nil {
		if _, err := h.Bus.Emit(r.Context(), events.TopicOrderCanceled, id, map[string]any{
			"orderId":   id.String(),
			"accountId": accountID,
		}); err != nil {
			h.Log.Warn().Err(err).Str("order_id", id.String()).Msg("emit order.canceled")
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": StatusCanceled}})
}
