package cart

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/obs"
)

// Handler wires the cart service to HTTP.
type Handler struct {
	Svc *Service
}

// Get returns the cart with a live quote.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := common.AccountID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "account identity required", nil)
		return
	}
	view, err := h.Svc.Get(r.Context(), accountID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if obs.QuotesComputedTotal != nil {
		obs.QuotesComputedTotal.WithLabelValues("cart_view").Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// AddItem appends or merges a cart line.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	accountID, ok := common.AccountID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "account identity required", nil)
		return
	}
	var payload struct {
		SKU string `json:"sku"`
		Qty int    `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body", nil)
		return
	}
	view, err := h.Svc.AddItem(r.Context(), accountID, payload.SKU, payload.Qty)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// SetQty updates the quantity on an existing line; zero removes it.
func (h *Handler) SetQty(w http.ResponseWriter, r *http.Request) {
	accountID, ok := common.AccountID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "account identity required", nil)
		return
	}
	sku := chi.URLParam(r, "sku")
	var payload struct {
		Qty int `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body", nil)
		return
	}
	view, err := h.Svc.SetQty(r.Context(), accountID, sku, payload.Qty)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// RemoveItem deletes a cart line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	accountID, ok := common.AccountID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "account identity required", nil)
		return
	}
	sku := chi.URLParam(r, "sku")
	view, err := h.Svc.RemoveItem(r.Context(), accountID, sku)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	accountID, ok := common.AccountID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "account identity required", nil)
		return
	}
	if err := h.Svc.Clear(r.Context(), accountID); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
