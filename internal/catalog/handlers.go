package catalog

import (
	"net/http"

	"github.com/ckmerch/backend-store/internal/common"
)

// Handler serves the read-only catalog endpoints.
type Handler struct {
	Catalog *Catalog
}

// ListProducts returns every sellable item.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Catalog.Items()})
}

// ListCombos returns the active combo deals.
func (h *Handler) ListCombos(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Catalog.Combos()})
}
