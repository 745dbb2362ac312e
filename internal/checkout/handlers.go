package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ckmerch/backend-store/internal/common"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type submitRequest struct {
	Override     bool   `json:"override"`
	ContactName  string `json:"contactName" validate:"omitempty,max=120"`
	ContactPhone string `json:"contactPhone" validate:"omitempty,max=32"`
	Note         string `json:"note" validate:"omitempty,max=500"`
}

// Submit converts the caller's cart into an order.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := common.AccountID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "account identity required", nil)
		return
	}
	accountEmail, _ := common.AccountEmail(r.Context())

	var payload submitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body", nil)
			return
		}
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid checkout payload", err.Error())
			return
		}
	}

	result, err := h.Svc.Submit(r.Context(), SubmitInput{
		AccountID:    accountID,
		AccountEmail: accountEmail,
		Override:     payload.Override,
		ContactName:  payload.ContactName,
		ContactPhone: payload.ContactPhone,
		Note:         payload.Note,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": result})
}
