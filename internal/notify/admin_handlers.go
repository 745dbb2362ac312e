package notify

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/events"
)

// AdminHandler manages webhook endpoint registrations.
// DefaultSecret is used for endpoints registered without their own secret.
type AdminHandler struct {
	Store         Store
	DefaultSecret string
}

type endpointRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Topics []string `json:"topics"`
	Active *bool    `json:"active"`
}

func (p endpointRequest) validate() (endpointRequest, string) {
	p.URL = strings.TrimSpace(p.URL)
	if p.URL == "" {
		return p, "url is required"
	}
	if err := validateURL(p.URL); err != nil {
		return p, err.Error()
	}
	if len(p.Topics) == 0 {
		return p, "at least one topic is required"
	}
	known := make(map[string]bool)
	for _, t := range events.DefaultTopics() {
		known[t] = true
	}
	for _, t := range p.Topics {
		if !known[t] {
			return p, "unknown topic: " + t
		}
	}
	return p, ""
}

// Create registers a webhook endpoint.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body", nil)
		return
	}
	payload, msg := payload.validate()
	if msg != "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", msg, nil)
		return
	}
	if strings.TrimSpace(payload.Secret) == "" {
		payload.Secret = h.DefaultSecret
	}
	if strings.TrimSpace(payload.Secret) == "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "secret is required", nil)
		return
	}
	ep, err := h.Store.CreateEndpoint(r.Context(), payload.URL, payload.Secret, payload.Topics)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": ep})
}

// List returns all registered endpoints.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	eps, err := h.Store.ListEndpoints(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": eps})
}

// Update changes an endpoint's URL, topics or active flag.
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "endpointId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid endpoint id", nil)
		return
	}
	current, err := h.Store.GetEndpoint(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var payload endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body", nil)
		return
	}
	if strings.TrimSpace(payload.URL) != "" {
		current.URL = strings.TrimSpace(payload.URL)
	}
	if len(payload.Topics) > 0 {
		current.Topics = payload.Topics
	}
	if payload.Active != nil {
		current.Active = *payload.Active
	}
	check := endpointRequest{URL: current.URL, Secret: "-", Topics: current.Topics}
	if _, msg := check.validate(); msg != "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", msg, nil)
		return
	}
	updated, err := h.Store.UpdateEndpoint(r.Context(), current)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// Delete removes an endpoint.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "endpointId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid endpoint id", nil)
		return
	}
	if err := h.Store.DeleteEndpoint(r.Context(), id); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDeliveries returns recent deliveries for one endpoint.
func (h *AdminHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "endpointId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid endpoint id", nil)
		return
	}
	pg := common.ParsePagination(r, 50, 200)
	deliveries, err := h.Store.ListDeliveries(r.Context(), id, pg.PerPage, pg.Offset())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": deliveries})
}
