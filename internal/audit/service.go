package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/obs"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	// ActorKindAccount represents an identified storefront account.
	ActorKindAccount ActorKind = "account"
	// ActorKindSystem represents internal automated actions.
	ActorKindSystem ActorKind = "system"
	// ActorKindAnonymous represents unauthenticated actors.
	ActorKindAnonymous ActorKind = "anonymous"
)

// Actor describes the entity performing the action.
type Actor struct {
	Kind      ActorKind
	AccountID *string
}

// Entry is one recorded admin or system action.
type Entry struct {
	ID             uuid.UUID       `json:"id"`
	ActorKind      string          `json:"actorKind"`
	ActorAccountID *string         `json:"actorAccountId,omitempty"`
	Action         string          `json:"action"`
	ResourceType   string          `json:"resourceType"`
	ResourceID     *string         `json:"resourceId,omitempty"`
	Method         string          `json:"method"`
	Path           string          `json:"path"`
	Route          *string         `json:"route,omitempty"`
	Status         int             `json:"status"`
	IP             *string         `json:"ip,omitempty"`
	UserAgent      *string         `json:"userAgent,omitempty"`
	RequestID      *string         `json:"requestId,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Store defines the database operations required for auditing.
type Store interface {
	InsertEntry(ctx context.Context, entry Entry) error
	ListEntries(ctx context.Context, limit, offset int) ([]Entry, error)
}

// Service persists audit logs for critical application flows.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
}

// Record persists an audit log entry when auditing is enabled.
func (s Service) Record(ctx context.Context, actor Actor, action, resourceType, resourceID string, req *http.Request, status int, metadata []byte) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 {
		if rand.Float64() > s.SamplingRate {
			return nil
		}
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	method := req.Method
	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}

	finalStatus := status
	if finalStatus == 0 {
		finalStatus = http.StatusOK
	}

	entry := Entry{
		ID:             uuid.New(),
		ActorKind:      string(normalizeActorKind(actor.Kind)),
		ActorAccountID: sanitizeString(actor.AccountID),
		Action:         buildAction(action, method, route),
		ResourceType:   buildResource(resourceType, route),
		ResourceID:     sanitizeString(pointerOf(resourceID)),
		Method:         method,
		Path:           req.URL.Path,
		Route:          pointerOf(route),
		Status:         finalStatus,
		IP:             sanitizeString(pointerOf(common.ClientIP(req))),
		UserAgent:      sanitizeString(pointerOf(req.Header.Get("User-Agent"))),
		RequestID:      sanitizeString(pointerOf(req.Header.Get("X-Request-ID"))),
		Metadata:       toJSONB(metadata, req.URL.RawQuery),
	}
	return s.Store.InsertEntry(ctx, entry)
}

func buildAction(action, method, route string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed != "" {
		return trimmed
	}
	base := strings.ToUpper(strings.TrimSpace(method))
	target := route
	if target == "" {
		target = "/"
	}
	return base + " " + target
}

func buildResource(resourceType, route string) string {
	trimmed := strings.TrimSpace(resourceType)
	if trimmed != "" {
		return trimmed
	}
	route = strings.Trim(route, " ")
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		return strings.Join(segments[2:], ".")
	}
	return strings.ReplaceAll(strings.Trim(route, "/"), "/", ".")
}

func normalizeActorKind(kind ActorKind) ActorKind {
	switch kind {
	case ActorKindAccount, ActorKindSystem:
		return kind
	default:
		return ActorKindAnonymous
	}
}

func sanitizeString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func pointerOf(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(value)
	return &trimmed
}

func toJSONB(metadata []byte, query string) []byte {
	if len(metadata) > 0 {
		return metadata
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}
	payload := map[string]string{"query": query}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
