package audit

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/obs"
)

// Recorder writes an audit entry once a staff mutation has been handled.
// Recording happens after the response so a slow insert never delays the
// caller, and a failed insert never fails the mutation.
type Recorder struct {
	Service   *Service
	OnError   func(error)
	ActorFunc func(*http.Request) Actor
}

// RouteConfig shapes the entry recorded for one admin route.
type RouteConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
	MetadataFunc    func(*http.Request, int) map[string]any
	ActorFunc       func(*http.Request) Actor
}

// Middleware returns a chi middleware recording one entry per request.
func (rec Recorder) Middleware(cfg RouteConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if rec.Service == nil || !rec.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}

			sr := obs.NewStatusRecorder(w)
			next.ServeHTTP(sr, req)

			actor := rec.actor(req)
			if cfg.ActorFunc != nil {
				actor = cfg.ActorFunc(req)
			}
			resourceID := ""
			if cfg.ResourceIDParam != "" {
				resourceID = chi.URLParam(req, cfg.ResourceIDParam)
			}
			var metadata []byte
			if cfg.MetadataFunc != nil {
				if payload := cfg.MetadataFunc(req, sr.Status()); payload != nil {
					if data, err := json.Marshal(payload); err == nil {
						metadata = data
					}
				}
			}

			err := rec.Service.Record(req.Context(), actor, cfg.Action, cfg.ResourceType, resourceID, req, sr.Status(), metadata)
			if err != nil && rec.OnError != nil {
				rec.OnError(err)
			}
		})
	}
}

func (rec Recorder) actor(req *http.Request) Actor {
	if rec.ActorFunc != nil {
		return rec.ActorFunc(req)
	}
	if req == nil {
		return Actor{Kind: ActorKindAnonymous}
	}
	if accountID, ok := common.AccountID(req.Context()); ok && accountID != "" {
		return Actor{Kind: ActorKindAccount, AccountID: &accountID}
	}
	return Actor{Kind: ActorKindAnonymous}
}
