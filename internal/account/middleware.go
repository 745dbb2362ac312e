package account

import (
	"net/http"
	"strings"

	"github.com/ckmerch/backend-store/internal/common"
)

// Header names set by the school portal's authenticating proxy.
const (
	HeaderAccountID    = "X-Account-Id"
	HeaderAccountEmail = "X-Account-Email"
)

// Middleware extracts the caller identity from trusted proxy headers and
// stores it on the request context. Requests without an account id proceed
// anonymously; protected handlers reject them.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderAccountID))
		email := strings.TrimSpace(r.Header.Get(HeaderAccountEmail))
		if id != "" {
			r = r.WithContext(common.WithAccount(r.Context(), id, email))
		}
		next.ServeHTTP(w, r)
	})
}

// Allowlist gates requests on an email membership predicate, such as the
// staff roster or the full-waiver override list.
type Allowlist struct {
	Member func(email string) bool
}

// Allowed reports whether the email is on the list.
func (a Allowlist) Allowed(email string) bool {
	if a.Member == nil {
		return false
	}
	return a.Member(email)
}

// Require rejects requests whose account email is not on the list. It must
// run after Middleware so the identity is already on the context.
func (a Allowlist) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.AccountID(r.Context()); !ok {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "account identity required", nil)
			return
		}
		email, _ := common.AccountEmail(r.Context())
		if !a.Allowed(email) {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "staff access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAccount rejects requests lacking an account identity.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.AccountID(r.Context()); !ok {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "account identity required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
