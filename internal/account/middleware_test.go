package account

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ckmerch/backend-store/internal/common"
)

func TestMiddlewareInjectsIdentity(t *testing.T) {
	var gotID, gotEmail string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = common.AccountID(r.Context())
		gotEmail, _ = common.AccountEmail(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAccountID, "acc-42")
	req.Header.Set(HeaderAccountEmail, "buyer@school.edu")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotID != "acc-42" || gotEmail != "buyer@school.edu" {
		t.Fatalf("identity = %q / %q", gotID, gotEmail)
	}
}

func TestMiddlewareAnonymousPassthrough(t *testing.T) {
	handler := Middleware(RequireAccount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without identity")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAllowlist(t *testing.T) {
	list := Allowlist{Member: func(email string) bool { return email == "principal@school.edu" }}
	if !list.Allowed("principal@school.edu") {
		t.Fatal("expected principal to be allowed")
	}
	if list.Allowed("student@school.edu") {
		t.Fatal("student must not be allowed")
	}
	if (Allowlist{}).Allowed("principal@school.edu") {
		t.Fatal("nil predicate must deny")
	}
}

func TestAllowlistRequireBlocksNonMembers(t *testing.T) {
	staff := Allowlist{Member: func(email string) bool { return email == "organizer@school.edu" }}
	var reached bool
	handler := Middleware(staff.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	})))

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set(HeaderAccountID, "ordinary-student-42")
	req.Header.Set(HeaderAccountEmail, "student@school.edu")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if reached {
		t.Fatal("handler must not run for non-staff accounts")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestAllowlistRequireAdmitsMembers(t *testing.T) {
	staff := Allowlist{Member: func(email string) bool { return email == "organizer@school.edu" }}
	handler := Middleware(staff.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set(HeaderAccountID, "acc-7")
	req.Header.Set(HeaderAccountEmail, "organizer@school.edu")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestAllowlistRequireUnauthenticated(t *testing.T) {
	staff := Allowlist{Member: func(email string) bool { return true }}
	handler := Middleware(staff.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without identity")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
