package common

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteErrorSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("bad qty: %w", ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{ErrConflict, http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: status %d, want %d", tc.err, rec.Code, tc.status)
		}
		var body struct {
			Error ErrorBody `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error.Code != tc.code {
			t.Fatalf("%v: code %q, want %q", tc.err, body.Error.Code, tc.code)
		}
	}
}

func TestWriteErrorAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NewAppError("CART_EMPTY", "cart is empty", http.StatusConflict, nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409", rec.Code)
	}
}

func TestAccountContext(t *testing.T) {
	ctx := WithAccount(context.Background(), "acc-1", "buyer@example.com")
	if id, ok := AccountID(ctx); !ok || id != "acc-1" {
		t.Fatalf("AccountID = %q, %v", id, ok)
	}
	if email, ok := AccountEmail(ctx); !ok || email != "buyer@example.com" {
		t.Fatalf("AccountEmail = %q, %v", email, ok)
	}
	if _, ok := AccountID(context.Background()); ok {
		t.Fatal("expected missing account id")
	}
}
