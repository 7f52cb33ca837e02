package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/resumind/resumind/internal/core"
	"github.com/resumind/resumind/internal/logging"
)

type fakeUserLoader struct {
	users map[int64]*core.User
}

func (f *fakeUserLoader) UserByID(_ context.Context, id int64) (*core.User, error) {
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return nil, core.ErrNotFound("user_not_found", "User not found")
}

func newAuthTestMux(t *testing.T) (*TokenIssuer, http.Handler) {
	t.Helper()
	issuer := NewTokenIssuer("test-secret", time.Hour)
	loader := &fakeUserLoader{users: map[int64]*core.User{
		7: {ID: 7, Email: "test@resume.ai"},
	}}

	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		user := UserFrom(r.Context())
		if user == nil {
			t.Error("handler reached without a user in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(user.Email))
	})
	return issuer, Middleware(issuer, loader, logging.NewNop())(mux)
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestMiddleware_AuthorizedRequest(t *testing.T) {
	t.Parallel()

	issuer, handler := newAuthTestMux(t)
	token, err := issuer.Issue(7)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "test@resume.ai" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestMiddleware_RejectsBadAuthorization(t *testing.T) {
	t.Parallel()

	_, handler := newAuthTestMux(t)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Token abc"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if got := errorBody(t, rec); got != "Invalid or expired token" {
				t.Fatalf("unexpected error message %q", got)
			}
		})
	}
}

func TestMiddleware_UnknownSubject(t *testing.T) {
	t.Parallel()

	issuer, handler := newAuthTestMux(t)
	token, err := issuer.Issue(999)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := errorBody(t, rec); got != "User not found" {
		t.Fatalf("unexpected error message %q", got)
	}
}

func TestUserFrom_EmptyContext(t *testing.T) {
	t.Parallel()

	if user := UserFrom(context.Background()); user != nil {
		t.Fatalf("expected nil user, got %#v", user)
	}

	want := &core.User{ID: 1}
	ctx := WithUser(context.Background(), want)
	if got := UserFrom(ctx); got != want {
		t.Fatalf("expected stored user back, got %#v", got)
	}
}
