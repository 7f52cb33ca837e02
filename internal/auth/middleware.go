package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/resumind/resumind/internal/core"
	"github.com/resumind/resumind/internal/logging"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// userContextKey is the context key for storing the authenticated user.
const userContextKey contextKey = "authUser"

// UserLoader is the slice of the store the middleware needs.
type UserLoader interface {
	UserByID(ctx context.Context, id int64) (*core.User, error)
}

// UserFrom retrieves the authenticated user from the request context.
// Returns nil if no user is set.
func UserFrom(ctx context.Context) *core.User {
	user, _ := ctx.Value(userContextKey).(*core.User)
	return user
}

// WithUser adds the authenticated user to the request context.
func WithUser(ctx context.Context, user *core.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// Middleware authenticates requests with a Bearer token. The verified
// user is loaded from the store and placed in the request context for
// handlers to fetch via UserFrom.
//
// Error responses:
//   - 401 Unauthorized: missing/invalid/expired token
//   - 401 Unauthorized: token subject no longer exists
func Middleware(issuer *TokenIssuer, users UserLoader, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "Invalid or expired token")
				return
			}

			userID, err := issuer.Verify(token)
			if err != nil {
				logger.Debug("auth middleware: token rejected",
					"path", r.URL.Path,
					"error", err,
				)
				unauthorized(w, "Invalid or expired token")
				return
			}

			user, err := users.UserByID(r.Context(), userID)
			if err != nil {
				logger.Warn("auth middleware: token subject not found",
					"user_id", userID,
					"path", r.URL.Path,
				)
				unauthorized(w, "User not found")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
