package api

import (
	"context"
	"net/http"

	"github.com/resumind/resumind/internal/auth"
	"github.com/resumind/resumind/internal/core"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type loginResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	User        userDTO `json:"user"`
}

func toUserDTO(user *core.User) userDTO {
	return userDTO{ID: user.ID, Email: user.Email, Name: user.Name}
}

// handleLogin exchanges credentials for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.respondDomainError(w, r, core.ErrValidation("missing_credentials", "Email and password are required"))
		return
	}

	user, err := s.authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		s.respondDomainError(w, r, core.ErrInternal("token_issue", "Failed to issue token").WithCause(err))
		return
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	respondJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        toUserDTO(user),
	})
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toUserDTO(auth.UserFrom(r.Context())))
}

// authenticate resolves credentials to a user. The configured test
// account is recognized before any lookup and never checked against a
// stored hash; everyone else must match their bcrypt hash.
func (s *Server) authenticate(ctx context.Context, email, password string) (*core.User, error) {
	if s.settings.TestEmail != "" && email == s.settings.TestEmail && password == s.settings.TestPassword {
		return s.testUser(ctx)
	}

	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if core.CategoryOf(err) == core.ErrCatNotFound {
			return nil, core.ErrAuth("invalid_credentials", "Invalid email or password")
		}
		return nil, err
	}
	if !auth.CheckPassword(password, user.HashedPassword) {
		return nil, core.ErrAuth("invalid_credentials", "Invalid email or password")
	}
	return user, nil
}

// testUser finds or creates the built-in demo account.
func (s *Server) testUser(ctx context.Context) (*core.User, error) {
	user, err := s.store.UserByEmail(ctx, s.settings.TestEmail)
	if err == nil {
		return user, nil
	}
	if core.CategoryOf(err) != core.ErrCatNotFound {
		return nil, err
	}

	hashed, err := auth.HashPassword(s.settings.TestPassword)
	if err != nil {
		return nil, core.ErrInternal("hash_password", "Failed to create test account").WithCause(err)
	}
	user, err = s.store.CreateUser(ctx, s.settings.TestEmail, hashed, "Test User")
	if err != nil && core.CategoryOf(err) == core.ErrCatConflict {
		// Lost a create race; the account exists now.
		return s.store.UserByEmail(ctx, s.settings.TestEmail)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("test account created", "user_id", user.ID)
	return user, nil
}
