package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docustore/userman/internal/ledger"
	"github.com/docustore/userman/internal/recordstore"
	"github.com/docustore/userman/internal/services"
	"github.com/docustore/userman/internal/store"
	"github.com/docustore/userman/types"
	"github.com/go-chi/chi/v5"
)

// AuthHandler provides the credential lifecycle endpoints.
type AuthHandler struct {
	sessions *services.SessionService
	users    *services.UserService
	gate     *services.Gate
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(sessions *services.SessionService, users *services.UserService, gate *services.Gate) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		users:    users,
		gate:     gate,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, sessions *services.SessionService, users *services.UserService, gate *services.Gate) {
	handler := NewAuthHandler(sessions, users, gate)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.Group(func(r chi.Router) {
		r.Use(handler.RequireAuth)
		r.Post("/logout", handler.Logout)
		r.Get("/me", handler.Me)
		r.Put("/me", handler.UpdateMe)
		r.Get("/me/managed_users", handler.ManagedUsers)
		r.Put("/me/change_password", handler.ChangePassword)
		r.Delete("/me", handler.DeleteMe)
	})
}

// RequireAuth resolves the bearer credential through the gate and injects
// the user and the presented token into the request context. Every
// failure is one opaque 401.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := h.gate.Resolve(r.Context(), tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), contextUserKey, user)
		ctx = context.WithValue(ctx, contextTokenKey, tokenString)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.Register(r.Context(), services.NewUser{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "username or email already exists")
			return
		}
		if errors.Is(err, recordstore.ErrUnavailable) {
			writeError(w, http.StatusInternalServerError, "failed to register user")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message: "user registered successfully",
		User:    user,
	})
}

// Login verifies credentials and returns an access/refresh token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	pair, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "incorrect username or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Refresh mints a new access token from a refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing refresh token")
		return
	}

	access, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidCredential),
			errors.Is(err, ledger.ErrCredentialExpired),
			errors.Is(err, ledger.ErrCredentialNotFound):
			writeError(w, http.StatusUnauthorized, "could not validate refresh token")
		default:
			writeError(w, http.StatusInternalServerError, "failed to refresh token")
		}
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{
		AccessToken: access,
		TokenType:   "bearer",
	})
}

// Logout revokes the presented credential and, when the session's
// refresh token accompanies the request, that refresh credential too.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	presented, err := presentedTokenFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// The body is optional; an empty or absent body logs out only the
	// presented credential.
	var req LogoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.sessions.Logout(r.Context(), user.Username, presented, req.RefreshToken); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out successfully"})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateMe applies a partial profile update to the current user.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var updates recordstore.Record
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.users.UpdateProfile(r.Context(), user, updates); err != nil {
		if errors.Is(err, recordstore.ErrUnavailable) {
			writeError(w, http.StatusInternalServerError, "failed to update profile")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "profile updated successfully"})
}

// ManagedUsers lists the public profiles of the users the caller manages.
func (h *AuthHandler) ManagedUsers(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profiles, err := h.users.ManagedUsers(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list managed users")
		return
	}

	writeJSON(w, http.StatusOK, profiles)
}

// ChangePassword rotates the caller's password and revokes every
// previously issued credential.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req PasswordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Username != user.Username {
		writeError(w, http.StatusBadRequest, "username does not match")
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "new password is required")
		return
	}

	if err := h.sessions.ChangePassword(r.Context(), user.Username, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrIncorrectPassword) {
			writeError(w, http.StatusUnauthorized, "incorrect password")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to change password")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "password changed and all sessions revoked"})
}

// DeleteMe deletes the caller's account after identity confirmation.
func (h *AuthHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.sessions.DeleteAccount(r.Context(), user, req.Username, req.Email, req.Password); err != nil {
		switch {
		case errors.Is(err, services.ErrIdentityMismatch):
			writeError(w, http.StatusBadRequest, "username or email does not match")
		case errors.Is(err, services.ErrIncorrectPassword):
			writeError(w, http.StatusUnauthorized, "incorrect password")
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete account")
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "account deleted successfully"})
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Message string     `json:"message"`
	User    types.User `json:"user"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type PasswordChangeRequest struct {
	Username    string `json:"username"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type DeleteAccountRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
