package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/docustore/userman/types"
)

type contextKey string

const (
	contextUserKey  contextKey = "user"
	contextTokenKey contextKey = "token"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the uniform confirmation payload.
type MessageResponse struct {
	Message string `json:"message"`
}

func userFromContext(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok || user.Username == "" {
		return types.User{}, errors.New("missing user")
	}
	return user, nil
}

// presentedTokenFromContext returns the concrete bearer token carried by
// this request. Logout needs the actual presented value, not just the
// resolved identity.
func presentedTokenFromContext(ctx context.Context) (string, error) {
	token, ok := ctx.Value(contextTokenKey).(string)
	if !ok || token == "" {
		return "", errors.New("missing token")
	}
	return token, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "ok"})
}
