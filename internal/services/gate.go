package services

import (
	"context"
	"log/slog"

	"github.com/docustore/userman/types"
)

// Gate resolves a presented credential to a live user record or fails
// closed. Every failure (bad signature, expiry, revocation, unknown
// subject, store trouble) collapses to the one opaque ErrNotAuthorized so
// nothing about account existence or token history leaks to the caller.
type Gate struct {
	users  UserRepository
	ledger CredentialLedger
	logger *slog.Logger
}

// NewGate constructs a Gate.
func NewGate(users UserRepository, ledger CredentialLedger, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{users: users, ledger: ledger, logger: logger}
}

// Resolve verifies the token against the ledger and loads the user record
// for its subject.
func (g *Gate) Resolve(ctx context.Context, tokenString string) (types.User, error) {
	subject, err := g.ledger.Verify(ctx, tokenString)
	if err != nil {
		g.logger.Debug("credential verification failed", "error", err)
		return types.User{}, ErrNotAuthorized
	}

	user, err := g.users.GetByUsername(ctx, subject)
	if err != nil {
		// Covers credentials whose subject no longer resolves to a user,
		// the second line of defense behind RevokeAllFor on deletion.
		g.logger.Debug("subject resolution failed", "subject", subject, "error", err)
		return types.User{}, ErrNotAuthorized
	}
	return user, nil
}
