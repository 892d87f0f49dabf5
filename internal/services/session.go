package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docustore/userman/internal/events"
	"github.com/docustore/userman/internal/recordstore"
	"github.com/docustore/userman/internal/store"
	"github.com/docustore/userman/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, id string, fields recordstore.Record) error
	UpdatePassword(ctx context.Context, id, hashedPassword string) error
	UpdateDatabases(ctx context.Context, id string, handles []types.DatabaseHandle) error
	Delete(ctx context.Context, id string) error
}

// CredentialLedger defines the credential lifecycle operations the
// authenticator composes.
type CredentialLedger interface {
	Issue(ctx context.Context, kind types.CredentialKind, username string, ttl time.Duration) (string, error)
	Verify(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllFor(ctx context.Context, username string) error
}

// EventPublisher emits account security events, best-effort.
type EventPublisher interface {
	Account(ctx context.Context, event events.Event) error
}

// SessionService orchestrates login, refresh, logout, password change and
// account deletion against the ledger and the user record.
type SessionService struct {
	users      UserRepository
	ledger     CredentialLedger
	publisher  EventPublisher
	logger     *slog.Logger
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// SessionConfig bundles the authenticator's dependencies.
type SessionConfig struct {
	Users      UserRepository
	Ledger     CredentialLedger
	Publisher  EventPublisher
	Logger     *slog.Logger
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// NewSessionService constructs a SessionService.
func NewSessionService(cfg SessionConfig) *SessionService {
	s := &SessionService{
		users:      cfg.Users,
		ledger:     cfg.Ledger,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.accessTTL <= 0 {
		s.accessTTL = defaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = defaultRefreshTTL
	}
	return s
}

// Login verifies a username/password pair and issues an access/refresh
// credential pair. Concurrent logins for the same user each mint
// independent, simultaneously valid pairs.
func (s *SessionService) Login(ctx context.Context, username, password string) (types.TokenPair, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.TokenPair{}, ErrInvalidCredentials
		}
		return types.TokenPair{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) != nil {
		return types.TokenPair{}, ErrInvalidCredentials
	}

	access, err := s.ledger.Issue(ctx, types.AccessCredential, user.Username, s.accessTTL)
	if err != nil {
		return types.TokenPair{}, err
	}
	refresh, err := s.ledger.Issue(ctx, types.RefreshCredential, user.Username, s.refreshTTL)
	if err != nil {
		// The access credential is already on the ledger; take it back
		// off so the failed login leaves nothing live.
		if revokeErr := s.ledger.Revoke(ctx, access); revokeErr != nil {
			s.logger.Warn("failed to revoke access credential after partial login",
				"username", user.Username, "error", revokeErr)
		}
		return types.TokenPair{}, err
	}

	return types.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

// Refresh mints a new access credential for the subject of a valid
// refresh credential. The refresh credential itself is not rotated or
// revoked; it keeps minting access credentials until it expires or is
// explicitly revoked.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	subject, err := s.ledger.Verify(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	return s.ledger.Issue(ctx, types.AccessCredential, subject, s.accessTTL)
}

// Logout revokes the concrete credential presented with this request and,
// independently, the session's refresh credential when the caller supplies
// it. Both revocations are attempted; a failure on one does not roll back
// the other. Credentials belonging to the subject's other sessions are
// left untouched: this is a bilateral revoke, not a full-session wipe.
func (s *SessionService) Logout(ctx context.Context, subject, presentedToken, refreshToken string) error {
	var errs []error

	if err := s.ledger.Revoke(ctx, presentedToken); err != nil {
		errs = append(errs, fmt.Errorf("revoke presented credential: %w", err))
	}

	if refreshToken != "" && refreshToken != presentedToken {
		if err := s.ledger.Revoke(ctx, refreshToken); err != nil {
			errs = append(errs, fmt.Errorf("revoke refresh credential: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.publish(ctx, events.SessionRevoked, subject)
	return nil
}

// ChangePassword verifies the old password, writes the new verifier and
// then revokes every credential previously issued to the subject, so no
// session survives on the old password.
func (s *SessionService) ChangePassword(ctx context.Context, subject, oldPassword, newPassword string) error {
	user, err := s.users.GetByUsername(ctx, subject)
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(oldPassword)) != nil {
		return ErrIncorrectPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hashed)); err != nil {
		return err
	}

	if err := s.ledger.RevokeAllFor(ctx, user.Username); err != nil {
		return err
	}

	s.publish(ctx, events.PasswordChanged, user.Username)
	return nil
}

// DeleteAccount removes the caller's user record after re-confirming
// identity and password, then revokes every credential issued to it. The
// gate independently treats credentials of a deleted subject as invalid.
func (s *SessionService) DeleteAccount(ctx context.Context, caller types.User, username, email, password string) error {
	if caller.Username != username || caller.Email != email {
		return ErrIdentityMismatch
	}
	if bcrypt.CompareHashAndPassword([]byte(caller.HashedPassword), []byte(password)) != nil {
		return ErrIncorrectPassword
	}

	if err := s.users.Delete(ctx, caller.ID); err != nil {
		return err
	}

	if err := s.ledger.RevokeAllFor(ctx, caller.Username); err != nil {
		return err
	}

	s.publish(ctx, events.AccountDeleted, caller.Username)
	return nil
}

func (s *SessionService) publish(ctx context.Context, kind events.Kind, username string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Account(ctx, events.Event{Kind: kind, Username: username}); err != nil {
		s.logger.Warn("failed to publish account event",
			"kind", string(kind), "username", username, "error", err)
	}
}
