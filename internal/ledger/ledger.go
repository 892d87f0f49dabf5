// Package ledger tracks the validity of every issued credential in the
// remote record store. A credential is live iff its row exists and its
// stored expiry has not passed; deleting the row is the only revocation
// mechanism.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docustore/userman/internal/recordstore"
	"github.com/docustore/userman/internal/token"
	"github.com/docustore/userman/types"
)

// TokensCollection is the store collection holding credential records.
const TokensCollection = "tokens_collection"

var (
	// ErrInvalidCredential is returned when the token signature does not
	// verify; no network round trip is made in that case.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrCredentialNotFound is returned when no ledger row matches the
	// token, i.e. it was never issued or has been revoked.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialExpired is returned when the credential's expiry has
	// passed, regardless of ledger presence.
	ErrCredentialExpired = errors.New("credential expired")
)

// Store is the slice of the record-store client the ledger depends on.
type Store interface {
	Find(ctx context.Context, collection string, filter recordstore.Filter) ([]recordstore.Record, error)
	Insert(ctx context.Context, collection string, record recordstore.Record) (string, error)
	DeleteByFilter(ctx context.Context, collection string, filter recordstore.Filter) (int, error)
}

// Ledger issues, verifies and revokes credentials against the store.
type Ledger struct {
	codec *token.Codec
	store Store
	now   func() time.Time
}

// New constructs a Ledger over the given codec and store.
func New(codec *token.Codec, store Store) *Ledger {
	return &Ledger{
		codec: codec,
		store: store,
		now:   time.Now,
	}
}

// Issue signs a credential for username and records it in the ledger.
// The token is returned only after the write succeeds: a token without a
// matching ledger row could never be revoked.
func (l *Ledger) Issue(ctx context.Context, kind types.CredentialKind, username string, ttl time.Duration) (string, error) {
	signed, claims, err := l.codec.Encode(username, ttl)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}

	record := recordstore.Record{
		"username":   username,
		"token":      signed,
		"token_type": string(kind),
		"expires_at": claims.ExpiresAt.Format(time.RFC3339Nano),
	}
	if _, err := l.store.Insert(ctx, TokensCollection, record); err != nil {
		return "", fmt.Errorf("record credential: %w", err)
	}
	return signed, nil
}

// Verify checks a presented token and returns the subject it was issued
// to. The signature is checked first, locally; only then is the ledger
// consulted. Ledger presence is what authorizes use: a structurally
// valid token that has been revoked fails with ErrCredentialNotFound.
func (l *Ledger) Verify(ctx context.Context, tokenString string) (string, error) {
	claims, err := l.codec.Decode(tokenString)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return "", ErrCredentialExpired
		}
		return "", ErrInvalidCredential
	}

	records, err := l.store.Find(ctx, TokensCollection, recordstore.Filter{"token": tokenString})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", ErrCredentialNotFound
	}

	var cred types.Credential
	if err := recordstore.DecodeRecord(records[0], &cred); err != nil {
		return "", fmt.Errorf("decode credential record: %w", err)
	}
	if cred.Expired(l.now()) {
		return "", ErrCredentialExpired
	}
	return claims.Subject, nil
}

// Revoke deletes the ledger row for the token. Revoking a token that was
// never issued, or revoking twice, is a no-op.
func (l *Ledger) Revoke(ctx context.Context, tokenString string) error {
	_, err := l.store.DeleteByFilter(ctx, TokensCollection, recordstore.Filter{"token": tokenString})
	return err
}

// RevokeAllFor deletes every credential issued to username. Any surviving
// credential after this call is a security defect, so a failed deletion is
// reported; already-deleted rows stay deleted.
func (l *Ledger) RevokeAllFor(ctx context.Context, username string) error {
	_, err := l.store.DeleteByFilter(ctx, TokensCollection, recordstore.Filter{"username": username})
	if err != nil {
		return fmt.Errorf("revoke credentials for %q: %w", username, err)
	}
	return nil
}
