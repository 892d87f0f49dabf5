package services_test

import (
	"context"
	"testing"

	"github.com/docustore/userman/internal/events"
	"github.com/docustore/userman/internal/ledger"
	"github.com/docustore/userman/internal/recordstore"
	"github.com/docustore/userman/internal/services"
	"github.com/docustore/userman/internal/store"
	"github.com/docustore/userman/internal/storetest"
	"github.com/docustore/userman/internal/token"
	"github.com/docustore/userman/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher captures published account events for assertions.
type recordingPublisher struct {
	published []events.Event
}

func (p *recordingPublisher) Account(_ context.Context, event events.Event) error {
	p.published = append(p.published, event)
	return nil
}

func (p *recordingPublisher) kinds() []events.Kind {
	kinds := make([]events.Kind, len(p.published))
	for i, event := range p.published {
		kinds[i] = event.Kind
	}
	return kinds
}

// harness wires the full credential stack against the in-memory store.
type harness struct {
	sessions *services.SessionService
	users    *services.UserService
	gate     *services.Gate
	ledger   *ledger.Ledger
	repo     *store.UserRepository
	events   *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	server := storetest.NewServer(t)
	client, err := recordstore.New(server.URL())
	require.NoError(t, err)
	t.Cleanup(client.Close)

	codec, err := token.NewCodec("session-test-secret")
	require.NoError(t, err)

	credentialLedger := ledger.New(codec, client)
	repo := store.NewUserRepository(client)
	publisher := &recordingPublisher{}

	sessions := services.NewSessionService(services.SessionConfig{
		Users:     repo,
		Ledger:    credentialLedger,
		Publisher: publisher,
	})

	return &harness{
		sessions: sessions,
		users:    services.NewUserService(repo),
		gate:     services.NewGate(repo, credentialLedger, nil),
		ledger:   credentialLedger,
		repo:     repo,
		events:   publisher,
	}
}

func (h *harness) register(t *testing.T, username, password string) types.User {
	t.Helper()
	user, err := h.users.Register(context.Background(), services.NewUser{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
	})
	require.NoError(t, err)
	return user
}

func (h *harness) login(t *testing.T, username, password string) types.TokenPair {
	t.Helper()
	pair, err := h.sessions.Login(context.Background(), username, password)
	require.NoError(t, err)
	return pair
}

func (h *harness) assertLive(t *testing.T, tokenString, subject string) {
	t.Helper()
	got, err := h.ledger.Verify(context.Background(), tokenString)
	require.NoError(t, err)
	assert.Equal(t, subject, got)
}

func (h *harness) assertRevoked(t *testing.T, tokenString string) {
	t.Helper()
	_, err := h.ledger.Verify(context.Background(), tokenString)
	assert.ErrorIs(t, err, ledger.ErrCredentialNotFound)
}

func TestLoginIssuesLivePair(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "s3cret")

	pair := h.login(t, "alice", "s3cret")
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)

	h.assertLive(t, pair.AccessToken, "alice")
	h.assertLive(t, pair.RefreshToken, "alice")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "s3cret")

	// Wrong password and unknown user are indistinguishable to the caller.
	_, err := h.sessions.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = h.sessions.Login(context.Background(), "nobody", "s3cret")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "s3cret")

	first := h.login(t, "alice", "s3cret")
	second := h.login(t, "alice", "s3cret")

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	h.assertLive(t, first.AccessToken, "alice")
	h.assertLive(t, first.RefreshToken, "alice")
	h.assertLive(t, second.AccessToken, "alice")
	h.assertLive(t, second.RefreshToken, "alice")
}

func TestRefreshMintsNewAccessWithoutRotation(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "s3cret")
	pair := h.login(t, "alice", "s3cret")
	ctx := context.Background()

	access2, err := h.sessions.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, access2)

	// Both access credentials stay live, and the refresh credential keeps
	// minting.
	h.assertLive(t, pair.AccessToken, "alice")
	h.assertLive(t, access2, "alice")

	access3, err := h.sessions.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, access2, access3)
	h.assertLive(t, access3, "alice")
}

func TestRefreshRejectsNonLedgeredToken(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "s3cret")
	pair := h.login(t, "alice", "s3cret")
	ctx := context.Background()

	require.NoError(t, h.ledger.Revoke(ctx, pair.RefreshToken))

	_, err := h.sessions.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ledger.ErrCredentialNotFound)

	_, err = h.sessions.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ledger.ErrInvalidCredential)
}

func TestLogoutRevokesOnlyPresentedCredential(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "s3cret")
	pair := h.login(t, "alice", "s3cret")
	ctx := context.Background()

	access2, err := h.sessions.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, h.sessions.Logout(ctx, "alice", access2, ""))

	// The presented access credential dies; the refresh credential that
	// minted it stays live and keeps minting.
	h.assertRevoked(t, access2)
	h.assertLive(t, pair.RefreshToken, "alice")

	access3, err := h.sessions.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	h.assertLive(t, access3, "alice")
}

func TestLogoutWithRefreshTokenEndsTheSession(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "s3cret")
	first := h.login(t, "alice", "s3cret")
	second := h.login(t, "alice", "s3cret")
	ctx := context.Background()

	require.NoError(t, h.sessions.Logout(ctx, "alice", first.AccessToken, first.RefreshToken))

	h.assertRevoked(t, first.AccessToken)
	h.assertRevoked(t, first.RefreshToken)

	// The other session is untouched.
	h.assertLive(t, second.AccessToken, "alice")
	h.assertLive(t, second.RefreshToken, "alice")

	assert.Equal(t, []events.Kind{events.SessionRevoked}, h.events.kinds())
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "s3cret")
	pair := h.login(t, "alice", "s3cret")
	ctx := context.Background()

	require.NoError(t, h.sessions.Logout(ctx, "alice", pair.AccessToken, pair.RefreshToken))
	require.NoError(t, h.sessions.Logout(ctx, "alice", pair.AccessToken, pair.RefreshToken))
}

func TestChangePasswordRevokesEverything(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "old-pass")
	first := h.login(t, "alice", "old-pass")
	second := h.login(t, "alice", "old-pass")
	ctx := context.Background()

	require.NoError(t, h.sessions.ChangePassword(ctx, "alice", "old-pass", "new-pass"))

	h.assertRevoked(t, first.AccessToken)
	h.assertRevoked(t, first.RefreshToken)
	h.assertRevoked(t, second.AccessToken)
	h.assertRevoked(t, second.RefreshToken)

	_, err := h.sessions.Login(ctx, "alice", "old-pass")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	pair := h.login(t, "alice", "new-pass")
	h.assertLive(t, pair.AccessToken, "alice")

	assert.Contains(t, h.events.kinds(), events.PasswordChanged)
}

func TestChangePasswordRejectsWrongOldPassword(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "s3cret")
	pair := h.login(t, "alice", "s3cret")
	ctx := context.Background()

	err := h.sessions.ChangePassword(ctx, "alice", "wrong", "new-pass")
	assert.ErrorIs(t, err, services.ErrIncorrectPassword)

	// Nothing was revoked.
	h.assertLive(t, pair.AccessToken, "alice")
	h.assertLive(t, pair.RefreshToken, "alice")
	assert.Empty(t, h.events.published)
}

func TestDeleteAccount(t *testing.T) {
	h := newHarness(t)
	user := h.register(t, "alice", "s3cret")
	pair := h.login(t, "alice", "s3cret")
	ctx := context.Background()

	caller, err := h.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, h.sessions.DeleteAccount(ctx, caller, "alice", "alice@example.com", "s3cret"))

	_, err = h.repo.GetByUsername(ctx, user.Username)
	assert.ErrorIs(t, err, store.ErrNotFound)
	h.assertRevoked(t, pair.AccessToken)
	h.assertRevoked(t, pair.RefreshToken)

	assert.Contains(t, h.events.kinds(), events.AccountDeleted)
}

func TestDeleteAccountRejectsMismatchedIdentity(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "s3cret")
	ctx := context.Background()

	caller, err := h.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)

	err = h.sessions.DeleteAccount(ctx, caller, "bob", "alice@example.com", "s3cret")
	assert.ErrorIs(t, err, services.ErrIdentityMismatch)

	err = h.sessions.DeleteAccount(ctx, caller, "alice", "other@example.com", "s3cret")
	assert.ErrorIs(t, err, services.ErrIdentityMismatch)

	err = h.sessions.DeleteAccount(ctx, caller, "alice", "alice@example.com", "wrong")
	assert.ErrorIs(t, err, services.ErrIncorrectPassword)

	_, err = h.repo.GetByUsername(ctx, "alice")
	assert.NoError(t, err)
}
