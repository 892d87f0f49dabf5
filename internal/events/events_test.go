package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
	err     error
	closed  bool
}

func (b *fakeBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.channel = channel
	b.data = data
	b.attrs = attrs
	return "msg-1", nil
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

func TestAccountPublishesEventWithAttributes(t *testing.T) {
	backend := &fakeBackend{}
	p := NewPublisher(backend, "account-events")

	err := p.Account(context.Background(), Event{Kind: PasswordChanged, Username: "alice"})
	require.NoError(t, err)

	assert.Equal(t, "account-events", backend.channel)
	assert.Equal(t, map[string]string{
		"kind":     "password_changed",
		"username": "alice",
	}, backend.attrs)

	var published Event
	require.NoError(t, json.Unmarshal(backend.data, &published))
	assert.Equal(t, PasswordChanged, published.Kind)
	assert.Equal(t, "alice", published.Username)
	assert.False(t, published.At.IsZero())
}

func TestAccountPropagatesBackendError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("broker down")}
	p := NewPublisher(backend, "account-events")

	err := p.Account(context.Background(), Event{Kind: AccountDeleted, Username: "alice"})
	assert.Error(t, err)
}

func TestNilBackendIsSilentlyDisabled(t *testing.T) {
	p := NewPublisher(nil, "account-events")

	assert.NoError(t, p.Account(context.Background(), Event{Kind: SessionRevoked, Username: "alice"}))
	assert.NoError(t, p.Close())

	var none *Publisher
	assert.NoError(t, none.Account(context.Background(), Event{}))
	assert.NoError(t, none.Close())
}

func TestCloseClosesBackend(t *testing.T) {
	backend := &fakeBackend{}
	p := NewPublisher(backend, "account-events")

	require.NoError(t, p.Close())
	assert.True(t, backend.closed)
}
