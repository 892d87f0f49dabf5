// Package events publishes account security events (password changed,
// account deleted, sessions revoked) to a message broker so downstream
// services can react to credential invalidation. Publication is strictly
// best-effort: a broker failure never fails the auth operation itself.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Kind labels an account security event.
type Kind string

const (
	PasswordChanged Kind = "password_changed"
	AccountDeleted  Kind = "account_deleted"
	SessionRevoked  Kind = "session_revoked"
)

// Event describes one account security event.
type Event struct {
	Kind     Kind      `json:"kind"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

// Backend defines the broker-agnostic operations used by the publisher.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Publisher emits account events on a fixed channel.
type Publisher struct {
	backend Backend
	channel string
}

// NewPublisher constructs a Publisher over the provided backend.
func NewPublisher(backend Backend, channel string) *Publisher {
	return &Publisher{backend: backend, channel: channel}
}

// Account publishes an account security event. The event timestamp is set
// to the current UTC time when zero.
func (p *Publisher) Account(ctx context.Context, event Event) error {
	if p == nil || p.backend == nil {
		return nil
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		"kind":     string(event.Kind),
		"username": event.Username,
	}
	_, err = p.backend.Publish(ctx, p.channel, data, attrs)
	return err
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	if p == nil || p.backend == nil {
		return nil
	}
	return p.backend.Close()
}
