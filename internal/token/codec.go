// Package token implements the credential codec: a purely local,
// keyed-signature encoding of a subject and absolute expiry into an opaque
// bearer string. It performs no I/O; ledger presence is checked elsewhere.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidSignature is returned when a token's signature does not
	// verify or its structure is malformed.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrExpired is returned when the expiry embedded in the token has
	// passed.
	ErrExpired = errors.New("token expired")
)

// Claims is the signed payload bound into every credential.
type Claims struct {
	// Subject is the username the credential was issued to.
	Subject string

	// ExpiresAt is the absolute expiry in UTC.
	ExpiresAt time.Time
}

// Codec signs and verifies credentials with an HMAC secret.
type Codec struct {
	secret []byte
}

// NewCodec constructs a Codec. The secret must be non-empty.
func NewCodec(secret string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Encode signs subject and expiry into a bearer token. Tampering with
// either field invalidates the signature.
func (c *Codec) Encode(subject string, ttl time.Duration) (string, Claims, error) {
	if strings.TrimSpace(subject) == "" {
		return "", Claims{}, errors.New("subject is required")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	// The random ID keeps credentials issued within the same second
	// distinct; timestamps alone have second precision.
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", Claims{}, err
	}
	registered := jwt.RegisteredClaims{
		ID:        hex.EncodeToString(nonce),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, registered).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, Claims{Subject: subject, ExpiresAt: expiresAt}, nil
}

// Decode verifies the token signature and returns the embedded claims.
// It fails with ErrInvalidSignature on a bad signature or signing method,
// and ErrExpired when the embedded expiry has passed.
func (c *Codec) Decode(tokenString string) (Claims, error) {
	registered := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, &registered, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalidSignature
	}
	if !parsed.Valid || strings.TrimSpace(registered.Subject) == "" {
		return Claims{}, ErrInvalidSignature
	}

	claims := Claims{Subject: registered.Subject}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time.UTC()
	}
	return claims, nil
}
