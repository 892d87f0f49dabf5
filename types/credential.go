package types

import "time"

// CredentialKind distinguishes the two classes of issued credentials.
type CredentialKind string

const (
	// AccessCredential is the short-lived credential presented per request.
	AccessCredential CredentialKind = "access_token"

	// RefreshCredential is the long-lived credential used to mint new
	// access credentials.
	RefreshCredential CredentialKind = "refresh_token"
)

// Credential is a ledger row recording one issued credential. A credential
// is live iff its row exists in the store and ExpiresAt is still in the
// future; deleting the row is the only revocation mechanism.
type Credential struct {
	// ID is the record identifier assigned by the store.
	ID string `json:"_id,omitempty"`

	// Username is the subject the credential was issued to.
	Username string `json:"username"`

	// Token is the opaque bearer string handed to the client.
	Token string `json:"token"`

	// Kind is either AccessCredential or RefreshCredential.
	Kind CredentialKind `json:"token_type"`

	// ExpiresAt is the absolute expiry in UTC.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the credential's stored expiry has passed at now.
func (c Credential) Expired(now time.Time) bool {
	return !now.UTC().Before(c.ExpiresAt)
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
