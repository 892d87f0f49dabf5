package types

// Permission is a single permission code attached to a user relation.
type Permission struct {
	// Code uniquely identifies the permission (e.g. "read_access").
	Code string `json:"code"`

	// Description is an optional human-readable explanation.
	Description string `json:"description,omitempty"`
}

// UserRelation links two users in a manager/managed relationship,
// together with the permissions granted along that edge.
type UserRelation struct {
	Username    string       `json:"username"`
	Email       string       `json:"email"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// DatabaseHandle describes a delegated database created on behalf of a user
// at the remote document-storage service.
type DatabaseHandle struct {
	Name string `json:"db_name"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// User represents an account in the system as persisted in the
// users collection of the record store.
type User struct {
	// ID is the record identifier assigned by the store.
	ID string `json:"_id,omitempty"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username"`

	// Email is the user's email address, unique across accounts.
	Email string `json:"email"`

	// FullName is the user's display name.
	FullName string `json:"full_name,omitempty"`

	// Disabled marks an account that may no longer authenticate.
	Disabled bool `json:"disabled,omitempty"`

	// HashedPassword stores the bcrypt verifier of the user's password.
	// This field is never exposed in API responses.
	HashedPassword string `json:"-"`

	// Databases lists the delegated databases created by this user.
	Databases []DatabaseHandle `json:"databases,omitempty"`

	// ManagedUsers lists the users this account manages.
	ManagedUsers []UserRelation `json:"managed_users,omitempty"`

	// ManagerUsers lists the accounts that manage this user.
	ManagerUsers []UserRelation `json:"manager_users,omitempty"`
}

// PublicProfile is the subset of a user record visible to managers.
type PublicProfile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// Public returns the manager-visible view of the user.
func (u User) Public() PublicProfile {
	return PublicProfile{
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
	}
}
