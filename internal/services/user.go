package services

import (
	"context"
	"errors"
	"strings"

	"github.com/docustore/userman/internal/recordstore"
	"github.com/docustore/userman/internal/store"
	"github.com/docustore/userman/types"
	"golang.org/x/crypto/bcrypt"
)

// NewUser carries the fields required to register an account.
type NewUser struct {
	Username string
	Email    string
	FullName string
	Password string
}

// UserService encapsulates registration and profile use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Register creates a new account. Username and email uniqueness is
// enforced by the repository at insert time; a duplicate surfaces as
// store.ErrDuplicate.
func (s *UserService) Register(ctx context.Context, req NewUser) (types.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return types.User{}, errors.New("username, email and password are required")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	return s.repo.Create(ctx, types.User{
		Username:       req.Username,
		Email:          req.Email,
		FullName:       strings.TrimSpace(req.FullName),
		HashedPassword: string(hashed),
	})
}

// Profile loads a user record by username.
func (s *UserService) Profile(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// UpdateProfile applies a partial profile update for the user. Identity
// and credential fields cannot be changed through this path.
func (s *UserService) UpdateProfile(ctx context.Context, user types.User, updates recordstore.Record) error {
	delete(updates, "username")
	delete(updates, "email")
	delete(updates, "databases")
	if len(updates) == 0 {
		return errors.New("no updatable fields provided")
	}
	return s.repo.UpdateProfile(ctx, user.ID, updates)
}

// ManagedUsers resolves the public profiles of every user the given user
// manages. Relations pointing at accounts that no longer exist are
// skipped rather than failing the whole listing.
func (s *UserService) ManagedUsers(ctx context.Context, user types.User) ([]types.PublicProfile, error) {
	profiles := make([]types.PublicProfile, 0, len(user.ManagedUsers))
	for _, relation := range user.ManagedUsers {
		managed, err := s.repo.GetByUsername(ctx, relation.Username)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		profiles = append(profiles, managed.Public())
	}
	return profiles, nil
}
