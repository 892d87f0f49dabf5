package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/docustore/userman/internal/recordstore"
	"github.com/docustore/userman/types"
)

// UsersCollection is the store collection holding user records.
const UsersCollection = "users_collection"

// RecordStore is the slice of the record-store client the repository uses.
type RecordStore interface {
	Find(ctx context.Context, collection string, filter recordstore.Filter) ([]recordstore.Record, error)
	Insert(ctx context.Context, collection string, record recordstore.Record) (string, error)
	Update(ctx context.Context, collection, id string, fields recordstore.Record) (int, error)
	Delete(ctx context.Context, collection, id string) (int, error)
}

// UserRepository handles persistence for users against the remote record
// store. Username and email uniqueness is enforced here, at write time, so
// lookups can assume at most one match.
type UserRepository struct {
	store RecordStore
}

func NewUserRepository(store RecordStore) *UserRepository {
	return &UserRepository{store: store}
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.findOne(ctx, recordstore.Filter{"username": username})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.findOne(ctx, recordstore.Filter{"email": email})
}

// Create inserts a new user record. It rejects the insert when the
// username or email is already taken.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := r.GetByUsername(ctx, user.Username); err == nil {
		return types.User{}, fmt.Errorf("username %q: %w", user.Username, ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return types.User{}, err
	}
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, fmt.Errorf("email %q: %w", user.Email, ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return types.User{}, err
	}

	record, err := encodeUser(user)
	if err != nil {
		return types.User{}, err
	}
	id, err := r.store.Insert(ctx, UsersCollection, record)
	if err != nil {
		return types.User{}, err
	}
	user.ID = id
	return user, nil
}

// UpdateProfile applies a partial update of profile fields. The verifier
// is never touched through this path.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, fields recordstore.Record) error {
	delete(fields, "hashed_password")
	delete(fields, "_id")
	return r.update(ctx, id, fields)
}

// UpdatePassword replaces the stored verifier.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, hashedPassword string) error {
	return r.update(ctx, id, recordstore.Record{"hashed_password": hashedPassword})
}

// UpdateDatabases replaces the user's delegated database handles.
func (r *UserRepository) UpdateDatabases(ctx context.Context, id string, handles []types.DatabaseHandle) error {
	return r.update(ctx, id, recordstore.Record{"databases": handles})
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	deleted, err := r.store.Delete(ctx, UsersCollection, id)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) update(ctx context.Context, id string, fields recordstore.Record) error {
	modified, err := r.store.Update(ctx, UsersCollection, id, fields)
	if err != nil {
		return err
	}
	if modified == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter recordstore.Filter) (types.User, error) {
	records, err := r.store.Find(ctx, UsersCollection, filter)
	if err != nil {
		return types.User{}, err
	}
	switch len(records) {
	case 0:
		return types.User{}, ErrNotFound
	case 1:
		return decodeUser(records[0])
	default:
		// Write-time uniqueness makes this unreachable unless the
		// collection was mutated out of band.
		return types.User{}, fmt.Errorf("%d records match %v: %w", len(records), filter, ErrDuplicate)
	}
}

// The verifier is excluded from the User JSON representation so it can
// never leak through an API response; persistence round-trips it
// explicitly instead.

func encodeUser(user types.User) (recordstore.Record, error) {
	record, err := recordstore.EncodeRecord(user)
	if err != nil {
		return nil, err
	}
	delete(record, "_id")
	record["hashed_password"] = user.HashedPassword
	return record, nil
}

func decodeUser(record recordstore.Record) (types.User, error) {
	var user types.User
	if err := recordstore.DecodeRecord(record, &user); err != nil {
		return types.User{}, err
	}
	if hash, ok := record["hashed_password"].(string); ok {
		user.HashedPassword = hash
	}
	return user, nil
}
