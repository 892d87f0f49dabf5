package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/docustore/userman/internal/recordstore"
	"github.com/docustore/userman/internal/services"
	"github.com/docustore/userman/internal/store"
	"github.com/docustore/userman/internal/storetest"
	"github.com/docustore/userman/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeArchiver records archived schema documents.
type fakeArchiver struct {
	keys []string
	err  error
}

func (a *fakeArchiver) PutSchema(_ context.Context, username, db, collection, filename string, _ []byte) error {
	if a.err != nil {
		return a.err
	}
	a.keys = append(a.keys, fmt.Sprintf("%s/%s/%s/%s", username, db, collection, filename))
	return nil
}

type databaseHarness struct {
	databases *services.DatabaseService
	repo      *store.UserRepository
	archive   *fakeArchiver
	server    *storetest.Server
}

func newDatabaseHarness(t *testing.T) *databaseHarness {
	t.Helper()

	server := storetest.NewServer(t)
	client, err := recordstore.New(server.URL())
	require.NoError(t, err)
	t.Cleanup(client.Close)

	repo := store.NewUserRepository(client)
	archive := &fakeArchiver{}
	databases := services.NewDatabaseService(services.DatabaseConfig{
		Users:   repo,
		Admin:   client,
		Archive: archive,
		Host:    "dochost",
		Port:    27017,
	})

	return &databaseHarness{
		databases: databases,
		repo:      repo,
		archive:   archive,
		server:    server,
	}
}

func (h *databaseHarness) createUser(t *testing.T, username string) types.User {
	t.Helper()
	user, err := h.repo.Create(context.Background(), types.User{
		Username:       username,
		Email:          username + "@example.com",
		HashedPassword: "$2a$10$fakehash",
	})
	require.NoError(t, err)
	return user
}

func TestCreateDatabasePrefixesAndAttachesHandle(t *testing.T) {
	h := newDatabaseHarness(t)
	user := h.createUser(t, "alice")
	ctx := context.Background()

	handle, err := h.databases.Create(ctx, user, "notes")
	require.NoError(t, err)
	assert.Equal(t, "alice-notes", handle.Name)
	assert.Equal(t, "dochost", handle.Host)
	assert.Equal(t, 27017, handle.Port)

	assert.True(t, h.server.HasDatabase("alice-notes"))

	got, err := h.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got.Databases, 1)
	assert.Equal(t, handle, got.Databases[0])
}

func TestCreateDatabaseRequiresName(t *testing.T) {
	h := newDatabaseHarness(t)
	user := h.createUser(t, "alice")

	_, err := h.databases.Create(context.Background(), user, "   ")
	assert.Error(t, err)
}

func TestCreateDatabaseIsIdempotentPerHandle(t *testing.T) {
	h := newDatabaseHarness(t)
	user := h.createUser(t, "alice")
	ctx := context.Background()

	_, err := h.databases.Create(ctx, user, "notes")
	require.NoError(t, err)

	user, err = h.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)

	_, err = h.databases.Create(ctx, user, "notes")
	require.NoError(t, err)

	got, err := h.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, got.Databases, 1)
}

func TestCollectionOperationsRequireOwnership(t *testing.T) {
	h := newDatabaseHarness(t)
	alice := h.createUser(t, "alice")
	mallory := h.createUser(t, "mallory")
	ctx := context.Background()

	_, err := h.databases.Create(ctx, alice, "notes")
	require.NoError(t, err)
	alice, err = h.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)

	// The owner can manage collections.
	require.NoError(t, h.databases.CreateCollection(ctx, alice, "alice-notes", "entries"))
	collections, err := h.databases.ListCollections(ctx, alice, "alice-notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"entries"}, collections)

	// Anyone else is denied, even with the exact database name.
	err = h.databases.CreateCollection(ctx, mallory, "alice-notes", "stolen")
	assert.ErrorIs(t, err, services.ErrDatabaseForbidden)
	_, err = h.databases.ListCollections(ctx, mallory, "alice-notes")
	assert.ErrorIs(t, err, services.ErrDatabaseForbidden)
	err = h.databases.DropCollection(ctx, mallory, "alice-notes", "entries")
	assert.ErrorIs(t, err, services.ErrDatabaseForbidden)

	require.NoError(t, h.databases.DropCollection(ctx, alice, "alice-notes", "entries"))
	collections, err = h.databases.ListCollections(ctx, alice, "alice-notes")
	require.NoError(t, err)
	assert.Empty(t, collections)
}

func TestUploadSchemaValidatesAndArchives(t *testing.T) {
	h := newDatabaseHarness(t)
	alice := h.createUser(t, "alice")
	ctx := context.Background()

	_, err := h.databases.Create(ctx, alice, "notes")
	require.NoError(t, err)
	alice, err = h.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)

	valid := []byte("name: entry\nfields:\n  title:\n    type: string\n    required: true\n")

	err = h.databases.UploadSchema(ctx, alice, "alice-notes", "entries", []services.SchemaDocument{
		{Filename: "entry.yaml", Content: valid},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice/alice-notes/entries/entry.yaml"}, h.archive.keys)
}

func TestUploadSchemaRejectsWholeBatchOnInvalidDocument(t *testing.T) {
	h := newDatabaseHarness(t)
	alice := h.createUser(t, "alice")
	ctx := context.Background()

	_, err := h.databases.Create(ctx, alice, "notes")
	require.NoError(t, err)
	alice, err = h.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)

	valid := []byte("name: entry\nfields:\n  title:\n    type: string\n")
	invalid := []byte("fields:\n  x:\n    type: varchar\n")

	err = h.databases.UploadSchema(ctx, alice, "alice-notes", "entries", []services.SchemaDocument{
		{Filename: "entry.yaml", Content: valid},
		{Filename: "broken.yaml", Content: invalid},
	})
	assert.Error(t, err)
	assert.Empty(t, h.archive.keys)
}

func TestUploadSchemaRequiresOwnershipAndDocuments(t *testing.T) {
	h := newDatabaseHarness(t)
	alice := h.createUser(t, "alice")
	ctx := context.Background()

	err := h.databases.UploadSchema(ctx, alice, "alice-notes", "entries", []services.SchemaDocument{
		{Filename: "entry.yaml", Content: []byte("name: entry\nfields:\n  t:\n    type: string\n")},
	})
	assert.ErrorIs(t, err, services.ErrDatabaseForbidden)

	_, err = h.databases.Create(ctx, alice, "notes")
	require.NoError(t, err)
	alice, err = h.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)

	err = h.databases.UploadSchema(ctx, alice, "alice-notes", "entries", nil)
	assert.Error(t, err)
}

func TestArchiveFailureDoesNotFailUpload(t *testing.T) {
	h := newDatabaseHarness(t)
	alice := h.createUser(t, "alice")
	ctx := context.Background()

	_, err := h.databases.Create(ctx, alice, "notes")
	require.NoError(t, err)
	alice, err = h.repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)

	h.archive.err = fmt.Errorf("bucket unreachable")
	err = h.databases.UploadSchema(ctx, alice, "alice-notes", "entries", []services.SchemaDocument{
		{Filename: "entry.yaml", Content: []byte("name: entry\nfields:\n  t:\n    type: string\n")},
	})
	assert.NoError(t, err)
}
