package recordstore_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docustore/userman/internal/recordstore"
	"github.com/docustore/userman/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*recordstore.Client, *storetest.Server) {
	t.Helper()
	server := storetest.NewServer(t)
	client, err := recordstore.New(server.URL())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, server
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := recordstore.New("")
	assert.Error(t, err)

	_, err = recordstore.New("   ")
	assert.Error(t, err)
}

func TestInsertAndFind(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.Insert(ctx, "users_collection", recordstore.Record{"username": "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	records, err := client.Find(ctx, "users_collection", recordstore.Filter{"username": "alice"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0]["username"])
	assert.Equal(t, id, records[0]["_id"])

	records, err = client.Find(ctx, "users_collection", recordstore.Filter{"username": "nobody"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUpdateReportsModifiedCount(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.Insert(ctx, "users_collection", recordstore.Record{"username": "alice"})
	require.NoError(t, err)

	modified, err := client.Update(ctx, "users_collection", id, recordstore.Record{"full_name": "Alice A."})
	require.NoError(t, err)
	assert.Equal(t, 1, modified)

	modified, err = client.Update(ctx, "users_collection", "missing-id", recordstore.Record{"full_name": "x"})
	require.NoError(t, err)
	assert.Equal(t, 0, modified)

	records, err := client.Find(ctx, "users_collection", recordstore.Filter{"username": "alice"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Alice A.", records[0]["full_name"])
}

func TestDeleteReportsDeletedCount(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.Insert(ctx, "users_collection", recordstore.Record{"username": "alice"})
	require.NoError(t, err)

	deleted, err := client.Delete(ctx, "users_collection", id)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = client.Delete(ctx, "users_collection", id)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestDeleteByFilter(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	for _, username := range []string{"alice", "alice", "bob"} {
		_, err := client.Insert(ctx, "tokens_collection", recordstore.Record{"username": username})
		require.NoError(t, err)
	}

	deleted, err := client.DeleteByFilter(ctx, "tokens_collection", recordstore.Filter{"username": "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	records, err := client.Find(ctx, "tokens_collection", recordstore.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "bob", records[0]["username"])
}

func TestDelegatedDatabaseAdministration(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateDatabase(ctx, "alice-notes", "localhost", 27017))
	assert.True(t, server.HasDatabase("alice-notes"))

	require.NoError(t, client.CreateCollection(ctx, "alice-notes", "entries"))
	collections, err := client.ListCollections(ctx, "alice-notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"entries"}, collections)

	require.NoError(t, client.DropCollection(ctx, "alice-notes", "entries"))
	collections, err = client.ListCollections(ctx, "alice-notes")
	require.NoError(t, err)
	assert.Empty(t, collections)
}

func TestUploadSchemaRequestShape(t *testing.T) {
	client, _ := newTestClient(t)

	err := client.UploadSchema(context.Background(), "alice-notes", "entries", []recordstore.SchemaFile{
		{Filename: "entry.yaml", Content: "name: entry"},
	})
	assert.NoError(t, err)
}

func TestErrorsWrapUnavailable(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		t.Cleanup(server.Close)

		client, err := recordstore.New(server.URL)
		require.NoError(t, err)

		_, err = client.Find(context.Background(), "users_collection", nil)
		assert.ErrorIs(t, err, recordstore.ErrUnavailable)
	})

	t.Run("connection refused", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		client, err := recordstore.New(url)
		require.NoError(t, err)

		_, err = client.Insert(context.Background(), "users_collection", recordstore.Record{"username": "alice"})
		assert.ErrorIs(t, err, recordstore.ErrUnavailable)
	})

	t.Run("malformed response body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		t.Cleanup(server.Close)

		client, err := recordstore.New(server.URL)
		require.NoError(t, err)

		_, err = client.Find(context.Background(), "users_collection", nil)
		assert.ErrorIs(t, err, recordstore.ErrUnavailable)
	})
}
