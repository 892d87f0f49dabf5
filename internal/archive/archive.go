// Package archive keeps a copy of every accepted schema document in object
// storage, keyed by owner, database and collection, so uploaded schemas can
// be audited after the store service has consumed them.
package archive

import (
	"bytes"
	"context"
	"io"
	"path"
)

const schemaContentType = "application/yaml"

// Backend defines common object operations across storage backends.
type Backend interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// SchemaArchive stores uploaded schema documents on a Backend.
type SchemaArchive struct {
	backend Backend
}

// New constructs a SchemaArchive over the provided backend.
func New(backend Backend) *SchemaArchive {
	return &SchemaArchive{backend: backend}
}

// EnsureBucket ensures the archive bucket exists.
func (a *SchemaArchive) EnsureBucket(ctx context.Context) error {
	return a.backend.EnsureBucket(ctx)
}

// PutSchema archives one schema document.
func (a *SchemaArchive) PutSchema(ctx context.Context, username, db, collection, filename string, content []byte) error {
	key := schemaKey(username, db, collection, filename)
	return a.backend.Put(ctx, key, bytes.NewReader(content), int64(len(content)), schemaContentType)
}

// GetSchema reads back an archived schema document.
func (a *SchemaArchive) GetSchema(ctx context.Context, username, db, collection, filename string) ([]byte, error) {
	reader, err := a.backend.Get(ctx, schemaKey(username, db, collection, filename))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// DeleteSchema removes an archived schema document.
func (a *SchemaArchive) DeleteSchema(ctx context.Context, username, db, collection, filename string) error {
	return a.backend.Delete(ctx, schemaKey(username, db, collection, filename))
}

// Bucket returns the configured bucket name.
func (a *SchemaArchive) Bucket() string {
	return a.backend.Bucket()
}

func schemaKey(username, db, collection, filename string) string {
	return path.Join("schemas", username, db, collection, filename)
}
