package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docustore/userman/internal/recordstore"
	"github.com/docustore/userman/internal/schema"
	"github.com/docustore/userman/types"
)

// StoreAdmin is the slice of the record-store client used for delegated
// database administration.
type StoreAdmin interface {
	CreateDatabase(ctx context.Context, name, host string, port int) error
	CreateCollection(ctx context.Context, db, collection string) error
	ListCollections(ctx context.Context, db string) ([]string, error)
	DropCollection(ctx context.Context, db, collection string) error
	UploadSchema(ctx context.Context, db, collection string, files []recordstore.SchemaFile) error
}

// SchemaArchiver archives accepted schema documents, best-effort.
type SchemaArchiver interface {
	PutSchema(ctx context.Context, username, db, collection, filename string, content []byte) error
}

// SchemaDocument is one schema file submitted for upload.
type SchemaDocument struct {
	Filename string
	Content  []byte
}

// DatabaseService manages the delegated databases a user owns at the
// record-store service.
type DatabaseService struct {
	users   UserRepository
	admin   StoreAdmin
	archive SchemaArchiver
	logger  *slog.Logger
	host    string
	port    int
}

// DatabaseConfig bundles the service's dependencies. Host and Port locate
// the document store the delegated databases live on, as recorded in the
// handles attached to the user.
type DatabaseConfig struct {
	Users   UserRepository
	Admin   StoreAdmin
	Archive SchemaArchiver
	Logger  *slog.Logger
	Host    string
	Port    int
}

// NewDatabaseService constructs a DatabaseService.
func NewDatabaseService(cfg DatabaseConfig) *DatabaseService {
	s := &DatabaseService{
		users:   cfg.Users,
		admin:   cfg.Admin,
		archive: cfg.Archive,
		logger:  cfg.Logger,
		host:    cfg.Host,
		port:    cfg.Port,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.host == "" {
		s.host = "localhost"
	}
	if s.port == 0 {
		s.port = 27017
	}
	return s
}

// Create provisions a delegated database for the user. The database name
// is prefixed with the username so delegated names cannot collide across
// accounts, and the resulting handle is attached to the user record.
func (s *DatabaseService) Create(ctx context.Context, user types.User, name string) (types.DatabaseHandle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.DatabaseHandle{}, fmt.Errorf("database name is required")
	}

	handle := types.DatabaseHandle{
		Name: fmt.Sprintf("%s-%s", user.Username, name),
		Host: s.host,
		Port: s.port,
	}

	if err := s.admin.CreateDatabase(ctx, handle.Name, handle.Host, handle.Port); err != nil {
		return types.DatabaseHandle{}, err
	}

	for _, existing := range user.Databases {
		if existing.Name == handle.Name && existing.Host == handle.Host {
			return handle, nil
		}
	}

	handles := append(user.Databases, handle)
	if err := s.users.UpdateDatabases(ctx, user.ID, handles); err != nil {
		return types.DatabaseHandle{}, err
	}
	return handle, nil
}

// List returns the delegated database handles attached to the user.
func (s *DatabaseService) List(_ context.Context, user types.User) []types.DatabaseHandle {
	if user.Databases == nil {
		return []types.DatabaseHandle{}
	}
	return user.Databases
}

// Authorize reports whether the user owns the named delegated database.
func (s *DatabaseService) Authorize(user types.User, dbName string) error {
	for _, handle := range user.Databases {
		if handle.Name == dbName {
			return nil
		}
	}
	return ErrDatabaseForbidden
}

// CreateCollection creates a collection in a database the user owns.
func (s *DatabaseService) CreateCollection(ctx context.Context, user types.User, dbName, collection string) error {
	if err := s.Authorize(user, dbName); err != nil {
		return err
	}
	return s.admin.CreateCollection(ctx, dbName, collection)
}

// ListCollections lists the collections of a database the user owns.
func (s *DatabaseService) ListCollections(ctx context.Context, user types.User, dbName string) ([]string, error) {
	if err := s.Authorize(user, dbName); err != nil {
		return nil, err
	}
	return s.admin.ListCollections(ctx, dbName)
}

// DropCollection deletes a collection from a database the user owns.
func (s *DatabaseService) DropCollection(ctx context.Context, user types.User, dbName, collection string) error {
	if err := s.Authorize(user, dbName); err != nil {
		return err
	}
	return s.admin.DropCollection(ctx, dbName, collection)
}

// UploadSchema validates the submitted schema documents, forwards them to
// the store service and archives accepted copies. A document that fails to
// parse rejects the whole upload before anything is forwarded.
func (s *DatabaseService) UploadSchema(ctx context.Context, user types.User, dbName, collection string, docs []SchemaDocument) error {
	if err := s.Authorize(user, dbName); err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no schema documents provided")
	}

	files := make([]recordstore.SchemaFile, 0, len(docs))
	for _, doc := range docs {
		if _, err := schema.Parse(doc.Content); err != nil {
			return fmt.Errorf("schema %q: %w", doc.Filename, err)
		}
		files = append(files, recordstore.SchemaFile{
			Filename: doc.Filename,
			Content:  string(doc.Content),
		})
	}

	if err := s.admin.UploadSchema(ctx, dbName, collection, files); err != nil {
		return err
	}

	if s.archive != nil {
		for _, doc := range docs {
			if err := s.archive.PutSchema(ctx, user.Username, dbName, collection, doc.Filename, doc.Content); err != nil {
				s.logger.Warn("failed to archive schema document",
					"username", user.Username, "db", dbName,
					"collection", collection, "file", doc.Filename, "error", err)
			}
		}
	}
	return nil
}
