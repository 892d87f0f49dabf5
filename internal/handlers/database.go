package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/docustore/userman/internal/recordstore"
	"github.com/docustore/userman/internal/services"
	"github.com/docustore/userman/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxSchemaMemory = 8 << 20
	maxSchemaBytes  = 1 << 20
	formFieldFiles  = "files"
)

// DatabaseHandler provides endpoints for delegated database management.
type DatabaseHandler struct {
	databases *services.DatabaseService
}

// NewDatabaseHandler constructs a DatabaseHandler.
func NewDatabaseHandler(databases *services.DatabaseService) *DatabaseHandler {
	return &DatabaseHandler{databases: databases}
}

// DatabaseRouter registers database management routes on the given
// router. All routes require authentication.
func DatabaseRouter(r chi.Router, databases *services.DatabaseService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewDatabaseHandler(databases)

	r.Use(authMiddleware)
	r.Post("/", handler.CreateDatabase)
	r.Get("/", handler.ListDatabases)
	r.Route("/{dbName}", func(r chi.Router) {
		r.Post("/collections", handler.CreateCollection)
		r.Get("/collections", handler.ListCollections)
		r.Delete("/collections/{collectionName}", handler.DropCollection)
		r.Post("/collections/{collectionName}/schema", handler.UploadSchema)
	})
}

// CreateDatabase provisions a delegated database for the caller.
func (h *DatabaseHandler) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DatabaseCreationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	handle, err := h.databases.Create(r.Context(), user, req.Name)
	if err != nil {
		if errors.Is(err, recordstore.ErrUnavailable) {
			writeError(w, http.StatusInternalServerError, "failed to create database")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to create database")
		return
	}

	writeJSON(w, http.StatusCreated, handle)
}

// ListDatabases lists the caller's delegated databases.
func (h *DatabaseHandler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, DatabaseListResponse{
		Databases: h.databases.List(r.Context(), user),
	})
}

// CreateCollection creates a collection in a delegated database.
func (h *DatabaseHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "collection name is required")
		return
	}

	dbName := chi.URLParam(r, "dbName")
	if err := h.databases.CreateCollection(r.Context(), user, dbName, req.Name); err != nil {
		writeDatabaseError(w, err, "failed to create collection")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "collection created successfully"})
}

// ListCollections lists the collections of a delegated database.
func (h *DatabaseHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	dbName := chi.URLParam(r, "dbName")
	collections, err := h.databases.ListCollections(r.Context(), user, dbName)
	if err != nil {
		writeDatabaseError(w, err, "failed to list collections")
		return
	}

	writeJSON(w, http.StatusOK, CollectionListResponse{Collections: collections})
}

// DropCollection deletes a collection from a delegated database.
func (h *DatabaseHandler) DropCollection(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	dbName := chi.URLParam(r, "dbName")
	collection := chi.URLParam(r, "collectionName")
	if err := h.databases.DropCollection(r.Context(), user, dbName, collection); err != nil {
		writeDatabaseError(w, err, "failed to delete collection")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "collection deleted successfully"})
}

// UploadSchema accepts one or more YAML schema documents for a
// collection, validates them and forwards them to the store service.
func (h *DatabaseHandler) UploadSchema(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxSchemaMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	fileHeaders := r.MultipartForm.File[formFieldFiles]
	if len(fileHeaders) == 0 {
		writeError(w, http.StatusBadRequest, "no schema files provided")
		return
	}

	docs := make([]services.SchemaDocument, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		file, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read schema file")
			return
		}
		content, err := io.ReadAll(io.LimitReader(file, maxSchemaBytes))
		_ = file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read schema file")
			return
		}
		docs = append(docs, services.SchemaDocument{
			Filename: header.Filename,
			Content:  content,
		})
	}

	dbName := chi.URLParam(r, "dbName")
	collection := chi.URLParam(r, "collectionName")
	if err := h.databases.UploadSchema(r.Context(), user, dbName, collection, docs); err != nil {
		writeDatabaseError(w, err, "failed to upload schemas")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "schemas uploaded successfully"})
}

func writeDatabaseError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrDatabaseForbidden):
		writeError(w, http.StatusForbidden, "not authorized to access this database")
	case errors.Is(err, recordstore.ErrUnavailable):
		writeError(w, http.StatusInternalServerError, fallback)
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

type DatabaseCreationRequest struct {
	Name string `json:"db_name"`
}

type DatabaseListResponse struct {
	Databases []types.DatabaseHandle `json:"databases"`
}

type CollectionRequest struct {
	Name string `json:"collection_name"`
}

type CollectionListResponse struct {
	Collections []string `json:"collections"`
}
