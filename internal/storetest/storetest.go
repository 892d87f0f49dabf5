// Package storetest provides an in-memory stand-in for the remote
// document-storage service, exposed over HTTP so tests exercise the real
// client and its error mapping.
package storetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Server is a fake document-storage service backed by in-memory
// collections.
type Server struct {
	mu          sync.Mutex
	collections map[string][]map[string]any
	databases   map[string]bool
	nextID      int
	down        bool

	httpServer *httptest.Server
}

// NewServer starts a fake store and registers its shutdown with t.
func NewServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		collections: make(map[string][]map[string]any),
		databases:   make(map[string]bool),
	}

	router := chi.NewRouter()
	router.Post("/create_database/", s.createDatabase)
	router.Post("/upload_schema/{db}/{collection}/", s.uploadSchema)
	router.Post("/{db}/get_items/{collection}/", s.getItems)
	router.Post("/{db}/add_item/{collection}/", s.addItem)
	router.Put("/{db}/update_item/{collection}/{id}/", s.updateItem)
	router.Delete("/{db}/delete_item/{collection}/{id}/", s.deleteItem)
	router.Post("/{db}/delete_items/{collection}/", s.deleteItems)
	router.Post("/{db}/create_collection/", s.createCollection)
	router.Get("/{db}/list_collections/", s.listCollections)
	router.Delete("/{db}/delete_collection/{collection}/", s.deleteCollection)

	s.httpServer = httptest.NewServer(router)
	t.Cleanup(s.httpServer.Close)
	return s
}

// URL returns the base URL of the fake service.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// SetDown makes every subsequent request fail with a 503 until restored.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Records returns a copy of the records in a collection of the given
// database.
func (s *Server) Records(db, collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.collections[key(db, collection)]
	out := make([]map[string]any, len(records))
	for i, record := range records {
		clone := make(map[string]any, len(record))
		for k, v := range record {
			clone[k] = v
		}
		out[i] = clone
	}
	return out
}

// Mutate edits the records of a collection in place under lock.
func (s *Server) Mutate(db, collection string, fn func(records []map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.collections[key(db, collection)])
}

// HasDatabase reports whether a delegated database was created.
func (s *Server) HasDatabase(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.databases[name]
}

func (s *Server) unavailable(w http.ResponseWriter) bool {
	if s.down {
		http.Error(w, "store down", http.StatusServiceUnavailable)
		return true
	}
	return false
}

func (s *Server) getItems(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable(w) {
		return
	}

	var filter map[string]any
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	matches := []map[string]any{}
	for _, record := range s.collections[requestKey(r)] {
		if matchesFilter(record, filter) {
			matches = append(matches, record)
		}
	}
	writeJSON(w, matches)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable(w) {
		return
	}

	var record map[string]any
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.nextID++
	id := fmt.Sprintf("id-%d", s.nextID)
	record["_id"] = id
	k := requestKey(r)
	s.collections[k] = append(s.collections[k], record)
	writeJSON(w, map[string]any{"message": "item added successfully", "id": id})
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable(w) {
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	modified := 0
	for _, record := range s.collections[requestKey(r)] {
		if record["_id"] == id {
			for k, v := range fields {
				record[k] = v
			}
			modified++
		}
	}
	writeJSON(w, map[string]any{"modified_count": modified})
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable(w) {
		return
	}

	id := chi.URLParam(r, "id")
	k := requestKey(r)
	kept := s.collections[k][:0]
	deleted := 0
	for _, record := range s.collections[k] {
		if record["_id"] == id {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	s.collections[k] = kept
	writeJSON(w, map[string]any{"deleted_count": deleted})
}

func (s *Server) deleteItems(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable(w) {
		return
	}

	var filter map[string]any
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	k := requestKey(r)
	kept := s.collections[k][:0]
	deleted := 0
	for _, record := range s.collections[k] {
		if matchesFilter(record, filter) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	s.collections[k] = kept
	writeJSON(w, map[string]any{"deleted_count": deleted})
}

func (s *Server) createDatabase(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable(w) {
		return
	}

	var req struct {
		Name string `json:"db_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "db_name is required", http.StatusBadRequest)
		return
	}
	s.databases[req.Name] = true
	writeJSON(w, map[string]any{"message": "database created"})
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable(w) {
		return
	}

	name := r.URL.Query().Get("collection_name")
	if name == "" {
		http.Error(w, "collection_name is required", http.StatusBadRequest)
		return
	}
	k := key(chi.URLParam(r, "db"), name)
	if _, exists := s.collections[k]; !exists {
		s.collections[k] = []map[string]any{}
	}
	writeJSON(w, map[string]any{"message": "collection created"})
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable(w) {
		return
	}

	prefix := chi.URLParam(r, "db") + "/"
	names := []string{}
	for k := range s.collections {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			names = append(names, k[len(prefix):])
		}
	}
	writeJSON(w, map[string]any{"collections": names})
}

func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable(w) {
		return
	}

	delete(s.collections, requestKey(r))
	writeJSON(w, map[string]any{"message": "collection deleted"})
}

func (s *Server) uploadSchema(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable(w) {
		return
	}
	writeJSON(w, map[string]any{"message": "schemas uploaded"})
}

func requestKey(r *http.Request) string {
	return key(chi.URLParam(r, "db"), chi.URLParam(r, "collection"))
}

func key(db, collection string) string {
	return db + "/" + collection
}

func matchesFilter(record, filter map[string]any) bool {
	for k, want := range filter {
		if !reflect.DeepEqual(record[k], want) {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
