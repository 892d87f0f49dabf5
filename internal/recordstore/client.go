package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultMaxIdleConns    = 25
	defaultIdleConnTimeout = 90 * time.Second
	defaultSystemDB        = "database"
)

// Record is a schemaless document as stored by the remote service.
type Record map[string]any

// Filter selects records by exact field match, mongo-style.
type Filter map[string]any

// Client talks to the remote document-storage service that is the single
// source of truth for user and credential records. One Client is
// constructed at startup and shared by reference; its embedded http.Client
// owns the connection pool.
type Client struct {
	baseURL  string
	systemDB string
	http     *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithSystemDB overrides the database name holding the system collections.
func WithSystemDB(name string) Option {
	return func(c *Client) {
		if strings.TrimSpace(name) != "" {
			c.systemDB = name
		}
	}
}

// New constructs a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("record store base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid record store url: %w", err)
	}

	c := &Client{
		baseURL:  baseURL,
		systemDB: defaultSystemDB,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConns,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases idle connections held by the pool.
func (c *Client) Close() {
	if t, ok := c.http.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// Find returns all records in the system collection matching filter, in
// store order.
func (c *Client) Find(ctx context.Context, collection string, filter Filter) ([]Record, error) {
	if filter == nil {
		filter = Filter{}
	}
	var records []Record
	path := fmt.Sprintf("/%s/get_items/%s/", c.systemDB, collection)
	if err := c.do(ctx, http.MethodPost, path, filter, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Insert adds a record to the system collection and returns the id the
// store assigned to it.
func (c *Client) Insert(ctx context.Context, collection string, record Record) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/%s/add_item/%s/", c.systemDB, collection)
	if err := c.do(ctx, http.MethodPost, path, record, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Update applies a partial field update to the record with the given id
// and returns the number of records modified.
func (c *Client) Update(ctx context.Context, collection, id string, fields Record) (int, error) {
	var resp struct {
		ModifiedCount int `json:"modified_count"`
	}
	path := fmt.Sprintf("/%s/update_item/%s/%s/", c.systemDB, collection, id)
	if err := c.do(ctx, http.MethodPut, path, fields, &resp); err != nil {
		return 0, err
	}
	return resp.ModifiedCount, nil
}

// Delete removes the record with the given id and returns the number of
// records deleted (zero when the id did not exist).
func (c *Client) Delete(ctx context.Context, collection, id string) (int, error) {
	var resp struct {
		DeletedCount int `json:"deleted_count"`
	}
	path := fmt.Sprintf("/%s/delete_item/%s/%s/", c.systemDB, collection, id)
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.DeletedCount, nil
}

// DeleteByFilter removes every record matching filter and returns the
// number deleted.
func (c *Client) DeleteByFilter(ctx context.Context, collection string, filter Filter) (int, error) {
	if filter == nil {
		filter = Filter{}
	}
	var resp struct {
		DeletedCount int `json:"deleted_count"`
	}
	path := fmt.Sprintf("/%s/delete_items/%s/", c.systemDB, collection)
	if err := c.do(ctx, http.MethodPost, path, filter, &resp); err != nil {
		return 0, err
	}
	return resp.DeletedCount, nil
}

// CreateDatabase asks the store service to create a delegated database.
func (c *Client) CreateDatabase(ctx context.Context, name, host string, port int) error {
	body := Record{"db_name": name, "host": host, "port": port}
	return c.do(ctx, http.MethodPost, "/create_database/", body, nil)
}

// CreateCollection creates a collection inside a delegated database.
func (c *Client) CreateCollection(ctx context.Context, db, collection string) error {
	path := fmt.Sprintf("/%s/create_collection/?collection_name=%s", url.PathEscape(db), url.QueryEscape(collection))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// ListCollections lists the collections of a delegated database.
func (c *Client) ListCollections(ctx context.Context, db string) ([]string, error) {
	var resp struct {
		Collections []string `json:"collections"`
	}
	path := fmt.Sprintf("/%s/list_collections/", url.PathEscape(db))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Collections, nil
}

// DropCollection deletes a collection from a delegated database.
func (c *Client) DropCollection(ctx context.Context, db, collection string) error {
	path := fmt.Sprintf("/%s/delete_collection/%s/", url.PathEscape(db), url.PathEscape(collection))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// SchemaFile is one uploaded schema document forwarded to the store.
type SchemaFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// UploadSchema forwards validated schema documents for a collection.
func (c *Client) UploadSchema(ctx context.Context, db, collection string, files []SchemaFile) error {
	body := map[string]any{"files": files}
	path := fmt.Sprintf("/upload_schema/%s/%s/", url.PathEscape(db), url.PathEscape(collection))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

// DecodeRecord unmarshals a schemaless record into a typed value.
func DecodeRecord(record Record, out any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, out)
}

// EncodeRecord marshals a typed value into a schemaless record.
func EncodeRecord(in any) (Record, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, err
	}
	return record, nil
}
