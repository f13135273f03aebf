// Package client provides a typed Go SDK over Loom's HTTP surface
// (internal/httpapi), for use by the CLI and by integration tests.
// A plain HTTP/JSON wrapper, not an mTLS gRPC client (see DESIGN.md).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
)

// Client wraps Loom's HTTP API with a convenient, idiomatic Go interface.
type Client struct {
	addr       string
	httpClient *http.Client
}

// NewClient creates a new Client pointed at a node's HTTP address, e.g.
// "http://127.0.0.1:8080".
func NewClient(addr string) *Client {
	return &Client{
		addr:       addr,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithHTTPClient creates a Client with a caller-supplied
// *http.Client, for tests that need custom transports or timeouts.
func NewClientWithHTTPClient(addr string, hc *http.Client) *Client {
	return &Client{addr: addr, httpClient: hc}
}

// errorBody is the {"message": "..."} envelope every Loom error
// response carries (internal/httpapi.writeError).
type errorBody struct {
	Message string `json:"message"`
}

// apiError wraps a non-2xx HTTP response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("loom: %d: %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		if eb.Message == "" {
			eb.Message = string(data)
		}
		return &apiError{Status: resp.StatusCode, Message: eb.Message}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Ping checks that the node is reachable and reports its version.
func (c *Client) Ping(ctx context.Context) (name, version string, err error) {
	var body struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/", nil, &body); err != nil {
		return "", "", err
	}
	return body.Name, body.Version, nil
}

// CreateIndex creates an index named name with the given schema.
func (c *Client) CreateIndex(ctx context.Context, name string, s *schema.Schema) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	return c.do(ctx, http.MethodPut, "/"+name+"/_create", bytes.NewReader(raw), nil)
}

// IndexSummary is the response of GET /{index}/_summary.
type IndexSummary struct {
	Name    string `json:"name"`
	Opstamp uint64 `json:"opstamp"`
}

// Summary retrieves an index's name and current opstamp.
func (c *Client) Summary(ctx context.Context, index string) (IndexSummary, error) {
	var s IndexSummary
	err := c.do(ctx, http.MethodGet, "/"+index+"/_summary", nil, &s)
	return s, err
}

// Flush forces a commit on index, making all buffered writes visible
// to search.
func (c *Client) Flush(ctx context.Context, index string) error {
	return c.do(ctx, http.MethodGet, "/"+index+"/_flush", nil, nil)
}

// AddDocument indexes a single document, optionally committing it
// immediately.
func (c *Client) AddDocument(ctx context.Context, index string, doc json.RawMessage, commit bool) error {
	body := document.AddDocument{
		Options:  document.AddOptions{Commit: commit},
		Document: doc,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return c.do(ctx, http.MethodPut, "/"+index, bytes.NewReader(raw), nil)
}

// DeleteTerm deletes every document matching one of terms' (field,
// value) pairs, optionally committing immediately.
func (c *Client) DeleteTerm(ctx context.Context, index string, terms map[string]string, commit bool) (document.DocsAffected, error) {
	body := document.DeleteDoc{
		Options:  document.AddOptions{Commit: commit},
		TermsMap: terms,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return document.DocsAffected{}, fmt.Errorf("marshal delete: %w", err)
	}
	var affected document.DocsAffected
	err = c.do(ctx, http.MethodDelete, "/"+index, bytes.NewReader(raw), &affected)
	return affected, err
}

// Search runs a query against index.
func (c *Client) Search(ctx context.Context, index string, search query.Search) (query.SearchResults, error) {
	raw, err := json.Marshal(search)
	if err != nil {
		return query.SearchResults{}, fmt.Errorf("marshal search: %w", err)
	}
	var results query.SearchResults
	err = c.do(ctx, http.MethodPost, "/"+index, bytes.NewReader(raw), &results)
	return results, err
}

// AllDocs retrieves every document in index (GET /{index}).
func (c *Client) AllDocs(ctx context.Context, index string) (query.SearchResults, error) {
	var results query.SearchResults
	err := c.do(ctx, http.MethodGet, "/"+index, nil, &results)
	return results, err
}

// Bulk streams ndjson (one JSON document per line) to index's bulk
// ingest endpoint.
func (c *Client) Bulk(ctx context.Context, index string, ndjson io.Reader) error {
	return c.do(ctx, http.MethodPost, "/"+index+"/_bulk", ndjson, nil)
}
