// Package proxy forwards read-only requests to the robot's HTTP API so
// browsers never talk to the robot directly.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"sync"
	"time"
)

const maxBodyBytes = 4 << 20

// StatePath is the robot-state resource on the backend.
const StatePath = "robot-state"

// Kind tags how a proxied body is re-emitted.
type Kind int

const (
	KindText Kind = iota
	KindJSON
)

func (k Kind) String() string {
	if k == KindJSON {
		return "json"
	}
	return "text"
}

// Result is a backend response: either a JSON value or plain text, with the
// backend's status code passed through.
type Result struct {
	Status int
	Kind   Kind
	JSON   json.RawMessage // KindJSON only, compacted
	Text   string          // KindText only
}

// ContentType returns the header value the result is served with.
func (r *Result) ContentType() string {
	if r.Kind == KindJSON {
		return "application/json"
	}
	return "text/plain"
}

// Body returns the bytes to write to the client.
func (r *Result) Body() []byte {
	if r.Kind == KindJSON {
		return r.JSON
	}
	return []byte(r.Text)
}

// Serve writes the result to w with its status and content type.
func (r *Result) Serve(w http.ResponseWriter) {
	w.Header().Set("Content-Type", r.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(r.Status)
	w.Write(r.Body())
}

// Client issues GETs against a single backend base URL.
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Reconfigure updates the client's base URL and timeout for hot-reload.
func (c *Client) Reconfigure(baseURL string, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = baseURL
	c.httpClient = &http.Client{Timeout: timeout}
}

var duplicateSlashes = regexp.MustCompile(`([^:]/)/+`)

// TargetURL joins base and path with a single slash and collapses repeated
// slashes everywhere except directly after a scheme.
func TargetURL(base, path string) string {
	return duplicateSlashes.ReplaceAllString(base+"/"+path, "$1")
}

// Get forwards a GET for path (and rawQuery, if any). A non-nil error means
// the backend could not be reached or its body could not be read; HTTP error
// statuses come back as a Result.
func (c *Client) Get(ctx context.Context, path, rawQuery string) (*Result, error) {
	c.mu.RLock()
	target := TargetURL(c.baseURL, path)
	client := c.httpClient
	c.mu.RUnlock()
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	log.Printf("proxy: GET %s", target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("proxy request %s: %w", target, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("proxy read body: %w", err)
	}
	return classify(resp.StatusCode, data), nil
}

// GetState forwards to the backend's robot-state resource.
func (c *Client) GetState(ctx context.Context) (*Result, error) {
	return c.Get(ctx, StatePath, "")
}

func classify(status int, data []byte) *Result {
	if json.Valid(data) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err == nil {
			return &Result{Status: status, Kind: KindJSON, JSON: buf.Bytes()}
		}
	}
	return &Result{Status: status, Kind: KindText, Text: string(data)}
}

// ErrorBody is the JSON answered when the backend is unreachable.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// WriteError answers 500 with the proxy failure body.
func WriteError(w http.ResponseWriter, err error) {
	log.Printf("proxy: %v", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(ErrorBody{Error: "Failed to proxy request", Details: err.Error()})
}
