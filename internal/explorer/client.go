// Package explorer talks to block explorer HTTP APIs. All failure
// modes collapse to ErrNoData so callers can degrade to safe defaults
// instead of surfacing transport details.
package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/swapdeck/walletd/pkg/logging"
)

// ErrNoData is the single sentinel for any failed or rejected explorer
// request: transport errors, non-2xx statuses, undecodable bodies and
// responses the caller's validate predicate refused.
var ErrNoData = errors.New("explorer: no data")

// errUnknownEndpoint is returned for endpoint names missing from the
// client configuration. It wraps ErrNoData so callers need only check
// the sentinel.
func errUnknownEndpoint(name string) error {
	return fmt.Errorf("%w: unknown endpoint %q", ErrNoData, name)
}

// Endpoint names a base URL, with an optional API key appended as a
// query parameter on every request.
type Endpoint struct {
	Name    string
	BaseURL string
	APIKey  string
}

// RequestOptions control an explorer request.
type RequestOptions struct {
	// Method defaults to GET. POST requests marshal Body as JSON.
	Method string
	Body   interface{}

	// Validate inspects the decoded response; returning false collapses
	// the request to ErrNoData.
	Validate func(json.RawMessage) bool

	// CacheTTL memoizes successful responses for the given duration,
	// keyed by method and URL.
	CacheTTL time.Duration
}

// Client issues requests against named explorer endpoints.
type Client struct {
	endpoints map[string]Endpoint
	http      *http.Client
	cache     *Cache
	log       *logging.Logger
}

// NewClient creates a client over the given endpoints.
func NewClient(endpoints []Endpoint, cache *Cache, log *logging.Logger) *Client {
	m := make(map[string]Endpoint, len(endpoints))
	for _, e := range endpoints {
		m[e.Name] = e
	}
	if cache == nil {
		cache = NewCache()
	}
	return &Client{
		endpoints: m,
		http:      &http.Client{Timeout: 30 * time.Second},
		cache:     cache,
		log:       log.Component("explorer"),
	}
}

// Request performs a request against a named endpoint. path is appended
// to the endpoint base URL. On any failure the returned error is (or
// wraps) ErrNoData.
func (c *Client) Request(ctx context.Context, endpoint, path string, opts *RequestOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	ep, ok := c.endpoints[endpoint]
	if !ok {
		return nil, errUnknownEndpoint(endpoint)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	url := ep.BaseURL + path
	if ep.APIKey != "" {
		sep := "?"
		if bytes.ContainsRune([]byte(url), '?') {
			sep = "&"
		}
		url += sep + "apikey=" + ep.APIKey
	}

	cacheKey := method + " " + url
	if opts.CacheTTL > 0 {
		if cached, ok := c.cache.Get("explorer", cacheKey); ok {
			return cached.(json.RawMessage), nil
		}
	}

	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %v", ErrNoData, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", "endpoint", endpoint, "path", path, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("bad status", "endpoint", endpoint, "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrNoData, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNoData, err)
	}

	var msg json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Debug("undecodable body", "endpoint", endpoint, "path", path)
		return nil, fmt.Errorf("%w: decode: %v", ErrNoData, err)
	}

	if opts.Validate != nil && !opts.Validate(msg) {
		c.log.Debug("response rejected by validator", "endpoint", endpoint, "path", path)
		return nil, ErrNoData
	}

	if opts.CacheTTL > 0 {
		c.cache.Set("explorer", cacheKey, msg, opts.CacheTTL)
	}
	return msg, nil
}

// Get decodes a GET response into out, with the same collapse
// semantics as Request.
func (c *Client) Get(ctx context.Context, endpoint, path string, opts *RequestOptions, out interface{}) error {
	msg, err := c.Request(ctx, endpoint, path, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(msg, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrNoData, err)
	}
	return nil
}
