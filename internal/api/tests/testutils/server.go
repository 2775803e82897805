package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PxPatel/p2p-swap/internal/api/handlers"
	"github.com/PxPatel/p2p-swap/internal/api/middleware"
	"github.com/PxPatel/p2p-swap/internal/api/routes"
	"github.com/PxPatel/p2p-swap/internal/assets"
	"github.com/PxPatel/p2p-swap/internal/events"
	"github.com/PxPatel/p2p-swap/internal/metrics"
	"github.com/PxPatel/p2p-swap/internal/storage"
	"github.com/PxPatel/p2p-swap/internal/trading"
)

// TestServer wraps a test HTTP server with a fresh trade service
type TestServer struct {
	Server      *httptest.Server
	Service     *trading.Service
	Memory      *storage.InMemoryTradeStore
	Hub         *events.Hub
	Metrics     *metrics.Collector
	JournalPath string
	t           testing.TB
}

// Option adjusts the server under test
type Option func(*serverOptions)

type serverOptions struct {
	assets  *assets.Client
	limiter *middleware.RateLimiter
	origin  string
}

// WithAssets wires an NFT lookup client
func WithAssets(client *assets.Client) Option {
	return func(o *serverOptions) { o.assets = client }
}

// WithRateLimiter enables per-client rate limiting
func WithRateLimiter(limiter *middleware.RateLimiter) Option {
	return func(o *serverOptions) { o.limiter = limiter }
}

// WithAllowedOrigin sets the CORS origin
func WithAllowedOrigin(origin string) Option {
	return func(o *serverOptions) { o.origin = origin }
}

// NewTestServer creates a server backed by memory plus a journal in a temp dir
func NewTestServer(t testing.TB, opts ...Option) *TestServer {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	journalPath := filepath.Join(t.TempDir(), "test_trades.log")
	journal, err := storage.NewFileTradeStore(journalPath)
	require.NoError(t, err)

	memory := storage.NewInMemoryTradeStore()
	store := storage.NewCompositeTradeStore(memory, journal)

	hub := events.NewHub(16)
	collector := metrics.NewCollector()
	service := trading.NewService(store,
		trading.WithPublisher(hub),
		trading.WithPublisher(collector),
	)

	holder := handlers.NewTradeHolder(service, o.assets, hub, collector)
	handler := routes.SetupRoutes(holder, routes.Options{
		Metrics:       collector,
		RateLimiter:   o.limiter,
		AllowedOrigin: o.origin,
	})
	server := httptest.NewServer(handler)

	ts := &TestServer{
		Server:      server,
		Service:     service,
		Memory:      memory,
		Hub:         hub,
		Metrics:     collector,
		JournalPath: journalPath,
		t:           t,
	}
	t.Cleanup(func() {
		ts.Close()
		_ = store.Close()
	})
	return ts
}

// Close shuts the server down; safe to call more than once
func (ts *TestServer) Close() {
	ts.Hub.Close()
	ts.Server.Close()
}

// URL returns the base URL for the test server
func (ts *TestServer) URL() string {
	return ts.Server.URL
}

// WebSocketURL returns the ws:// form of path
func (ts *TestServer) WebSocketURL(path string) string {
	return "ws" + strings.TrimPrefix(ts.URL(), "http") + path
}

// Get makes a GET request to the test server
func (ts *TestServer) Get(path string) *http.Response {
	resp, err := http.Get(ts.URL() + path)
	require.NoError(ts.t, err, "GET request failed")
	return resp
}

// Post makes a POST request with JSON body. A nil body sends no content.
func (ts *TestServer) Post(path string, body interface{}) *http.Response {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(ts.t, err, "Failed to marshal request body")
		reader = bytes.NewReader(jsonBody)
	}

	resp, err := http.Post(ts.URL()+path, "application/json", reader)
	require.NoError(ts.t, err, "POST request failed")
	return resp
}

// PostRaw makes a POST request with a literal body
func (ts *TestServer) PostRaw(path, body string) *http.Response {
	resp, err := http.Post(ts.URL()+path, "application/json", strings.NewReader(body))
	require.NoError(ts.t, err, "POST request failed")
	return resp
}

// Do sends an arbitrary request
func (ts *TestServer) Do(method, path string, header http.Header) *http.Response {
	req, err := http.NewRequestWithContext(context.Background(), method, ts.URL()+path, nil)
	require.NoError(ts.t, err, "Failed to create request")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err, "%s request failed", method)
	return resp
}

// ReadJournal returns the entries written to the trade journal so far
func (ts *TestServer) ReadJournal() []storage.JournalEntry {
	entries, err := storage.ReadJournal(ts.JournalPath)
	require.NoError(ts.t, err)
	return entries
}

// DecodeJSON decodes JSON response into target
func DecodeJSON(t testing.TB, resp *http.Response, target interface{}) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "Failed to read response body")

	err = json.Unmarshal(body, target)
	require.NoError(t, err, "Failed to decode JSON response: %s", string(body))
}
