package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	// FixtureServerHost and FixtureServerPort locate the fixture server that
	// developer tooling runs next to the process.
	FixtureServerHost = "localhost"
	FixtureServerPort = 12345

	// DefaultFixtureTimeout bounds the one-shot fixture fetch.
	DefaultFixtureTimeout = 30 * time.Second
)

// DefaultFixtureURL is where the fixture state document is served.
var DefaultFixtureURL = fmt.Sprintf("http://%s:%d/state.json", FixtureServerHost, FixtureServerPort)

// NetworkStore is a read-only BackingStore that loads its initial envelope
// from a fixture server and then keeps it in memory only. It lets developer
// tooling run without a durable backend.
//
// Initialization starts in NewNetworkStore and runs at most once. Get and
// Set wait for it to finish. A failed fetch, a non-2xx status or an
// undecodable body all leave the state nil; none of them are errors.
type NetworkStore struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger

	initOnce sync.Once
	done     chan struct{}

	mu    sync.RWMutex
	state *Envelope
}

// NetworkOption configures a NetworkStore.
type NetworkOption func(*NetworkStore)

// WithFixtureURL overrides DefaultFixtureURL.
func WithFixtureURL(url string) NetworkOption {
	return func(s *NetworkStore) {
		if url != "" {
			s.url = url
		}
	}
}

// WithFixtureTimeout overrides DefaultFixtureTimeout.
func WithFixtureTimeout(d time.Duration) NetworkOption {
	return func(s *NetworkStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client used for the fixture fetch.
func WithHTTPClient(c *http.Client) NetworkOption {
	return func(s *NetworkStore) {
		if c != nil {
			s.client = c
		}
	}
}

// WithNetworkLogger sets the logger used for init diagnostics.
func WithNetworkLogger(l *slog.Logger) NetworkOption {
	return func(s *NetworkStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewNetworkStore creates the store and starts loading the fixture in the
// background.
func NewNetworkStore(opts ...NetworkOption) *NetworkStore {
	s := &NetworkStore{
		url:     DefaultFixtureURL,
		timeout: DefaultFixtureTimeout,
		client:  http.DefaultClient,
		logger:  slog.New(slog.DiscardHandler),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.ensureInit()
	return s
}

func (s *NetworkStore) ensureInit() {
	s.initOnce.Do(func() {
		defer close(s.done)
		s.init()
	})
}

func (s *NetworkStore) init() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		s.logger.Debug("Error loading network state", "error", err)
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("Error loading network state", "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Debug("Received response with a non-success status", "status", resp.Status)
		return
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		s.logger.Debug("Error loading network state", "error", err)
		return
	}

	s.mu.Lock()
	s.state = &env
	s.mu.Unlock()
}

// wait blocks until initialization has finished or ctx is done.
func (s *NetworkStore) wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns a copy of the in-memory envelope, or nil if the fixture could
// not be loaded.
func (s *NetworkStore) Get(ctx context.Context) (*Envelope, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

// Set replaces the in-memory envelope. Nothing is sent back to the server.
func (s *NetworkStore) Set(ctx context.Context, envelope Envelope) error {
	if envelope.IsEmpty() {
		return ErrStateMissing
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = envelope.Clone()
	s.mu.Unlock()
	return nil
}
