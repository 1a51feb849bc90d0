package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// SnapshotEntry is one recorded request/response pair, as stored in the
// snapshot YAML file.
type SnapshotEntry struct {
	ID       uint64 `yaml:"id"`
	Request  string `yaml:"request"`
	Response string `yaml:"response"`
}

// SnapshotConfig configures a SnapshotTransport.
type SnapshotConfig struct {
	// Inner is the transport to record from / decorate. Required.
	Inner Transport
	// Path is the YAML snapshot file.
	Path string
	// AggressiveSave calls Save synchronously after every cache miss that
	// inserts a new entry, instead of relying on Close to flush.
	AggressiveSave bool
	// FailOnMiss makes a cache miss return HttpError(404) instead of
	// falling through to Inner. TryLoad can override this at load time.
	FailOnMiss bool
	// IgnoreSnapshot disables all snapshot behavior: TryLoad, Save, and
	// Clear become no-ops and every Post falls straight through to Inner
	// uncached.
	IgnoreSnapshot bool
	Logger         *slog.Logger
}

// SnapshotTransport decorates another Transport with a record/replay cache:
// a concurrent key→entry map keyed by the canonical serialized request
// body, with single-flight semantics so redundant concurrent lookups for
// the same request collapse into exactly one upstream call — grounded on
// the common RLock-fast-path/singleflight-slow-path pattern: re-check the
// cache inside the flight before falling through to Inner.
//
// Only Post is supported; GET/arbitrary methods are out of scope for this
// decorator.
type SnapshotTransport struct {
	inner          Transport
	path           string
	aggressiveSave bool
	ignoreSnapshot bool
	log            *slog.Logger

	failOnMiss atomic.Bool

	mu      sync.RWMutex
	entries map[string]SnapshotEntry
	nextID  uint64

	group singleflight.Group
}

// NewSnapshotTransport builds a SnapshotTransport with an empty cache.
// Call TryLoad to populate it from an existing file.
func NewSnapshotTransport(cfg SnapshotConfig) (*SnapshotTransport, error) {
	if cfg.Inner == nil {
		return nil, errors.New("jsonrpc: snapshot transport requires an inner transport")
	}
	if cfg.Path == "" && !cfg.IgnoreSnapshot {
		return nil, errors.New("jsonrpc: snapshot transport requires a file path")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &SnapshotTransport{
		inner:          cfg.Inner,
		path:           cfg.Path,
		aggressiveSave: cfg.AggressiveSave,
		ignoreSnapshot: cfg.IgnoreSnapshot,
		log:            cfg.Logger,
		entries:        make(map[string]SnapshotEntry),
		nextID:         1,
	}
	s.failOnMiss.Store(cfg.FailOnMiss)
	return s, nil
}

// TryLoad deserializes the snapshot file, replacing the in-memory cache and
// advancing nextID to max(observed id)+1. If at least one entry was loaded,
// failOnMiss is adopted as the transport's new miss behavior. A no-op when
// IgnoreSnapshot is set. Errors (including a missing file) propagate as I/O
// failures.
func (s *SnapshotTransport) TryLoad(failOnMiss bool) error {
	if s.ignoreSnapshot {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("jsonrpc: failed to read snapshot file: %w", err)
	}

	var list []SnapshotEntry
	if err := yaml.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("jsonrpc: failed to parse snapshot file: %w", err)
	}

	entries := make(map[string]SnapshotEntry, len(list))
	var maxNextID uint64 = 1
	for _, entry := range list {
		entries[entry.Request] = entry
		if entry.ID+1 > maxNextID {
			maxNextID = entry.ID + 1
		}
	}

	s.mu.Lock()
	s.entries = entries
	s.nextID = maxNextID
	s.mu.Unlock()

	if len(list) > 0 {
		s.failOnMiss.Store(failOnMiss)
	}
	return nil
}

// Save snapshots the current entries to the file, sorted by id ascending.
// A no-op when IgnoreSnapshot is set. Write failures are retried a few
// times with a short bounded backoff to absorb transient filesystem
// hiccups.
func (s *SnapshotTransport) Save() error {
	if s.ignoreSnapshot {
		return nil
	}

	s.mu.RLock()
	list := make([]SnapshotEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		list = append(list, entry)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := yaml.Marshal(list)
	if err != nil {
		return fmt.Errorf("jsonrpc: failed to encode snapshot: %w", err)
	}

	_, err = backoff.Retry(context.Background(), func() (struct{}, error) {
		return struct{}{}, os.WriteFile(s.path, data, 0o644)
	}, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return fmt.Errorf("jsonrpc: failed to write snapshot file: %w", err)
	}
	return nil
}

// Clear drops all cached entries and resets nextID to 1. The file on disk
// is left untouched until the next Save.
func (s *SnapshotTransport) Clear() {
	if s.ignoreSnapshot {
		return
	}
	s.mu.Lock()
	s.entries = make(map[string]SnapshotEntry)
	s.nextID = 1
	s.mu.Unlock()
}

// Close flushes the cache to disk, logging (and swallowing) any save
// failure rather than propagating it — Go has no destructors, so callers
// MUST call Close explicitly; this is the drop-triggered flush from the
// design, made explicit.
func (s *SnapshotTransport) Close() {
	if err := s.Save(); err != nil {
		s.log.Error("jsonrpc: snapshot save on close failed", "error", err)
	}
}

func (s *SnapshotTransport) Query(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	if method != http.MethodPost {
		return nil, NewUnknownHTTPError("snapshot transport supports POST only")
	}
	return s.Post(ctx, url, body)
}

func (s *SnapshotTransport) Get(ctx context.Context, url string) ([]byte, error) {
	return nil, NewUnknownHTTPError("snapshot transport supports POST only")
}

// Post looks up body's canonical JSON encoding in the cache; on a miss it
// fetches from Inner via singleflight, so concurrent callers requesting the
// same body coalesce into one upstream call.
func (s *SnapshotTransport) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	if s.ignoreSnapshot {
		return s.inner.Post(ctx, url, body)
	}

	reqKey := string(body)

	if resp, ok := s.lookup(reqKey); ok {
		return resp, nil
	}
	if s.failOnMiss.Load() {
		return nil, NewHTTPStatusError(http.StatusNotFound)
	}

	var inserted bool
	v, err, _ := s.group.Do(reqKey, func() (any, error) {
		if resp, ok := s.lookup(reqKey); ok {
			return resp, nil
		}

		respBody, err := s.inner.Post(ctx, url, body)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(respBody) {
			return nil, NewUnknownHTTPError("snapshot response is not valid utf-8")
		}

		s.mu.Lock()
		id := s.nextID
		s.nextID++
		s.entries[reqKey] = SnapshotEntry{ID: id, Request: reqKey, Response: string(respBody)}
		s.mu.Unlock()

		inserted = true
		return respBody, nil
	})
	if err != nil {
		return nil, err
	}

	if inserted && s.aggressiveSave {
		if err := s.Save(); err != nil {
			return nil, NewUnknownHTTPError(err.Error())
		}
	}

	return v.([]byte), nil
}

func (s *SnapshotTransport) lookup(reqKey string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[reqKey]
	if !ok {
		return nil, false
	}
	return []byte(entry.Response), true
}

// Len reports the number of cached entries, for tests asserting round-trip
// fidelity.
func (s *SnapshotTransport) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ Transport = (*SnapshotTransport)(nil)
