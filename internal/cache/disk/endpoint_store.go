package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxAge is how long an endpoint file is trusted.
const DefaultMaxAge = 7 * 24 * time.Hour

type EndpointStoreConfig struct {
	Root   string
	MaxAge time.Duration
	// Now is overridable for tests.
	Now func() time.Time
}

type fileEnvelope struct {
	CachedAt string          `json:"cached_at"`
	Data     json.RawMessage `json:"data"`
}

// Entry is a cached endpoint payload.
type Entry struct {
	Data     json.RawMessage
	CachedAt time.Time
	Age      time.Duration
}

// FileInfo describes one cache file for status reporting.
type FileInfo struct {
	Name     string        `json:"name"`
	Size     int64         `json:"size"`
	CachedAt time.Time     `json:"cached_at"`
	Age      time.Duration `json:"age"`
	Stale    bool          `json:"stale"`
}

// EndpointStore keeps one JSON file per API endpoint under Root. Files are
// opportunistic: missing, corrupt or stale files read as a miss.
type EndpointStore struct {
	mu     sync.Mutex
	root   string
	maxAge time.Duration
	now    func() time.Time
}

func NewEndpointStore(cfg EndpointStoreConfig) (*EndpointStore, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("root is required")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &EndpointStore{root: root, maxAge: cfg.MaxAge, now: cfg.Now}, nil
}

// FileName maps an endpoint path like "/generic-values/12" to its cache file name.
func FileName(endpoint string) string {
	safe := strings.ReplaceAll(endpoint, "/", "_")
	safe = strings.ReplaceAll(safe, "?", "_")
	return safe + ".json"
}

func (s *EndpointStore) Path(endpoint string) string {
	return filepath.Join(s.root, FileName(endpoint))
}

func (s *EndpointStore) Get(_ context.Context, endpoint string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.Path(endpoint))
	if err != nil {
		return Entry{}, false
	}
	cachedAt, data, ok := decodeEnvelope(raw)
	if !ok {
		return Entry{}, false
	}
	age := s.now().Sub(cachedAt)
	if age > s.maxAge {
		return Entry{}, false
	}
	return Entry{Data: data, CachedAt: cachedAt, Age: age}, true
}

func (s *EndpointStore) Set(_ context.Context, endpoint string, data json.RawMessage) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if len(data) == 0 || !json.Valid(data) {
		return fmt.Errorf("refusing to cache invalid json for %s", endpoint)
	}
	raw, err := json.MarshalIndent(fileEnvelope{
		CachedAt: s.now().Format(time.RFC3339Nano),
		Data:     data,
	}, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.Path(endpoint)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Clear removes every cache file and reports how many were deleted.
func (s *EndpointStore) Clear(_ context.Context) (int, error) {
	if s == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.root, "*.json"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *EndpointStore) List() ([]FileInfo, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.root, "*.json"))
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]FileInfo, 0, len(matches))
	for _, m := range matches {
		st, err := os.Stat(m)
		if err != nil {
			continue
		}
		info := FileInfo{Name: filepath.Base(m), Size: st.Size(), Stale: true}
		if raw, err := os.ReadFile(m); err == nil {
			if cachedAt, _, ok := decodeEnvelope(raw); ok {
				info.CachedAt = cachedAt
				info.Age = now.Sub(cachedAt)
				info.Stale = info.Age > s.maxAge
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func decodeEnvelope(raw []byte) (time.Time, json.RawMessage, bool) {
	var env fileEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return time.Time{}, nil, false
	}
	if len(env.Data) == 0 {
		return time.Time{}, nil, false
	}
	cachedAt, ok := parseCachedAt(env.CachedAt)
	if !ok {
		return time.Time{}, nil, false
	}
	return cachedAt, env.Data, true
}

// parseCachedAt accepts RFC 3339 as well as the naive ISO form
// ("2025-01-02T15:04:05.999999") older cache files were written with.
func parseCachedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
