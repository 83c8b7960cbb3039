package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mcpwatch/gateway/internal/domain/upstream"
)

// UpstreamStore implements upstream.Store with a case-insensitive,
// RWMutex-guarded map. Deep-copies on read and write to prevent external
// mutation of stored data, following the teacher's store convention.
type UpstreamStore struct {
	mu   sync.RWMutex
	byID map[string]*upstream.McpServer // keyed by normalized name
	fp   map[string]uint64              // normalized name -> header-set fingerprint
}

// NewUpstreamStore creates an empty in-memory registry.
func NewUpstreamStore() *UpstreamStore {
	return &UpstreamStore{
		byID: make(map[string]*upstream.McpServer),
		fp:   make(map[string]uint64),
	}
}

// headerFingerprint hashes a static header set so the registry can spot the
// same credentials accidentally registered twice under different names. Two
// empty sets never count as a match.
func headerFingerprint(headers map[string]string) uint64 {
	if len(headers) == 0 {
		return 0
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := xxhash.New()
	for _, k := range keys {
		h.WriteString(k)
		h.WriteString("=")
		h.WriteString(headers[k])
		h.WriteString(";")
	}
	return h.Sum64()
}

func (s *UpstreamStore) Get(_ context.Context, name string) (*upstream.McpServer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	srv, ok := s.byID[upstream.NormalizeName(name)]
	if !ok {
		return nil, upstream.ErrUpstreamNotFound
	}
	return copyServer(srv), nil
}

func (s *UpstreamStore) List(_ context.Context) ([]upstream.McpServer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]upstream.McpServer, 0, len(s.byID))
	for _, srv := range s.byID {
		out = append(out, *copyServer(srv))
	}
	return out, nil
}

func (s *UpstreamStore) Add(_ context.Context, srv *upstream.McpServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := upstream.NormalizeName(srv.Name)
	if _, exists := s.byID[key]; exists {
		return upstream.ErrUpstreamExists
	}
	now := time.Now().UTC()
	c := copyServer(srv)
	c.URL = upstream.NormalizeURL(c.URL)
	if c.Health == "" {
		c.Health = upstream.HealthUnknown
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	s.byID[key] = c
	s.fp[key] = headerFingerprint(c.Headers)
	return nil
}

func (s *UpstreamStore) Update(_ context.Context, srv *upstream.McpServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := upstream.NormalizeName(srv.Name)
	existing, ok := s.byID[key]
	if !ok {
		return upstream.ErrUpstreamNotFound
	}
	c := copyServer(srv)
	c.URL = upstream.NormalizeURL(c.URL)
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.byID[key] = c
	s.fp[key] = headerFingerprint(c.Headers)
	return nil
}

func (s *UpstreamStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := upstream.NormalizeName(name)
	if _, ok := s.byID[key]; !ok {
		return upstream.ErrUpstreamNotFound
	}
	delete(s.byID, key)
	delete(s.fp, key)
	return nil
}

// DuplicateHeaderSets returns the names of other registered upstreams whose
// static header set is byte-identical to name's — the registry-dedup check
// that catches the same credentials accidentally registered under two
// different names. An upstream with no static headers never reports
// duplicates.
func (s *UpstreamStore) DuplicateHeaderSets(_ context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := upstream.NormalizeName(name)
	target, ok := s.fp[key]
	if !ok {
		return nil, upstream.ErrUpstreamNotFound
	}
	if target == 0 {
		return nil, nil
	}
	var dupes []string
	for k, fp := range s.fp {
		if k == key || fp != target {
			continue
		}
		dupes = append(dupes, s.byID[k].Name)
	}
	return dupes, nil
}

func (s *UpstreamStore) Touch(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := upstream.NormalizeName(name)
	srv, ok := s.byID[key]
	if !ok {
		return upstream.ErrUpstreamNotFound
	}
	now := time.Now().UTC()
	srv.LastActivity = &now
	srv.ExchangeCount++
	srv.UpdatedAt = now
	return nil
}

func (s *UpstreamStore) SetHealth(_ context.Context, name string, h upstream.Health) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := upstream.NormalizeName(name)
	srv, ok := s.byID[key]
	if !ok {
		return upstream.ErrUpstreamNotFound
	}
	now := time.Now().UTC()
	srv.Health = h
	srv.LastHealthCheck = &now
	srv.UpdatedAt = now
	return nil
}

func copyServer(s *upstream.McpServer) *upstream.McpServer {
	c := *s
	if s.Headers != nil {
		c.Headers = make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			c.Headers[k] = v
		}
	}
	if s.LastActivity != nil {
		t := *s.LastActivity
		c.LastActivity = &t
	}
	if s.LastHealthCheck != nil {
		t := *s.LastHealthCheck
		c.LastHealthCheck = &t
	}
	return &c
}

// Compile-time interface verification.
var _ upstream.Store = (*UpstreamStore)(nil)
