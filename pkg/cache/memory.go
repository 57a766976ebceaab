package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// MemoryStore is an in-process Store. Each placeholder has its own lock so
// writes for different placeholders never wait on each other.
type MemoryStore struct {
	log   logrus.FieldLogger
	clock clockwork.Clock
	cfg   *Config

	mu        sync.RWMutex
	buckets   map[string]*bucket
	templates map[string]map[string]struct{}
}

type bucket struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(log logrus.FieldLogger, clock clockwork.Clock, cfg *Config) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &MemoryStore{
		log:       log.WithField("component", "cache_store"),
		clock:     clock,
		cfg:       cfg,
		buckets:   make(map[string]*bucket),
		templates: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) bucket(placeholderID string, create bool) *bucket {
	s.mu.RLock()
	b, ok := s.buckets[placeholderID]
	s.mu.RUnlock()

	if ok || !create {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok = s.buckets[placeholderID]; !ok {
		b = &bucket{}
		s.buckets[placeholderID] = b
	}

	return b
}

// Lookup implements Store
func (s *MemoryStore) Lookup(_ context.Context, placeholderID, dataSourceID string) *Entry {
	b := s.bucket(placeholderID, false)
	if b == nil {
		return nil
	}

	key := CacheKey(placeholderID, dataSourceID)
	now := s.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(b.entries) - 1; i >= 0; i-- {
		e := b.entries[i]
		if e.CacheKey != key || !e.Fresh(now) {
			continue
		}

		e.HitCount++
		e.LastHitAt = now
		b.entries[i] = e

		return &e
	}

	return nil
}

// Put implements Store. The demoted copy of the bucket is swapped in together
// with the new row, so readers never observe two latest versions.
func (s *MemoryStore) Put(_ context.Context, placeholderID, dataSourceID string, result Result, info *ExecutionInfo) (*Entry, error) {
	if placeholderID == "" {
		return nil, ErrPlaceholderIDRequired
	}

	b := s.bucket(placeholderID, true)
	now := s.clock.Now()
	entry := newEntry(uuid.NewString(), placeholderID, dataSourceID, result, info, now, s.cfg.ttl(result.TTLHours))

	b.mu.Lock()

	next := make([]Entry, 0, len(b.entries)+1)
	for _, e := range b.entries {
		e.IsLatestVersion = false
		next = append(next, e)
	}

	b.entries = append(next, entry)
	b.mu.Unlock()

	if entry.TemplateID != "" {
		s.mu.Lock()
		if s.templates[entry.TemplateID] == nil {
			s.templates[entry.TemplateID] = make(map[string]struct{})
		}
		s.templates[entry.TemplateID][placeholderID] = struct{}{}
		s.mu.Unlock()
	}

	s.log.WithFields(logrus.Fields{
		"placeholder":  placeholderID,
		"data_source":  dataSourceID,
		"cache_key":    entry.CacheKey,
		"version_hash": entry.VersionHash,
	}).Debug("Stored cache entry")

	return &entry, nil
}

// Invalidate implements Store
func (s *MemoryStore) Invalidate(_ context.Context, templateID string) (int, error) {
	s.mu.RLock()
	placeholderIDs := make([]string, 0, len(s.templates[templateID]))
	for id := range s.templates[templateID] {
		placeholderIDs = append(placeholderIDs, id)
	}
	s.mu.RUnlock()

	now := s.clock.Now()
	count := 0

	for _, id := range placeholderIDs {
		b := s.bucket(id, false)
		if b == nil {
			continue
		}

		b.mu.Lock()
		for i := range b.entries {
			if b.entries[i].ExpiresAt.After(now) {
				b.entries[i].ExpiresAt = now
				count++
			}
		}
		b.mu.Unlock()
	}

	s.log.WithFields(logrus.Fields{
		"template": templateID,
		"count":    count,
	}).Info("Invalidated cache entries")

	return count, nil
}

// History implements Store
func (s *MemoryStore) History(_ context.Context, placeholderID string) ([]Entry, error) {
	b := s.bucket(placeholderID, false)
	if b == nil {
		return []Entry{}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, len(b.entries))
	for i := len(b.entries) - 1; i >= 0; i-- {
		out = append(out, b.entries[i])
	}

	return out, nil
}

// Stats implements Store
func (s *MemoryStore) Stats(ctx context.Context, placeholderID string) (*Stats, error) {
	entries, err := s.History(ctx, placeholderID)
	if err != nil {
		return nil, err
	}

	return summarize(placeholderID, entries, s.clock.Now()), nil
}
