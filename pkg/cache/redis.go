package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis layout, relative to the configured prefix:
//
//	{prefix}:entry:{id}            hash holding one Entry
//	{prefix}:placeholder:{pid}     set of entry ids for a placeholder
//	{prefix}:latest:{cache_key}    id of the latest entry for a cache key
//	{prefix}:template:{tid}        set of placeholder ids for a template
const (
	fieldID               = "id"
	fieldPlaceholderID    = "placeholder_id"
	fieldTemplateID       = "template_id"
	fieldDataSourceID     = "data_source_id"
	fieldCacheKey         = "cache_key"
	fieldVersionHash      = "version_hash"
	fieldExecutionBatchID = "execution_batch_id"
	fieldRawResult        = "raw_result"
	fieldFormattedText    = "formatted_text"
	fieldSuccess          = "success"
	fieldCreatedAt        = "created_at"
	fieldExpiresAt        = "expires_at"
	fieldHitCount         = "hit_count"
	fieldLastHitAt        = "last_hit_at"
	fieldIsLatestVersion  = "is_latest_version"
)

// RedisStore is a Store backed by Redis. Put runs the demote-then-insert
// sequence in a MULTI/EXEC guarded by WATCH on the placeholder's index key, so
// writers of the same placeholder serialise and other placeholders proceed.
type RedisStore struct {
	log    logrus.FieldLogger
	clock  clockwork.Clock
	cfg    *Config
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. prefix namespaces every key.
func NewRedisStore(log logrus.FieldLogger, clock clockwork.Clock, cfg *Config, client *redis.Client, prefix string) *RedisStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &RedisStore{
		log:    log.WithField("component", "cache_store"),
		clock:  clock,
		cfg:    cfg,
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) entryKey(id string) string {
	return fmt.Sprintf("%s:entry:%s", s.prefix, id)
}

func (s *RedisStore) placeholderKey(placeholderID string) string {
	return fmt.Sprintf("%s:placeholder:%s", s.prefix, placeholderID)
}

func (s *RedisStore) latestKey(cacheKey string) string {
	return fmt.Sprintf("%s:latest:%s", s.prefix, cacheKey)
}

func (s *RedisStore) templateKey(templateID string) string {
	return fmt.Sprintf("%s:template:%s", s.prefix, templateID)
}

// Lookup implements Store
func (s *RedisStore) Lookup(ctx context.Context, placeholderID, dataSourceID string) *Entry {
	cacheKey := CacheKey(placeholderID, dataSourceID)
	log := s.log.WithFields(logrus.Fields{
		"placeholder": placeholderID,
		"data_source": dataSourceID,
		"cache_key":   cacheKey,
	})

	id, err := s.client.Get(ctx, s.latestKey(cacheKey)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(fmt.Errorf("%w: %w", ErrCacheRead, err)).Warn("Cache lookup failed, treating as miss")
		}

		return nil
	}

	entry, err := s.load(ctx, id)
	if err != nil {
		log.WithError(fmt.Errorf("%w: %w", ErrCacheRead, err)).Warn("Cache lookup failed, treating as miss")

		return nil
	}

	now := s.clock.Now()
	if entry == nil || entry.CacheKey != cacheKey || !entry.Fresh(now) {
		return nil
	}

	pipe := s.client.TxPipeline()
	hits := pipe.HIncrBy(ctx, s.entryKey(id), fieldHitCount, 1)
	pipe.HSet(ctx, s.entryKey(id), fieldLastHitAt, formatTime(now))

	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).Warn("Failed to record cache hit")
	} else {
		entry.HitCount = uint64(hits.Val()) //nolint:gosec // counter only grows
		entry.LastHitAt = now
	}

	return entry
}

// Put implements Store
func (s *RedisStore) Put(ctx context.Context, placeholderID, dataSourceID string, result Result, info *ExecutionInfo) (*Entry, error) {
	if placeholderID == "" {
		return nil, ErrPlaceholderIDRequired
	}

	now := s.clock.Now()
	entry := newEntry(uuid.NewString(), placeholderID, dataSourceID, result, info, now, s.cfg.ttl(result.TTLHours))

	fields, err := encodeEntry(&entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}

	indexKey := s.placeholderKey(placeholderID)

	txf := func(tx *redis.Tx) error {
		ids, err := tx.SMembers(ctx, indexKey).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range ids {
				pipe.HSet(ctx, s.entryKey(id), fieldIsLatestVersion, "0")
			}

			pipe.HSet(ctx, s.entryKey(entry.ID), fields)
			pipe.SAdd(ctx, indexKey, entry.ID)
			pipe.Set(ctx, s.latestKey(entry.CacheKey), entry.ID, 0)

			if entry.TemplateID != "" {
				pipe.SAdd(ctx, s.templateKey(entry.TemplateID), placeholderID)
			}

			return nil
		})

		return err
	}

	retries := max(s.cfg.MaxWriteRetries, 1)

	for attempt := 0; attempt < retries; attempt++ {
		err = s.client.Watch(ctx, txf, indexKey)
		if err == nil {
			s.log.WithFields(logrus.Fields{
				"placeholder":  placeholderID,
				"data_source":  dataSourceID,
				"cache_key":    entry.CacheKey,
				"version_hash": entry.VersionHash,
				"attempt":      attempt + 1,
			}).Debug("Stored cache entry")

			return &entry, nil
		}

		if !errors.Is(err, redis.TxFailedErr) {
			return nil, fmt.Errorf("%w: %w", ErrCacheWrite, err)
		}
	}

	return nil, fmt.Errorf("%w: placeholder %s: %w", ErrCacheWrite, placeholderID, err)
}

// Invalidate implements Store
func (s *RedisStore) Invalidate(ctx context.Context, templateID string) (int, error) {
	placeholderIDs, err := s.client.SMembers(ctx, s.templateKey(templateID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list placeholders for template %s: %w", templateID, err)
	}

	now := s.clock.Now()
	count := 0

	for _, placeholderID := range placeholderIDs {
		ids, err := s.client.SMembers(ctx, s.placeholderKey(placeholderID)).Result()
		if err != nil {
			return count, fmt.Errorf("failed to list entries for placeholder %s: %w", placeholderID, err)
		}

		for _, id := range ids {
			raw, err := s.client.HGet(ctx, s.entryKey(id), fieldExpiresAt).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}

				return count, fmt.Errorf("failed to read entry %s: %w", id, err)
			}

			expiresAt, err := parseTime(raw)
			if err != nil || !expiresAt.After(now) {
				continue
			}

			if err := s.client.HSet(ctx, s.entryKey(id), fieldExpiresAt, formatTime(now)).Err(); err != nil {
				return count, fmt.Errorf("failed to expire entry %s: %w", id, err)
			}

			count++
		}
	}

	s.log.WithFields(logrus.Fields{
		"template": templateID,
		"count":    count,
	}).Info("Invalidated cache entries")

	return count, nil
}

// History implements Store
func (s *RedisStore) History(ctx context.Context, placeholderID string) ([]Entry, error) {
	ids, err := s.client.SMembers(ctx, s.placeholderKey(placeholderID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheRead, err)
	}

	entries := make([]Entry, 0, len(ids))

	for _, id := range ids {
		entry, err := s.load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCacheRead, err)
		}

		if entry != nil {
			entries = append(entries, *entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	return entries, nil
}

// Stats implements Store
func (s *RedisStore) Stats(ctx context.Context, placeholderID string) (*Stats, error) {
	entries, err := s.History(ctx, placeholderID)
	if err != nil {
		return nil, err
	}

	return summarize(placeholderID, entries, s.clock.Now()), nil
}

func (s *RedisStore) load(ctx context.Context, id string) (*Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.entryKey(id)).Result()
	if err != nil {
		return nil, err
	}

	if len(fields) == 0 {
		return nil, nil
	}

	return decodeEntry(fields)
}

func encodeEntry(e *Entry) (map[string]interface{}, error) {
	raw, err := json.Marshal(e.RawResult)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize raw result: %w", err)
	}

	return map[string]interface{}{
		fieldID:               e.ID,
		fieldPlaceholderID:    e.PlaceholderID,
		fieldTemplateID:       e.TemplateID,
		fieldDataSourceID:     e.DataSourceID,
		fieldCacheKey:         e.CacheKey,
		fieldVersionHash:      e.VersionHash,
		fieldExecutionBatchID: e.ExecutionBatchID,
		fieldRawResult:        string(raw),
		fieldFormattedText:    e.FormattedText,
		fieldSuccess:          formatBool(e.Success),
		fieldCreatedAt:        formatTime(e.CreatedAt),
		fieldExpiresAt:        formatTime(e.ExpiresAt),
		fieldHitCount:         strconv.FormatUint(e.HitCount, 10),
		fieldLastHitAt:        formatTime(e.LastHitAt),
		fieldIsLatestVersion:  formatBool(e.IsLatestVersion),
	}, nil
}

func decodeEntry(fields map[string]string) (*Entry, error) {
	e := &Entry{
		ID:               fields[fieldID],
		PlaceholderID:    fields[fieldPlaceholderID],
		TemplateID:       fields[fieldTemplateID],
		DataSourceID:     fields[fieldDataSourceID],
		CacheKey:         fields[fieldCacheKey],
		VersionHash:      fields[fieldVersionHash],
		ExecutionBatchID: fields[fieldExecutionBatchID],
		FormattedText:    fields[fieldFormattedText],
		Success:          fields[fieldSuccess] == "1",
		IsLatestVersion:  fields[fieldIsLatestVersion] == "1",
	}

	var err error

	if raw := fields[fieldRawResult]; raw != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()

		if err = dec.Decode(&e.RawResult); err != nil {
			return nil, fmt.Errorf("failed to decode raw result of entry %s: %w", e.ID, err)
		}
	}

	if e.CreatedAt, err = parseTime(fields[fieldCreatedAt]); err != nil {
		return nil, err
	}

	if e.ExpiresAt, err = parseTime(fields[fieldExpiresAt]); err != nil {
		return nil, err
	}

	if e.LastHitAt, err = parseTime(fields[fieldLastHitAt]); err != nil {
		return nil, err
	}

	if hits := fields[fieldHitCount]; hits != "" {
		if e.HitCount, err = strconv.ParseUint(hits, 10, 64); err != nil {
			return nil, fmt.Errorf("failed to parse hit count of entry %s: %w", e.ID, err)
		}
	}

	return e, nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}

	return "0"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}

	return t, nil
}
