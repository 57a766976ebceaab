// Package cache stores versioned placeholder values keyed by placeholder and data source
package cache

import (
	"context"
	"time"
)

// Entry is an immutable cache row. Superseded rows are kept with
// IsLatestVersion=false; rows are never deleted.
type Entry struct {
	ID               string    `json:"id"`
	PlaceholderID    string    `json:"placeholder_id"`
	TemplateID       string    `json:"template_id,omitempty"`
	DataSourceID     string    `json:"data_source_id"`
	CacheKey         string    `json:"cache_key"`
	VersionHash      string    `json:"version_hash"`
	ExecutionBatchID string    `json:"execution_batch_id,omitempty"`
	RawResult        any       `json:"raw_result"`
	FormattedText    string    `json:"formatted_text"`
	Success          bool      `json:"success"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	HitCount         uint64    `json:"hit_count"`
	LastHitAt        time.Time `json:"last_hit_at,omitempty"`
	IsLatestVersion  bool      `json:"is_latest_version"`
}

// Fresh reports whether the entry can serve a lookup at now
func (e *Entry) Fresh(now time.Time) bool {
	return e.Success && e.IsLatestVersion && e.ExpiresAt.After(now)
}

// Result is the value handed to Put
type Result struct {
	TemplateID    string
	RawResult     any
	FormattedText string
	Success       bool
	// TTLHours overrides the store default when non-zero
	TTLHours uint
}

// ExecutionInfo describes the run that produced a result
type ExecutionInfo struct {
	ExecutionTime time.Time
	ReportPeriod  string
	FilledSQL     string
	SQLParameters map[string]any
}

// Stats summarises the versions stored for a placeholder
type Stats struct {
	PlaceholderID string `json:"placeholder_id"`
	Total         int    `json:"total"`
	Latest        int    `json:"latest"`
	Expired       int    `json:"expired"`
	Hits          uint64 `json:"hits"`
}

// Store is the cache versioning store
type Store interface {
	// Lookup returns the latest fresh successful entry or nil. A hit increments
	// the entry's hit count. Failures are logged and reported as a miss.
	Lookup(ctx context.Context, placeholderID, dataSourceID string) *Entry
	// Put stores a new latest version, demoting every prior entry of the placeholder
	Put(ctx context.Context, placeholderID, dataSourceID string, result Result, info *ExecutionInfo) (*Entry, error)
	// Invalidate expires every non-expired entry of the template's placeholders
	Invalidate(ctx context.Context, templateID string) (int, error)
	// History lists every stored version of a placeholder, newest first
	History(ctx context.Context, placeholderID string) ([]Entry, error)
	// Stats summarises the versions stored for a placeholder
	Stats(ctx context.Context, placeholderID string) (*Stats, error)
}
