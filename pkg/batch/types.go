package batch

import (
	"context"
	"time"

	"github.com/ethpandaops/placeholder-cache/pkg/timeinfer"
)

// Kind says how a placeholder is computed
type Kind string

const (
	// KindPeriod placeholders are computed from time alone
	KindPeriod Kind = "PERIOD"
	// KindSQL placeholders run a parameterised query
	KindSQL Kind = "SQL"
)

// Source says where a placeholder value came from
type Source string

const (
	// SourcePeriod values were computed from the base date
	SourcePeriod Source = "PERIOD"
	// SourceCache values were served from the cache store
	SourceCache Source = "CACHE"
	// SourceQuery values came from a fresh query
	SourceQuery Source = "QUERY"
	// SourceError marks failed placeholders
	SourceError Source = "ERROR"
)

// State is a placeholder's position in the per-run state machine:
// PENDING -> (PERIOD_COMPUTED | CACHE_HIT | QUERY_RUNNING) -> (DONE | FAILED).
// PlaceholderValue.State holds the terminal state and Via the intermediate one.
type State string

const (
	StatePending        State = "PENDING"
	StatePeriodComputed State = "PERIOD_COMPUTED"
	StateCacheHit       State = "CACHE_HIT"
	StateQueryRunning   State = "QUERY_RUNNING"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// PlaceholderSpec is an analysed placeholder. It is not modified during a run.
type PlaceholderSpec struct {
	// ID identifies the placeholder in the cache; Name is used when empty
	ID            string `yaml:"id" json:"id,omitempty"`
	Name          string `yaml:"name" json:"name"`
	TemplateID    string `yaml:"templateId" json:"template_id,omitempty"`
	DataSourceID  string `yaml:"dataSourceId" json:"data_source_id,omitempty"`
	Kind          Kind   `yaml:"kind" json:"kind"`
	SQLTemplate   string `yaml:"sqlTemplate" json:"sql_template,omitempty"`
	CacheTTLHours uint   `yaml:"cacheTTLHours" json:"cache_ttl_hours,omitempty"`
}

// PlaceholderID returns the id used for cache storage
func (p PlaceholderSpec) PlaceholderID() string {
	if p.ID != "" {
		return p.ID
	}

	return p.Name
}

// PlaceholderValue is the outcome for one placeholder
type PlaceholderValue struct {
	Success bool   `json:"success"`
	Value   any    `json:"value"`
	Source  Source `json:"source"`
	State   State  `json:"state"`
	// Via is the intermediate state the value passed through; empty when it
	// failed before reaching one
	Via             State  `json:"via,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
	CacheHit        bool   `json:"cache_hit"`
	Error           string `json:"error,omitempty"`
	// Warnings carries non-fatal notes such as unfilled template tokens
	Warnings []string `json:"warnings,omitempty"`
}

// Stats aggregates a batch run
type Stats struct {
	Total         int           `json:"total"`
	PeriodCount   int           `json:"period_count"`
	SQLCount      int           `json:"sql_count"`
	SuccessCount  int           `json:"success_count"`
	FailCount     int           `json:"fail_count"`
	CacheHitCount int           `json:"cache_hit_count"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// Result is the outcome of a batch run, keyed by placeholder name
type Result struct {
	BatchID           string                      `json:"batch_id"`
	PlaceholderValues map[string]PlaceholderValue `json:"placeholder_values"`
	Stats             Stats                       `json:"stats"`
}

// Request is the input of Run
type Request struct {
	Placeholders []PlaceholderSpec
	BaseDate     time.Time
	// Execution is nil for ad-hoc runs, which neither read nor write the cache
	Execution        *timeinfer.ExecutionContext
	AdditionalParams map[string]any
	// MaxConcurrency bounds in-flight queries; zero uses the executor default
	MaxConcurrency int
}

// QueryRunner executes filled SQL and returns its rows
type QueryRunner interface {
	Query(ctx context.Context, sql string) ([]map[string]any, error)
}
