// Package batch computes the placeholder values of one report run
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethpandaops/placeholder-cache/pkg/cache"
	"github.com/ethpandaops/placeholder-cache/pkg/observability"
	"github.com/ethpandaops/placeholder-cache/pkg/params"
	"github.com/ethpandaops/placeholder-cache/pkg/sqltemplate"
	"github.com/ethpandaops/placeholder-cache/pkg/timeinfer"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const sqlPreviewLength = 500

// Executor resolves batches of placeholders. Period placeholders are computed
// inline; SQL placeholders go through a bounded pool that checks the cache,
// runs the query on a miss and stores the new version.
type Executor struct {
	log     logrus.FieldLogger
	clock   clockwork.Clock
	builder *params.Builder
	store   cache.Store
	runner  QueryRunner
	cfg     *Config
}

// NewExecutor creates a new batch executor. store may be nil, in which case
// every run behaves like an ad-hoc run.
func NewExecutor(log logrus.FieldLogger, clock clockwork.Clock, builder *params.Builder, store cache.Store, runner QueryRunner, cfg *Config) (*Executor, error) {
	if builder == nil {
		return nil, ErrParamBuilderRequired
	}

	if runner == nil {
		return nil, ErrQueryRunnerRequired
	}

	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Executor{
		log:     log.WithField("component", "batch_executor"),
		clock:   clock,
		builder: builder,
		store:   store,
		runner:  runner,
		cfg:     cfg,
	}, nil
}

// Run resolves every placeholder in req. Only batch-wide problems (an invalid
// base date or concurrency) are returned as errors; anything scoped to one
// placeholder is recorded as a FAILED value and the batch carries on.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	started := e.clock.Now()
	batchID := uuid.NewString()
	log := e.log.WithField("batch_id", batchID)

	concurrency := req.MaxConcurrency
	if concurrency == 0 {
		concurrency = e.cfg.MaxConcurrency
	}

	if concurrency < 0 {
		return nil, ErrInvalidConcurrency
	}

	ps, err := e.builder.Build(req.BaseDate, e.cfg.TimezoneOffsetHours, req.AdditionalParams)
	if err != nil {
		return nil, err
	}

	values := make([]PlaceholderValue, len(req.Placeholders))
	queued := make([]int, 0, len(req.Placeholders))

	// Step 1: period placeholders and obviously broken SQL placeholders, no I/O.
	for i, spec := range req.Placeholders {
		switch spec.Kind {
		case KindPeriod:
			values[i] = e.resolvePeriod(spec, req.BaseDate)
		case KindSQL:
			if strings.TrimSpace(spec.SQLTemplate) == "" {
				values[i] = failed(fmt.Errorf("%w for placeholder %q", ErrEmptySQLTemplate, spec.Name), 0)

				continue
			}

			validation := sqltemplate.Validate(spec.SQLTemplate)
			if !validation.Valid {
				values[i] = failed(validation.Err(), 0)

				continue
			}

			if len(validation.Warnings) > 0 {
				log.WithFields(logrus.Fields{
					"placeholder": spec.Name,
					"warnings":    validation.Warnings,
				}).Warn("SQL template has warnings")
			}

			values[i] = PlaceholderValue{State: StatePending, Warnings: validation.Warnings}
			queued = append(queued, i)
		default:
			values[i] = failed(fmt.Errorf("unknown placeholder kind %q for %q", spec.Kind, spec.Name), 0)
		}
	}

	// Step 2: SQL placeholders through the bounded pool.
	if len(queued) > 0 {
		e.runQueued(ctx, log, req, ps, queued, values, concurrency)
	}

	result := &Result{
		BatchID:           batchID,
		PlaceholderValues: make(map[string]PlaceholderValue, len(req.Placeholders)),
	}

	for i, spec := range req.Placeholders {
		key := spec.Name
		if _, exists := result.PlaceholderValues[key]; exists {
			key = fmt.Sprintf("%s#%d", spec.Name, i)
			log.WithField("placeholder", spec.Name).Warn("Duplicate placeholder name in batch")
		}

		v := values[i]
		result.PlaceholderValues[key] = v

		if spec.Kind == KindPeriod {
			result.Stats.PeriodCount++
		} else {
			result.Stats.SQLCount++
		}

		if v.Success {
			result.Stats.SuccessCount++
		} else {
			result.Stats.FailCount++
		}

		if v.CacheHit {
			result.Stats.CacheHitCount++
		}

		observability.RecordPlaceholder(string(spec.Kind), string(v.Source), v.Success)
	}

	result.Stats.Total = len(req.Placeholders)
	result.Stats.ExecutionTime = e.clock.Since(started)

	observability.RecordBatch(result.Stats.ExecutionTime.Seconds())

	log.WithFields(logrus.Fields{
		"total":       result.Stats.Total,
		"period":      result.Stats.PeriodCount,
		"sql":         result.Stats.SQLCount,
		"success":     result.Stats.SuccessCount,
		"failed":      result.Stats.FailCount,
		"cache_hits":  result.Stats.CacheHitCount,
		"duration_ms": result.Stats.ExecutionTime.Milliseconds(),
	}).Info("Batch completed")

	return result, nil
}

func (e *Executor) runQueued(ctx context.Context, log logrus.FieldLogger, req Request, ps *params.ParameterSet, queued []int, values []PlaceholderValue, concurrency int) {
	pool := pond.NewResultPool[PlaceholderValue](concurrency)
	defer pool.StopAndWait()

	group := pool.NewGroup()

	for _, i := range queued {
		spec := req.Placeholders[i]
		warnings := values[i].Warnings

		group.Submit(func() PlaceholderValue {
			v := e.resolveSQL(ctx, log, spec, ps, req.Execution)
			v.Warnings = append(warnings, v.Warnings...)

			return v
		})
	}

	results, err := group.Wait()
	if err != nil {
		log.WithError(err).Error("Placeholder task group failed")
	}

	for j, i := range queued {
		if j < len(results) && results[j].State != "" {
			values[i] = results[j]

			continue
		}

		values[i] = failed(fmt.Errorf("placeholder task did not complete: %w", err), 0)
	}
}

func (e *Executor) resolvePeriod(spec PlaceholderSpec, baseDate time.Time) PlaceholderValue {
	value := sqltemplate.ComputePeriodValue(sqltemplate.DisplayName(spec.Name), baseDate, e.clock.Now())

	if sqltemplate.IsUnrecognizedPeriod(value) {
		return PlaceholderValue{
			Success: false,
			Value:   value,
			Source:  SourceError,
			State:   StateFailed,
			Via:     StatePeriodComputed,
			Error:   fmt.Errorf("%w: %q", ErrUnrecognizedPeriod, spec.Name).Error(),
		}
	}

	return PlaceholderValue{
		Success: true,
		Value:   value,
		Source:  SourcePeriod,
		State:   StateDone,
		Via:     StatePeriodComputed,
	}
}

func (e *Executor) resolveSQL(ctx context.Context, log logrus.FieldLogger, spec PlaceholderSpec, ps *params.ParameterSet, execCtx *timeinfer.ExecutionContext) (out PlaceholderValue) {
	start := e.clock.Now()
	placeholderID := spec.PlaceholderID()
	name := sqltemplate.DisplayName(spec.Name)

	log = log.WithFields(logrus.Fields{
		"placeholder": spec.Name,
		"data_source": spec.DataSourceID,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Placeholder resolution panicked")
			out = failed(fmt.Errorf("placeholder %q panicked: %v", spec.Name, r), e.clock.Since(start))
		}
	}()

	if err := ctx.Err(); err != nil {
		return failed(fmt.Errorf("%w: %w", ErrBatchCancelled, err), 0)
	}

	caching := execCtx != nil && e.store != nil

	if caching {
		if entry := e.store.Lookup(ctx, placeholderID, spec.DataSourceID); entry != nil {
			observability.RecordCacheLookup(true)

			value := FormatValue(name, entry.RawResult)

			log.WithFields(logrus.Fields{
				"cache_key":    entry.CacheKey,
				"version_hash": entry.VersionHash,
				"hit_count":    entry.HitCount,
			}).Debug("Placeholder served from cache")

			return PlaceholderValue{
				Success:         value != nil,
				Value:           value,
				Source:          SourceCache,
				State:           StateDone,
				Via:             StateCacheHit,
				CacheHit:        true,
				ExecutionTimeMS: e.clock.Since(start).Milliseconds(),
			}
		}

		observability.RecordCacheLookup(false)
	}

	filled, missing := sqltemplate.Fill(spec.SQLTemplate, ps.Map())

	var warnings []string

	if len(missing) > 0 {
		warning := (&sqltemplate.MissingParametersError{Keys: missing}).Error()
		warnings = append(warnings, warning)
		log.WithField("missing", missing).Warn("SQL template has unfilled parameters")
	}

	log.WithField("sql_preview", preview(filled)).Debug("Executing placeholder query")

	observability.RecordQueryStart()
	queryStart := e.clock.Now()

	// In-flight queries run to completion even if the batch is cancelled.
	rows, err := e.runner.Query(context.WithoutCancel(ctx), filled)

	observability.RecordQueryComplete(err == nil, e.clock.Since(queryStart).Seconds())

	if ctxErr := ctx.Err(); ctxErr != nil {
		v := failed(fmt.Errorf("%w: result discarded: %w", ErrBatchCancelled, ctxErr), e.clock.Since(start))
		v.Via = StateQueryRunning

		return v
	}

	if err != nil {
		log.WithError(err).WithField("sql_preview", preview(filled)).Error("Placeholder query failed")

		v := failed(fmt.Errorf("%w: %w", ErrQueryExecution, err), e.clock.Since(start))
		v.Via = StateQueryRunning
		v.Warnings = warnings

		return v
	}

	unpacked := Unpack(rows)
	value := FormatValue(name, unpacked.Value())

	if value != nil && caching {
		_, err := e.store.Put(ctx, placeholderID, spec.DataSourceID, cache.Result{
			TemplateID:    spec.TemplateID,
			RawResult:     unpacked.Value(),
			FormattedText: FormattedText(value),
			Success:       true,
			TTLHours:      spec.CacheTTLHours,
		}, &cache.ExecutionInfo{
			ExecutionTime: execCtx.NominalTime,
			ReportPeriod:  execCtx.ReportPeriod,
			FilledSQL:     filled,
			SQLParameters: ps.Map(),
		})

		observability.RecordCacheWrite(err)

		if err != nil {
			log.WithError(err).Warn("Failed to cache placeholder value, continuing without cache")
			warnings = append(warnings, err.Error())
		}
	}

	log.WithFields(logrus.Fields{
		"result_kind": unpacked.Kind.String(),
		"duration_ms": e.clock.Since(start).Milliseconds(),
	}).Debug("Placeholder query completed")

	return PlaceholderValue{
		Success:         value != nil,
		Value:           value,
		Source:          SourceQuery,
		State:           StateDone,
		Via:             StateQueryRunning,
		ExecutionTimeMS: e.clock.Since(start).Milliseconds(),
		Warnings:        warnings,
	}
}

func failed(err error, elapsed time.Duration) PlaceholderValue {
	return PlaceholderValue{
		Success:         false,
		Value:           err.Error(),
		Source:          SourceError,
		State:           StateFailed,
		ExecutionTimeMS: elapsed.Milliseconds(),
		Error:           err.Error(),
	}
}

func preview(sql string) string {
	if len(sql) > sqlPreviewLength {
		return sql[:sqlPreviewLength] + "..."
	}

	return sql
}
