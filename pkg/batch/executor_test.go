package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethpandaops/placeholder-cache/internal/testutil"
	"github.com/ethpandaops/placeholder-cache/pkg/cache"
	"github.com/ethpandaops/placeholder-cache/pkg/params"
	"github.com/ethpandaops/placeholder-cache/pkg/timeinfer"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow  = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	testBase = time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	clock    *clockwork.FakeClock
	runner   *testutil.FakeRunner
	store    cache.Store
	executor *Executor
}

func newFixture(t *testing.T, store cache.Store) *fixture {
	t.Helper()

	log := testutil.NewLogger(t)
	clock := clockwork.NewFakeClockAt(testNow)
	runner := testutil.NewFakeRunner()

	if store == nil {
		store = cache.NewMemoryStore(log, clock, &cache.Config{DefaultTTLHours: 24, MaxWriteRetries: 5})
	}

	executor, err := NewExecutor(log, clock, params.NewBuilder(log, clock, nil), store, runner, DefaultConfig())
	require.NoError(t, err)

	return &fixture{clock: clock, runner: runner, store: store, executor: executor}
}

func scheduled() *timeinfer.ExecutionContext {
	return &timeinfer.ExecutionContext{
		CronExpression: "0 9 * * *",
		NominalTime:    testNow,
		ReportPeriod:   "2024-06-09",
	}
}

func sqlSpec(name, tag string) PlaceholderSpec {
	return PlaceholderSpec{
		Name:         name,
		TemplateID:   "tpl-1",
		DataSourceID: "ds-1",
		Kind:         KindSQL,
		SQLTemplate:  fmt.Sprintf("SELECT count(*) AS c FROM orders WHERE tag = '%s' AND dt = {{base_date}}", tag),
	}
}

func TestNewExecutor(t *testing.T) {
	log := testutil.NewLogger(t)
	builder := params.NewBuilder(log, nil, nil)

	_, err := NewExecutor(log, nil, builder, nil, nil, nil)
	require.ErrorIs(t, err, ErrQueryRunnerRequired)

	_, err = NewExecutor(log, nil, nil, nil, testutil.NewFakeRunner(), nil)
	require.ErrorIs(t, err, ErrParamBuilderRequired)

	_, err = NewExecutor(log, nil, builder, nil, testutil.NewFakeRunner(), &Config{MaxConcurrency: 0})
	require.ErrorIs(t, err, ErrInvalidConcurrency)

	e, err := NewExecutor(log, nil, builder, nil, testutil.NewFakeRunner(), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxConcurrency, e.cfg.MaxConcurrency)
}

func TestExecutor_FailureIsolation(t *testing.T) {
	f := newFixture(t, nil)

	specs := make([]PlaceholderSpec, 0, 5)
	for i := 1; i <= 5; i++ {
		tag := fmt.Sprintf("p%d", i)
		specs = append(specs, sqlSpec("metric_"+tag, tag))

		if i == 3 {
			f.runner.On("'"+tag+"'", testutil.QueryResponse{Err: errors.New("connection reset")})

			continue
		}

		f.runner.On("'"+tag+"'", testutil.QueryResponse{Rows: []map[string]any{{"c": i * 10}}})
	}

	result, err := f.executor.Run(context.Background(), Request{
		Placeholders: specs,
		BaseDate:     testBase,
		Execution:    scheduled(),
	})
	require.NoError(t, err)
	require.Len(t, result.PlaceholderValues, 5)

	for i := 1; i <= 5; i++ {
		v := result.PlaceholderValues[fmt.Sprintf("metric_p%d", i)]

		if i == 3 {
			assert.False(t, v.Success)
			assert.Equal(t, StateFailed, v.State)
			assert.Equal(t, SourceError, v.Source)
			assert.Equal(t, StateQueryRunning, v.Via)
			assert.Contains(t, v.Error, ErrQueryExecution.Error())
			assert.Contains(t, v.Error, "connection reset")
			assert.Equal(t, v.Error, v.Value)

			continue
		}

		assert.True(t, v.Success, "placeholder %d", i)
		assert.Equal(t, StateDone, v.State)
		assert.Equal(t, StateQueryRunning, v.Via)
		assert.Equal(t, SourceQuery, v.Source)
		assert.Equal(t, i*10, v.Value)
	}

	assert.Equal(t, Stats{
		Total:         5,
		SQLCount:      5,
		SuccessCount:  4,
		FailCount:     1,
		ExecutionTime: 0,
	}, result.Stats)
	assert.NotEmpty(t, result.BatchID)
}

func TestExecutor_PercentageFormatting(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.On("share", testutil.QueryResponse{Rows: []map[string]any{{"ratio": 42.5}}})

	result, err := f.executor.Run(context.Background(), Request{
		Placeholders: []PlaceholderSpec{
			{Name: "销售额占比", Kind: KindSQL, SQLTemplate: "SELECT ratio FROM share"},
			{Name: "销售额占比图表", Kind: KindSQL, SQLTemplate: "SELECT ratio FROM share_chart"},
		},
		BaseDate: testBase,
	})
	require.NoError(t, err)

	assert.Equal(t, "42.5%", result.PlaceholderValues["销售额占比"].Value)
	assert.Equal(t, 42.5, result.PlaceholderValues["销售额占比图表"].Value)
}

func TestExecutor_ResultShapes(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.
		On("from_scalar", testutil.QueryResponse{Rows: []map[string]any{{"count": 5}}}).
		On("from_row", testutil.QueryResponse{Rows: []map[string]any{{"a": 1, "b": 2}}}).
		On("from_rows", testutil.QueryResponse{Rows: []map[string]any{{"x": 1}, {"x": 2}}}).
		On("from_empty", testutil.QueryResponse{Rows: []map[string]any{}})

	result, err := f.executor.Run(context.Background(), Request{
		Placeholders: []PlaceholderSpec{
			{Name: "scalar", Kind: KindSQL, SQLTemplate: "SELECT count FROM from_scalar"},
			{Name: "row", Kind: KindSQL, SQLTemplate: "SELECT a, b FROM from_row"},
			{Name: "rows", Kind: KindSQL, SQLTemplate: "SELECT x FROM from_rows"},
			{Name: "empty", Kind: KindSQL, SQLTemplate: "SELECT x FROM from_empty"},
		},
		BaseDate: testBase,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, result.PlaceholderValues["scalar"].Value)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, result.PlaceholderValues["row"].Value)
	assert.Equal(t, []map[string]any{{"x": 1}, {"x": 2}}, result.PlaceholderValues["rows"].Value)

	empty := result.PlaceholderValues["empty"]
	assert.Nil(t, empty.Value)
	assert.False(t, empty.Success)
	assert.Equal(t, StateDone, empty.State)

	assert.Equal(t, 3, result.Stats.SuccessCount)
	assert.Equal(t, 1, result.Stats.FailCount)
}

func TestExecutor_ConcurrencyBound(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.On("orders", testutil.QueryResponse{
		Rows:  []map[string]any{{"c": 1}},
		Delay: 20 * time.Millisecond,
	})

	specs := make([]PlaceholderSpec, 0, 10)
	for i := range 10 {
		specs = append(specs, sqlSpec(fmt.Sprintf("m%d", i), fmt.Sprintf("t%d", i)))
	}

	result, err := f.executor.Run(context.Background(), Request{
		Placeholders:   specs,
		BaseDate:       testBase,
		MaxConcurrency: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, result.Stats.SuccessCount)
	assert.Len(t, f.runner.Queries(), 10)
	assert.LessOrEqual(t, f.runner.PeakConcurrency(), 2)
	assert.GreaterOrEqual(t, f.runner.PeakConcurrency(), 1)
}

func TestExecutor_CacheHitOnSecondRun(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.On("'p1'", testutil.QueryResponse{Rows: []map[string]any{{"c": 7}}})

	req := Request{
		Placeholders: []PlaceholderSpec{sqlSpec("orders", "p1")},
		BaseDate:     testBase,
		Execution:    scheduled(),
	}

	first, err := f.executor.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourceQuery, first.PlaceholderValues["orders"].Source)
	assert.False(t, first.PlaceholderValues["orders"].CacheHit)

	f.clock.Advance(time.Hour)

	second, err := f.executor.Run(context.Background(), req)
	require.NoError(t, err)

	v := second.PlaceholderValues["orders"]
	assert.True(t, v.Success)
	assert.True(t, v.CacheHit)
	assert.Equal(t, SourceCache, v.Source)
	assert.Equal(t, StateCacheHit, v.Via)
	assert.Equal(t, 7, v.Value)
	assert.Equal(t, 1, second.Stats.CacheHitCount)
	assert.Len(t, f.runner.Queries(), 1)

	history, err := f.store.History(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "tpl-1", history[0].TemplateID)
	assert.Equal(t, uint64(1), history[0].HitCount)
	assert.Equal(t, cache.ExecutionBatchID(testNow, "2024-06-09", "orders"), history[0].ExecutionBatchID)
}

func TestExecutor_CachedPercentageIsFormatted(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.On("share", testutil.QueryResponse{Rows: []map[string]any{{"ratio": 42.5}}})

	req := Request{
		Placeholders: []PlaceholderSpec{{Name: "销售额占比", Kind: KindSQL, SQLTemplate: "SELECT ratio FROM share"}},
		BaseDate:     testBase,
		Execution:    scheduled(),
	}

	_, err := f.executor.Run(context.Background(), req)
	require.NoError(t, err)

	result, err := f.executor.Run(context.Background(), req)
	require.NoError(t, err)

	v := result.PlaceholderValues["销售额占比"]
	assert.True(t, v.CacheHit)
	assert.Equal(t, "42.5%", v.Value)
}

func TestExecutor_AdHocRunSkipsCache(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.On("'p1'", testutil.QueryResponse{Rows: []map[string]any{{"c": 7}}})

	req := Request{
		Placeholders: []PlaceholderSpec{sqlSpec("orders", "p1")},
		BaseDate:     testBase,
	}

	for range 2 {
		result, err := f.executor.Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, SourceQuery, result.PlaceholderValues["orders"].Source)
		assert.Zero(t, result.Stats.CacheHitCount)
	}

	assert.Len(t, f.runner.Queries(), 2)

	history, err := f.store.History(context.Background(), "orders")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestExecutor_PlaceholderFailures(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.executor.Run(context.Background(), Request{
		Placeholders: []PlaceholderSpec{
			{Name: "blank", Kind: KindSQL, SQLTemplate: "   "},
			{Name: "not_select", Kind: KindSQL, SQLTemplate: "DELETE FROM orders"},
			{Name: "季度总结", Kind: KindPeriod},
			{Name: "mystery", Kind: "OTHER"},
			{Name: "昨天", Kind: KindPeriod},
		},
		BaseDate: testBase,
	})
	require.NoError(t, err)
	require.Len(t, result.PlaceholderValues, 5)

	blank := result.PlaceholderValues["blank"]
	assert.Equal(t, StateFailed, blank.State)
	assert.Contains(t, blank.Error, ErrEmptySQLTemplate.Error())

	notSelect := result.PlaceholderValues["not_select"]
	assert.Equal(t, StateFailed, notSelect.State)
	assert.Contains(t, notSelect.Error, "sql template validation failed")

	period := result.PlaceholderValues["季度总结"]
	assert.False(t, period.Success)
	assert.Equal(t, "UnrecognizedPeriodPlaceholder: 季度总结", period.Value)
	assert.Contains(t, period.Error, ErrUnrecognizedPeriod.Error())
	assert.Equal(t, StatePeriodComputed, period.Via)

	assert.Equal(t, StateFailed, result.PlaceholderValues["mystery"].State)
	assert.Empty(t, result.PlaceholderValues["mystery"].Via)

	yesterday := result.PlaceholderValues["昨天"]
	assert.True(t, yesterday.Success)
	assert.Equal(t, SourcePeriod, yesterday.Source)
	assert.Equal(t, StatePeriodComputed, yesterday.Via)
	assert.Equal(t, "2024-06-08", yesterday.Value)

	assert.Empty(t, f.runner.Queries())
	assert.Equal(t, 2, result.Stats.PeriodCount)
	assert.Equal(t, 3, result.Stats.SQLCount)
	assert.Equal(t, 1, result.Stats.SuccessCount)
	assert.Equal(t, 4, result.Stats.FailCount)
}

func TestExecutor_MissingParameterIsWarning(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.On("region", testutil.QueryResponse{Rows: []map[string]any{{"c": 3}}})

	result, err := f.executor.Run(context.Background(), Request{
		Placeholders: []PlaceholderSpec{
			{Name: "by_region", Kind: KindSQL, SQLTemplate: "SELECT c FROM region WHERE r = {{region}} AND dt = {{base_date}}"},
		},
		BaseDate: testBase,
	})
	require.NoError(t, err)

	v := result.PlaceholderValues["by_region"]
	assert.True(t, v.Success)
	require.Len(t, v.Warnings, 1)
	assert.Contains(t, v.Warnings[0], "region")

	queries := f.runner.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "SELECT c FROM region WHERE r = {{region}} AND dt = '2024-06-09'", queries[0])
}

func TestExecutor_AdditionalParams(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.executor.Run(context.Background(), Request{
		Placeholders: []PlaceholderSpec{
			{Name: "by_region", Kind: KindSQL, SQLTemplate: "SELECT c FROM region WHERE r = {{region}} AND dt = {{base_date}}"},
		},
		BaseDate:         testBase,
		AdditionalParams: map[string]any{"region": "north", "base_date": "2024-01-01"},
	})
	require.NoError(t, err)

	queries := f.runner.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "SELECT c FROM region WHERE r = 'north' AND dt = '2024-01-01'", queries[0])
}

func TestExecutor_CacheWriteFailureIsNotFatal(t *testing.T) {
	log := testutil.NewLogger(t)
	mr, client := testutil.NewMiniredisClient(t)
	store := cache.NewRedisStore(log, clockwork.NewFakeClockAt(testNow), &cache.Config{DefaultTTLHours: 24, MaxWriteRetries: 1}, client, "test")

	f := newFixture(t, store)
	f.runner.On("'p1'", testutil.QueryResponse{Rows: []map[string]any{{"c": 7}}})

	mr.Close()

	result, err := f.executor.Run(context.Background(), Request{
		Placeholders: []PlaceholderSpec{sqlSpec("orders", "p1")},
		BaseDate:     testBase,
		Execution:    scheduled(),
	})
	require.NoError(t, err)

	v := result.PlaceholderValues["orders"]
	assert.True(t, v.Success)
	assert.Equal(t, SourceQuery, v.Source)
	assert.Equal(t, 7, v.Value)
	assert.NotEmpty(t, v.Warnings)
}

func TestExecutor_BatchErrors(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.executor.Run(context.Background(), Request{BaseDate: time.Time{}})
	require.ErrorIs(t, err, params.ErrInvalidDate)

	_, err = f.executor.Run(context.Background(), Request{BaseDate: testBase, MaxConcurrency: -1})
	require.ErrorIs(t, err, ErrInvalidConcurrency)
}

func TestExecutor_CancelledBeforeRun(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.On("'p1'", testutil.QueryResponse{Rows: []map[string]any{{"c": 7}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.executor.Run(ctx, Request{
		Placeholders: []PlaceholderSpec{
			sqlSpec("orders", "p1"),
			{Name: "明天", Kind: KindPeriod},
		},
		BaseDate: testBase,
	})
	require.NoError(t, err)
	require.Len(t, result.PlaceholderValues, 2)

	assert.Equal(t, StateFailed, result.PlaceholderValues["orders"].State)
	assert.Contains(t, result.PlaceholderValues["orders"].Error, ErrBatchCancelled.Error())
	assert.Empty(t, result.PlaceholderValues["orders"].Via)
	assert.Equal(t, "2024-06-10", result.PlaceholderValues["明天"].Value)
	assert.Empty(t, f.runner.Queries())
}

func TestExecutor_InFlightQueryCompletesAfterCancel(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.On("'p1'", testutil.QueryResponse{
		Rows:  []map[string]any{{"c": 7}},
		Delay: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	result, err := f.executor.Run(ctx, Request{
		Placeholders: []PlaceholderSpec{sqlSpec("orders", "p1")},
		BaseDate:     testBase,
		Execution:    scheduled(),
	})
	require.NoError(t, err)

	v := result.PlaceholderValues["orders"]
	assert.Equal(t, StateFailed, v.State)
	assert.Contains(t, v.Error, "result discarded")
	assert.Equal(t, StateQueryRunning, v.Via)
	assert.Len(t, f.runner.Queries(), 1)

	history, err := f.store.History(context.Background(), "orders")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestExecutor_DuplicateNamesKeepEveryEntry(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.executor.Run(context.Background(), Request{
		Placeholders: []PlaceholderSpec{
			{Name: "昨天", Kind: KindPeriod},
			{Name: "昨天", Kind: KindPeriod},
		},
		BaseDate: testBase,
	})
	require.NoError(t, err)

	assert.Len(t, result.PlaceholderValues, 2)
	assert.Contains(t, result.PlaceholderValues, "昨天#1")
}
