package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPlaceholder(t *testing.T) {
	counter := PlaceholdersTotal.WithLabelValues("SQL", "CACHE", "success")
	before := promtest.ToFloat64(counter)

	RecordPlaceholder("SQL", "CACHE", true)

	assert.InDelta(t, before+1, promtest.ToFloat64(counter), 0.0001)
}

func TestRecordCacheLookupAndWrite(t *testing.T) {
	hits := promtest.ToFloat64(CacheLookups.WithLabelValues("hit"))
	misses := promtest.ToFloat64(CacheLookups.WithLabelValues("miss"))
	failed := promtest.ToFloat64(CacheWrites.WithLabelValues("error"))

	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)
	RecordCacheWrite(errors.New("boom"))

	assert.InDelta(t, hits+1, promtest.ToFloat64(CacheLookups.WithLabelValues("hit")), 0.0001)
	assert.InDelta(t, misses+2, promtest.ToFloat64(CacheLookups.WithLabelValues("miss")), 0.0001)
	assert.InDelta(t, failed+1, promtest.ToFloat64(CacheWrites.WithLabelValues("error")), 0.0001)
}

func TestRecordQuery(t *testing.T) {
	inFlight := promtest.ToFloat64(QueriesInFlight)

	RecordQueryStart()
	assert.InDelta(t, inFlight+1, promtest.ToFloat64(QueriesInFlight), 0.0001)

	RecordQueryComplete(true, 0.05)
	assert.InDelta(t, inFlight, promtest.ToFloat64(QueriesInFlight), 0.0001)
}

func TestRecordInvalidation(t *testing.T) {
	before := promtest.ToFloat64(CacheInvalidations)

	RecordInvalidation(3)

	assert.InDelta(t, before+3, promtest.ToFloat64(CacheInvalidations), 0.0001)
}

func TestSchedulerMetrics(t *testing.T) {
	SetSchedulerLeader(true)
	assert.InDelta(t, 1, promtest.ToFloat64(SchedulerLeader), 0.0001)

	SetSchedulerLeader(false)
	assert.InDelta(t, 0, promtest.ToFloat64(SchedulerLeader), 0.0001)

	before := promtest.ToFloat64(ScheduledRuns.WithLabelValues("daily", "failed"))
	RecordScheduledRun("daily", false)
	assert.InDelta(t, before+1, promtest.ToFloat64(ScheduledRuns.WithLabelValues("daily", "failed")), 0.0001)
}

func TestMetricsServer(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	srv := NewMetricsServer(log, "127.0.0.1:0")
	require.NoError(t, srv.Start())

	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	RecordBatch(0.5)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics") //nolint:noctx // test request
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "placeholder_batches_total")

	resp, err = http.Get("http://" + srv.Addr() + "/healthz") //nolint:noctx // test request
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsServerAddrInUse(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	first := NewMetricsServer(log, "127.0.0.1:0")
	require.NoError(t, first.Start())

	t.Cleanup(func() { _ = first.Stop(context.Background()) })

	second := NewMetricsServer(log, first.Addr())
	require.Error(t, second.Start())
	require.NoError(t, second.Stop(context.Background()))
}
