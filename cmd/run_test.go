package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ethpandaops/placeholder-cache/pkg/batch"
	"github.com/ethpandaops/placeholder-cache/pkg/service"
	"github.com/ethpandaops/placeholder-cache/pkg/timeinfer"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
context:
  cronExpression: "0 9 * * *"
  nominalTime: 2024-06-10T09:00:00Z
additionalParams:
  region: north
placeholders:
  - name: 销售额占比
    templateId: daily-sales
    dataSourceId: ch-main
    kind: SQL
    cacheTTLHours: 12
    sqlTemplate: SELECT ratio FROM share WHERE dt = {{base_date}}
  - name: 昨天
    kind: PERIOD
`), 0o600))

	b, err := loadBatchFile(path)
	require.NoError(t, err)

	assert.Equal(t, "0 9 * * *", b.Context.CronExpression)
	assert.True(t, b.Context.NominalTime.Equal(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, "north", b.AdditionalParams["region"])
	require.Len(t, b.Placeholders, 2)
	assert.Equal(t, batch.KindSQL, b.Placeholders[0].Kind)
	assert.Equal(t, "daily-sales", b.Placeholders[0].TemplateID)
	assert.Equal(t, uint(12), b.Placeholders[0].CacheTTLHours)
	assert.Equal(t, batch.KindPeriod, b.Placeholders[1].Kind)
}

func TestLoadBatchFile_TestModeDefaultsOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("context:\n  isTestMode: true\n"), 0o600))

	b, err := loadBatchFile(path)
	require.NoError(t, err)

	assert.True(t, b.Context.IsTestMode)
	assert.Nil(t, b.Context.TestDaysOffset)
	assert.Equal(t, timeinfer.DefaultTestDaysOffset, b.Context.DaysOffset())
}

func TestDisplayValue(t *testing.T) {
	short := batch.PlaceholderValue{Value: "2024年6月9日"}
	assert.Equal(t, "2024年6月9日", displayValue(short))

	ascii := displayValue(batch.PlaceholderValue{Value: strings.Repeat("a", 100)})
	assert.Equal(t, strings.Repeat("a", 77)+"...", ascii)

	cjk := displayValue(batch.PlaceholderValue{Value: strings.Repeat("销售额", 30)})
	assert.True(t, utf8.ValidString(cjk))
	assert.True(t, strings.HasSuffix(cjk, "..."))
	assert.LessOrEqual(t, runewidth.StringWidth(cjk), maxValueWidth)
}

func TestLoadBatchFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("placeholders: {"), 0o600))

	_, err := loadBatchFile(path)
	require.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	report := &service.Report{
		Inference: &timeinfer.Result{
			BaseDate:    time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC),
			Frequency:   timeinfer.FrequencyDaily,
			DataLagDays: -1,
			Confidence:  0.95,
			Explanation: "DAILY schedule (0 9 * * *); data period is the previous day",
		},
		Result: &batch.Result{
			BatchID: "b-1",
			PlaceholderValues: map[string]batch.PlaceholderValue{
				"销售额占比": {Success: true, Value: "42.5%", Source: batch.SourceQuery, State: batch.StateDone},
				"昨天":    {Success: true, Value: "2024-06-08", Source: batch.SourcePeriod, State: batch.StateDone},
			},
			Stats: batch.Stats{Total: 2, PeriodCount: 1, SQLCount: 1, SuccessCount: 2},
		},
	}

	var table bytes.Buffer
	require.NoError(t, printReport(&table, report, "table"))
	assert.Contains(t, table.String(), "2024-06-09 (DAILY, confidence 0.95)")
	assert.Contains(t, table.String(), "42.5%")
	assert.Contains(t, table.String(), "2 placeholders (1 period, 1 sql): 2 ok, 0 failed")

	var js bytes.Buffer
	require.NoError(t, printReport(&js, report, "json"))
	assert.Contains(t, js.String(), `"batch_id": "b-1"`)
	assert.Contains(t, js.String(), `"frequency": "DAILY"`)
}
