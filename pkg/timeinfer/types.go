package timeinfer

import "time"

// Frequency is the schedule cadence inferred from a cron expression
type Frequency string

const (
	// FrequencyMinutely runs every minute (or every N minutes)
	FrequencyMinutely Frequency = "MINUTELY"
	// FrequencyHourly runs on an hourly step or range
	FrequencyHourly Frequency = "HOURLY"
	// FrequencyDaily runs once (or a fixed number of times) per day
	FrequencyDaily Frequency = "DAILY"
	// FrequencyWeekly runs on specific weekdays
	FrequencyWeekly Frequency = "WEEKLY"
	// FrequencyMonthly runs on specific days of the month
	FrequencyMonthly Frequency = "MONTHLY"
	// FrequencyYearly runs on specific days of specific months
	FrequencyYearly Frequency = "YEARLY"
	// FrequencyCustom is anything the decision table does not recognise
	FrequencyCustom Frequency = "CUSTOM"
)

// DefaultTestDaysOffset is the offset applied in test mode when no fixed date is given
const DefaultTestDaysOffset = -1

// TestModeConfidence is reported for every test mode result
const TestModeConfidence = 1.0

//nolint:gochecknoglobals // fixed lookup tables
var (
	confidenceByFrequency = map[Frequency]float64{
		FrequencyMinutely: 0.70,
		FrequencyHourly:   0.80,
		FrequencyDaily:    0.95,
		FrequencyWeekly:   0.90,
		FrequencyMonthly:  0.85,
		FrequencyYearly:   0.85,
		FrequencyCustom:   0.60,
	}

	// Monthly lag is a flat 30 days, not a calendar month.
	lagDaysByFrequency = map[Frequency]int{
		FrequencyMinutely: 0,
		FrequencyHourly:   0,
		FrequencyDaily:    -1,
		FrequencyWeekly:   -7,
		FrequencyMonthly:  -30,
		FrequencyYearly:   -365,
		FrequencyCustom:   -1,
	}
)

// Confidence returns the fixed confidence score for a frequency
func (f Frequency) Confidence() float64 {
	if c, ok := confidenceByFrequency[f]; ok {
		return c
	}

	return confidenceByFrequency[FrequencyCustom]
}

// LagDays returns the data lag, in days, applied to the nominal time for a frequency
func (f Frequency) LagDays() int {
	if l, ok := lagDaysByFrequency[f]; ok {
		return l
	}

	return lagDaysByFrequency[FrequencyCustom]
}

// ExecutionContext describes a single batch run. One instance produces exactly
// one Result and one parameter set.
type ExecutionContext struct {
	CronExpression string     `yaml:"cronExpression" json:"cron_expression,omitempty"`
	NominalTime    time.Time  `yaml:"nominalTime" json:"nominal_time"`
	IsTestMode     bool       `yaml:"isTestMode" json:"is_test_mode"`
	FixedTestDate  *time.Time `yaml:"fixedTestDate,omitempty" json:"fixed_test_date,omitempty"`
	// TestDaysOffset is nil when unset; DaysOffset then falls back to DefaultTestDaysOffset
	TestDaysOffset *int `yaml:"testDaysOffset,omitempty" json:"test_days_offset,omitempty"`
	// ReportPeriod labels the period a run reports on (e.g. "2024-06"). It feeds the
	// execution batch id of cache entries written during the run.
	ReportPeriod string `yaml:"reportPeriod" json:"report_period,omitempty"`
}

// DaysOffset returns the test mode offset, DefaultTestDaysOffset when unset
func (ec *ExecutionContext) DaysOffset() int {
	if ec.TestDaysOffset == nil {
		return DefaultTestDaysOffset
	}

	return *ec.TestDaysOffset
}

// Result is the outcome of time inference
type Result struct {
	BaseDate    time.Time `json:"base_date"`
	Frequency   Frequency `json:"frequency"`
	DataLagDays int       `json:"data_lag_days"`
	Confidence  float64   `json:"confidence"`
	Explanation string    `json:"explanation"`
}

// BaseDateString returns the base date formatted as YYYY-MM-DD
func (r *Result) BaseDateString() string {
	return r.BaseDate.Format(time.DateOnly)
}

// dateOf truncates t to midnight in its own location
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
