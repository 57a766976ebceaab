// Package timeinfer derives a deterministic computation window from a cron schedule
package timeinfer

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Engine infers base dates from cron schedules
type Engine struct {
	log   logrus.FieldLogger
	clock clockwork.Clock
}

// NewEngine creates a new time inference engine. The clock is only consulted in
// test mode when no fixed date is supplied.
func NewEngine(log logrus.FieldLogger, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Engine{
		log:   log.WithField("component", "time_inference"),
		clock: clock,
	}
}

// Infer parses cronExpr and returns the base date for a run nominally started at nominal
func (e *Engine) Infer(cronExpr string, nominal time.Time) (*Result, error) {
	if nominal.IsZero() {
		return nil, ErrNominalTimeRequired
	}

	expr, err := ParseExpression(cronExpr)
	if err != nil {
		return nil, err
	}

	freq := expr.Frequency()
	lag := freq.LagDays()

	result := &Result{
		BaseDate:    dateOf(nominal).AddDate(0, 0, lag),
		Frequency:   freq,
		DataLagDays: lag,
		Confidence:  freq.Confidence(),
		Explanation: explain(expr, freq, lag),
	}

	e.log.WithFields(logrus.Fields{
		"cron":       expr.String(),
		"nominal":    nominal.Format(time.RFC3339),
		"frequency":  freq,
		"base_date":  result.BaseDateString(),
		"confidence": result.Confidence,
	}).Debug("Inferred base date from cron expression")

	return result, nil
}

// TestMode bypasses cron parsing. fixedDate wins when set, otherwise the
// current date shifted by daysOffset is used. The result is always DAILY.
func (e *Engine) TestMode(fixedDate *time.Time, daysOffset int) *Result {
	if fixedDate != nil {
		return &Result{
			BaseDate:    dateOf(*fixedDate),
			Frequency:   FrequencyDaily,
			DataLagDays: 0,
			Confidence:  TestModeConfidence,
			Explanation: fmt.Sprintf("test mode: fixed date %s", fixedDate.Format(time.DateOnly)),
		}
	}

	return &Result{
		BaseDate:    dateOf(e.clock.Now()).AddDate(0, 0, daysOffset),
		Frequency:   FrequencyDaily,
		DataLagDays: daysOffset,
		Confidence:  TestModeConfidence,
		Explanation: fmt.Sprintf("test mode: current date offset by %d days", daysOffset),
	}
}

// FromContext resolves the base date for an execution context: test mode, then
// the cron expression, then the no-cron default.
func (e *Engine) FromContext(ec ExecutionContext) (*Result, error) {
	if ec.IsTestMode {
		return e.TestMode(ec.FixedTestDate, ec.DaysOffset()), nil
	}

	if ec.CronExpression != "" {
		return e.Infer(ec.CronExpression, ec.NominalTime)
	}

	if ec.NominalTime.IsZero() {
		return nil, ErrNominalTimeRequired
	}

	lag := FrequencyCustom.LagDays()

	return &Result{
		BaseDate:    dateOf(ec.NominalTime).AddDate(0, 0, lag),
		Frequency:   FrequencyCustom,
		DataLagDays: lag,
		Confidence:  FrequencyCustom.Confidence(),
		Explanation: "no cron expression supplied; using the previous day",
	}, nil
}

// NextRun returns the next activation of cronExpr after the given instant
func (e *Engine) NextRun(cronExpr string, after time.Time) (time.Time, error) {
	expr, err := ParseExpression(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	return expr.Next(after), nil
}

func explain(expr *Expression, freq Frequency, lag int) string {
	var period string

	switch {
	case lag == 0:
		period = "the current day"
	case lag == -1:
		period = "the previous day"
	default:
		period = fmt.Sprintf("%d days before the run", -lag)
	}

	return fmt.Sprintf("%s schedule (%s); data period is %s", freq, expr.String(), period)
}
