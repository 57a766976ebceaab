package timeinfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldKind classifies a single cron field
type FieldKind int

const (
	// FieldWildcard is "*" or "?"
	FieldWildcard FieldKind = iota
	// FieldFixed is a single value such as "9" or "MON"
	FieldFixed
	// FieldList is a comma separated list such as "1,15"
	FieldList
	// FieldRange is a span such as "1-5"
	FieldRange
	// FieldStep is a stepped expression such as "*/5" or "0-30/10"
	FieldStep
)

func (k FieldKind) String() string {
	switch k {
	case FieldWildcard:
		return "wildcard"
	case FieldFixed:
		return "fixed"
	case FieldList:
		return "list"
	case FieldRange:
		return "range"
	case FieldStep:
		return "step"
	default:
		return "unknown"
	}
}

// Field is one of the five cron fields
type Field struct {
	Raw  string
	Kind FieldKind
}

// IsWildcard reports whether the field matches every value
func (f Field) IsWildcard() bool {
	return f.Kind == FieldWildcard
}

// IsFixed reports whether the field is a single value
func (f Field) IsFixed() bool {
	return f.Kind == FieldFixed
}

// Expression is a parsed 5-field cron expression (minute hour day month weekday)
type Expression struct {
	Minute     Field
	Hour       Field
	DayOfMonth Field
	Month      Field
	DayOfWeek  Field

	schedule cron.Schedule
}

const cronFieldCount = 5

//nolint:gochecknoglobals // macro expansion table
var cronMacros = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

// ParseExpression splits and classifies a cron expression. Field values are
// validated against cron.ParseStandard so out-of-range values are rejected.
func ParseExpression(expr string) (*Expression, error) {
	expr = strings.TrimSpace(expr)
	if expanded, ok := cronMacros[strings.ToLower(expr)]; ok {
		expr = expanded
	}

	fields := strings.Fields(expr)
	if len(fields) != cronFieldCount {
		return nil, fmt.Errorf("%w: expected %d fields, got %d in %q", ErrInvalidCron, cronFieldCount, len(fields), expr)
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCron, err)
	}

	return &Expression{
		Minute:     classifyField(fields[0]),
		Hour:       classifyField(fields[1]),
		DayOfMonth: classifyField(fields[2]),
		Month:      classifyField(fields[3]),
		DayOfWeek:  classifyField(fields[4]),
		schedule:   schedule,
	}, nil
}

func classifyField(raw string) Field {
	kind := FieldFixed

	switch {
	case raw == "*" || raw == "?":
		kind = FieldWildcard
	case strings.Contains(raw, "/"):
		kind = FieldStep
	case strings.Contains(raw, ","):
		kind = FieldList
	case strings.Contains(raw, "-"):
		kind = FieldRange
	}

	return Field{Raw: raw, Kind: kind}
}

// Frequency applies the decision table to the expression. Rules are evaluated
// in order and the first match wins.
func (e *Expression) Frequency() Frequency {
	restWild := e.DayOfMonth.IsWildcard() && e.Month.IsWildcard() && e.DayOfWeek.IsWildcard()

	switch {
	case e.Hour.IsWildcard() && restWild:
		return FrequencyMinutely
	case !e.Minute.IsWildcard() && (e.Hour.Kind == FieldStep || e.Hour.Kind == FieldRange) && restWild:
		return FrequencyHourly
	case e.Minute.IsFixed() && (e.Hour.IsFixed() || e.Hour.Kind == FieldList) && restWild:
		return FrequencyDaily
	case e.Minute.IsFixed() && e.Hour.IsFixed() && e.DayOfMonth.IsWildcard() && e.Month.IsWildcard() && !e.DayOfWeek.IsWildcard():
		return FrequencyWeekly
	case e.Minute.IsFixed() && e.Hour.IsFixed() && !e.DayOfMonth.IsWildcard() && e.Month.IsWildcard() && e.DayOfWeek.IsWildcard():
		return FrequencyMonthly
	case e.Minute.IsFixed() && e.Hour.IsFixed() && !e.DayOfMonth.IsWildcard() && !e.Month.IsWildcard() && e.DayOfWeek.IsWildcard():
		return FrequencyYearly
	default:
		return FrequencyCustom
	}
}

// Next returns the next activation strictly after t
func (e *Expression) Next(t time.Time) time.Time {
	return e.schedule.Next(t)
}

func (e *Expression) String() string {
	return strings.Join([]string{e.Minute.Raw, e.Hour.Raw, e.DayOfMonth.Raw, e.Month.Raw, e.DayOfWeek.Raw}, " ")
}
