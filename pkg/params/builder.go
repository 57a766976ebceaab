// Package params derives the time parameter set used to fill SQL templates
package params

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// DefaultTimezoneOffsetHours is the offset used for wall clock parameters
const DefaultTimezoneOffsetHours = 8

// Parameter names that are always present
const (
	KeyBaseDate       = "base_date"
	KeyStartDate      = "start_date"
	KeyEndDate        = "end_date"
	KeyPrevDate       = "prev_date"
	KeyNextDate       = "next_date"
	KeyYesterday      = "yesterday"
	KeyTomorrow       = "tomorrow"
	KeyWeekStart      = "week_start"
	KeyWeekEnd        = "week_end"
	KeyPrevWeekStart  = "prev_week_start"
	KeyPrevWeekEnd    = "prev_week_end"
	KeyMonthStart     = "month_start"
	KeyMonthEnd       = "month_end"
	KeyPrevMonthStart = "prev_month_start"
	KeyPrevMonthEnd   = "prev_month_end"
	KeyYearStart      = "year_start"
	KeyYearEnd        = "year_end"
	KeyYear           = "year"
	KeyMonth          = "month"
	KeyDay            = "day"
	KeyQuarter        = "quarter"
	KeyBaseCompact    = "base_date_compact"
	KeyBaseDateCN     = "base_date_cn"
	KeyBaseMonthCN    = "base_month_cn"
	KeyMonthDayCN     = "month_day_cn"
	KeyWeekStartCN    = "week_start_cn"
	KeyWeekEndCN      = "week_end_cn"
	KeyMonthStartCN   = "month_start_cn"
	KeyMonthEndCN     = "month_end_cn"
	KeyTimezoneOffset = "timezone_offset"
	KeyCurrentTime    = "current_time"
	KeyExecutionTime  = "execution_time"
)

// TimeParamNames lists the built-in parameter names in the order Build emits them
//
//nolint:gochecknoglobals // read-only list
var TimeParamNames = []string{
	KeyBaseDate, KeyStartDate, KeyEndDate, KeyPrevDate, KeyNextDate, KeyYesterday, KeyTomorrow,
	KeyWeekStart, KeyWeekEnd, KeyPrevWeekStart, KeyPrevWeekEnd,
	KeyMonthStart, KeyMonthEnd, KeyPrevMonthStart, KeyPrevMonthEnd,
	KeyYearStart, KeyYearEnd, KeyYear, KeyMonth, KeyDay, KeyQuarter,
	KeyBaseCompact, KeyBaseDateCN, KeyBaseMonthCN, KeyMonthDayCN,
	KeyWeekStartCN, KeyWeekEndCN, KeyMonthStartCN, KeyMonthEndCN,
	KeyTimezoneOffset, KeyCurrentTime, KeyExecutionTime,
}

// DerivedParam is an extra parameter rendered from the built-in set with
// text/template and the Sprig function library
type DerivedParam struct {
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
}

// Builder builds parameter sets from a base date
type Builder struct {
	log     logrus.FieldLogger
	clock   clockwork.Clock
	derived []DerivedParam
	funcMap template.FuncMap
}

// NewBuilder creates a new parameter builder
func NewBuilder(log logrus.FieldLogger, clock clockwork.Clock, derived []DerivedParam) *Builder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Builder{
		log:     log.WithField("component", "param_builder"),
		clock:   clock,
		derived: derived,
		funcMap: sprig.TxtFuncMap(),
	}
}

// ParseDate parses a YYYY-MM-DD string into a base date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %w", ErrInvalidDate, s, err)
	}

	return t, nil
}

// BuildFromString parses baseDate and builds the parameter set
func (b *Builder) BuildFromString(baseDate string, tzOffsetHours int, additional map[string]any) (*ParameterSet, error) {
	t, err := ParseDate(baseDate)
	if err != nil {
		return nil, err
	}

	return b.Build(t, tzOffsetHours, additional)
}

// Build derives the parameter set for baseDate. Apart from current_time and
// execution_time the output depends only on the inputs. Entries in additional
// override computed values with the same name.
func (b *Builder) Build(baseDate time.Time, tzOffsetHours int, additional map[string]any) (*ParameterSet, error) {
	if baseDate.IsZero() || baseDate.Year() < 1 || baseDate.Year() > 9999 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, baseDate)
	}

	base := NewDate(baseDate)
	ps := newParameterSet()

	ps.set(KeyBaseDate, base)
	ps.set(KeyStartDate, base)
	ps.set(KeyEndDate, base)
	ps.set(KeyPrevDate, base.AddDays(-1))
	ps.set(KeyNextDate, base.AddDays(1))
	ps.set(KeyYesterday, base.AddDays(-1))
	ps.set(KeyTomorrow, base.AddDays(1))

	weekStart := WeekStart(base)
	weekEnd := weekStart.AddDays(6)
	ps.set(KeyWeekStart, weekStart)
	ps.set(KeyWeekEnd, weekEnd)
	ps.set(KeyPrevWeekStart, weekStart.AddDays(-7))
	ps.set(KeyPrevWeekEnd, weekStart.AddDays(-1))

	monthStart := MonthStart(base)
	monthEnd := MonthEnd(base)
	prevMonthEnd := monthStart.AddDays(-1)
	ps.set(KeyMonthStart, monthStart)
	ps.set(KeyMonthEnd, monthEnd)
	ps.set(KeyPrevMonthStart, MonthStart(prevMonthEnd))
	ps.set(KeyPrevMonthEnd, prevMonthEnd)

	ps.set(KeyYearStart, NewDate(time.Date(base.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)))
	ps.set(KeyYearEnd, NewDate(time.Date(base.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)))
	ps.set(KeyYear, base.Year())
	ps.set(KeyMonth, int(base.Month()))
	ps.set(KeyDay, base.Day())
	ps.set(KeyQuarter, (int(base.Month())-1)/3+1)

	ps.set(KeyBaseCompact, base.Format("20060102"))
	ps.set(KeyBaseDateCN, LongDateCN(base))
	ps.set(KeyBaseMonthCN, fmt.Sprintf("%d年%d月", base.Year(), base.Month()))
	ps.set(KeyMonthDayCN, ShortDateCN(base))
	ps.set(KeyWeekStartCN, LongDateCN(weekStart))
	ps.set(KeyWeekEndCN, LongDateCN(weekEnd))
	ps.set(KeyMonthStartCN, LongDateCN(monthStart))
	ps.set(KeyMonthEndCN, LongDateCN(monthEnd))

	now := b.clock.Now().In(time.FixedZone(zoneName(tzOffsetHours), tzOffsetHours*3600))
	ps.set(KeyTimezoneOffset, tzOffsetHours)
	ps.set(KeyCurrentTime, DateTime{Time: now})
	ps.set(KeyExecutionTime, DateTime{Time: now})

	if err := b.renderDerived(ps); err != nil {
		return nil, err
	}

	extraKeys := make([]string, 0, len(additional))
	for k := range additional {
		extraKeys = append(extraKeys, k)
	}

	sort.Strings(extraKeys)

	for _, k := range extraKeys {
		ps.set(k, additional[k])
	}

	b.log.WithFields(logrus.Fields{
		"base_date":  base.String(),
		"params":     ps.Len(),
		"additional": len(additional),
	}).Debug("Built template parameters")

	return ps, nil
}

func (b *Builder) renderDerived(ps *ParameterSet) error {
	for _, d := range b.derived {
		tmpl, err := template.New(d.Name).Funcs(b.funcMap).Option("missingkey=error").Parse(d.Template)
		if err != nil {
			return fmt.Errorf("%w %q: %w", ErrDerivedParam, d.Name, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, ps.templateData()); err != nil {
			return fmt.Errorf("%w %q: %w", ErrDerivedParam, d.Name, err)
		}

		ps.set(d.Name, buf.String())
	}

	return nil
}

// WeekStart returns the Monday of the week containing d
func WeekStart(d Date) Date {
	offset := (int(d.Weekday()) + 6) % 7

	return d.AddDays(-offset)
}

// MonthStart returns the first day of the month containing d
func MonthStart(d Date) Date {
	return NewDate(time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC))
}

// MonthEnd returns the first day of the next month minus one day
func MonthEnd(d Date) Date {
	return NewDate(time.Date(d.Year(), d.Month()+1, 1, 0, 0, 0, 0, time.UTC)).AddDays(-1)
}

// LongDateCN formats a date as 2024年3月15日
func LongDateCN(d Date) string {
	return fmt.Sprintf("%d年%d月%d日", d.Year(), d.Month(), d.Day())
}

// ShortDateCN formats a date as 3月15日
func ShortDateCN(d Date) string {
	return fmt.Sprintf("%d月%d日", d.Month(), d.Day())
}

func zoneName(offsetHours int) string {
	if offsetHours >= 0 {
		return "UTC+" + strconv.Itoa(offsetHours)
	}

	return "UTC" + strconv.Itoa(offsetHours)
}

func toText(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case fmt.Stringer:
		return tv.String()
	default:
		return fmt.Sprint(v)
	}
}
