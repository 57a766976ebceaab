package sqltemplate

import (
	"strings"
	"time"

	"github.com/ethpandaops/placeholder-cache/pkg/params"
)

// UnrecognizedPeriodMarker prefixes the value of period placeholders whose name matches no rule
const UnrecognizedPeriodMarker = "UnrecognizedPeriodPlaceholder"

// ComputePeriodValue resolves a time-only placeholder from its name. Rules are
// checked in a fixed priority order; now is used for the task start time rule.
// No data source is touched.
func ComputePeriodValue(name DisplayName, baseDate, now time.Time) string {
	base := params.NewDate(baseDate)

	switch {
	case name.IsTaskStartTime():
		return now.UTC().Format(params.DateTimeLayout)
	case hasDayOffset(name):
		offset, _ := name.DayOffset()
		return base.AddDays(offset).String()
	case name.IsPeriodLongDate():
		return params.LongDateCN(base)
	case name.IsPeriodShortDate():
		return params.ShortDateCN(base)
	case name.IsYesterday():
		return base.AddDays(-1).String()
	case name.IsTomorrow():
		return base.AddDays(1).String()
	default:
		return UnrecognizedPeriodMarker + ": " + string(name)
	}
}

// IsUnrecognizedPeriod reports whether v is the fallback marker of ComputePeriodValue
func IsUnrecognizedPeriod(v string) bool {
	return strings.HasPrefix(v, UnrecognizedPeriodMarker)
}

func hasDayOffset(name DisplayName) bool {
	_, ok := name.DayOffset()

	return ok
}
