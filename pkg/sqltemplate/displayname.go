package sqltemplate

import (
	"regexp"
	"strconv"
	"strings"
)

// DisplayName is the human readable name of a placeholder. Several business
// rules classify placeholders by substrings of this name; the predicates below
// are the only place those rules live.
type DisplayName string

//nolint:gochecknoglobals // compiled once
var (
	daysBeforePattern   = regexp.MustCompile(`任务时间前(\d+)天|(?i:(\d+)\s*days?\s+before\s+task\s+time)`)
	daysAfterPattern    = regexp.MustCompile(`任务时间后(\d+)天|(?i:(\d+)\s*days?\s+after\s+task\s+time)`)
	taskStartTimeTokens = []string{"任务启动时间", "task start time"}
)

func (n DisplayName) lower() string {
	return strings.ToLower(string(n))
}

func (n DisplayName) containsAny(tokens ...string) bool {
	l := n.lower()
	for _, t := range tokens {
		if strings.Contains(l, t) {
			return true
		}
	}

	return false
}

// IsPercentage reports whether the name marks a percentage value
func (n DisplayName) IsPercentage() bool {
	return n.containsAny("占比", "百分比")
}

// IsChart reports whether the name marks a chart
func (n DisplayName) IsChart() bool {
	return n.containsAny("图表")
}

// WantsPercentSuffix reports whether numeric values should render as "<value>%"
func (n DisplayName) WantsPercentSuffix() bool {
	return n.IsPercentage() && !n.IsChart()
}

// IsTaskStartTime reports whether the name asks for the instant the task started
func (n DisplayName) IsTaskStartTime() bool {
	return n.containsAny(taskStartTimeTokens...)
}

// DayOffset returns the signed day offset for "N days before/after task time" names
func (n DisplayName) DayOffset() (int, bool) {
	if days, ok := matchDays(daysBeforePattern, string(n)); ok {
		return -days, true
	}

	if days, ok := matchDays(daysAfterPattern, string(n)); ok {
		return days, true
	}

	return 0, false
}

// IsPeriodLongDate reports whether the name asks for the period as year, month and day
func (n DisplayName) IsPeriodLongDate() bool {
	return (n.containsAny("周期") && n.containsAny("年月日")) ||
		(n.containsAny("period") && n.containsAny("year-month-day"))
}

// IsPeriodShortDate reports whether the name asks for the period as month and day
func (n DisplayName) IsPeriodShortDate() bool {
	return (n.containsAny("周期") && n.containsAny("月日")) ||
		(n.containsAny("period") && n.containsAny("month-day"))
}

// IsYesterday reports whether the name asks for the day before the base date
func (n DisplayName) IsYesterday() bool {
	return n.containsAny("昨天", "昨日", "yesterday")
}

// IsTomorrow reports whether the name asks for the day after the base date
func (n DisplayName) IsTomorrow() bool {
	return n.containsAny("明天", "明日", "tomorrow")
}

func matchDays(re *regexp.Regexp, s string) (int, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	for _, group := range m[1:] {
		if group == "" {
			continue
		}

		days, err := strconv.Atoi(group)
		if err != nil {
			return 0, false
		}

		return days, true
	}

	return 0, false
}
