package params

import (
	"encoding/json"
	"time"
)

const (
	// DateLayout is the layout used for date parameters
	DateLayout = time.DateOnly
	// DateTimeLayout is the layout used for datetime parameters
	DateTimeLayout = time.DateTime
)

// Date is a calendar date parameter value
type Date struct {
	time.Time
}

// NewDate truncates t to a calendar date
func NewDate(t time.Time) Date {
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON renders the date as "YYYY-MM-DD"
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// AddDays returns the date shifted by n days
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// DateTime is a wall clock parameter value
type DateTime struct {
	time.Time
}

func (d DateTime) String() string {
	return d.Format(DateTimeLayout)
}

// MarshalJSON renders the datetime as "YYYY-MM-DD HH:MM:SS"
func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// ParameterSet is an ordered, read-only mapping of parameter names to values
type ParameterSet struct {
	keys   []string
	values map[string]any
}

func newParameterSet() *ParameterSet {
	return &ParameterSet{values: make(map[string]any)}
}

func (p *ParameterSet) set(key string, value any) {
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}

	p.values[key] = value
}

// Get returns the value stored under key
func (p *ParameterSet) Get(key string) (any, bool) {
	v, ok := p.values[key]

	return v, ok
}

// String returns the textual form of a parameter, or "" when absent
func (p *ParameterSet) String(key string) string {
	v, ok := p.values[key]
	if !ok {
		return ""
	}

	return toText(v)
}

// Keys returns the parameter names in insertion order
func (p *ParameterSet) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)

	return out
}

// Len returns the number of parameters
func (p *ParameterSet) Len() int {
	return len(p.keys)
}

// Map returns a copy of the parameters as a plain map
func (p *ParameterSet) Map() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}

	return out
}

// templateData unwraps Date/DateTime into time.Time so sprig date functions accept them
func (p *ParameterSet) templateData() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		switch tv := v.(type) {
		case Date:
			out[k] = tv.Time
		case DateTime:
			out[k] = tv.Time
		default:
			out[k] = v
		}
	}

	return out
}
