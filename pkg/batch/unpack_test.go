package batch

import (
	"encoding/json"
	"testing"

	"github.com/ethpandaops/placeholder-cache/pkg/sqltemplate"
	"github.com/stretchr/testify/assert"
)

func TestUnpack(t *testing.T) {
	tests := []struct {
		name     string
		rows     []map[string]any
		kind     ResultKind
		expected any
	}{
		{
			name:     "empty result",
			rows:     []map[string]any{},
			kind:     ResultEmpty,
			expected: nil,
		},
		{
			name:     "nil result",
			rows:     nil,
			kind:     ResultEmpty,
			expected: nil,
		},
		{
			name:     "single cell",
			rows:     []map[string]any{{"count": 5}},
			kind:     ResultScalar,
			expected: 5,
		},
		{
			name:     "single row",
			rows:     []map[string]any{{"a": 1, "b": 2}},
			kind:     ResultRow,
			expected: map[string]any{"a": 1, "b": 2},
		},
		{
			name:     "row set",
			rows:     []map[string]any{{"x": 1}, {"x": 2}},
			kind:     ResultRowSet,
			expected: []map[string]any{{"x": 1}, {"x": 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unpack(tt.rows)
			assert.Equal(t, tt.kind, got.Kind)

			if tt.expected == nil {
				assert.Nil(t, got.Value())

				return
			}

			assert.Equal(t, tt.expected, got.Value())
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name     string
		display  sqltemplate.DisplayName
		value    any
		expected any
	}{
		{name: "percentage float", display: "销售额占比", value: 42.5, expected: "42.5%"},
		{name: "percentage int", display: "转化百分比", value: 12, expected: "12%"},
		{name: "percentage json number", display: "销售额占比", value: json.Number("0.25"), expected: "0.25%"},
		{name: "chart keeps raw value", display: "销售额占比图表", value: 42.5, expected: 42.5},
		{name: "plain name", display: "销售额", value: 42.5, expected: 42.5},
		{name: "non numeric percentage", display: "销售额占比", value: "n/a", expected: "n/a"},
		{name: "nil stays nil", display: "销售额占比", value: nil, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatValue(tt.display, tt.value))
		})
	}
}

func TestFormattedText(t *testing.T) {
	assert.Empty(t, FormattedText(nil))
	assert.Equal(t, "42.5%", FormattedText("42.5%"))
	assert.Equal(t, "7", FormattedText(int64(7)))
	assert.Equal(t, "1.5", FormattedText(1.5))
	assert.JSONEq(t, `{"a":1}`, FormattedText(map[string]any{"a": 1}))
}
