package sqltemplate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethpandaops/placeholder-cache/pkg/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFill(t *testing.T) {
	values := map[string]any{
		"base_date": params.NewDate(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)),
		"region":    "east",
		"regions":   "'east','west'",
		"limit":     10,
		"ratio":     0.25,
		"big":       uint64(1 << 40),
		"exact":     json.Number("12345678901234567890"),
		"active":    true,
	}

	tests := []struct {
		name     string
		template string
		want     string
		missing  []string
	}{
		{
			name:     "no tokens is unchanged",
			template: "SELECT 1 FROM t WHERE a = '{x}'",
			want:     "SELECT 1 FROM t WHERE a = '{x}'",
			missing:  []string{},
		},
		{
			name:     "date is quoted",
			template: "SELECT * FROM t WHERE dt = {{base_date}}",
			want:     "SELECT * FROM t WHERE dt = '2024-03-15'",
			missing:  []string{},
		},
		{
			name:     "string quoted and pre-quoted left alone",
			template: "SELECT * FROM t WHERE r = {{ region }} OR r IN ({{regions}})",
			want:     "SELECT * FROM t WHERE r = 'east' OR r IN ('east','west')",
			missing:  []string{},
		},
		{
			name:     "token quoted by the template keeps a single pair of quotes",
			template: "SELECT count(*) FROM t WHERE dt = '{{base_date}}' AND r = '{{ region }}' AND n = '{{limit}}'",
			want:     "SELECT count(*) FROM t WHERE dt = '2024-03-15' AND r = 'east' AND n = '10'",
			missing:  []string{},
		},
		{
			name:     "quoted missing token is untouched",
			template: "SELECT * FROM t WHERE dt = '{{nope}}'",
			want:     "SELECT * FROM t WHERE dt = '{{nope}}'",
			missing:  []string{"nope"},
		},
		{
			name:     "numerics are bare",
			template: "SELECT * FROM t WHERE x > {{ratio}} AND y < {{big}} AND z = {{exact}} LIMIT {{limit}}",
			want:     "SELECT * FROM t WHERE x > 0.25 AND y < 1099511627776 AND z = 12345678901234567890 LIMIT 10",
			missing:  []string{},
		},
		{
			name:     "bool",
			template: "SELECT * FROM t WHERE a = {{active}}",
			want:     "SELECT * FROM t WHERE a = TRUE",
			missing:  []string{},
		},
		{
			name:     "missing tokens stay and are reported once",
			template: "SELECT * FROM t WHERE a = {{nope}} AND b = {{region}} AND c = {{nope}} AND d = {{other}}",
			want:     "SELECT * FROM t WHERE a = {{nope}} AND b = 'east' AND c = {{nope}} AND d = {{other}}",
			missing:  []string{"nope", "other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, missing := Fill(tt.template, values)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.missing, missing)
		})
	}
}

func TestFillStrict(t *testing.T) {
	filled, err := FillStrict("SELECT {{a}}, {{b}}", map[string]any{"a": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingTemplateParameter)
	assert.Equal(t, "SELECT 1, {{b}}", filled)

	var merr *MissingParametersError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, []string{"b"}, merr.Keys)

	filled, err = FillStrict("SELECT {{a}}", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", filled)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "NULL", Literal(nil))
	assert.Equal(t, "-3", Literal(int64(-3)))
	assert.Equal(t, "1.5", Literal(float32(1.5)))
	assert.Equal(t, "'x'", Literal("x"))
	assert.Equal(t, "''", Literal(""))
	assert.Equal(t, "'''", Literal("'"))
	assert.Equal(t, "'2024-03-15 08:00:00'", Literal(params.DateTime{Time: time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)}))
}
