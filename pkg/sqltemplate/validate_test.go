package sqltemplate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		template      string
		valid         bool
		warnings      int
		placeholders  []string
		requiredTimes []string
	}{
		{
			name:          "simple select",
			template:      "SELECT count(*) FROM orders WHERE dt = {{base_date}}",
			valid:         true,
			placeholders:  []string{"base_date"},
			requiredTimes: []string{"base_date"},
		},
		{
			name:          "lowercase with leading whitespace",
			template:      "  \n\twith t AS (SELECT 1) select * from t",
			valid:         true,
			placeholders:  []string{},
			requiredTimes: []string{},
		},
		{
			name:          "custom and time params",
			template:      "SELECT sum(x) FROM t WHERE region = {{ region }} AND dt BETWEEN {{start_date}} AND {{end_date}} AND r2 = {{region}}",
			valid:         true,
			placeholders:  []string{"region", "start_date", "end_date"},
			requiredTimes: []string{"start_date", "end_date"},
		},
		{
			name:          "not a select",
			template:      "SHOW TABLES",
			valid:         false,
			placeholders:  []string{},
			requiredTimes: []string{},
		},
		{
			name:          "empty",
			template:      "   ",
			valid:         false,
			placeholders:  []string{},
			requiredTimes: []string{},
		},
		{
			name:          "risky fragments warn but stay valid",
			template:      "SELECT * FROM t; DROP TABLE t -- bye",
			valid:         true,
			warnings:      3,
			placeholders:  []string{},
			requiredTimes: []string{},
		},
		{
			name:          "unmatched brace",
			template:      "SELECT {{base_date} FROM t",
			valid:         true,
			warnings:      1,
			placeholders:  []string{},
			requiredTimes: []string{},
		},
		{
			name:          "misordered braces with equal counts",
			template:      "SELECT 1 }{{a}}{",
			valid:         true,
			warnings:      1,
			placeholders:  []string{"a"},
			requiredTimes: []string{},
		},
		{
			name:          "balanced literal braces",
			template:      "SELECT '{x}' AS j FROM t WHERE dt = {{base_date}}",
			valid:         true,
			placeholders:  []string{"base_date"},
			requiredTimes: []string{"base_date"},
		},
		{
			name:          "substring match on column names",
			template:      "SELECT updated_at FROM t",
			valid:         true,
			warnings:      1,
			placeholders:  []string{},
			requiredTimes: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.template)

			assert.Equal(t, tt.valid, result.Valid)
			assert.Len(t, result.Warnings, tt.warnings, result.Warnings)
			assert.Equal(t, tt.placeholders, result.Placeholders)
			assert.Equal(t, tt.requiredTimes, result.RequiredTimeParams)

			if tt.valid {
				assert.Empty(t, result.Issues)
				assert.NoError(t, result.Err())
			} else {
				assert.NotEmpty(t, result.Issues)
				assert.ErrorIs(t, result.Err(), ErrTemplateValidation)
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := Validate("DESCRIBE t").Err()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"template must start with SELECT or WITH"}, verr.Issues)
	assert.Contains(t, err.Error(), "SELECT or WITH")
}

func TestValidate_UnmatchedBraceMessage(t *testing.T) {
	stray := Validate("SELECT 1 }{{a}}{")
	require.Len(t, stray.Warnings, 1)
	assert.Contains(t, stray.Warnings[0], "'}' at offset 9")

	unclosed := Validate("SELECT {{base_date} FROM t")
	require.Len(t, unclosed.Warnings, 1)
	assert.Contains(t, unclosed.Warnings[0], "1 '{' left unclosed")
}
