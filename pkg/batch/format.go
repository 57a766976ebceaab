package batch

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethpandaops/placeholder-cache/pkg/sqltemplate"
)

// FormatValue applies display rules to an unpacked value. Numeric values of
// percentage placeholders (but not charts) render as "<value>%".
func FormatValue(name sqltemplate.DisplayName, value any) any {
	if !name.WantsPercentSuffix() {
		return value
	}

	if text, ok := numericText(value); ok {
		return text + "%"
	}

	return value
}

// FormattedText renders a value for storage alongside the raw result
func FormattedText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	}

	if text, ok := numericText(value); ok {
		return text
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}

	return string(data)
}

func numericText(value any) (string, bool) {
	switch v := value.(type) {
	case int:
		return strconv.Itoa(v), true
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}
