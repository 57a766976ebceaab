package sqltemplate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

//nolint:gochecknoglobals // compiled once
var fillPattern = regexp.MustCompile(`'\{\{([^{}]*)\}\}'|\{\{([^{}]*)\}\}`)

// Fill substitutes {{key}} tokens with values from params. A token the
// template already wraps in single quotes receives the bare value text.
// Tokens without a value are left untouched and reported in the returned
// missing list; Fill never fails on them.
func Fill(template string, params map[string]any) (string, []string) {
	missing := []string{}
	seen := make(map[string]struct{})

	filled := fillPattern.ReplaceAllStringFunc(template, func(token string) string {
		inner := token

		quoted := strings.HasPrefix(token, "'")
		if quoted {
			inner = token[1 : len(token)-1]
		}

		key := strings.TrimSpace(inner[2 : len(inner)-2])

		value, ok := params[key]
		if !ok {
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				missing = append(missing, key)
			}

			return token
		}

		if quoted {
			return "'" + bare(value) + "'"
		}

		return Literal(value)
	})

	return filled, missing
}

// FillStrict is Fill that reports missing tokens as a *MissingParametersError
func FillStrict(template string, params map[string]any) (string, error) {
	filled, missing := Fill(template, params)
	if len(missing) > 0 {
		return filled, &MissingParametersError{Keys: missing}
	}

	return filled, nil
}

// Literal renders a parameter value as a SQL literal. Numbers are bare,
// everything else is single quoted unless it is already wrapped in quotes.
func Literal(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "TRUE"
		}

		return "FALSE"
	case string:
		return quote(v)
	case fmt.Stringer:
		return quote(v.String())
	default:
		return quote(fmt.Sprint(v))
	}
}

// bare is Literal without the surrounding quotes
func bare(value any) string {
	if value == nil {
		return ""
	}

	text := Literal(value)
	if isQuoted(text) {
		return text[1 : len(text)-1]
	}

	return text
}

func isQuoted(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'")
}

func quote(s string) string {
	if isQuoted(s) {
		return s
	}

	return "'" + s + "'"
}
