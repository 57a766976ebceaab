// Package sqltemplate validates and fills {{param}} SQL templates
package sqltemplate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethpandaops/placeholder-cache/pkg/params"
)

//nolint:gochecknoglobals // compiled once
var (
	tokenPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

	// Substrings that are suspicious in a read-only query. Matches are warnings only.
	riskyFragments = []string{"--", ";", "drop", "delete", "update", "insert", "exec"}

	timeParams = func() map[string]struct{} {
		m := make(map[string]struct{}, len(params.TimeParamNames))
		for _, name := range params.TimeParamNames {
			m[name] = struct{}{}
		}

		return m
	}()
)

// ValidationResult is the outcome of Validate
type ValidationResult struct {
	Valid              bool     `json:"valid"`
	Issues             []string `json:"issues"`
	Warnings           []string `json:"warnings"`
	Placeholders       []string `json:"placeholders"`
	RequiredTimeParams []string `json:"required_time_params"`
}

// Err returns a *ValidationError when the template is invalid, nil otherwise
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}

	return &ValidationError{Issues: r.Issues}
}

// Validate checks the shape of a SQL template. A template is valid when it
// starts with SELECT or WITH. Unbalanced braces and risky keywords only warn.
func Validate(template string) *ValidationResult {
	result := &ValidationResult{
		Issues:             []string{},
		Warnings:           []string{},
		Placeholders:       Placeholders(template),
		RequiredTimeParams: []string{},
	}

	trimmed := strings.TrimSpace(template)
	upper := strings.ToUpper(trimmed)

	switch {
	case trimmed == "":
		result.Issues = append(result.Issues, "template is empty")
	case !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH"):
		result.Issues = append(result.Issues, "template must start with SELECT or WITH")
	}

	if problem := unmatchedBrace(template); problem != "" {
		result.Warnings = append(result.Warnings, "unmatched braces: "+problem)
	}

	lower := strings.ToLower(template)
	for _, fragment := range riskyFragments {
		if strings.Contains(lower, fragment) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("template contains potentially dangerous fragment %q", fragment))
		}
	}

	for _, name := range result.Placeholders {
		if _, ok := timeParams[name]; ok {
			result.RequiredTimeParams = append(result.RequiredTimeParams, name)
		}
	}

	result.Valid = len(result.Issues) == 0

	return result
}

// unmatchedBrace scans brace depth and describes the first misplaced brace
func unmatchedBrace(template string) string {
	depth := 0

	for i, r := range template {
		switch r {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return fmt.Sprintf("'}' at offset %d has no opening brace", i)
			}

			depth--
		}
	}

	if depth > 0 {
		return fmt.Sprintf("%d '{' left unclosed", depth)
	}

	return ""
}

// Placeholders returns the distinct {{...}} token names in order of first appearance
func Placeholders(template string) []string {
	names := []string{}
	seen := make(map[string]struct{})

	for _, match := range tokenPattern.FindAllStringSubmatch(template, -1) {
		name := strings.TrimSpace(match[1])
		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}
		names = append(names, name)
	}

	return names
}
