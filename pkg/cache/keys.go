package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

const (
	cacheKeyLength = 32
	batchIDLength  = 16
)

// CacheKey is stable for a placeholder/data source pair and independent of content
//
//nolint:revive // cache.CacheKey reads better at call sites than cache.Key
func CacheKey(placeholderID, dataSourceID string) string {
	return digest(placeholderID, dataSourceID)[:cacheKeyLength]
}

// VersionHash addresses a result by the SQL text, its parameters and the
// computation instant. Any change in one of them yields a new hash.
func VersionHash(filledSQL string, sqlParameters map[string]any, executionTime time.Time) string {
	return digest(filledSQL, serializeParams(sqlParameters), executionTime.UTC().Format(time.RFC3339Nano))
}

// ExecutionBatchID groups entries written by the same run for a placeholder
func ExecutionBatchID(executionTime time.Time, reportPeriod, placeholderID string) string {
	return digest(executionTime.UTC().Format(time.RFC3339Nano), reportPeriod, placeholderID)[:batchIDLength]
}

// contentHash is used as the version hash when no execution info is supplied
func contentHash(raw any, createdAt time.Time) string {
	data, err := json.Marshal(raw)
	if err != nil {
		data = []byte(fmt.Sprint(raw))
	}

	return digest(string(data), createdAt.UTC().Format(time.RFC3339Nano))
}

// serializeParams relies on encoding/json sorting map keys
func serializeParams(p map[string]any) string {
	if len(p) == 0 {
		return "{}"
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprint(p)
	}

	return string(data)
}

func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}

// newEntry builds the row Put inserts
func newEntry(id, placeholderID, dataSourceID string, result Result, info *ExecutionInfo, now time.Time, ttl time.Duration) Entry {
	entry := Entry{
		ID:              id,
		PlaceholderID:   placeholderID,
		TemplateID:      result.TemplateID,
		DataSourceID:    dataSourceID,
		CacheKey:        CacheKey(placeholderID, dataSourceID),
		RawResult:       result.RawResult,
		FormattedText:   result.FormattedText,
		Success:         result.Success,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
		IsLatestVersion: true,
	}

	if info != nil {
		entry.ExecutionBatchID = ExecutionBatchID(info.ExecutionTime, info.ReportPeriod, placeholderID)
		entry.VersionHash = VersionHash(info.FilledSQL, info.SQLParameters, info.ExecutionTime)
	} else {
		entry.VersionHash = contentHash(result.RawResult, now)
	}

	return entry
}
