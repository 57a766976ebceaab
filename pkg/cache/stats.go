package cache

import "time"

func summarize(placeholderID string, entries []Entry, now time.Time) *Stats {
	stats := &Stats{PlaceholderID: placeholderID, Total: len(entries)}

	for _, e := range entries {
		if e.IsLatestVersion {
			stats.Latest++
		}

		if !e.ExpiresAt.After(now) {
			stats.Expired++
		}

		stats.Hits += e.HitCount
	}

	return stats
}
