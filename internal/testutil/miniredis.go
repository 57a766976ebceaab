package testutil

import (
	"sort"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewMiniredis starts an in-memory Redis that is closed with the test
func NewMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	return miniredis.RunT(t)
}

// NewMiniredisClient starts an in-memory Redis and connects to it the way
// production code does, through a redis:// URL.
func NewMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)

	opts, err := redis.ParseURL(RedisURL(mr))
	if err != nil {
		t.Fatalf("parse miniredis url: %v", err)
	}

	client := redis.NewClient(opts)

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("failed to close miniredis client: %v", err)
		}
	})

	return mr, client
}

// RedisURL returns the redis:// URL of a miniredis server
func RedisURL(mr *miniredis.Miniredis) string {
	return "redis://" + mr.Addr() + "/0"
}

// KeysWithPrefix lists the keys stored under prefix, sorted
func KeysWithPrefix(mr *miniredis.Miniredis, prefix string) []string {
	var keys []string

	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	return keys
}
