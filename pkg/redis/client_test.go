package redis

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/placeholder-cache/internal/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{}
	require.ErrorIs(t, cfg.Validate(), ErrAddressRequired)

	cfg = &Config{Address: "redis://localhost:6379"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultPrefix, cfg.Prefix)

	for _, prefix := range []string{"reports:", "my reports"} {
		cfg = &Config{Address: "redis://localhost:6379", Prefix: prefix}
		require.ErrorIs(t, cfg.Validate(), ErrInvalidPrefix, prefix)
	}

	cfg = &Config{Address: "redis://localhost:6379", PoolSize: -1}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidPoolSize)
}

func TestApplyOverrides(t *testing.T) {
	opts, err := goredis.ParseURL("redis://localhost:6379/2?dial_timeout=1s")
	require.NoError(t, err)

	applyOverrides(opts, &Config{PoolSize: 20, ReadTimeout: 2 * time.Second})

	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
}

func TestConfig_PrefixKey(t *testing.T) {
	assert.Equal(t, "reports:entry:1", (&Config{Prefix: "reports"}).PrefixKey("entry:1"))
	assert.Equal(t, "entry:1", (&Config{}).PrefixKey("entry:1"))
}

func TestNewClient(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	client, err := NewClient(context.Background(), testutil.NewLogger(t), &Config{Address: testutil.RedisURL(mr)})
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewClient_Errors(t *testing.T) {
	log := testutil.NewLogger(t)

	_, err := NewClient(context.Background(), log, &Config{Address: "not-a-url"})
	require.Error(t, err)

	mr := testutil.NewMiniredis(t)
	addr := mr.Addr()
	mr.Close()

	_, err = NewClient(context.Background(), log, &Config{Address: "redis://" + addr})
	require.Error(t, err)
}
