package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/placeholder-cache/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testLease = time.Second
	testRenew = 20 * time.Millisecond
)

func TestLeaderElection(t *testing.T) {
	t.Run("single instance becomes leader", func(t *testing.T) {
		_, client := testutil.NewMiniredisClient(t)

		elector := NewLeaderElector(testutil.NewLogger(t), client, "test:leader", testLease, testRenew)
		require.NoError(t, elector.Start(context.Background()))
		defer elector.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		require.NoError(t, elector.WaitForLeadership(ctx))
		assert.True(t, elector.IsLeader())
	})

	t.Run("second instance stands by", func(t *testing.T) {
		_, client := testutil.NewMiniredisClient(t)
		log := testutil.NewLogger(t)

		first := NewLeaderElector(log, client, "test:leader", testLease, testRenew)
		require.NoError(t, first.Start(context.Background()))
		defer first.Stop()

		require.Eventually(t, first.IsLeader, 2*time.Second, 5*time.Millisecond)

		second := NewLeaderElector(log, client, "test:leader", testLease, testRenew)
		require.NoError(t, second.Start(context.Background()))
		defer second.Stop()

		time.Sleep(5 * testRenew)

		assert.True(t, first.IsLeader())
		assert.False(t, second.IsLeader())
	})

	t.Run("stop hands over leadership", func(t *testing.T) {
		_, client := testutil.NewMiniredisClient(t)
		log := testutil.NewLogger(t)

		first := NewLeaderElector(log, client, "test:leader", testLease, testRenew)
		require.NoError(t, first.Start(context.Background()))

		require.Eventually(t, first.IsLeader, 2*time.Second, 5*time.Millisecond)

		second := NewLeaderElector(log, client, "test:leader", testLease, testRenew)
		require.NoError(t, second.Start(context.Background()))
		defer second.Stop()

		require.NoError(t, first.Stop())
		assert.False(t, first.IsLeader())

		require.Eventually(t, second.IsLeader, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("expired lease fails over", func(t *testing.T) {
		mr, client := testutil.NewMiniredisClient(t)
		log := testutil.NewLogger(t)

		// Cancelling the context stops renewals without releasing the lock
		firstCtx, cancelFirst := context.WithCancel(context.Background())

		first := NewLeaderElector(log, client, "test:leader", testLease, testRenew)
		require.NoError(t, first.Start(firstCtx))
		defer first.Stop()

		require.Eventually(t, first.IsLeader, 2*time.Second, 5*time.Millisecond)
		cancelFirst()

		second := NewLeaderElector(log, client, "test:leader", testLease, testRenew)
		require.NoError(t, second.Start(context.Background()))
		defer second.Stop()

		time.Sleep(5 * testRenew)
		assert.False(t, second.IsLeader())

		mr.FastForward(testLease + time.Millisecond)

		require.Eventually(t, second.IsLeader, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("stopped elector stops waiting", func(t *testing.T) {
		_, client := testutil.NewMiniredisClient(t)
		log := testutil.NewLogger(t)

		holder := NewLeaderElector(log, client, "test:leader", testLease, testRenew)
		require.NoError(t, holder.Start(context.Background()))
		defer holder.Stop()

		require.Eventually(t, holder.IsLeader, 2*time.Second, 5*time.Millisecond)

		waiter := NewLeaderElector(log, client, "test:leader", testLease, testRenew)
		require.NoError(t, waiter.Start(context.Background()))

		errCh := make(chan error, 1)
		go func() { errCh <- waiter.WaitForLeadership(context.Background()) }()

		time.Sleep(5 * testRenew)
		require.NoError(t, waiter.Stop())

		select {
		case err := <-errCh:
			require.ErrorIs(t, err, ErrElectorStopped)
		case <-time.After(2 * time.Second):
			t.Fatal("WaitForLeadership did not return")
		}
	})
}
