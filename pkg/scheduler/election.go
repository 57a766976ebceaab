package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/placeholder-cache/pkg/observability"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	// ErrElectorStopped is returned when the elector is stopped while waiting for leadership
	ErrElectorStopped = errors.New("elector stopped while waiting for leadership")
)

// LeaderElector decides which instance dispatches scheduled runs
type LeaderElector interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	WaitForLeadership(ctx context.Context) error
}

// elector holds leadership through a Redis lease: SET NX to acquire, then
// owner-checked PEXPIRE renewals every renewInterval.
type elector struct {
	log           logrus.FieldLogger
	redis         *redis.Client
	instanceID    string
	leaderKey     string
	leaseTTL      time.Duration
	renewInterval time.Duration

	isLeader bool
	mu       sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	promoted chan struct{}
}

// NewLeaderElector creates a Redis-backed leader elector. The client is shared
// and not closed by Stop.
func NewLeaderElector(log logrus.FieldLogger, client *redis.Client, leaderKey string, leaseTTL, renewInterval time.Duration) LeaderElector {
	instanceID := uuid.New().String()

	return &elector{
		log:           log.WithField("component", "election"),
		redis:         client,
		instanceID:    instanceID,
		leaderKey:     leaderKey,
		leaseTTL:      leaseTTL,
		renewInterval: renewInterval,
		done:          make(chan struct{}),
		promoted:      make(chan struct{}, 1),
	}
}

func (e *elector) Start(ctx context.Context) error {
	e.log.WithField("instance_id", e.instanceID).Info("Starting leader election")

	e.wg.Add(1)
	go e.run(ctx)

	return nil
}

func (e *elector) Stop() error {
	e.stopOnce.Do(func() {
		e.log.Info("Stopping leader election")
		close(e.done)

		e.wg.Wait()
		e.relinquish(context.Background())

		e.log.Info("Leader election stopped")
	})

	return nil
}

func (e *elector) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.renewInterval)
	defer ticker.Stop()

	e.step(ctx)

	for {
		select {
		case <-e.done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			e.step(ctx)
		}
	}
}

func (e *elector) step(ctx context.Context) {
	wasLeader := e.IsLeader()
	acquired := e.tryAcquire(ctx)

	switch {
	case acquired && !wasLeader:
		e.setLeader(true)
		e.log.WithField("instance_id", e.instanceID).Info("Promoted to leader")

		select {
		case e.promoted <- struct{}{}:
		default:
		}
	case !acquired && wasLeader:
		e.setLeader(false)
		e.log.WithField("instance_id", e.instanceID).Warn("Lost leader lease")
	}
}

// renewScript extends the lease only while this instance still owns it
//
//nolint:gochecknoglobals // Lua scripts are shared by all electors
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// releaseScript deletes the lease only while this instance still owns it
//
//nolint:gochecknoglobals // Lua scripts are shared by all electors
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (e *elector) tryAcquire(ctx context.Context) bool {
	acquired, err := e.redis.SetNX(ctx, e.leaderKey, e.instanceID, e.leaseTTL).Result()
	if err != nil {
		e.log.WithError(err).Debug("Failed to acquire leader lease")
		return false
	}

	if acquired {
		e.log.WithFields(logrus.Fields{
			"instance_id": e.instanceID,
			"ttl":         e.leaseTTL,
		}).Debug("Acquired leader lease")

		return true
	}

	renewed, err := renewScript.Run(ctx, e.redis, []string{e.leaderKey}, e.instanceID, e.leaseTTL.Milliseconds()).Int()
	if err != nil {
		e.log.WithError(err).Warn("Failed to renew leader lease")
		return false
	}

	return renewed == 1
}

func (e *elector) relinquish(ctx context.Context) {
	if !e.IsLeader() {
		return
	}

	released, err := releaseScript.Run(ctx, e.redis, []string{e.leaderKey}, e.instanceID).Int()

	switch {
	case err != nil:
		e.log.WithError(err).Warn("Failed to release leader lease")
	case released == 1:
		e.log.WithField("instance_id", e.instanceID).Info("Released leader lease")
	}

	e.setLeader(false)
}

func (e *elector) setLeader(isLeader bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isLeader = isLeader

	observability.SetSchedulerLeader(isLeader)
}

func (e *elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader
}

func (e *elector) WaitForLeadership(ctx context.Context) error {
	if e.IsLeader() {
		return nil
	}

	e.log.Info("Waiting for leadership promotion")

	select {
	case <-e.promoted:
		e.log.Info("Leadership acquired")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context canceled while waiting for leadership: %w", ctx.Err())
	case <-e.done:
		return ErrElectorStopped
	}
}

// localElector is used without Redis: the single instance always leads
type localElector struct{}

func (localElector) Start(context.Context) error             { return nil }
func (localElector) Stop() error                             { return nil }
func (localElector) IsLeader() bool                          { return true }
func (localElector) WaitForLeadership(context.Context) error { return nil }

var (
	_ LeaderElector = (*elector)(nil)
	_ LeaderElector = localElector{}
)
