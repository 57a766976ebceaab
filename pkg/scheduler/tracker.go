package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// scheduleTracker stores the nominal time of the last dispatched run per job
type scheduleTracker interface {
	// GetLastRun returns zero time if the job has never run
	GetLastRun(ctx context.Context, jobID string) (time.Time, error)
	SetLastRun(ctx context.Context, jobID string, timestamp time.Time) error
	// DeleteLastRun drops jobs that are no longer configured
	DeleteLastRun(ctx context.Context, jobID string) error
	GetAllJobIDs(ctx context.Context) ([]string, error)
}

// redisScheduleTracker keys: {prefix}:job:{jobID}
type redisScheduleTracker struct {
	log       logrus.FieldLogger
	redis     *redis.Client
	keyPrefix string
}

func newRedisScheduleTracker(log logrus.FieldLogger, client *redis.Client, prefix string) scheduleTracker {
	return &redisScheduleTracker{
		log:       log.WithField("component", "schedule_tracker"),
		redis:     client,
		keyPrefix: prefix + ":job:",
	}
}

func (r *redisScheduleTracker) GetLastRun(ctx context.Context, jobID string) (time.Time, error) {
	val, err := r.redis.Get(ctx, r.keyPrefix+jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}

		return time.Time{}, fmt.Errorf("failed to get last run for job %s: %w", jobID, err)
	}

	timestamp, err := time.Parse(time.RFC3339, val)
	if err != nil {
		r.log.WithError(err).
			WithFields(logrus.Fields{
				"job_id":    jobID,
				"raw_value": val,
			}).
			Error("Failed to parse timestamp")

		return time.Time{}, fmt.Errorf("failed to parse timestamp for job %s: %w", jobID, err)
	}

	return timestamp, nil
}

func (r *redisScheduleTracker) SetLastRun(ctx context.Context, jobID string, timestamp time.Time) error {
	if err := r.redis.Set(ctx, r.keyPrefix+jobID, timestamp.UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("failed to set last run for job %s: %w", jobID, err)
	}

	r.log.WithFields(logrus.Fields{
		"job_id":    jobID,
		"timestamp": timestamp,
	}).Debug("Updated last run for job")

	return nil
}

func (r *redisScheduleTracker) DeleteLastRun(ctx context.Context, jobID string) error {
	if err := r.redis.Del(ctx, r.keyPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("failed to delete last run for job %s: %w", jobID, err)
	}

	return nil
}

func (r *redisScheduleTracker) GetAllJobIDs(ctx context.Context) ([]string, error) {
	const scanBatchSize = 100

	var ids []string

	iter := r.redis.Scan(ctx, 0, r.keyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(r.keyPrefix):])
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan job IDs: %w", err)
	}

	return ids, nil
}

// memoryScheduleTracker keeps last runs for the lifetime of the process
type memoryScheduleTracker struct {
	mu       sync.Mutex
	lastRuns map[string]time.Time
}

func newMemoryScheduleTracker() scheduleTracker {
	return &memoryScheduleTracker{lastRuns: make(map[string]time.Time)}
}

func (m *memoryScheduleTracker) GetLastRun(_ context.Context, jobID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastRuns[jobID], nil
}

func (m *memoryScheduleTracker) SetLastRun(_ context.Context, jobID string, timestamp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastRuns[jobID] = timestamp

	return nil
}

func (m *memoryScheduleTracker) DeleteLastRun(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.lastRuns, jobID)

	return nil
}

func (m *memoryScheduleTracker) GetAllJobIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.lastRuns))
	for id := range m.lastRuns {
		ids = append(ids, id)
	}

	return ids, nil
}

var (
	_ scheduleTracker = (*redisScheduleTracker)(nil)
	_ scheduleTracker = (*memoryScheduleTracker)(nil)
)
