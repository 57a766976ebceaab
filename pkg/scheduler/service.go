package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethpandaops/placeholder-cache/pkg/timeinfer"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Service defines the public interface for the scheduler
type Service interface {
	// Start begins leader election and the schedule loop
	Start(ctx context.Context) error

	// Stop waits for in-flight runs and releases leadership
	Stop() error
}

type service struct {
	log   logrus.FieldLogger
	cfg   *Config
	clock clockwork.Clock

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	elector LeaderElector
	ticker  *ticker
}

// NewService creates a scheduler for the given jobs. With a nil client the
// instance leads unconditionally and keeps its last-run state in memory.
func NewService(log logrus.FieldLogger, cfg *Config, clock clockwork.Clock, client *redis.Client, keyPrefix string, jobs []Job) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	scheduled := make([]scheduledJob, 0, len(jobs))
	seen := make(map[string]struct{}, len(jobs))

	for _, j := range jobs {
		if j.ID == "" {
			return nil, ErrJobIDRequired
		}

		if _, ok := seen[j.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, j.ID)
		}

		seen[j.ID] = struct{}{}

		expr, err := timeinfer.ParseExpression(j.Schedule)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", j.ID, err)
		}

		scheduled = append(scheduled, scheduledJob{Job: j, expr: expr})
	}

	var (
		elector LeaderElector = localElector{}
		tracker               = newMemoryScheduleTracker()
	)

	if client != nil {
		elector = NewLeaderElector(log, client, keyPrefix+":leader", cfg.LeaseTTL, cfg.RenewInterval)
		tracker = newRedisScheduleTracker(log, client, keyPrefix)
	}

	return &service{
		log:     log.WithField("service", "scheduler"),
		cfg:     cfg,
		clock:   clock,
		done:    make(chan struct{}),
		elector: elector,
		ticker:  newTicker(log, clock, tracker, scheduled, cfg.Concurrency, cfg.TaskTimeout),
	}, nil
}

func (s *service) Start(ctx context.Context) error {
	if err := s.elector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start leader election: %w", err)
	}

	s.wg.Add(1)
	go s.loop(ctx)

	s.log.WithField("jobs", len(s.ticker.jobs)).Info("Scheduler service started")

	return nil
}

func (s *service) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()

		s.ticker.stop()

		if err := s.elector.Stop(); err != nil {
			s.log.WithError(err).Warn("Failed to stop leader elector")
		}

		s.log.Info("Scheduler service stopped")
	})

	return nil
}

func (s *service) loop(ctx context.Context) {
	defer s.wg.Done()

	t := s.clock.NewTicker(s.cfg.TickInterval)
	defer t.Stop()

	leading := false

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-t.Chan():
			if !s.elector.IsLeader() {
				leading = false

				continue
			}

			if !leading {
				s.log.Info("Leading scheduler, reconciling tracked jobs")
				s.ticker.reconcile(ctx)

				leading = true
			}

			s.ticker.checkSchedules(ctx)
		}
	}
}
