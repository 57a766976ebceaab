package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethpandaops/placeholder-cache/pkg/observability"
	"github.com/ethpandaops/placeholder-cache/pkg/timeinfer"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// RunFunc executes one scheduled run for the given nominal time
type RunFunc func(ctx context.Context, nominal time.Time) error

// Job is a batch to run whenever its cron schedule fires
type Job struct {
	ID       string
	Schedule string
	Run      RunFunc
}

type scheduledJob struct {
	Job
	expr    *timeinfer.Expression
	nextRun *time.Time // cached to avoid tracker lookups
}

// ticker checks job schedules and dispatches due runs to a bounded pool
type ticker struct {
	log     logrus.FieldLogger
	clock   clockwork.Clock
	tracker scheduleTracker
	pool    pond.Pool
	timeout time.Duration

	jobs   []scheduledJob
	jobsMu sync.Mutex

	running   map[string]struct{}
	runningMu sync.Mutex
}

func newTicker(log logrus.FieldLogger, clock clockwork.Clock, tracker scheduleTracker, jobs []scheduledJob, concurrency int, timeout time.Duration) *ticker {
	return &ticker{
		log:     log.WithField("component", "ticker"),
		clock:   clock,
		tracker: tracker,
		pool:    pond.NewPool(concurrency),
		timeout: timeout,
		jobs:    jobs,
		running: make(map[string]struct{}),
	}
}

// checkSchedules dispatches every job whose next activation has passed. Missed
// activations collapse into the most recent one. A job that has never been
// seen is only registered; its first run is its next activation.
func (t *ticker) checkSchedules(ctx context.Context) {
	now := t.clock.Now().UTC()

	t.jobsMu.Lock()
	defer t.jobsMu.Unlock()

	for i := range t.jobs {
		job := &t.jobs[i]

		if job.nextRun != nil && now.Before(*job.nextRun) {
			continue
		}

		lastRun, err := t.tracker.GetLastRun(ctx, job.ID)
		if err != nil {
			t.log.WithError(err).WithField("job_id", job.ID).Warn("Failed to get last run, will retry next tick")

			continue
		}

		if lastRun.IsZero() {
			if err := t.tracker.SetLastRun(ctx, job.ID, now); err != nil {
				t.log.WithError(err).WithField("job_id", job.ID).Warn("Failed to register job")

				continue
			}

			next := job.expr.Next(now)
			job.nextRun = &next

			t.log.WithFields(logrus.Fields{
				"job_id":   job.ID,
				"next_run": next,
			}).Info("Registered scheduled job")

			continue
		}

		next := job.expr.Next(lastRun)
		if now.Before(next) {
			job.nextRun = &next

			continue
		}

		nominal := next
		for n := job.expr.Next(nominal); !n.After(now); n = job.expr.Next(nominal) {
			nominal = n
		}

		if !t.dispatch(ctx, job.Job, nominal) {
			continue
		}

		if err := t.tracker.SetLastRun(ctx, job.ID, nominal); err != nil {
			t.log.WithError(err).WithField("job_id", job.ID).Error("Failed to update last run timestamp")
		}

		following := job.expr.Next(nominal)
		job.nextRun = &following
	}
}

// dispatch submits a run unless the previous run of the same job is still going
func (t *ticker) dispatch(ctx context.Context, job Job, nominal time.Time) bool {
	t.runningMu.Lock()
	if _, busy := t.running[job.ID]; busy {
		t.runningMu.Unlock()
		t.log.WithField("job_id", job.ID).Warn("Previous run still in progress, skipping activation")

		return false
	}

	t.running[job.ID] = struct{}{}
	t.runningMu.Unlock()

	log := t.log.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"nominal": nominal.Format(time.RFC3339),
	})

	log.Info("Dispatching scheduled run")

	t.pool.Submit(func() {
		defer func() {
			t.runningMu.Lock()
			delete(t.running, job.ID)
			t.runningMu.Unlock()
		}()

		runCtx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()

		start := t.clock.Now()
		err := job.Run(runCtx, nominal)

		observability.RecordScheduledRun(job.ID, err == nil)

		if err != nil {
			log.WithError(err).Error("Scheduled run failed")

			return
		}

		log.WithField("duration_ms", t.clock.Since(start).Milliseconds()).Info("Scheduled run completed")
	})

	return true
}

// reconcile removes tracker state for jobs that are no longer configured
func (t *ticker) reconcile(ctx context.Context) {
	ids, err := t.tracker.GetAllJobIDs(ctx)
	if err != nil {
		t.log.WithError(err).Warn("Failed to list tracked jobs")

		return
	}

	configured := make(map[string]struct{}, len(t.jobs))
	for _, j := range t.jobs {
		configured[j.ID] = struct{}{}
	}

	for _, id := range ids {
		if _, ok := configured[id]; ok {
			continue
		}

		if err := t.tracker.DeleteLastRun(ctx, id); err != nil {
			t.log.WithError(err).WithField("job_id", id).Warn("Failed to remove stale job")

			continue
		}

		t.log.WithField("job_id", id).Info("Removed stale scheduled job")
	}
}

func (t *ticker) stop() {
	t.pool.StopAndWait()
}
