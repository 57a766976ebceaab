package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethpandaops/placeholder-cache/pkg/observability"
	"github.com/ethpandaops/placeholder-cache/pkg/scheduler"
	"github.com/ethpandaops/placeholder-cache/pkg/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	errNoJobs           = errors.New("no scheduler jobs configured")
	errJobCronRequired  = errors.New("batch file has no context.cronExpression")
	errJobAdHocSchedule = errors.New("scheduled batch cannot be ad hoc")
)

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run configured batches on their cron schedules",
	Long: `Serve runs every batch listed under scheduler.jobs whenever its
context.cronExpression fires, using the activation time as the nominal time.
With redis configured, instances elect a leader and only the leader dispatches;
last-run state survives restarts.`,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if len(cfg.Scheduler.Jobs) == 0 {
		return errNoJobs
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.NewService(logger, cfg)
	if err != nil {
		return err
	}

	jobs, err := scheduledJobs(svc, cfg)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		metrics := observability.NewMetricsServer(logger, cfg.MetricsAddr)
		if err := metrics.Start(); err != nil {
			return err
		}

		defer func() {
			if err := metrics.Stop(context.Background()); err != nil {
				logger.WithError(err).Warn("Failed to stop metrics server")
			}
		}()
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}

	defer func() {
		if err := svc.Stop(); err != nil {
			logger.WithError(err).Warn("Failed to stop service")
		}
	}()

	sched, err := scheduler.NewService(logger, &cfg.Scheduler, nil, svc.RedisClient(), cfg.Redis.PrefixKey("scheduler"), jobs)
	if err != nil {
		return err
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}

	logger.WithField("jobs", len(jobs)).Info("Serving scheduled batches")

	<-ctx.Done()

	logger.Info("Shutting down")

	return sched.Stop()
}

// scheduledJobs loads each job's batch file and binds it to the service
func scheduledJobs(svc *service.Service, cfg *service.Config) ([]scheduler.Job, error) {
	jobs := make([]scheduler.Job, 0, len(cfg.Scheduler.Jobs))

	for _, jc := range cfg.Scheduler.Jobs {
		b, err := loadBatchFile(jc.BatchFile)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", jc.ID, err)
		}

		if b.Context.CronExpression == "" {
			return nil, fmt.Errorf("job %s: %w", jc.ID, errJobCronRequired)
		}

		if b.AdHoc {
			return nil, fmt.Errorf("job %s: %w", jc.ID, errJobAdHocSchedule)
		}

		jobs = append(jobs, scheduler.Job{
			ID:       jc.ID,
			Schedule: b.Context.CronExpression,
			Run:      batchRunner(svc, jc.ID, b),
		})
	}

	return jobs, nil
}

func batchRunner(svc *service.Service, id string, template *service.Batch) scheduler.RunFunc {
	return func(ctx context.Context, nominal time.Time) error {
		b := *template
		b.Context.NominalTime = nominal

		report, err := svc.Run(ctx, &b)
		if err != nil {
			return err
		}

		st := report.Result.Stats
		logger.WithFields(logrus.Fields{
			"job_id":     id,
			"base_date":  report.Inference.BaseDateString(),
			"succeeded":  st.SuccessCount,
			"failed":     st.FailCount,
			"cache_hits": st.CacheHitCount,
		}).Info("Scheduled batch resolved")

		return nil
	}
}
