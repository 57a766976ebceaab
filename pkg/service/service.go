// Package service wires the placeholder computation core into one application:
// a single engine, builder, cache store and executor constructed at start.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/placeholder-cache/pkg/batch"
	"github.com/ethpandaops/placeholder-cache/pkg/cache"
	"github.com/ethpandaops/placeholder-cache/pkg/clickhouse"
	"github.com/ethpandaops/placeholder-cache/pkg/observability"
	"github.com/ethpandaops/placeholder-cache/pkg/params"
	"github.com/ethpandaops/placeholder-cache/pkg/redis"
	"github.com/ethpandaops/placeholder-cache/pkg/timeinfer"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Batch is one report run as submitted to the service
type Batch struct {
	Placeholders []batch.PlaceholderSpec    `yaml:"placeholders"`
	Context      timeinfer.ExecutionContext `yaml:"context"`
	// AdHoc runs bypass the cache entirely
	AdHoc            bool           `yaml:"adHoc"`
	AdditionalParams map[string]any `yaml:"additionalParams"`
	MaxConcurrency   int            `yaml:"maxConcurrency"`
}

// Report is the outcome of a batch run together with the inferred time window
type Report struct {
	Inference *timeinfer.Result `json:"inference"`
	Result    *batch.Result     `json:"result"`
}

// Option customises a Service
type Option func(*Service)

// WithQueryRunner replaces the ClickHouse runner
func WithQueryRunner(r batch.QueryRunner) Option {
	return func(s *Service) {
		s.runner = r
	}
}

// WithRedisClient uses an existing client instead of dialling redis.address
func WithRedisClient(c *goredis.Client) Option {
	return func(s *Service) {
		s.redisClient = c
	}
}

// WithClock replaces the wall clock
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// Service encapsulates the placeholder application
type Service struct {
	config *Config
	log    logrus.FieldLogger
	clock  clockwork.Clock

	engine  *timeinfer.Engine
	builder *params.Builder

	runner      batch.QueryRunner
	chClient    clickhouse.ClientInterface
	redisClient *goredis.Client
	ownsRedis   bool

	store    cache.Store
	executor *batch.Executor
}

// NewService creates a new service. Connections are opened by Start.
func NewService(log logrus.FieldLogger, cfg *Config, opts ...Option) (*Service, error) {
	s := &Service{
		config: cfg,
		log:    log.WithField("component", "service"),
		clock:  clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(s)
	}

	validate := cfg.Validate
	if s.runner != nil {
		// A supplied runner makes the ClickHouse section optional
		validate = cfg.validateCore
	}

	if err := validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s.engine = timeinfer.NewEngine(log, s.clock)
	s.builder = params.NewBuilder(log, s.clock, cfg.Params.Derived)

	return s, nil
}

// Start connects to ClickHouse and Redis and builds the executor
func (s *Service) Start(ctx context.Context) error {
	if s.runner == nil {
		chClient, err := clickhouse.NewClient(s.log, &s.config.ClickHouse)
		if err != nil {
			return fmt.Errorf("failed to create ClickHouse client: %w", err)
		}

		if err := chClient.Start(); err != nil {
			return err
		}

		s.chClient = chClient
		s.runner = chClient
	}

	if err := s.StartStore(ctx); err != nil {
		return err
	}

	executor, err := batch.NewExecutor(s.log, s.clock, s.builder, s.store, s.runner, &s.config.Batch)
	if err != nil {
		return err
	}

	s.executor = executor

	s.log.WithFields(logrus.Fields{
		"max_concurrency": s.config.Batch.MaxConcurrency,
		"test_mode":       s.config.TestMode.Enabled,
	}).Info("Placeholder service started")

	return nil
}

// StartStore builds the cache store only. Cache maintenance commands use it
// without a query runner.
func (s *Service) StartStore(ctx context.Context) error {
	if s.store != nil {
		return nil
	}

	switch {
	case s.redisClient != nil:
		s.store = cache.NewRedisStore(s.log, s.clock, &s.config.Cache, s.redisClient, s.config.Redis.PrefixKey("cache"))
	case s.config.Redis.Address != "":
		client, err := redis.NewClient(ctx, s.log, &s.config.Redis)
		if err != nil {
			return err
		}

		s.redisClient = client
		s.ownsRedis = true
		s.store = cache.NewRedisStore(s.log, s.clock, &s.config.Cache, client, s.config.Redis.PrefixKey("cache"))
	default:
		s.log.Warn("No redis address configured, cache entries are kept in memory")
		s.store = cache.NewMemoryStore(s.log, s.clock, &s.config.Cache)
	}

	return nil
}

// Stop closes connections opened by Start
func (s *Service) Stop() error {
	if s.chClient != nil {
		if err := s.chClient.Stop(); err != nil {
			s.log.WithError(err).Warn("Failed to stop ClickHouse client")
		}
	}

	if s.ownsRedis && s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close redis client: %w", err)
		}
	}

	return nil
}

// Store returns the cache store built by Start
func (s *Service) Store() cache.Store {
	return s.store
}

// RedisClient returns the client behind the cache store, or nil for the memory store
func (s *Service) RedisClient() *goredis.Client {
	return s.redisClient
}

// Infer resolves the base date for an execution context, applying the
// configured test mode
func (s *Service) Infer(ec timeinfer.ExecutionContext) (*timeinfer.Result, error) {
	ec, err := s.applyTestMode(ec)
	if err != nil {
		return nil, err
	}

	return s.engine.FromContext(ec)
}

// NextRun returns the next activation of cronExpr after the given instant
func (s *Service) NextRun(cronExpr string, after time.Time) (time.Time, error) {
	return s.engine.NextRun(cronExpr, after)
}

// Params builds the parameter set for a YYYY-MM-DD base date
func (s *Service) Params(baseDate string, additional map[string]any) (*params.ParameterSet, error) {
	return s.builder.BuildFromString(baseDate, s.config.Batch.TimezoneOffsetHours, additional)
}

// Run infers the base date for b and resolves every placeholder. Inference
// errors abort the run before any placeholder is touched.
func (s *Service) Run(ctx context.Context, b *Batch) (*Report, error) {
	if s.executor == nil {
		return nil, ErrNotStarted
	}

	ec := b.Context
	if ec.NominalTime.IsZero() {
		ec.NominalTime = s.clock.Now()
	}

	inference, err := s.Infer(ec)
	if err != nil {
		return nil, err
	}

	req := batch.Request{
		Placeholders:     b.Placeholders,
		BaseDate:         inference.BaseDate,
		AdditionalParams: b.AdditionalParams,
		MaxConcurrency:   b.MaxConcurrency,
	}

	if !b.AdHoc {
		if ec.ReportPeriod == "" {
			ec.ReportPeriod = inference.BaseDateString()
		}

		req.Execution = &ec
	}

	s.log.WithFields(logrus.Fields{
		"placeholders": len(b.Placeholders),
		"base_date":    inference.BaseDateString(),
		"frequency":    inference.Frequency,
		"confidence":   inference.Confidence,
		"ad_hoc":       b.AdHoc,
	}).Info("Running placeholder batch")

	result, err := s.executor.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Report{Inference: inference, Result: result}, nil
}

// Invalidate expires every live cache entry of a template
func (s *Service) Invalidate(ctx context.Context, templateID string) (int, error) {
	if s.store == nil {
		return 0, ErrNotStarted
	}

	count, err := s.store.Invalidate(ctx, templateID)
	if err != nil {
		return 0, err
	}

	observability.RecordInvalidation(count)

	s.log.WithFields(logrus.Fields{
		"template_id": templateID,
		"count":       count,
	}).Info("Invalidated cache entries")

	return count, nil
}

func (s *Service) applyTestMode(ec timeinfer.ExecutionContext) (timeinfer.ExecutionContext, error) {
	if !s.config.TestMode.Enabled || ec.IsTestMode {
		return ec, nil
	}

	fixed, err := s.config.TestMode.fixedDate()
	if err != nil {
		return ec, err
	}

	ec.IsTestMode = true
	ec.FixedTestDate = fixed
	offset := s.config.TestMode.DaysOffset
	ec.TestDaysOffset = &offset

	return ec, nil
}
