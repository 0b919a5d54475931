// Package pipeline assembles pipeline snapshots and run graphs from a CI/CD provider.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ryo246912/gh-actions-scan/internal/metrics"
	"github.com/ryo246912/gh-actions-scan/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("github.com/ryo246912/gh-actions-scan/internal/pipeline")

const (
	DefaultRunLimit       = 10
	DefaultMaxConcurrency = 8
	DefaultTimeout        = 2 * time.Minute
)

// Config bounds an aggregation
type Config struct {
	// RunLimit is the number of recent runs fetched per workflow
	RunLimit int
	// MaxConcurrency caps simultaneous provider calls per aggregation
	MaxConcurrency int
	// Timeout bounds a whole aggregation; zero means no bound beyond the caller's
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunLimit <= 0 {
		c.RunLimit = DefaultRunLimit
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	return c
}

// Option adjusts a single Snapshot call
type Option func(*Config)

// WithRunLimit overrides the number of recent runs per workflow
func WithRunLimit(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.RunLimit = n
		}
	}
}

// Aggregator builds PipelineSnapshots
type Aggregator struct {
	resolver ClientResolver
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewAggregator creates an aggregator
func NewAggregator(resolver ClientResolver, cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		resolver: resolver,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// fetcher carries the per-call client and concurrency bound
type fetcher struct {
	client Provider
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// call runs fn while holding one concurrency slot
func (f *fetcher) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer f.sem.Release(1)
	return fn(ctx)
}

// degrade records a leaf failure that was replaced by an empty value
func (f *fetcher) degrade(ctx context.Context, stage string, err error, attrs ...any) {
	if ctx.Err() != nil {
		return
	}
	metrics.AggregationDegraded.WithLabelValues(stage).Inc()
	f.logger.Warn("provider call failed, continuing without "+stage, append(attrs, "error", err)...)
}

// Snapshot fetches every workflow of the repository with its recent runs, their
// jobs and the jobs' logs. Failures below the workflow list degrade to empty
// values; the call fails only when the client, the repository or the workflow
// list cannot be obtained, or when ctx ends first.
func (a *Aggregator) Snapshot(ctx context.Context, userID, repoIdentifier string, opts ...Option) (snap *models.PipelineSnapshot, err error) {
	cfg := a.cfg
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, span := tracer.Start(ctx, "pipeline.Snapshot", trace.WithAttributes(
		attribute.String("repository", repoIdentifier),
		attribute.Int("run_limit", cfg.RunLimit),
	))
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.AggregationDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
		span.End()
	}()

	repo, err := ParseRepository(repoIdentifier)
	if err != nil {
		return nil, err
	}
	fullName := FullName(repo)

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	client, err := a.resolver.ClientFor(ctx, userID, repo)
	if err != nil {
		return nil, credentialError(fullName, err)
	}

	f := &fetcher{
		client: client,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		logger: a.logger.With("repository", fullName),
	}

	var info *models.Repository
	if err := f.call(ctx, func(ctx context.Context) error {
		var err error
		info, err = client.GetRepository(ctx)
		return err
	}); err != nil {
		return nil, rootError(fullName, "repository not found or not accessible", err)
	}
	if info == nil {
		return nil, &models.Error{Kind: models.KindNotFound, Message: "repository not found", Repository: fullName}
	}

	var workflows []models.Workflow
	if err := f.call(ctx, func(ctx context.Context) error {
		var err error
		workflows, err = client.ListWorkflows(ctx)
		return err
	}); err != nil {
		return nil, rootError(fullName, "cannot list workflows", err)
	}

	var g errgroup.Group
	for i := range workflows {
		wf := &workflows[i]
		g.Go(func() error {
			return f.fillWorkflow(ctx, wf, cfg.RunLimit)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap = &models.PipelineSnapshot{
		Repository: *info,
		Workflows:  workflows,
		Summary:    models.Summarize(workflows),
		FetchedAt:  a.now().UTC(),
	}
	span.SetAttributes(
		attribute.Int("workflows", snap.Summary.TotalWorkflows),
		attribute.Int("runs", snap.Summary.TotalRuns),
	)
	return snap, nil
}

// fillWorkflow fetches content and runs of wf concurrently, then each run's jobs
func (f *fetcher) fillWorkflow(ctx context.Context, wf *models.Workflow, limit int) error {
	var g errgroup.Group

	g.Go(func() error {
		err := f.call(ctx, func(ctx context.Context) error {
			content, err := f.client.GetFileContent(ctx, wf.Path, "")
			wf.Content = content
			return err
		})
		if err != nil {
			wf.Content = ""
			f.degrade(ctx, "content", err, "workflow", wf.Path)
		}
		return ctx.Err()
	})

	var runs []models.WorkflowRun
	g.Go(func() error {
		err := f.call(ctx, func(ctx context.Context) error {
			var err error
			runs, err = f.client.ListWorkflowRuns(ctx, wf.ID, limit)
			return err
		})
		if err != nil {
			runs = nil
			f.degrade(ctx, "runs", err, "workflow", wf.Path)
		}
		return ctx.Err()
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if runs == nil {
		runs = []models.WorkflowRun{}
	}
	wf.RecentRuns = runs

	var rg errgroup.Group
	for i := range wf.RecentRuns {
		run := &wf.RecentRuns[i]
		rg.Go(func() error {
			return f.fillRun(ctx, run, wf.Path)
		})
	}
	return rg.Wait()
}

// fillRun fetches the jobs of run, then each job's logs concurrently
func (f *fetcher) fillRun(ctx context.Context, run *models.WorkflowRun, workflowPath string) error {
	var jobs []models.Job
	err := f.call(ctx, func(ctx context.Context) error {
		var err error
		jobs, err = f.client.ListRunJobs(ctx, run.ID)
		return err
	})
	if err != nil {
		f.degrade(ctx, "jobs", err, "workflow", workflowPath, "run_id", run.ID)
		run.Jobs = []models.Job{}
		return ctx.Err()
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	run.Jobs = jobs

	var g errgroup.Group
	for i := range run.Jobs {
		job := &run.Jobs[i]
		g.Go(func() error {
			err := f.call(ctx, func(ctx context.Context) error {
				logs, err := f.client.GetJobLogs(ctx, job.ID)
				job.Logs = logs
				return err
			})
			if err != nil {
				job.Logs = ""
				f.degrade(ctx, "logs", err, "run_id", run.ID, "job_id", job.ID)
			}
			return ctx.Err()
		})
	}
	return g.Wait()
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// credentialError classifies a client resolution failure
func credentialError(repo string, err error) error {
	if isContextError(err) {
		return err
	}
	return &models.Error{
		Kind:       models.KindAuthentication,
		Message:    "no valid credential grants access",
		Repository: repo,
		Err:        err,
	}
}

// rootError classifies a failure of a call the whole aggregation depends on
func rootError(repo, message string, err error) error {
	if isContextError(err) {
		return err
	}
	if errors.Is(err, models.ErrAuthentication) {
		return &models.Error{
			Kind:       models.KindAuthentication,
			Message:    "credential rejected",
			Repository: repo,
			Err:        err,
		}
	}
	return &models.Error{
		Kind:       models.KindNotFound,
		Message:    message,
		Repository: repo,
		Err:        err,
	}
}
