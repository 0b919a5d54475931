// Package security runs cache-first security analysis over pipeline snapshots.
package security

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ryo246912/gh-actions-scan/internal/cache"
	"github.com/ryo246912/gh-actions-scan/internal/models"
	"github.com/ryo246912/gh-actions-scan/internal/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/ryo246912/gh-actions-scan/internal/security")

// analysisTimeout bounds one shared analyzer call, which no single caller can cancel
const analysisTimeout = 5 * time.Minute

// NoLogsPlaceholder stands in for the logs of a run whose jobs produced none
const NoLogsPlaceholder = "No logs available for analysis"

// Analyzer reviews a workflow definition and its latest logs
type Analyzer interface {
	Analyze(ctx context.Context, workflowContent, logs, workflowName string) (*models.AnalysisResult, error)
}

// SnapshotSource produces pipeline snapshots
type SnapshotSource interface {
	Snapshot(ctx context.Context, userID, repoIdentifier string, opts ...pipeline.Option) (*models.PipelineSnapshot, error)
}

// Service is the security analysis orchestrator
type Service struct {
	snapshots SnapshotSource
	cache     *cache.Cache
	analyzer  Analyzer
	provider  string
	group     singleflight.Group
	logger    *slog.Logger
}

// NewService wires the orchestrator. snapshots may be nil when only AnalyzeSnapshot is used.
func NewService(snapshots SnapshotSource, c *cache.Cache, analyzer Analyzer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	provider := "unknown"
	if p, ok := analyzer.(interface{ Provider() string }); ok {
		provider = p.Provider()
	}
	return &Service{
		snapshots: snapshots,
		cache:     c,
		analyzer:  analyzer,
		provider:  provider,
		logger:    logger,
	}
}

// AggregateLogs joins the logs of a run's jobs, each under a "=== Job: <name> ===" header.
// A run without jobs yields "", a run whose jobs have no logs yields NoLogsPlaceholder.
func AggregateLogs(jobs []models.Job) string {
	if len(jobs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job.Logs == "" {
			continue
		}
		parts = append(parts, "\n=== Job: "+job.Name+" ===\n"+job.Logs)
	}
	if len(parts) == 0 {
		return NoLogsPlaceholder
	}
	return strings.Join(parts, "\n")
}

// AnalyzeRepository snapshots the repository and analyzes it
func (s *Service) AnalyzeRepository(ctx context.Context, userID, repoIdentifier string, opts ...pipeline.Option) (*models.AnalysisResponse, error) {
	if s.snapshots == nil {
		return nil, errors.New("security service has no snapshot source")
	}
	snap, err := s.snapshots.Snapshot(ctx, userID, repoIdentifier, opts...)
	if err != nil {
		return nil, err
	}
	return s.AnalyzeSnapshot(ctx, userID, snap)
}

// AnalyzeSnapshot analyzes the most recent run of the first workflow that has runs.
// A cached analysis of identical content and logs is returned without calling the
// analyzer; concurrent misses for the same input share one analyzer call.
func (s *Service) AnalyzeSnapshot(ctx context.Context, userID string, snap *models.PipelineSnapshot) (resp *models.AnalysisResponse, err error) {
	if snap == nil {
		return nil, &models.Error{Kind: models.KindInvalidInput, Message: "no pipeline snapshot"}
	}
	repoName := snap.Repository.FullName

	ctx, span := tracer.Start(ctx, "security.AnalyzeSnapshot", trace.WithAttributes(
		attribute.String("repository", repoName),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	wf, ok := snap.FirstWorkflowWithRuns()
	if !ok {
		return nil, &models.Error{
			Kind:       models.KindNotFound,
			Message:    "no workflow has a recent run to analyze",
			Repository: repoName,
		}
	}
	if strings.TrimSpace(wf.Content) == "" {
		return nil, &models.Error{
			Kind:       models.KindInvalidInput,
			Message:    "workflow file content is empty",
			Repository: repoName,
			Workflow:   wf.Path,
		}
	}

	run := wf.RecentRuns[0]
	logs := AggregateLogs(run.Jobs)
	repoID := strconv.FormatInt(snap.Repository.ID, 10)
	logger := s.logger.With("repository", repoName, "workflow", wf.Path, "run_id", run.ID)
	span.SetAttributes(attribute.String("workflow", wf.Path), attribute.Int64("run_id", run.ID))

	hit := s.cache.Lookup(ctx, userID, repoID, wf.Content, logs)
	if hit.Hit {
		logger.Debug("serving cached analysis", "analysis_id", hit.Analysis.AnalysisID)
		span.SetAttributes(attribute.Bool("cached", true))
		return &models.AnalysisResponse{Snapshot: snap, Analysis: hit.Analysis}, nil
	}

	ch := s.group.DoChan(repoID+":"+hit.Fingerprint, func() (any, error) {
		// callers share this call, so none of them may cancel it
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), analysisTimeout)
		defer cancel()

		logger.Info("running security analysis")
		analysis, err := s.analyzer.Analyze(ctx, wf.Content, logs, wf.Name)
		if err != nil {
			return nil, analysisError(repoName, wf.Path, err)
		}

		s.cache.Store(ctx, cache.StoreRequest{
			UserID:          userID,
			RepositoryID:    repoID,
			WorkflowPath:    wf.Path,
			WorkflowName:    wf.Name,
			WorkflowContent: wf.Content,
			Logs:            logs,
			Analysis:        analysis,
			Provider:        s.provider,
		})
		return analysis, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	analysis := *res.Val.(*models.AnalysisResult)
	span.SetAttributes(attribute.Bool("cached", false), attribute.Bool("shared", res.Shared))
	return &models.AnalysisResponse{Snapshot: snap, Analysis: &analysis}, nil
}

// Unavailable returns an Analyzer that fails every call with reason.
// A Service built on it still serves cached analyses.
func Unavailable(reason error) Analyzer {
	return unavailable{reason: reason}
}

type unavailable struct{ reason error }

func (u unavailable) Analyze(context.Context, string, string, string) (*models.AnalysisResult, error) {
	return nil, &models.Error{Kind: models.KindAnalysis, Message: "no analyzer is configured", Err: u.reason}
}

func (unavailable) Provider() string { return "none" }

// analysisError attaches repository and workflow context to an analyzer failure
func analysisError(repo, workflow string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var me *models.Error
	if errors.As(err, &me) && me.Kind == models.KindAnalysis {
		out := *me
		out.Repository = repo
		out.Workflow = workflow
		return &out
	}
	return &models.Error{
		Kind:       models.KindAnalysis,
		Message:    "security analysis failed",
		Repository: repo,
		Workflow:   workflow,
		Err:        err,
	}
}
