package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ryo246912/gh-actions-scan/internal/graph"
	"github.com/ryo246912/gh-actions-scan/internal/metrics"
	"github.com/ryo246912/gh-actions-scan/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WorkflowGraph fetches a run with its jobs and the workflow file at the run's
// commit, and builds the run's dependency graph. A missing workflow file only
// costs the dependency edges.
func (a *Aggregator) WorkflowGraph(ctx context.Context, userID, repoIdentifier string, runID int64, opts ...graph.Option) (g *models.WorkflowGraph, err error) {
	ctx, span := tracer.Start(ctx, "pipeline.WorkflowGraph", trace.WithAttributes(
		attribute.String("repository", repoIdentifier),
		attribute.Int64("run_id", runID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if runID <= 0 {
		return nil, &models.Error{Kind: models.KindInvalidInput, Message: fmt.Sprintf("invalid run id %d", runID), Repository: repoIdentifier}
	}

	repo, err := ParseRepository(repoIdentifier)
	if err != nil {
		return nil, err
	}
	fullName := FullName(repo)

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	client, err := a.resolver.ClientFor(ctx, userID, repo)
	if err != nil {
		return nil, credentialError(fullName, err)
	}
	logger := a.logger.With("repository", fullName, "run_id", runID)

	detail, err := client.GetWorkflowRun(ctx, runID)
	if err != nil {
		return nil, rootError(fullName, fmt.Sprintf("run %d not found", runID), err)
	}

	jobs, err := client.ListRunJobs(ctx, runID)
	if err != nil {
		return nil, rootError(fullName, fmt.Sprintf("cannot list jobs of run %d", runID), err)
	}

	var definition []byte
	if detail.WorkflowPath != "" {
		content, err := client.GetFileContent(ctx, detail.WorkflowPath, detail.Run.CommitSHA)
		if err != nil {
			if isContextError(err) {
				return nil, err
			}
			metrics.AggregationDegraded.WithLabelValues("content").Inc()
			logger.Warn("workflow file unavailable, building graph without dependencies",
				"workflow", detail.WorkflowPath, "error", err)
		} else {
			definition = []byte(content)
		}
	}

	g, err = graph.Build(jobs, definition, append([]graph.Option{graph.WithLogger(logger)}, opts...)...)
	if err != nil {
		var me *models.Error
		if errors.As(err, &me) && me.Repository == "" {
			me.Repository = fullName
			me.Workflow = detail.WorkflowPath
		}
		return nil, err
	}

	g.RunID = detail.Run.ID
	g.WorkflowName = detail.WorkflowName
	g.Branch = detail.Run.Branch
	g.Status = detail.Run.Status
	g.Conclusion = detail.Run.Conclusion
	span.SetAttributes(attribute.Int("jobs", len(g.Jobs)))
	return g, nil
}
