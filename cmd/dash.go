package cmd

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ryo246912/gh-actions-scan/internal/models"
	"github.com/ryo246912/gh-actions-scan/internal/pipeline"
	"github.com/ryo246912/gh-actions-scan/internal/security"
	"github.com/ryo246912/gh-actions-scan/internal/tui"
)

var dashCmd = &cobra.Command{
	Use:   "dash [OWNER/REPO]",
	Short: "Browse workflows, runs, job graphs and logs in a terminal UI",
	Args:  argsBetween(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := resolveRepo(firstArg(args))
		if err != nil {
			return err
		}

		loader := &dashLoader{
			agg:    newAggregator(),
			userID: env.cfg.UserID,
			repo:   repo,
		}
		svc, c, err := newSecurityService(loader.agg)
		if err != nil {
			// browsing still works; the scan key reports why analysis is unavailable
			env.logger.Warn("analysis cache unavailable, security analysis disabled", "error", err)
			loader.analysisErr = err
		} else {
			loader.svc = svc
			defer c.Close()
		}

		app := tui.NewApp(loader, repo, env.cfg.Aggregation.Timeout)
		p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running dashboard: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashCmd)
}

// dashLoader serves the dashboard from the aggregator and the orchestrator
type dashLoader struct {
	agg         *pipeline.Aggregator
	svc         *security.Service
	analysisErr error
	userID      string
	repo        string

	mu   sync.Mutex
	last *models.PipelineSnapshot
}

func (l *dashLoader) Snapshot(ctx context.Context) (*models.PipelineSnapshot, error) {
	snap, err := l.agg.Snapshot(ctx, l.userID, l.repo)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.last = snap
	l.mu.Unlock()
	return snap, nil
}

func (l *dashLoader) RunGraph(ctx context.Context, runID int64) (*models.WorkflowGraph, error) {
	return l.agg.WorkflowGraph(ctx, l.userID, l.repo, runID)
}

// Analyze reuses the snapshot on screen rather than aggregating again
func (l *dashLoader) Analyze(ctx context.Context) (*models.AnalysisResponse, error) {
	if l.svc == nil {
		return nil, &models.Error{Kind: models.KindAnalysis, Message: "security analysis is not configured", Err: l.analysisErr}
	}

	l.mu.Lock()
	snap := l.last
	l.mu.Unlock()
	if snap == nil {
		return l.svc.AnalyzeRepository(ctx, l.userID, l.repo)
	}
	return l.svc.AnalyzeSnapshot(ctx, l.userID, snap)
}
