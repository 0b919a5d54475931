package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryo246912/gh-actions-scan/internal/models"
)

type fakeLoader struct {
	snapshot    *models.PipelineSnapshot
	snapshotErr error
	graph       *models.WorkflowGraph
	analysis    *models.AnalysisResponse
	analyzeErr  error

	graphRuns []int64
}

func (f *fakeLoader) Snapshot(context.Context) (*models.PipelineSnapshot, error) {
	return f.snapshot, f.snapshotErr
}

func (f *fakeLoader) RunGraph(_ context.Context, runID int64) (*models.WorkflowGraph, error) {
	f.graphRuns = append(f.graphRuns, runID)
	return f.graph, nil
}

func (f *fakeLoader) Analyze(context.Context) (*models.AnalysisResponse, error) {
	return f.analysis, f.analyzeErr
}

func sampleLoader() *fakeLoader {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Minute)

	snapshot := &models.PipelineSnapshot{
		Repository: models.Repository{ID: 1, Name: "demo", FullName: "octo/demo", Provider: models.ProviderGitHub},
		Workflows: []models.Workflow{{
			ID:    10,
			Name:  "CI",
			Path:  ".github/workflows/ci.yml",
			State: "active",
			RecentRuns: []models.WorkflowRun{{
				ID:          100,
				Status:      "completed",
				Conclusion:  "failure",
				Branch:      "main",
				CommitSHA:   "abcdef1234567",
				TriggeredAt: start,
				CompletedAt: &end,
				RunNumber:   42,
				Event:       "push",
				Jobs: []models.Job{
					{ID: 1, Name: "build", Status: "completed", Conclusion: "success", Logs: "2024-05-01T10:00:00Z compiling"},
					{ID: 2, Name: "test", Status: "completed", Conclusion: "failure", Logs: "2024-05-01T10:01:00Z ##[error]boom"},
				},
			}},
		}},
		FetchedAt: end,
	}
	snapshot.Summary = models.Summarize(snapshot.Workflows)

	graph := &models.WorkflowGraph{
		RunID:        100,
		WorkflowName: "CI",
		Branch:       "main",
		Status:       "completed",
		Conclusion:   "failure",
		Jobs: map[string]*models.GraphNode{
			"build": {ID: 1, Name: "build", Conclusion: "success", Dependencies: []string{}},
			"test":  {ID: 2, Name: "test", Conclusion: "failure", Dependencies: []string{"build"}},
		},
		ExecutionOrder: []string{"build", "test"},
	}

	return &fakeLoader{
		snapshot: snapshot,
		graph:    graph,
		analysis: &models.AnalysisResponse{
			Snapshot: snapshot,
			Analysis: &models.AnalysisResult{
				AnalysisID:  "a-1",
				Timestamp:   end,
				OverallRisk: models.RiskHigh,
				Summary:     "Unpinned third-party action",
				Issues: []models.SecurityIssue{{
					Severity:       models.RiskHigh,
					Title:          "Action not pinned to a commit",
					Description:    "uses: foo/bar@main",
					Recommendation: "Pin to a full SHA",
					Category:       "supply-chain",
				}},
			},
		},
	}
}

// run executes cmd and feeds the resulting message back into the app
func run(t *testing.T, app *App, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	msg := cmd()
	_, _ = app.Update(msg)
}

func press(app *App, k tea.KeyMsg) tea.Cmd {
	_, cmd := app.Update(k)
	return cmd
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	scan  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}}
	watch = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}}
)

func newTestApp(t *testing.T, loader *fakeLoader) *App {
	t.Helper()
	app := NewApp(loader, "octo/demo", time.Second)
	_, _ = app.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	return app
}

func TestApp_LoadsSnapshot(t *testing.T) {
	app := newTestApp(t, sampleLoader())
	assert.Contains(t, app.View(), "Loading pipeline snapshot")

	run(t, app, app.Init())

	view := app.View()
	assert.Contains(t, view, "octo/demo")
	assert.Contains(t, view, "CI")
	assert.Contains(t, view, "1 workflows • 1 runs")
}

func TestApp_DrillDownToJobLogs(t *testing.T) {
	loader := sampleLoader()
	app := newTestApp(t, loader)
	run(t, app, app.Init())

	assert.Nil(t, press(app, enter))
	assert.Equal(t, WorkflowRunsView, app.viewState)
	assert.Contains(t, app.View(), "#42")

	run(t, app, press(app, enter))
	assert.Equal(t, RunGraphView, app.viewState)
	assert.Equal(t, []int64{100}, loader.graphRuns)
	view := app.View()
	assert.Contains(t, view, "Execution order (2 jobs)")
	assert.Contains(t, view, "build")

	_, _ = app.Update(tea.KeyMsg{Type: tea.KeyDown})
	_ = press(app, enter)
	assert.Equal(t, JobLogsView, app.viewState)
	require.NotNil(t, app.currentJob)
	assert.Equal(t, "test", app.currentJob.Name)
	assert.Contains(t, app.View(), "Error: boom")

	_ = press(app, esc)
	assert.Equal(t, RunGraphView, app.viewState)
	_ = press(app, esc)
	assert.Equal(t, WorkflowRunsView, app.viewState)
	_ = press(app, esc)
	assert.Equal(t, WorkflowListView, app.viewState)
}

func TestApp_StaleGraphIgnored(t *testing.T) {
	app := newTestApp(t, sampleLoader())
	run(t, app, app.Init())
	_ = press(app, enter)
	_ = press(app, enter)

	_, _ = app.Update(graphLoadedMsg{runID: 999, graph: &models.WorkflowGraph{}})
	assert.Nil(t, app.graph)
	assert.True(t, app.loading)
}

func TestApp_SecurityAnalysis(t *testing.T) {
	app := newTestApp(t, sampleLoader())
	run(t, app, app.Init())

	run(t, app, press(app, scan))
	assert.Equal(t, AnalysisView, app.viewState)
	view := app.View()
	assert.Contains(t, view, "Security Analysis - octo/demo")
	assert.Contains(t, view, "HIGH")
	assert.Contains(t, view, "Action not pinned to a commit")

	_ = press(app, esc)
	assert.Equal(t, WorkflowListView, app.viewState)
}

func TestApp_ErrorView(t *testing.T) {
	loader := sampleLoader()
	loader.snapshotErr = models.NewError(models.KindAuthentication, "no credentials", nil)
	app := newTestApp(t, loader)

	run(t, app, app.Init())
	view := app.View()
	assert.Contains(t, view, "no credentials")
	assert.Contains(t, view, "gh auth login")

	loader.snapshotErr = nil
	cmd := press(app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	assert.Nil(t, app.err)
	run(t, app, cmd)
	assert.Contains(t, app.View(), "CI")
}

func TestApp_AnalysisErrorHint(t *testing.T) {
	loader := sampleLoader()
	loader.analyzeErr = models.NewError(models.KindAnalysis, "analyzer returned no JSON", nil)
	app := newTestApp(t, loader)
	run(t, app, app.Init())

	run(t, app, press(app, scan))
	assert.Contains(t, app.View(), "OPENAI_API_KEY")
}

func TestApp_WatchTickGeneration(t *testing.T) {
	app := newTestApp(t, sampleLoader())
	run(t, app, app.Init())

	require.NotNil(t, press(app, watch))
	assert.True(t, app.watchMode)
	gen := app.watchGen

	_ = press(app, watch)
	assert.False(t, app.watchMode)

	_, cmd := app.Update(watchTickMsg{gen: gen})
	assert.Nil(t, cmd)
}

func TestApp_ReselectAfterReload(t *testing.T) {
	loader := sampleLoader()
	app := newTestApp(t, loader)
	run(t, app, app.Init())
	_ = press(app, enter)
	run(t, app, press(app, enter))
	require.Equal(t, RunGraphView, app.viewState)

	// the run disappeared from the refreshed snapshot
	loader.snapshot = &models.PipelineSnapshot{Workflows: []models.Workflow{{ID: 10, Name: "CI"}}}
	_, _ = app.Update(snapshotLoadedMsg{snapshot: loader.snapshot})

	assert.Equal(t, WorkflowRunsView, app.viewState)
	assert.Nil(t, app.currentRun)
	require.NotNil(t, app.currentWorkflow)
	assert.Equal(t, int64(10), app.currentWorkflow.ID)
}
