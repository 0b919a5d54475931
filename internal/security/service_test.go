package security

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ryo246912/gh-actions-scan/internal/cache"
	"github.com/ryo246912/gh-actions-scan/internal/models"
	"github.com/ryo246912/gh-actions-scan/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	calls    atomic.Int32
	gate     chan struct{}
	err      error
	lastLogs atomic.Value
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, workflowContent, logs, workflowName string) (*models.AnalysisResult, error) {
	n := a.calls.Add(1)
	a.lastLogs.Store(logs)
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	return &models.AnalysisResult{
		AnalysisID:  "analysis-" + string(rune('0'+n)),
		Timestamp:   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		OverallRisk: models.RiskMedium,
		Summary:     "review " + workflowName,
		Issues:      []models.SecurityIssue{},
	}, nil
}

func (a *fakeAnalyzer) Provider() string { return "fake" }

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	store, err := cache.NewInMemoryBadgerStore()
	require.NoError(t, err)
	c := cache.New(store)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func snapshot(content string, jobs ...models.Job) *models.PipelineSnapshot {
	return &models.PipelineSnapshot{
		Repository: models.Repository{ID: 42, Name: "hello", FullName: "octo/hello", Provider: "github"},
		Workflows: []models.Workflow{
			{ID: 1, Name: "Docs", Path: ".github/workflows/docs.yml", Content: "name: Docs", RecentRuns: []models.WorkflowRun{}},
			{
				ID:      2,
				Name:    "CI",
				Path:    ".github/workflows/ci.yml",
				Content: content,
				RecentRuns: []models.WorkflowRun{
					{ID: 20, Status: "completed", Jobs: jobs},
					{ID: 19, Status: "completed", Jobs: []models.Job{{ID: 1, Name: "old", Logs: "stale"}}},
				},
			},
		},
	}
}

func TestAggregateLogs(t *testing.T) {
	assert.Equal(t, "", AggregateLogs(nil))
	assert.Equal(t, NoLogsPlaceholder, AggregateLogs([]models.Job{{Name: "build"}}))
	assert.Equal(t,
		"\n=== Job: build ===\nok\n\n=== Job: test ===\npassed",
		AggregateLogs([]models.Job{{Name: "build", Logs: "ok"}, {Name: "skipped"}, {Name: "test", Logs: "passed"}}))
}

func TestAnalyzeSnapshotErrors(t *testing.T) {
	svc := NewService(nil, newCache(t), &fakeAnalyzer{}, nil)

	t.Run("no runs", func(t *testing.T) {
		snap := snapshot("name: CI")
		snap.Workflows[1].RecentRuns = nil
		_, err := svc.AnalyzeSnapshot(context.Background(), "user-1", snap)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("empty content", func(t *testing.T) {
		_, err := svc.AnalyzeSnapshot(context.Background(), "user-1", snapshot("  \n"))
		require.ErrorIs(t, err, models.ErrInvalidInput)

		var me *models.Error
		require.ErrorAs(t, err, &me)
		assert.Equal(t, ".github/workflows/ci.yml", me.Workflow)
	})
}

func TestAnalyzeSnapshotIsCacheFirst(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	svc := NewService(nil, newCache(t), analyzer, nil)
	ctx := context.Background()

	first, err := svc.AnalyzeSnapshot(ctx, "user-1", snapshot("name: CI", models.Job{Name: "build", Logs: "ok"}))
	require.NoError(t, err)
	assert.False(t, first.Analysis.Cached)
	assert.Equal(t, "review CI", first.Analysis.Summary)
	assert.Equal(t, "\n=== Job: build ===\nok", analyzer.lastLogs.Load())

	second, err := svc.AnalyzeSnapshot(ctx, "user-2", snapshot("name: CI", models.Job{Name: "build", Logs: "ok"}))
	require.NoError(t, err)
	assert.True(t, second.Analysis.Cached)
	assert.NotNil(t, second.Analysis.CacheHitAt)
	assert.Equal(t, first.Analysis.AnalysisID, second.Analysis.AnalysisID)
	assert.Equal(t, int32(1), analyzer.calls.Load())

	third, err := svc.AnalyzeSnapshot(ctx, "user-1", snapshot("name: CI", models.Job{Name: "build", Logs: "flaky"}))
	require.NoError(t, err)
	assert.False(t, third.Analysis.Cached, "different logs are a different input")
	assert.Equal(t, int32(2), analyzer.calls.Load())
}

func TestAnalyzeSnapshotAnalyzerFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("model overloaded")}
	c := newCache(t)
	svc := NewService(nil, c, analyzer, nil)

	_, err := svc.AnalyzeSnapshot(context.Background(), "user-1", snapshot("name: CI", models.Job{Name: "build", Logs: "ok"}))
	require.ErrorIs(t, err, models.ErrAnalysis)

	var me *models.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "octo/hello", me.Repository)
	assert.Equal(t, ".github/workflows/ci.yml", me.Workflow)

	stats, err := c.Stats(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestConcurrentMissesShareOneAnalysis(t *testing.T) {
	analyzer := &fakeAnalyzer{gate: make(chan struct{})}
	svc := NewService(nil, newCache(t), analyzer, nil)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*models.AnalysisResponse, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.AnalyzeSnapshot(context.Background(), "user-1",
				snapshot("name: CI", models.Job{Name: "build", Logs: "ok"}))
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(analyzer.gate)
	wg.Wait()

	assert.Equal(t, int32(1), analyzer.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "analysis-1", results[i].Analysis.AnalysisID)
	}
}

func TestCancelledCallerDoesNotFailSharedAnalysis(t *testing.T) {
	analyzer := &fakeAnalyzer{gate: make(chan struct{})}
	svc := NewService(nil, newCache(t), analyzer, nil)
	snap := func() *models.PipelineSnapshot {
		return snapshot("name: CI", models.Job{Name: "build", Logs: "ok"})
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.AnalyzeSnapshot(ctxA, "user-1", snap())
		errA <- err
	}()
	require.Eventually(t, func() bool { return analyzer.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		resp *models.AnalysisResponse
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		resp, err := svc.AnalyzeSnapshot(context.Background(), "user-2", snap())
		resB <- result{resp, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	err := <-errA
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrAnalysis)

	close(analyzer.gate)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "analysis-1", b.resp.Analysis.AnalysisID)
	assert.Equal(t, int32(1), analyzer.calls.Load())
}

func TestUnavailableAnalyzerServesCache(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	logs := AggregateLogs([]models.Job{{Name: "build", Logs: "ok"}})
	c.Store(ctx, cache.StoreRequest{
		UserID:          "user-1",
		RepositoryID:    "42",
		WorkflowPath:    ".github/workflows/ci.yml",
		WorkflowName:    "CI",
		WorkflowContent: "name: CI",
		Logs:            logs,
		Analysis:        &models.AnalysisResult{AnalysisID: "stored", OverallRisk: models.RiskLow, Summary: "fine", Issues: []models.SecurityIssue{}},
		Provider:        "fake",
	})

	svc := NewService(nil, c, Unavailable(errors.New("analyzer API key is not set")), nil)

	resp, err := svc.AnalyzeSnapshot(ctx, "user-1", snapshot("name: CI", models.Job{Name: "build", Logs: "ok"}))
	require.NoError(t, err)
	assert.True(t, resp.Analysis.Cached)
	assert.Equal(t, "stored", resp.Analysis.AnalysisID)

	_, err = svc.AnalyzeSnapshot(ctx, "user-1", snapshot("name: CI", models.Job{Name: "build", Logs: "changed"}))
	require.ErrorIs(t, err, models.ErrAnalysis)
	assert.Contains(t, err.Error(), "analyzer API key is not set")
	kind, _ := models.KindOf(err)
	assert.Equal(t, models.KindAnalysis, kind)
}

// brokenStore fails every write and read
type brokenStore struct{ cache.Store }

var errBroken = errors.New("disk full")

func (brokenStore) Get(context.Context, string, string) (*models.CacheEntry, error) {
	return nil, errBroken
}
func (brokenStore) Upsert(context.Context, *models.CacheEntry) error { return errBroken }

func TestCacheFailuresDoNotFailAnalysis(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	svc := NewService(nil, cache.New(brokenStore{}), analyzer, nil)

	resp, err := svc.AnalyzeSnapshot(context.Background(), "user-1", snapshot("name: CI", models.Job{Name: "build", Logs: "ok"}))
	require.NoError(t, err)
	assert.Equal(t, "analysis-1", resp.Analysis.AnalysisID)
}

type fakeSnapshots struct {
	snap *models.PipelineSnapshot
	err  error
	opts int
}

func (f *fakeSnapshots) Snapshot(ctx context.Context, userID, repo string, opts ...pipeline.Option) (*models.PipelineSnapshot, error) {
	f.opts = len(opts)
	return f.snap, f.err
}

func TestAnalyzeRepository(t *testing.T) {
	src := &fakeSnapshots{snap: snapshot("name: CI", models.Job{Name: "build", Logs: "ok"})}
	svc := NewService(src, newCache(t), &fakeAnalyzer{}, nil)

	resp, err := svc.AnalyzeRepository(context.Background(), "user-1", "octo/hello", pipeline.WithRunLimit(3))
	require.NoError(t, err)
	assert.Same(t, src.snap, resp.Snapshot)
	assert.Equal(t, 1, src.opts)

	src.err = &models.Error{Kind: models.KindAuthentication, Message: "no token"}
	_, err = svc.AnalyzeRepository(context.Background(), "user-1", "octo/hello")
	assert.ErrorIs(t, err, models.ErrAuthentication)
}
