package cache

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ryo246912/gh-actions-scan/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T) Store {
			s, err := NewInMemoryBadgerStore()
			require.NoError(t, err)
			return s
		},
	}
}

// forEachStore runs fn against a fresh cache per backend
func forEachStore(t *testing.T, fn func(t *testing.T, c *Cache, clock *fakeClock)) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			clock := &fakeClock{now: t0}
			c := New(store, WithClock(clock.Now))
			t.Cleanup(func() { _ = c.Close() })
			fn(t, c, clock)
		})
	}
}

func sampleAnalysis(id string, risk models.RiskLevel) *models.AnalysisResult {
	return &models.AnalysisResult{
		AnalysisID:  id,
		Timestamp:   t0.Add(-time.Minute),
		OverallRisk: risk,
		Summary:     "summary " + id,
		Issues: []models.SecurityIssue{{
			Severity:       risk,
			Title:          "unpinned action",
			Description:    "actions/checkout is referenced by tag",
			Recommendation: "pin to a commit SHA",
			Category:       "supply-chain",
		}},
	}
}

func storeReq(repo, content, logs string, analysis *models.AnalysisResult) StoreRequest {
	return StoreRequest{
		UserID:          "user-1",
		RepositoryID:    repo,
		WorkflowPath:    ".github/workflows/ci.yml",
		WorkflowName:    "CI",
		WorkflowContent: content,
		Logs:            logs,
		Analysis:        analysis,
		Provider:        "openai",
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("name: CI", "=== Job: build ===\nok")
	assert.Equal(t, a, Fingerprint("name: CI", "=== Job: build ===\nok"))
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Fingerprint("name: CI", "=== Job: build ===\nok "), "one extra byte of logs")
	assert.NotEqual(t, a, Fingerprint("name: CI ", "=== Job: build ===\nok"), "one extra byte of content")
	assert.NotEqual(t, Fingerprint("", ""), Fingerprint("", " "))
}

func TestFingerprintRandomizedMutations(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 42))
	randomText := func() string {
		b := make([]byte, 1+rng.IntN(512))
		for i := range b {
			b[i] = byte(rng.IntN(256))
		}
		return string(b)
	}
	// mutate changes exactly one byte of s
	mutate := func(s string) string {
		b := []byte(s)
		i := rng.IntN(len(b))
		b[i] ^= byte(1 + rng.IntN(255))
		return string(b)
	}

	for i := 0; i < 500; i++ {
		content, logs := randomText(), randomText()
		fp := Fingerprint(content, logs)

		require.Equal(t, fp, Fingerprint(strings.Clone(content), strings.Clone(logs)), "equal inputs hash equally")
		require.NotEqual(t, fp, Fingerprint(mutate(content), logs), "content mutation must change the fingerprint")
		require.NotEqual(t, fp, Fingerprint(content, mutate(logs)), "log mutation must change the fingerprint")
	}
}

func TestLookupHitAfterStore(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, clock *fakeClock) {
		ctx := context.Background()

		res := c.Lookup(ctx, "user-1", "42", "content", "logs")
		assert.False(t, res.Hit)
		assert.Nil(t, res.Analysis)

		c.Store(ctx, storeReq("42", "content", "logs", sampleAnalysis("a-1", models.RiskHigh)))

		clock.Set(t0.Add(time.Hour))
		res = c.Lookup(ctx, "user-2", "42", "content", "logs")
		require.True(t, res.Hit)
		assert.Equal(t, Fingerprint("content", "logs"), res.Fingerprint)
		assert.Equal(t, "a-1", res.Analysis.AnalysisID)
		assert.True(t, res.Analysis.Cached)
		require.NotNil(t, res.Analysis.CacheHitAt)
		assert.True(t, res.Analysis.CacheHitAt.Equal(t0.Add(time.Hour)))
		assert.True(t, res.Analysis.Timestamp.Equal(t0.Add(-time.Minute)), "first analysis time is kept")
		assert.Equal(t, models.RiskHigh, res.Analysis.OverallRisk)
		require.Len(t, res.Analysis.Issues, 1)
	})
}

func TestLookupMissesWhenLogsChange(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, clock *fakeClock) {
		ctx := context.Background()
		c.Store(ctx, storeReq("42", "content", "=== Job: build ===\nok", sampleAnalysis("a-1", models.RiskLow)))

		assert.True(t, c.Lookup(ctx, "user-1", "42", "content", "=== Job: build ===\nok").Hit)
		assert.False(t, c.Lookup(ctx, "user-1", "42", "content", "=== Job: build ===\nfailed").Hit)
		assert.False(t, c.Lookup(ctx, "user-1", "43", "content", "=== Job: build ===\nok").Hit, "keys are per repository")
	})
}

func TestTTLBoundary(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, clock *fakeClock) {
		ctx := context.Background()
		c.Store(ctx, storeReq("42", "content", "logs", sampleAnalysis("a-1", models.RiskLow)))

		clock.Set(t0.Add(TTL - time.Nanosecond))
		assert.True(t, c.Lookup(ctx, "user-1", "42", "content", "logs").Hit)

		clock.Set(t0.Add(TTL))
		assert.False(t, c.Lookup(ctx, "user-1", "42", "content", "logs").Hit, "expiry instant is exclusive")

		stats, err := c.Stats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, Stats{}, stats, "expired entry is evicted on read")
	})
}

func TestExpiredEntryEvictedAfterTTL(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, clock *fakeClock) {
		ctx := context.Background()
		c.Store(ctx, storeReq("42", "content", "logs", sampleAnalysis("a-1", models.RiskLow)))

		clock.Set(t0.Add(TTL + time.Second))
		stats, err := c.Stats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, Stats{Total: 1, Expired: 1}, stats)

		assert.False(t, c.Lookup(ctx, "user-1", "42", "content", "logs").Hit)

		stats, err = c.Stats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Total)
	})
}

func TestStoreIsLastWriteWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, clock *fakeClock) {
		ctx := context.Background()
		c.Store(ctx, storeReq("42", "content", "logs", sampleAnalysis("first", models.RiskLow)))

		clock.Set(t0.Add(6 * 24 * time.Hour))
		c.Store(ctx, storeReq("42", "content", "logs", sampleAnalysis("second", models.RiskCritical)))

		// the refreshed entry is valid past the first entry's expiry
		clock.Set(t0.Add(TTL + time.Hour))
		res := c.Lookup(ctx, "user-1", "42", "content", "logs")
		require.True(t, res.Hit)
		assert.Equal(t, "second", res.Analysis.AnalysisID)
		assert.Equal(t, models.RiskCritical, res.Analysis.OverallRisk)

		stats, err := c.Stats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Total)
	})
}

func TestInvalidate(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, clock *fakeClock) {
		ctx := context.Background()
		c.Store(ctx, storeReq("42", "v1", "logs", sampleAnalysis("a-1", models.RiskLow)))
		c.Store(ctx, storeReq("42", "v2", "logs", sampleAnalysis("a-2", models.RiskLow)))
		other := storeReq("42", "v1", "logs", sampleAnalysis("a-3", models.RiskLow))
		other.WorkflowPath = ".github/workflows/release.yml"
		other.WorkflowContent = "release"
		c.Store(ctx, other)

		n, err := c.Invalidate(ctx, "42", ".github/workflows/ci.yml")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		assert.False(t, c.Lookup(ctx, "user-1", "42", "v1", "logs").Hit)
		assert.True(t, c.Lookup(ctx, "user-1", "42", "release", "logs").Hit)
	})
}

func TestPruneExpiredAndStats(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, clock *fakeClock) {
		ctx := context.Background()
		c.Store(ctx, storeReq("42", "old", "logs", sampleAnalysis("old", models.RiskLow)))

		clock.Set(t0.Add(3 * 24 * time.Hour))
		fresh := storeReq("42", "fresh", "logs", sampleAnalysis("fresh", models.RiskLow))
		fresh.UserID = "user-2"
		c.Store(ctx, fresh)

		clock.Set(t0.Add(TTL + time.Hour))
		stats, err := c.Stats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, Stats{Total: 2, Active: 1, Expired: 1}, stats)

		stats, err = c.Stats(ctx, "user-2")
		require.NoError(t, err)
		assert.Equal(t, Stats{Total: 1, Active: 1}, stats)

		n, err := c.PruneExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		stats, err = c.Stats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, Stats{Total: 1, Active: 1}, stats)
	})
}

func TestEvictSkipsRefreshedEntries(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			t.Cleanup(func() { _ = store.Close() })
			ctx := context.Background()

			entry := &models.CacheEntry{
				ID:           "entry-1",
				UserID:       "user-1",
				RepositoryID: "42",
				ContentHash:  Fingerprint("c", "l"),
				WorkflowPath: "ci.yml",
				Analysis:     *sampleAnalysis("a-1", models.RiskLow),
				CreatedAt:    t0,
				UpdatedAt:    t0,
				ExpiresAt:    t0.Add(TTL),
			}
			require.NoError(t, store.Upsert(ctx, entry))

			evicted, err := store.Evict(ctx, "entry-1", t0.Add(time.Hour))
			require.NoError(t, err)
			assert.False(t, evicted)

			evicted, err = store.Evict(ctx, "entry-1", t0.Add(TTL))
			require.NoError(t, err)
			assert.True(t, evicted)

			_, err = store.Get(ctx, "42", entry.ContentHash)
			assert.ErrorIs(t, err, ErrEntryNotFound)
		})
	}
}

// failingStore fails every operation
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string, string) (*models.CacheEntry, error) {
	return nil, errStoreDown
}
func (failingStore) Upsert(context.Context, *models.CacheEntry) error { return errStoreDown }
func (failingStore) Evict(context.Context, string, time.Time) (bool, error) {
	return false, errStoreDown
}
func (failingStore) DeleteWorkflow(context.Context, string, string) (int, error) {
	return 0, errStoreDown
}
func (failingStore) DeleteExpired(context.Context, time.Time) (int, error) { return 0, errStoreDown }
func (failingStore) Stats(context.Context, string, time.Time) (Stats, error) {
	return Stats{}, errStoreDown
}
func (failingStore) Close() error { return nil }

func TestStoreFailuresAreSwallowed(t *testing.T) {
	c := New(failingStore{})
	ctx := context.Background()

	assert.NotPanics(t, func() {
		c.Store(ctx, storeReq("42", "content", "logs", sampleAnalysis("a-1", models.RiskLow)))
	})
	assert.False(t, c.Lookup(ctx, "user-1", "42", "content", "logs").Hit)

	_, err := c.PruneExpired(ctx)
	assert.ErrorIs(t, err, errStoreDown)
}
