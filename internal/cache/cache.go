// Package cache stores analyzer results keyed by a fingerprint of the analyzed input.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ryo246912/gh-actions-scan/internal/metrics"
	"github.com/ryo246912/gh-actions-scan/internal/models"
)

// TTL is how long a stored analysis stays valid
const TTL = 7 * 24 * time.Hour

// Fingerprint returns the hex SHA-256 of workflowContent and logs joined by ":"
func Fingerprint(workflowContent, logs string) string {
	sum := sha256.Sum256([]byte(workflowContent + ":" + logs))
	return hex.EncodeToString(sum[:])
}

// Option configures a Cache
type Option func(*Cache)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger used for swallowed store failures
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// Cache is the content-addressed analysis cache
type Cache struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// New creates a cache on top of store
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the outcome of a lookup. Analysis is set only on a hit.
type Result struct {
	Hit         bool
	Fingerprint string
	Analysis    *models.AnalysisResult
}

// Lookup returns the stored analysis for the given input if it has not expired.
// An expired entry is evicted before reporting a miss. Store failures are
// logged and reported as a miss.
func (c *Cache) Lookup(ctx context.Context, userID, repositoryID, workflowContent, logs string) Result {
	hash := Fingerprint(workflowContent, logs)
	miss := Result{Fingerprint: hash}

	entry, err := c.store.Get(ctx, repositoryID, hash)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		} else {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			c.logger.Warn("analysis cache lookup failed",
				"user", userID, "repository_id", repositoryID, "error", err)
		}
		return miss
	}

	now := c.now()
	if entry.ExpiredAt(now) {
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		evicted, err := c.store.Evict(ctx, entry.ID, now)
		if err != nil {
			c.logger.Warn("failed to evict expired analysis",
				"repository_id", repositoryID, "entry_id", entry.ID, "error", err)
		} else if evicted {
			metrics.CacheEvictions.WithLabelValues("expired_read").Inc()
		}
		return miss
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	analysis := entry.Analysis
	analysis.Cached = true
	hitAt := now
	analysis.CacheHitAt = &hitAt

	return Result{Hit: true, Fingerprint: hash, Analysis: &analysis}
}

// StoreRequest is the input of Store
type StoreRequest struct {
	UserID          string
	RepositoryID    string
	WorkflowPath    string
	WorkflowName    string
	WorkflowContent string
	Logs            string
	Analysis        *models.AnalysisResult
	Provider        string
}

// Store saves an analysis for the given input, replacing any previous entry with
// the same fingerprint. Failures are logged and never returned.
func (c *Cache) Store(ctx context.Context, req StoreRequest) {
	if req.Analysis == nil {
		return
	}

	now := c.now()
	analysis := *req.Analysis
	analysis.Cached = false
	analysis.CacheHitAt = nil

	entry := &models.CacheEntry{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		RepositoryID: req.RepositoryID,
		ContentHash:  Fingerprint(req.WorkflowContent, req.Logs),
		WorkflowPath: req.WorkflowPath,
		WorkflowName: req.WorkflowName,
		Provider:     req.Provider,
		Analysis:     analysis,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(TTL),
	}

	if err := c.store.Upsert(ctx, entry); err != nil {
		metrics.CacheWrites.WithLabelValues("error").Inc()
		c.logger.Warn("failed to store analysis",
			"user", req.UserID,
			"repository_id", req.RepositoryID,
			"workflow", req.WorkflowPath,
			"error", err)
		return
	}
	metrics.CacheWrites.WithLabelValues("ok").Inc()
}

// Invalidate removes every cached analysis of a workflow
func (c *Cache) Invalidate(ctx context.Context, repositoryID, workflowPath string) (int, error) {
	n, err := c.store.DeleteWorkflow(ctx, repositoryID, workflowPath)
	if err != nil {
		return 0, err
	}
	metrics.CacheEvictions.WithLabelValues("invalidated").Add(float64(n))
	return n, nil
}

// PruneExpired removes every expired entry
func (c *Cache) PruneExpired(ctx context.Context) (int, error) {
	n, err := c.store.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, err
	}
	metrics.CacheEvictions.WithLabelValues("pruned").Add(float64(n))
	return n, nil
}

// Stats counts entries for userID, or all entries when userID is empty
func (c *Cache) Stats(ctx context.Context, userID string) (Stats, error) {
	return c.store.Stats(ctx, userID, c.now())
}

// Close releases the underlying store
func (c *Cache) Close() error {
	return c.store.Close()
}
