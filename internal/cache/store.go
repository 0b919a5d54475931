package cache

import (
	"context"
	"errors"
	"time"

	"github.com/ryo246912/gh-actions-scan/internal/models"
)

// ErrEntryNotFound is returned by Store.Get when no entry exists for the key
var ErrEntryNotFound = errors.New("cache entry not found")

// Stats summarizes the cache contents at a point in time
type Stats struct {
	Total   int `json:"totalCached"`
	Active  int `json:"activeCached"`
	Expired int `json:"expiredCount"`
}

// Store persists cache entries keyed by (RepositoryID, ContentHash)
type Store interface {
	// Get returns the entry for the key, or ErrEntryNotFound
	Get(ctx context.Context, repositoryID, contentHash string) (*models.CacheEntry, error)
	// Upsert inserts the entry or replaces the analysis and expiry of the existing one
	// in a single atomic write. The existing ID and CreatedAt are kept.
	Upsert(ctx context.Context, entry *models.CacheEntry) error
	// Evict deletes the entry with id if it is expired at now
	Evict(ctx context.Context, id string, now time.Time) (bool, error)
	// DeleteWorkflow removes every entry for a workflow of a repository
	DeleteWorkflow(ctx context.Context, repositoryID, workflowPath string) (int, error)
	// DeleteExpired removes every entry expired at now
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	// Stats counts entries, optionally restricted to one user
	Stats(ctx context.Context, userID string, now time.Time) (Stats, error)
	Close() error
}
