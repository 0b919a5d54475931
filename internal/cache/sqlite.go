package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ryo246912/gh-actions-scan/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analysis_cache (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	repository_id  TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	workflow_path  TEXT NOT NULL,
	workflow_name  TEXT NOT NULL,
	provider       TEXT NOT NULL,
	analysis_id    TEXT NOT NULL,
	overall_risk   TEXT NOT NULL,
	analysis       TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	expires_at     INTEGER NOT NULL,
	UNIQUE (repository_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_analysis_cache_workflow ON analysis_cache (repository_id, workflow_path);
CREATE INDEX IF NOT EXISTS idx_analysis_cache_expires ON analysis_cache (expires_at);
CREATE INDEX IF NOT EXISTS idx_analysis_cache_user ON analysis_cache (user_id);
`

// SQLiteStore provides SQLite-backed cache persistence
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// a single writer avoids SQLITE_BUSY between concurrent upserts
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get retrieves the entry for a repository and content hash
func (s *SQLiteStore) Get(ctx context.Context, repositoryID, contentHash string) (*models.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, repository_id, content_hash, workflow_path, workflow_name, provider, analysis, created_at, updated_at, expires_at
		FROM analysis_cache WHERE repository_id = ? AND content_hash = ?
	`, repositoryID, contentHash)

	var (
		entry                          models.CacheEntry
		analysisJSON                   string
		createdAt, updatedAt, expireAt int64
	)
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.RepositoryID,
		&entry.ContentHash,
		&entry.WorkflowPath,
		&entry.WorkflowName,
		&entry.Provider,
		&analysisJSON,
		&createdAt,
		&updatedAt,
		&expireAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(analysisJSON), &entry.Analysis); err != nil {
		return nil, fmt.Errorf("decoding cached analysis %s: %w", entry.ID, err)
	}
	entry.CreatedAt = time.Unix(0, createdAt)
	entry.UpdatedAt = time.Unix(0, updatedAt)
	entry.ExpiresAt = time.Unix(0, expireAt)

	return &entry, nil
}

// Upsert inserts an entry or refreshes the analysis of the existing one
func (s *SQLiteStore) Upsert(ctx context.Context, entry *models.CacheEntry) error {
	analysisJSON, err := json.Marshal(entry.Analysis)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_cache (id, user_id, repository_id, content_hash, workflow_path, workflow_name, provider, analysis_id, overall_risk, analysis, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repository_id, content_hash) DO UPDATE SET
			user_id = excluded.user_id,
			workflow_path = excluded.workflow_path,
			workflow_name = excluded.workflow_name,
			provider = excluded.provider,
			analysis_id = excluded.analysis_id,
			overall_risk = excluded.overall_risk,
			analysis = excluded.analysis,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`,
		entry.ID,
		entry.UserID,
		entry.RepositoryID,
		entry.ContentHash,
		entry.WorkflowPath,
		entry.WorkflowName,
		entry.Provider,
		entry.Analysis.AnalysisID,
		string(entry.Analysis.OverallRisk),
		string(analysisJSON),
		entry.CreatedAt.UnixNano(),
		entry.UpdatedAt.UnixNano(),
		entry.ExpiresAt.UnixNano(),
	)
	return err
}

// Evict deletes the entry with id if it is still expired at now
func (s *SQLiteStore) Evict(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_cache WHERE id = ? AND expires_at <= ?`, id, now.UnixNano())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteWorkflow removes all entries of a workflow
func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, repositoryID, workflowPath string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_cache WHERE repository_id = ? AND workflow_path = ?`, repositoryID, workflowPath)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteExpired removes all entries expired at now
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_cache WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Stats counts total, active and expired entries
func (s *SQLiteStore) Stats(ctx context.Context, userID string, now time.Time) (Stats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM analysis_cache`
	args := []interface{}{now.UnixNano(), now.UnixNano()}
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}

	var stats Stats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&stats.Total, &stats.Active, &stats.Expired)
	return stats, err
}
