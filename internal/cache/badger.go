package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ryo246912/gh-actions-scan/internal/models"
)

const (
	entryPrefix = "analysis/"
	idPrefix    = "id/"
)

func entryKey(repositoryID, contentHash string) []byte {
	return []byte(entryPrefix + repositoryID + "/" + contentHash)
}

func idKey(id string) []byte {
	return []byte(idPrefix + id)
}

// BadgerStore keeps cache entries in an embedded Badger database.
// Entries are also given a native TTL, so badger drops them on its own once
// they have been expired for a while.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens a persistent store in dir
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if dir == "" {
		return nil, errors.New("path is required for persistent database")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return openBadger(badger.DefaultOptions(dir))
}

// NewInMemoryBadgerStore opens a store that lives only as long as the process
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func readEntry(item *badger.Item) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding cache entry %s: %w", item.Key(), err)
	}
	return &entry, nil
}

// Get returns the entry for the key
func (s *BadgerStore) Get(ctx context.Context, repositoryID, contentHash string) (*models.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entry *models.CacheEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(repositoryID, contentHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		entry, err = readEntry(item)
		return err
	})
	return entry, err
}

// Upsert writes the entry and its id index in one transaction
func (s *BadgerStore) Upsert(ctx context.Context, entry *models.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := entryKey(entry.RepositoryID, entry.ContentHash)

		stored := *entry
		item, err := txn.Get(key)
		switch {
		case err == nil:
			existing, err := readEntry(item)
			if err != nil {
				return err
			}
			stored.ID = existing.ID
			stored.CreatedAt = existing.CreatedAt
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}

		ttl := stored.ExpiresAt.Sub(stored.UpdatedAt)
		if ttl <= 0 {
			ttl = time.Second
		}
		if err := txn.SetEntry(badger.NewEntry(key, data).WithTTL(ttl)); err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(idKey(stored.ID), key).WithTTL(ttl))
	})
}

// Evict deletes the entry with id if it is still expired at now
func (s *BadgerStore) Evict(ctx context.Context, id string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	evicted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		idItem, err := txn.Get(idKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		key, err := idItem.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Delete(idKey(id))
		}
		if err != nil {
			return err
		}
		entry, err := readEntry(item)
		if err != nil {
			return err
		}
		if entry.ID != id || !entry.ExpiredAt(now) {
			return nil
		}

		if err := txn.Delete(key); err != nil {
			return err
		}
		evicted = true
		return txn.Delete(idKey(id))
	})
	return evicted, err
}

// deleteMatching removes every entry under prefix accepted by match
func (s *BadgerStore) deleteMatching(ctx context.Context, prefix string, match func(*models.CacheEntry) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		type victim struct {
			key []byte
			id  string
		}
		var victims []victim

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			entry, err := readEntry(item)
			if err != nil {
				it.Close()
				return err
			}
			if match(entry) {
				victims = append(victims, victim{key: item.KeyCopy(nil), id: entry.ID})
			}
		}
		it.Close()

		for _, v := range victims {
			if err := txn.Delete(v.key); err != nil {
				return err
			}
			if err := txn.Delete(idKey(v.id)); err != nil {
				return err
			}
		}
		deleted = len(victims)
		return nil
	})
	return deleted, err
}

// DeleteWorkflow removes all entries of a workflow
func (s *BadgerStore) DeleteWorkflow(ctx context.Context, repositoryID, workflowPath string) (int, error) {
	return s.deleteMatching(ctx, entryPrefix+repositoryID+"/", func(e *models.CacheEntry) bool {
		return e.WorkflowPath == workflowPath
	})
}

// DeleteExpired removes all entries expired at now
func (s *BadgerStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return s.deleteMatching(ctx, entryPrefix, func(e *models.CacheEntry) bool {
		return e.ExpiredAt(now)
	})
}

// Stats counts total, active and expired entries
func (s *BadgerStore) Stats(ctx context.Context, userID string, now time.Time) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	var stats Stats
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(entryPrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			entry, err := readEntry(it.Item())
			if err != nil {
				return err
			}
			if userID != "" && entry.UserID != userID {
				continue
			}
			stats.Total++
			if entry.ExpiredAt(now) {
				stats.Expired++
			} else {
				stats.Active++
			}
		}
		return nil
	})
	return stats, err
}
