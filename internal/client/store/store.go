// Package store is the durable item store: the single shared mutable
// resource between the UI-facing mutation path and the sync engine.
// All access goes through its operations; no caller holds a lock.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/pressly/goose/v3"
	"github.com/quillnotes/quill/internal/client/migrations"
	"github.com/quillnotes/quill/internal/client/models"
	"github.com/quillnotes/quill/internal/client/repositories/items"
	"github.com/quillnotes/quill/internal/client/repositories/metadata"
	"github.com/quillnotes/quill/internal/client/repositories/pending"
	"github.com/quillnotes/quill/internal/dbx"
)

// Store wires the item, pending-saves, and metadata repositories over a
// single SQLite database and owns the change notifier.
type Store struct {
	db       *sql.DB
	notifier Notifier
}

// Tx bundles repositories bound to one transaction, for multi-step
// writes such as reconciliation.
type Tx struct {
	Items    items.Repository
	Pending  pending.Repository
	Metadata metadata.Repository
}

// Open opens (creating if necessary) the client database at dsn and
// applies pending schema migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection also makes every
	// upsert atomic from a reader's point of view.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Subscribe registers a change-notification callback.
func (s *Store) Subscribe(fn func(ids []string)) {
	s.notifier.Subscribe(fn)
}

// Notify publishes a batch of affected item ids to subscribers. The
// sync engine calls this once per reconciliation batch.
func (s *Store) Notify(ids []string) {
	s.notifier.Publish(ids)
}

// InTx runs fn with repositories bound to one transaction, committing
// on success and rolling back on error.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, dbtx dbx.DBTX) error {
		return fn(ctx, Tx{
			Items:    items.NewSQLiteRepository(dbtx),
			Pending:  pending.NewSQLiteRepository(dbtx),
			Metadata: metadata.NewSQLiteRepository(dbtx),
		})
	})
}

func (s *Store) itemsRepo() items.Repository {
	return items.NewSQLiteRepository(s.db)
}

func (s *Store) pendingRepo() pending.Repository {
	return pending.NewSQLiteRepository(s.db)
}

// Metadata returns the key/value repository holding session material
// and the sync token.
func (s *Store) Metadata() metadata.Repository {
	return metadata.NewSQLiteRepository(s.db)
}

// Get returns an item by id, or common.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.Item, error) {
	return s.itemsRepo().GetByID(ctx, id)
}

// List returns items matching the filter. Tombstones are excluded
// unless the filter asks for them.
func (s *Store) List(ctx context.Context, filter items.ListFilter) ([]models.Item, error) {
	return s.itemsRepo().List(ctx, filter)
}

// SaveLocal records a local mutation: the item is upserted, marked
// dirty, and queued for upload, all in one transaction. Subscribers are
// notified after the write commits.
func (s *Store) SaveLocal(ctx context.Context, item *models.Item) error {
	item.Dirty = true
	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Items.Upsert(ctx, item); err != nil {
			return err
		}
		return tx.Pending.Enqueue(ctx, item.ID)
	})
	if err != nil {
		return err
	}
	s.notifier.Publish([]string{item.ID})
	return nil
}

// DeleteLocally converts an item to a dirty tombstone and queues it for
// upload. The row survives until the server confirms the deletion.
func (s *Store) DeleteLocally(ctx context.Context, id string) error {
	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Items.DeleteLocally(ctx, id, models.Now()); err != nil {
			return err
		}
		return tx.Pending.Enqueue(ctx, id)
	})
	if err != nil {
		return err
	}
	s.notifier.Publish([]string{id})
	return nil
}

// PendingSaves returns the queued item ids in submission order.
func (s *Store) PendingSaves(ctx context.Context) ([]string, error) {
	return s.pendingRepo().List(ctx)
}

// RecoverPending rebuilds the pending queue from persisted dirty flags.
// Called once on startup: after a crash, every dirty item must be
// queued again, in updated_at order, behind whatever survived in the
// queue itself.
func (s *Store) RecoverPending(ctx context.Context) error {
	return s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		queued, err := tx.Pending.List(ctx)
		if err != nil {
			return err
		}
		dirty, err := tx.Items.DirtyIDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range dirty {
			if slices.Contains(queued, id) {
				continue
			}
			if err := tx.Pending.Enqueue(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// SyncToken returns the persisted sync cursor, empty when none exists.
func (s *Store) SyncToken(ctx context.Context) (string, error) {
	v, err := s.Metadata().Get(ctx, metadata.KeySyncToken)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SetSyncToken persists a new sync cursor. Tokens only ever advance;
// rolling back is expressed by ClearSyncToken plus a full resync.
func (s *Store) SetSyncToken(ctx context.Context, token string) error {
	return s.Metadata().Set(ctx, metadata.KeySyncToken, []byte(token))
}

// ClearSyncToken discards the cursor, forcing the next cycle to fetch
// the entire remote item set.
func (s *Store) ClearSyncToken(ctx context.Context) error {
	return s.Metadata().Delete(ctx, metadata.KeySyncToken)
}
