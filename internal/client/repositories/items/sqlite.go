package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quillnotes/quill/internal/client/models"
	"github.com/quillnotes/quill/internal/common"
	"github.com/quillnotes/quill/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// storageErr wraps a driver error so callers can match common.ErrStorage
// while keeping the underlying cause in the chain.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, common.ErrStorage, err)
}

const itemColumns = `id, content_type, content, nonce, created_at, updated_at, deleted, dirty, unreadable, sync_token_seen`

func scanItem(row interface{ Scan(...any) error }) (*models.Item, error) {
	var item models.Item
	err := row.Scan(&item.ID, &item.ContentType, &item.Content, &item.Nonce,
		&item.CreatedAt, &item.UpdatedAt, &item.Deleted, &item.Dirty,
		&item.Unreadable, &item.SyncTokenSeen)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = ?`
	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get item", err)
	}
	return item, nil
}

func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	args := []any{}
	if !filter.IncludeDeleted {
		query += ` AND deleted = 0`
	}
	if filter.ContentType != "" {
		query += ` AND content_type = ?`
		args = append(args, filter.ContentType)
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list items", err)
	}
	defer rows.Close()

	var result []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storageErr("scan item", err)
		}
		result = append(result, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate items", err)
	}
	return result, nil
}

// Upsert replaces or inserts by id. A single statement keeps the write
// atomic with respect to concurrent readers.
func (r *SQLiteRepository) Upsert(ctx context.Context, item *models.Item) error {
	query := `INSERT INTO items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_type = excluded.content_type,
			content = excluded.content,
			nonce = excluded.nonce,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			dirty = excluded.dirty,
			unreadable = excluded.unreadable,
			sync_token_seen = excluded.sync_token_seen`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.ContentType, item.Content, item.Nonce,
		item.CreatedAt, item.UpdatedAt, item.Deleted, item.Dirty,
		item.Unreadable, item.SyncTokenSeen)
	if err != nil {
		return storageErr("upsert item", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkDirty(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE items SET dirty = 1 WHERE id = ?`, id)
	if err != nil {
		return storageErr("mark dirty", err)
	}
	return r.expectOneRow(res, "mark dirty")
}

func (r *SQLiteRepository) ClearDirty(ctx context.Context, id string, syncToken string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE items SET dirty = 0, sync_token_seen = ? WHERE id = ?`, syncToken, id)
	if err != nil {
		return storageErr("clear dirty", err)
	}
	return r.expectOneRow(res, "clear dirty")
}

func (r *SQLiteRepository) DeleteLocally(ctx context.Context, id string, updatedAt int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE items SET deleted = 1, dirty = 1, updated_at = ? WHERE id = ?`, updatedAt, id)
	if err != nil {
		return storageErr("delete locally", err)
	}
	return r.expectOneRow(res, "delete locally")
}

func (r *SQLiteRepository) Purge(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return storageErr("purge item", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkUnreadable(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE items SET unreadable = 1 WHERE id = ?`, id)
	if err != nil {
		return storageErr("mark unreadable", err)
	}
	return nil
}

func (r *SQLiteRepository) DirtyIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM items WHERE dirty = 1 ORDER BY updated_at, id`)
	if err != nil {
		return nil, storageErr("list dirty ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan dirty id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate dirty ids", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) expectOneRow(res sql.Result, op string) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if ra == 0 {
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}
	return nil
}
