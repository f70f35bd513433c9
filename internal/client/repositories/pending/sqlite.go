package pending

import (
	"context"
	"fmt"
	"strings"

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

func (r *SQLiteRepository) Enqueue(ctx context.Context, itemID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_saves (item_id) VALUES (?) ON CONFLICT(item_id) DO NOTHING`, itemID)
	if err != nil {
		return fmt.Errorf("enqueue pending save: %w: %w", common.ErrStorage, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT item_id FROM pending_saves ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list pending saves: %w: %w", common.ErrStorage, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending save: %w: %w", common.ErrStorage, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending saves: %w: %w", common.ErrStorage, err)
	}
	return ids, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(itemIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_saves WHERE item_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("remove pending saves: %w: %w", common.ErrStorage, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_saves`)
	if err != nil {
		return fmt.Errorf("clear pending saves: %w: %w", common.ErrStorage, err)
	}
	return nil
}
