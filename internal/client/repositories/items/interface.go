package items

import (
	"context"

	"github.com/quillnotes/quill/internal/client/models"
)

// ListFilter narrows List results. The zero value excludes tombstones,
// which is what UI-facing queries want; the sync reconciliation pass
// sets IncludeDeleted.
type ListFilter struct {
	IncludeDeleted bool
	ContentType    models.ContentType // empty means all types
}

// Repository describes persistence operations for items. Implementations
// are backed by the local SQLite database. Every write is atomic: a
// concurrent reader never observes a partially written item.
type Repository interface {
	// GetByID returns an item or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Item, error)

	// List returns items matching the filter, ordered by updated_at
	// descending then id.
	List(ctx context.Context, filter ListFilter) ([]models.Item, error)

	// Upsert inserts or replaces an item by id, including all local
	// state flags.
	Upsert(ctx context.Context, item *models.Item) error

	// MarkDirty flags an item as having unsynced local changes.
	MarkDirty(ctx context.Context, id string) error

	// ClearDirty removes the dirty flag and records the sync cursor at
	// which the item was confirmed consistent with the server.
	ClearDirty(ctx context.Context, id string, syncToken string) error

	// DeleteLocally converts an item into a dirty tombstone. The row is
	// retained until Purge.
	DeleteLocally(ctx context.Context, id string, updatedAt int64) error

	// Purge removes a tombstone after the server confirmed the deletion.
	Purge(ctx context.Context, id string) error

	// MarkUnreadable flags an item whose payload failed its integrity
	// check. The ciphertext is kept.
	MarkUnreadable(ctx context.Context, id string) error

	// DirtyIDs returns the ids of all dirty items ordered by updated_at
	// then id. Used by the crash-recovery scan that rebuilds the pending
	// queue.
	DirtyIDs(ctx context.Context) ([]string, error)
}
