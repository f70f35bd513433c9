package items

import (
	"context"
	"database/sql"
	"testing"

	"github.com/quillnotes/quill/internal/client/models"
	"github.com/quillnotes/quill/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE items (
  id TEXT PRIMARY KEY,
  content_type TEXT NOT NULL,
  content BLOB,
  nonce BLOB,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  deleted INTEGER NOT NULL DEFAULT 0,
  dirty INTEGER NOT NULL DEFAULT 0,
  unreadable INTEGER NOT NULL DEFAULT 0,
  sync_token_seen TEXT NOT NULL DEFAULT ''
);
`)
	require.NoError(t, err)

	return db
}

func newItem(id string, updatedAt int64) *models.Item {
	return &models.Item{
		ID:          id,
		ContentType: models.ContentTypeNote,
		Content:     []byte("ct-" + id),
		Nonce:       []byte("nonce"),
		CreatedAt:   updatedAt,
		UpdatedAt:   updatedAt,
	}
}

func TestUpsert_InsertAndReplace(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, newItem("a", 10)))

	got, err := r.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("ct-a"), got.Content)
	assert.EqualValues(t, 10, got.UpdatedAt)

	replacement := newItem("a", 20)
	replacement.Content = []byte("ct-a2")
	replacement.Dirty = true
	require.NoError(t, r.Upsert(ctx, replacement))

	got, err = r.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("ct-a2"), got.Content)
	assert.EqualValues(t, 20, got.UpdatedAt)
	assert.True(t, got.Dirty)
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestList_ExcludesTombstonesByDefault(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, newItem("a", 10)))
	require.NoError(t, r.Upsert(ctx, newItem("b", 20)))
	require.NoError(t, r.DeleteLocally(ctx, "b", 30))

	visible, err := r.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "a", visible[0].ID)

	all, err := r.List(ctx, ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestList_FilterByContentType(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	note := newItem("n", 10)
	tag := newItem("t", 20)
	tag.ContentType = models.ContentTypeTag
	require.NoError(t, r.Upsert(ctx, note))
	require.NoError(t, r.Upsert(ctx, tag))

	tags, err := r.List(ctx, ListFilter{ContentType: models.ContentTypeTag})
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "t", tags[0].ID)
}

func TestDirtyFlags(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, newItem("a", 10)))
	require.NoError(t, r.MarkDirty(ctx, "a"))

	got, err := r.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Dirty)

	require.NoError(t, r.ClearDirty(ctx, "a", "tok-1"))

	got, err = r.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.False(t, got.Dirty)
	assert.Equal(t, "tok-1", got.SyncTokenSeen)
}

func TestMarkDirty_MissingItem(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	err := r.MarkDirty(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteLocally_SetsTombstoneAndDirty(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, newItem("a", 10)))
	require.NoError(t, r.DeleteLocally(ctx, "a", 50))

	got, err := r.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.True(t, got.Dirty)
	assert.EqualValues(t, 50, got.UpdatedAt)
}

func TestPurge_RemovesRow(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, newItem("a", 10)))
	require.NoError(t, r.DeleteLocally(ctx, "a", 20))
	require.NoError(t, r.Purge(ctx, "a"))

	_, err := r.GetByID(ctx, "a")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMarkUnreadable(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, newItem("a", 10)))
	require.NoError(t, r.MarkUnreadable(ctx, "a"))

	got, err := r.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Unreadable)
}

func TestDirtyIDs_OrderedByUpdatedAt(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	for _, tc := range []struct {
		id string
		at int64
	}{{"c", 30}, {"a", 10}, {"b", 20}, {"clean", 5}} {
		item := newItem(tc.id, tc.at)
		item.Dirty = tc.id != "clean"
		require.NoError(t, r.Upsert(ctx, item))
	}

	ids, err := r.DirtyIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
