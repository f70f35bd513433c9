package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/quillnotes/quill/internal/client/models"
	"github.com/quillnotes/quill/internal/client/store"
	"github.com/quillnotes/quill/internal/common"
	"github.com/quillnotes/quill/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys struct {
	key []byte
}

func (f *fakeKeys) IsLoggedIn() bool  { return f.key != nil }
func (f *fakeKeys) MasterKey() []byte { return f.key }

func newItemService(t *testing.T) (*ItemService, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewItemService(st, &fakeKeys{key: make([]byte, cryptox.KeySize)}, testLogger()), st
}

func TestItemService_AddAndGetNote(t *testing.T) {
	svc, st := newItemService(t)
	ctx := context.Background()

	id, err := svc.AddNote(ctx, "groceries", "milk, eggs")
	require.NoError(t, err)

	entry, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, entry.Note)
	assert.Equal(t, "groceries", entry.Note.Title)
	assert.Equal(t, "milk, eggs", entry.Note.Text)
	assert.True(t, entry.Dirty)

	// the stored payload must not contain the plaintext
	raw, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, string(raw.Content), "groceries")
	assert.NotContains(t, string(raw.Content), "milk")
}

func TestItemService_UpdateNoteKeepsID(t *testing.T) {
	svc, st := newItemService(t)
	ctx := context.Background()

	id, err := svc.AddNote(ctx, "draft", "v1")
	require.NoError(t, err)

	before, err := st.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateNote(ctx, id, "draft", "v2"))

	after, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, before.Content, after.Content)
	assert.GreaterOrEqual(t, after.UpdatedAt, before.UpdatedAt)

	entry, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v2", entry.Note.Text)
}

func TestItemService_UpdateMissingNote(t *testing.T) {
	svc, _ := newItemService(t)

	err := svc.UpdateNote(context.Background(), "nope", "t", "x")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestItemService_ListFiltersByType(t *testing.T) {
	svc, _ := newItemService(t)
	ctx := context.Background()

	noteID, err := svc.AddNote(ctx, "n", "text")
	require.NoError(t, err)
	_, err = svc.AddTag(ctx, "work", []string{noteID})
	require.NoError(t, err)

	notes, err := svc.List(ctx, models.ContentTypeNote)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, noteID, notes[0].ID)

	tags, err := svc.List(ctx, models.ContentTypeTag)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	require.NotNil(t, tags[0].Tag)
	assert.Equal(t, "work", tags[0].Tag.Title)
	require.Len(t, tags[0].Tag.References, 1)
	assert.Equal(t, noteID, tags[0].Tag.References[0].ID)
}

func TestItemService_DeleteHidesItem(t *testing.T) {
	svc, st := newItemService(t)
	ctx := context.Background()

	id, err := svc.AddNote(ctx, "n", "text")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, id))

	_, err = svc.Get(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// the tombstone row survives, queued for upload
	raw, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, raw.Deleted)
	assert.True(t, raw.Dirty)
}

func TestItemService_UnreadableItem(t *testing.T) {
	svc, st := newItemService(t)
	ctx := context.Background()

	require.NoError(t, st.SaveLocal(ctx, &models.Item{
		ID:          "broken",
		ContentType: models.ContentTypeNote,
		Content:     []byte("garbage"),
		Nonce:       make([]byte, cryptox.NonceSize),
		Unreadable:  true,
		UpdatedAt:   1,
	}))

	_, err := svc.Get(ctx, "broken")
	assert.ErrorIs(t, err, ErrUnreadableItem)

	// listing still surfaces it, flagged
	notes, err := svc.List(ctx, models.ContentTypeNote)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Unreadable)
	assert.Nil(t, notes[0].Note)
}

func TestItemService_PreferenceUpsertByName(t *testing.T) {
	svc, _ := newItemService(t)
	ctx := context.Background()

	set := func(v string) {
		t.Helper()
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, svc.SetPreference(ctx, models.PreferenceContent{Name: "theme", Value: raw}))
	}

	set("light")
	set("dark")

	pref, err := svc.GetPreference(ctx, "theme")
	require.NoError(t, err)

	var v string
	require.NoError(t, json.Unmarshal(pref.Value, &v))
	assert.Equal(t, "dark", v)

	// still a single preference item
	prefs, err := svc.List(ctx, models.ContentTypePreference)
	require.NoError(t, err)
	assert.Len(t, prefs, 1)
}

func TestItemService_RequiresSession(t *testing.T) {
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	svc := NewItemService(st, &fakeKeys{}, testLogger())

	_, err = svc.AddNote(context.Background(), "n", "x")
	assert.ErrorIs(t, err, common.ErrSessionExpired)
	_, err = svc.List(context.Background(), models.ContentTypeNote)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}
