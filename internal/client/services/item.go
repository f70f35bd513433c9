package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quillnotes/quill/internal/client/models"
	"github.com/quillnotes/quill/internal/client/repositories/items"
	"github.com/quillnotes/quill/internal/client/store"
	"github.com/quillnotes/quill/internal/common"
	"github.com/quillnotes/quill/internal/cryptox"
	"github.com/quillnotes/quill/internal/logging"
)

// ErrUnreadableItem is returned when a requested item's payload failed
// its integrity check and cannot be decrypted.
var ErrUnreadableItem = errors.New("item payload is unreadable")

// KeyProvider exposes the session master key to services that encrypt
// and decrypt item payloads.
type KeyProvider interface {
	IsLoggedIn() bool
	MasterKey() []byte
}

// ItemEntry is a decrypted item as presented to the UI. Note and Tag
// are set according to the content type; unreadable items carry only
// metadata.
type ItemEntry struct {
	ID          string
	ContentType models.ContentType
	UpdatedAt   int64
	Dirty       bool
	Unreadable  bool

	Note *models.NoteContent
	Tag  *models.TagContent
}

// ItemService is the UI-facing mutation and query surface. Every write
// goes through the store's local-save path, so it is immediately
// durable and queued for upload regardless of connectivity.
type ItemService struct {
	store *store.Store
	keys  KeyProvider
	log   logging.Logger
}

func NewItemService(st *store.Store, keys KeyProvider, log logging.Logger) *ItemService {
	return &ItemService{store: st, keys: keys, log: log.With("component", "items")}
}

// List returns decrypted items of the given type, newest first.
// Unreadable items are included so the UI can surface them.
func (s *ItemService) List(ctx context.Context, ct models.ContentType) ([]ItemEntry, error) {
	key, err := s.sessionKey()
	if err != nil {
		return nil, err
	}

	raw, err := s.store.List(ctx, items.ListFilter{ContentType: ct})
	if err != nil {
		return nil, err
	}

	entries := make([]ItemEntry, 0, len(raw))
	for i := range raw {
		entry, err := s.decryptEntry(&raw[i], key)
		if err != nil {
			s.log.Warn(ctx, "skipping undecodable item", "id", raw[i].ID, "error", err)
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Get returns one decrypted item, ErrUnreadableItem when its payload
// cannot be decrypted, or common.ErrNotFound.
func (s *ItemService) Get(ctx context.Context, id string) (*ItemEntry, error) {
	key, err := s.sessionKey()
	if err != nil {
		return nil, err
	}

	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Deleted {
		return nil, common.ErrNotFound
	}
	if item.Unreadable {
		return nil, fmt.Errorf("%s: %w", id, ErrUnreadableItem)
	}
	return s.decryptEntry(item, key)
}

// AddNote encrypts and stores a new note, returning its id.
func (s *ItemService) AddNote(ctx context.Context, title, text string) (string, error) {
	return s.add(ctx, models.ContentTypeNote, models.NoteContent{Title: title, Text: text})
}

// UpdateNote re-encrypts a note's content in place. The item keeps its
// id, so the change syncs as an update rather than a new item.
func (s *ItemService) UpdateNote(ctx context.Context, id, title, text string) error {
	key, err := s.sessionKey()
	if err != nil {
		return err
	}

	item, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Deleted {
		return common.ErrNotFound
	}
	if item.ContentType != models.ContentTypeNote {
		return fmt.Errorf("%s is not a note: %w", id, common.ErrNotFound)
	}

	ct, nonce, err := cryptox.EncryptJSON(models.NoteContent{Title: title, Text: text}, key)
	if err != nil {
		return fmt.Errorf("encrypt note: %w", err)
	}

	item.Content = ct
	item.Nonce = nonce
	item.UpdatedAt = models.Now()
	item.Unreadable = false
	return s.store.SaveLocal(ctx, item)
}

// AddTag encrypts and stores a new tag referencing the given note ids.
func (s *ItemService) AddTag(ctx context.Context, title string, noteIDs []string) (string, error) {
	refs := make([]models.Reference, 0, len(noteIDs))
	for _, id := range noteIDs {
		refs = append(refs, models.Reference{ID: id, ContentType: models.ContentTypeNote})
	}
	return s.add(ctx, models.ContentTypeTag, models.TagContent{Title: title, References: refs})
}

// SetPreference stores a named preference value, replacing any previous
// item with the same name.
func (s *ItemService) SetPreference(ctx context.Context, pref models.PreferenceContent) error {
	key, err := s.sessionKey()
	if err != nil {
		return err
	}

	// preferences are keyed by name, so an existing one is updated in
	// place rather than duplicated
	existing, err := s.findPreference(ctx, key, pref.Name)
	if err != nil {
		return err
	}

	ct, nonce, err := cryptox.EncryptJSON(pref, key)
	if err != nil {
		return fmt.Errorf("encrypt preference: %w", err)
	}

	item := existing
	if item == nil {
		now := models.Now()
		item = &models.Item{
			ID:          uuid.NewString(),
			ContentType: models.ContentTypePreference,
			CreatedAt:   now,
		}
	}
	item.Content = ct
	item.Nonce = nonce
	item.UpdatedAt = models.Now()
	return s.store.SaveLocal(ctx, item)
}

// GetPreference returns a named preference or common.ErrNotFound.
func (s *ItemService) GetPreference(ctx context.Context, name string) (*models.PreferenceContent, error) {
	key, err := s.sessionKey()
	if err != nil {
		return nil, err
	}

	item, err := s.findPreference(ctx, key, name)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("preference %q: %w", name, common.ErrNotFound)
	}

	var pref models.PreferenceContent
	if err := cryptox.DecryptJSON(item.Content, item.Nonce, key, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

// Delete tombstones an item; the row disappears once the server
// confirms the deletion.
func (s *ItemService) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteLocally(ctx, id)
}

func (s *ItemService) add(ctx context.Context, ct models.ContentType, content any) (string, error) {
	key, err := s.sessionKey()
	if err != nil {
		return "", err
	}

	ciphertext, nonce, err := cryptox.EncryptJSON(content, key)
	if err != nil {
		return "", fmt.Errorf("encrypt %s: %w", ct, err)
	}

	now := models.Now()
	item := &models.Item{
		ID:          uuid.NewString(),
		ContentType: ct,
		Content:     ciphertext,
		Nonce:       nonce,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SaveLocal(ctx, item); err != nil {
		return "", err
	}
	return item.ID, nil
}

func (s *ItemService) decryptEntry(item *models.Item, key []byte) (*ItemEntry, error) {
	entry := &ItemEntry{
		ID:          item.ID,
		ContentType: item.ContentType,
		UpdatedAt:   item.UpdatedAt,
		Dirty:       item.Dirty,
		Unreadable:  item.Unreadable,
	}
	if item.Unreadable {
		return entry, nil
	}

	switch item.ContentType {
	case models.ContentTypeNote:
		var note models.NoteContent
		if err := cryptox.DecryptJSON(item.Content, item.Nonce, key, &note); err != nil {
			return nil, err
		}
		entry.Note = &note
	case models.ContentTypeTag:
		var tag models.TagContent
		if err := cryptox.DecryptJSON(item.Content, item.Nonce, key, &tag); err != nil {
			return nil, err
		}
		entry.Tag = &tag
	}
	return entry, nil
}

func (s *ItemService) findPreference(ctx context.Context, key []byte, name string) (*models.Item, error) {
	raw, err := s.store.List(ctx, items.ListFilter{ContentType: models.ContentTypePreference})
	if err != nil {
		return nil, err
	}
	for i := range raw {
		if raw[i].Unreadable {
			continue
		}
		var pref models.PreferenceContent
		if err := cryptox.DecryptJSON(raw[i].Content, raw[i].Nonce, key, &pref); err != nil {
			continue
		}
		if pref.Name == name {
			return &raw[i], nil
		}
	}
	return nil, nil
}

func (s *ItemService) sessionKey() ([]byte, error) {
	key := s.keys.MasterKey()
	if key == nil {
		return nil, common.ErrSessionExpired
	}
	return key, nil
}
