// Package models defines the synchronized item model and the typed
// plaintext payloads stored inside item ciphertext.
package models

import "time"

// ContentType discriminates item payload kinds. The sync core never
// inspects plaintext, so new kinds can be added without touching it.
type ContentType string

const (
	ContentTypeNote       ContentType = "note"
	ContentTypeTag        ContentType = "tag"
	ContentTypePreference ContentType = "preference"
)

// Item is the unit of synchronized content as persisted locally.
// Content holds AES-GCM ciphertext plus tag; Nonce the per-encryption
// nonce. The plaintext is only ever visible above the sync core.
type Item struct {
	ID          string
	ContentType ContentType
	Content     []byte
	Nonce       []byte
	CreatedAt   int64 // unix milliseconds
	UpdatedAt   int64 // unix milliseconds, bumped on every write
	Deleted     bool  // tombstone; retained until the server confirms removal
	Dirty       bool  // unsynced local changes exist
	Unreadable  bool  // payload failed its integrity check
	// SyncTokenSeen is the sync cursor at which this item was last known
	// consistent with the server.
	SyncTokenSeen string
}

// Envelope is the wire representation of an item: exactly the fields
// exchanged with the server, none of the local-only state.
type Envelope struct {
	ID          string      `json:"id"`
	ContentType ContentType `json:"content_type"`
	Content     []byte      `json:"content,omitempty"`
	Nonce       []byte      `json:"nonce,omitempty"`
	CreatedAt   int64       `json:"created_at"`
	UpdatedAt   int64       `json:"updated_at"`
	Deleted     bool        `json:"deleted"`
}

// Envelope returns the wire form of the item.
func (i *Item) Envelope() Envelope {
	return Envelope{
		ID:          i.ID,
		ContentType: i.ContentType,
		Content:     i.Content,
		Nonce:       i.Nonce,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
		Deleted:     i.Deleted,
	}
}

// ItemFromEnvelope builds a clean (not dirty) local item from a remote
// envelope.
func ItemFromEnvelope(e Envelope) *Item {
	return &Item{
		ID:          e.ID,
		ContentType: e.ContentType,
		Content:     e.Content,
		Nonce:       e.Nonce,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		Deleted:     e.Deleted,
	}
}

// Now returns the current wall clock in the resolution used for
// UpdatedAt comparisons.
func Now() int64 {
	return time.Now().UnixMilli()
}
