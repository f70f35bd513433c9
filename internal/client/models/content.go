package models

import "encoding/json"

// Reference points from one item to another, e.g. a tag referencing the
// notes it groups.
type Reference struct {
	ID          string      `json:"id"`
	ContentType ContentType `json:"content_type"`
}

// NoteContent is the plaintext payload of a note item.
type NoteContent struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// TagContent is the plaintext payload of a tag item.
type TagContent struct {
	Title      string      `json:"title"`
	References []Reference `json:"references"`
}

// PreferenceContent is the plaintext payload of a preference item.
type PreferenceContent struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}
