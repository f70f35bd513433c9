// Package client implements the HTTP transport used to talk to the
// sync service. The sync engine only depends on the Client interface,
// so tests substitute a fake.
package client

import (
	"context"

	"github.com/quillnotes/quill/internal/client/models"
	"github.com/quillnotes/quill/internal/cryptox"
)

// AuthParams are the per-account key-derivation inputs stored by the
// server and fetched before sign-in.
type AuthParams struct {
	Salt []byte        `json:"salt"`
	KDF  cryptox.Params `json:"kdf"`
}

// SyncRequest is one sync round trip: the dirty items to save plus the
// cursor up to which server changes have already been retrieved.
type SyncRequest struct {
	Items       []models.Envelope `json:"items"`
	SyncToken   string            `json:"sync_token,omitempty"`
	CursorToken string            `json:"cursor_token,omitempty"`
}

// SyncResponse carries the server's changes since the supplied token,
// the subset of submitted items it acknowledged, and the new cursor.
// CursorToken is non-empty when more pages of retrieved items remain.
type SyncResponse struct {
	RetrievedItems []models.Envelope `json:"retrieved_items"`
	SavedItems     []models.Envelope `json:"saved_items"`
	SyncToken      string            `json:"sync_token"`
	CursorToken    string            `json:"cursor_token,omitempty"`
}

// Client is the remote API surface consumed by the session manager and
// the sync engine.
type Client interface {
	// AuthParams fetches KDF parameters for an identifier.
	AuthParams(ctx context.Context, identifier string) (*AuthParams, error)

	// Register creates an account. The verifier, not the key, goes to
	// the server.
	Register(ctx context.Context, identifier string, params AuthParams, verifier []byte) error

	// SignIn authenticates and stores the issued token pair on the
	// client for subsequent calls.
	SignIn(ctx context.Context, identifier string, verifier []byte) error

	// SignOut drops the stored token pair.
	SignOut()

	// Sync performs one sync round trip.
	Sync(ctx context.Context, req SyncRequest) (*SyncResponse, error)

	// Ping checks server reachability.
	Ping(ctx context.Context) error

	// AccessToken returns the current bearer token, empty when signed out.
	AccessToken() string

	Close() error
}
