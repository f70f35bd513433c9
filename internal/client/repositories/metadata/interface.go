// Package metadata persists small key/value state that must survive
// restarts: the sync token and cached offline-login material.
package metadata

import "context"

// Well-known metadata keys.
const (
	KeySyncToken  = "sync_token"
	KeyIdentifier = "identifier"
	KeySalt       = "salt"
	KeyVerifier   = "verifier"
	KeyKDFParams  = "kdf_params"
)

// Repository describes key/value operations over the metadata table.
type Repository interface {
	// Get returns the value for key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set inserts or replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all metadata.
	Clear(ctx context.Context) error
}
