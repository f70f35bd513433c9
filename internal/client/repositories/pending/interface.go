// Package pending persists the ordered queue of item ids awaiting
// upload. The queue is derived from dirty flags but kept explicit so
// submission order survives retries and restarts.
package pending

import "context"

// Repository describes the persistent pending-saves queue.
type Repository interface {
	// Enqueue appends an item id to the queue. Ids already queued keep
	// their original position.
	Enqueue(ctx context.Context, itemID string) error

	// List returns queued ids in submission order.
	List(ctx context.Context) ([]string, error)

	// Remove drops the given ids from the queue, e.g. after the server
	// acknowledged them.
	Remove(ctx context.Context, itemIDs []string) error

	// Clear empties the queue.
	Clear(ctx context.Context) error
}
