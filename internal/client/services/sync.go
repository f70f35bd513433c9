package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quillnotes/quill/internal/client/client"
	"github.com/quillnotes/quill/internal/client/models"
	"github.com/quillnotes/quill/internal/client/repositories/metadata"
	"github.com/quillnotes/quill/internal/client/store"
	"github.com/quillnotes/quill/internal/common"
	"github.com/quillnotes/quill/internal/cryptox"
	"github.com/quillnotes/quill/internal/logging"
	"github.com/sethvargo/go-retry"
)

// State is the sync engine's phase. The Error state is transient: every
// failure resolves back to StateIdle so the next cycle can retry.
type State string

const (
	StateIdle        State = "idle"
	StateUploading   State = "uploading"
	StateDownloading State = "downloading"
	StateReconciling State = "reconciling"
	StateError       State = "error"
)

// transportAttempts bounds the backoff retries of one sync request
// before the cycle gives up until its next trigger.
const transportAttempts = 3

// SyncEngine drives the synchronization protocol: upload dirty items,
// download remote changes, reconcile, persist the new cursor. One cycle
// runs at a time; triggers arriving mid-cycle coalesce into at most one
// follow-up cycle.
type SyncEngine struct {
	store *store.Store
	api   client.Client
	creds CredentialSource
	log   logging.Logger

	mu      sync.Mutex
	state   State
	running bool
	queued  bool
}

// NewSyncEngine wires the engine to its collaborators.
func NewSyncEngine(st *store.Store, api client.Client, creds CredentialSource, log logging.Logger) *SyncEngine {
	return &SyncEngine{
		store: st,
		api:   api,
		creds: creds,
		log:   log.With("component", "sync"),
		state: StateIdle,
	}
}

// State returns the engine's current phase.
func (e *SyncEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *SyncEngine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Sync runs one synchronization cycle. If a cycle is already in
// progress the request is coalesced: the active cycle is followed by
// exactly one more, and this call returns immediately.
func (e *SyncEngine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.queued = true
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	for {
		err := e.cycleWithRetry(ctx)

		e.mu.Lock()
		again := e.queued && err == nil
		e.queued = false
		e.mu.Unlock()

		if !again {
			return err
		}
	}
}

// Run triggers a cycle every interval until ctx is cancelled.
func (e *SyncEngine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.Sync(ctx); err != nil {
				e.log.Warn(ctx, "scheduled sync failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// cycleWithRetry retries the cycle with capped exponential backoff, but
// only for transport failures; everything else surfaces immediately.
func (e *SyncEngine) cycleWithRetry(ctx context.Context) error {
	backoff := retry.WithMaxRetries(transportAttempts-1, retry.NewExponential(500*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.cycle(ctx)
		if errors.Is(err, common.ErrTransport) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		e.setState(StateError)
		e.log.Error(ctx, "sync cycle failed", "error", err)
		e.setState(StateIdle)
	}
	return err
}

// cycle is one pass of the state machine. All local effects of the
// cycle — acknowledgements, reconciled items, the new sync token — are
// committed in a single transaction, so a crash at any point leaves the
// dirty flags and the pending queue exactly as they were.
func (e *SyncEngine) cycle(ctx context.Context) (err error) {
	defer e.setState(StateIdle)

	creds, err := e.creds.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("no valid session: %w", err)
	}

	token, err := e.store.SyncToken(ctx)
	if err != nil {
		return err
	}

	e.setState(StateUploading)
	batch, err := e.collectPending(ctx)
	if err != nil {
		return err
	}

	resp, err := e.api.Sync(ctx, client.SyncRequest{Items: batch.envelopes, SyncToken: token})
	if errors.Is(err, common.ErrTokenInvalid) {
		// the server no longer knows our cursor; discard it and fetch
		// the entire remote item set
		e.log.Warn(ctx, "sync token rejected, forcing full resync")
		if clearErr := e.store.ClearSyncToken(ctx); clearErr != nil {
			return clearErr
		}
		token = ""
		resp, err = e.api.Sync(ctx, client.SyncRequest{Items: batch.envelopes, SyncToken: token})
	}
	if err != nil {
		return err
	}

	e.setState(StateDownloading)
	retrieved := resp.RetrievedItems
	saved := resp.SavedItems
	for resp.CursorToken != "" {
		resp, err = e.api.Sync(ctx, client.SyncRequest{SyncToken: token, CursorToken: resp.CursorToken})
		if err != nil {
			return err
		}
		retrieved = append(retrieved, resp.RetrievedItems...)
		saved = append(saved, resp.SavedItems...)
	}

	e.setState(StateReconciling)
	affected, err := e.applyResponse(ctx, batch, saved, retrieved, resp.SyncToken, creds.MasterKey)
	if err != nil {
		return err
	}

	e.store.Notify(affected)
	e.log.Info(ctx, "sync cycle finished",
		"uploaded", len(batch.envelopes), "acknowledged", len(saved),
		"retrieved", len(retrieved), "sync_token", resp.SyncToken)
	return nil
}

// uploadBatch is the captured pending queue for one cycle. UpdatedAt is
// recorded per item so an edit racing with the upload keeps its dirty
// flag when the stale version is acknowledged.
type uploadBatch struct {
	envelopes []models.Envelope
	updatedAt map[string]int64
	deleted   map[string]bool
}

func (e *SyncEngine) collectPending(ctx context.Context) (*uploadBatch, error) {
	ids, err := e.store.PendingSaves(ctx)
	if err != nil {
		return nil, err
	}

	batch := &uploadBatch{
		updatedAt: make(map[string]int64, len(ids)),
		deleted:   make(map[string]bool, len(ids)),
	}
	for _, id := range ids {
		item, err := e.store.Get(ctx, id)
		if errors.Is(err, common.ErrNotFound) {
			// queue entry without a row; nothing left to upload
			continue
		}
		if err != nil {
			return nil, err
		}
		batch.envelopes = append(batch.envelopes, item.Envelope())
		batch.updatedAt[id] = item.UpdatedAt
		batch.deleted[id] = item.Deleted
	}
	return batch, nil
}

// applyResponse commits the whole cycle outcome atomically and returns
// the affected item ids for change notification.
func (e *SyncEngine) applyResponse(ctx context.Context, batch *uploadBatch, saved, retrieved []models.Envelope, newToken string, masterKey []byte) ([]string, error) {
	var affected []string

	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acked, err := e.applyAcks(ctx, tx, batch, saved, newToken)
		if err != nil {
			return err
		}
		affected = append(affected, acked...)

		reconciled, err := e.reconcile(ctx, tx, retrieved, newToken, masterKey)
		if err != nil {
			return err
		}
		affected = append(affected, reconciled...)

		// the cursor only ever advances; an empty token in the response
		// leaves the persisted one untouched
		if newToken != "" {
			return tx.Metadata.Set(ctx, metadata.KeySyncToken, []byte(newToken))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// applyAcks clears acknowledged entries from the pending queue. Items
// edited after the batch was captured keep their dirty flag and queue
// position, so the newer content goes out next cycle.
func (e *SyncEngine) applyAcks(ctx context.Context, tx store.Tx, batch *uploadBatch, saved []models.Envelope, newToken string) ([]string, error) {
	var affected, remove []string

	for _, env := range saved {
		capturedAt, ok := batch.updatedAt[env.ID]
		if !ok {
			continue
		}

		item, err := tx.Items.GetByID(ctx, env.ID)
		if errors.Is(err, common.ErrNotFound) {
			remove = append(remove, env.ID)
			continue
		}
		if err != nil {
			return nil, err
		}

		if item.UpdatedAt != capturedAt {
			// raced with a local edit; the ack covers stale content
			continue
		}

		if batch.deleted[env.ID] {
			// the server confirmed the deletion: the tombstone can go
			if err := tx.Items.Purge(ctx, env.ID); err != nil {
				return nil, err
			}
		} else {
			if err := tx.Items.ClearDirty(ctx, env.ID, newToken); err != nil {
				return nil, err
			}
		}
		remove = append(remove, env.ID)
		affected = append(affected, env.ID)
	}

	if err := tx.Pending.Remove(ctx, remove); err != nil {
		return nil, err
	}
	return affected, nil
}

// reconcile merges the retrieved remote items into the local set.
//
// Clean local items are overwritten by the remote version. A dirty
// local item that collides with a remote change is resolved by
// updated_at (ties go to the remote, the server being canonical), and
// the loser's content is preserved as a new dirty item rather than
// discarded.
func (e *SyncEngine) reconcile(ctx context.Context, tx store.Tx, retrieved []models.Envelope, newToken string, masterKey []byte) ([]string, error) {
	var affected []string

	for _, env := range retrieved {
		local, err := tx.Items.GetByID(ctx, env.ID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			if env.Deleted {
				continue
			}
			if err := e.insertRemote(ctx, tx, env, newToken, masterKey); err != nil {
				return nil, err
			}
			affected = append(affected, env.ID)

		case err != nil:
			return nil, err

		case !local.Dirty:
			if env.Deleted {
				// remote deletion of a clean item; server already
				// confirmed it, so no tombstone is needed
				if err := tx.Items.Purge(ctx, env.ID); err != nil {
					return nil, err
				}
			} else if err := e.insertRemote(ctx, tx, env, newToken, masterKey); err != nil {
				return nil, err
			}
			affected = append(affected, env.ID)

		default: // dirty local item: conflict
			ids, err := e.resolveConflict(ctx, tx, local, env, newToken, masterKey)
			if err != nil {
				return nil, err
			}
			affected = append(affected, ids...)
		}
	}

	return affected, nil
}

// insertRemote stores a remote envelope as a clean local item, flagging
// it unreadable if its payload fails the integrity check. An undecodable
// item is kept, never dropped.
func (e *SyncEngine) insertRemote(ctx context.Context, tx store.Tx, env models.Envelope, newToken string, masterKey []byte) error {
	item := models.ItemFromEnvelope(env)
	item.SyncTokenSeen = newToken

	unreadable := false
	if len(item.Content) > 0 && masterKey != nil {
		if _, err := cryptox.Decrypt(item.Content, item.Nonce, masterKey); err != nil {
			if !errors.Is(err, common.ErrAuthenticationFailed) {
				return err
			}
			e.log.Warn(ctx, "item failed integrity check, keeping as unreadable", "id", item.ID)
			unreadable = true
		}
	}

	if err := tx.Items.Upsert(ctx, item); err != nil {
		return err
	}
	if unreadable {
		return tx.Items.MarkUnreadable(ctx, item.ID)
	}
	return nil
}

// resolveConflict applies the duplicate-on-conflict policy: the version
// with the later updated_at becomes the canonical content under the
// original id, and the other version survives as a new dirty item.
// Only unsynced edits are worth preserving; a local tombstone carries no
// content the user wants back, so it is never salvaged.
func (e *SyncEngine) resolveConflict(ctx context.Context, tx store.Tx, local *models.Item, env models.Envelope, newToken string, masterKey []byte) ([]string, error) {
	if env.Deleted {
		if !local.Deleted {
			// remote deletion races with local edits: salvage the local
			// content before honoring the tombstone
			dup, err := e.duplicate(ctx, tx, local)
			if err != nil {
				return nil, err
			}
			if err := tx.Items.Purge(ctx, local.ID); err != nil {
				return nil, err
			}
			if err := tx.Pending.Remove(ctx, []string{local.ID}); err != nil {
				return nil, err
			}
			return []string{local.ID, dup}, nil
		}

		// deleted on both sides; the server tombstone settles it
		if err := tx.Items.Purge(ctx, local.ID); err != nil {
			return nil, err
		}
		if err := tx.Pending.Remove(ctx, []string{local.ID}); err != nil {
			return nil, err
		}
		return []string{local.ID}, nil
	}

	if env.UpdatedAt >= local.UpdatedAt {
		// remote wins; local edits live on as a duplicate
		affected := []string{local.ID}
		if !local.Deleted {
			dup, err := e.duplicate(ctx, tx, local)
			if err != nil {
				return nil, err
			}
			affected = append(affected, dup)
		}
		if err := e.insertRemote(ctx, tx, env, newToken, masterKey); err != nil {
			return nil, err
		}
		if err := tx.Pending.Remove(ctx, []string{local.ID}); err != nil {
			return nil, err
		}
		return affected, nil
	}

	// local wins and stays queued; keep the remote content as a
	// duplicate so nothing is lost on either side
	remote := models.ItemFromEnvelope(env)
	dup, err := e.duplicate(ctx, tx, remote)
	if err != nil {
		return nil, err
	}
	return []string{dup}, nil
}

// duplicate copies an item's content under a fresh id, marked dirty and
// queued for upload.
func (e *SyncEngine) duplicate(ctx context.Context, tx store.Tx, src *models.Item) (string, error) {
	dup := &models.Item{
		ID:          uuid.NewString(),
		ContentType: src.ContentType,
		Content:     src.Content,
		Nonce:       src.Nonce,
		CreatedAt:   src.CreatedAt,
		UpdatedAt:   models.Now(),
		Dirty:       true,
	}
	if err := tx.Items.Upsert(ctx, dup); err != nil {
		return "", err
	}
	if err := tx.Pending.Enqueue(ctx, dup.ID); err != nil {
		return "", err
	}
	return dup.ID, nil
}
