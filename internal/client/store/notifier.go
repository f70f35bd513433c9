package store

import "sync"

// Notifier fans out the ids of changed items to subscribers. The UI
// layer re-queries the store on notification; no content is pushed.
type Notifier struct {
	mu   sync.RWMutex
	subs []func(ids []string)
}

// Subscribe registers fn to be called after local mutations and
// reconciliation batches. Callbacks run synchronously on the mutating
// goroutine and must not block.
func (n *Notifier) Subscribe(fn func(ids []string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

// Publish delivers the affected ids to all subscribers. Empty batches
// are dropped.
func (n *Notifier) Publish(ids []string) {
	if len(ids) == 0 {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, fn := range n.subs {
		fn(ids)
	}
}
