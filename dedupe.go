package reqengine

import (
	"container/list"
	"sync"
)

// MaxDedupeMapSize is the hard cap on concurrently-tracked in-flight
// requests (spec §3). Eviction is FIFO by insertion order once full.
const MaxDedupeMapSize = 1000

// dedupeEntry is the shared, settle-once result of one in-flight request.
// Multiple waiters hold the same *dedupeEntry and block on done.
type dedupeEntry struct {
	done     chan struct{}
	response any
	err      error
}

// DedupeMap is the bounded key→in-flight-result registry (spec §4.4).
// Keys are "METHOD:URL:BODYFINGERPRINT" strings. It is safe for
// concurrent use.
type DedupeMap struct {
	mu      sync.Mutex
	entries map[string]*dedupeEntry
	order   *list.List // elements are the dedupe keys, oldest at Front
	elems   map[string]*list.Element
}

// NewDedupeMap returns an empty map.
func NewDedupeMap() *DedupeMap {
	return &DedupeMap{
		entries: make(map[string]*dedupeEntry),
		order:   list.New(),
		elems:   make(map[string]*list.Element),
	}
}

// GetOrCreate returns (entry, false) if key already has a pending entry
// — the caller should Wait() on it rather than issuing a new attempt —
// or (entry, true) if it created a fresh pending entry the caller now
// owns and must eventually Settle().
func (d *DedupeMap) GetOrCreate(key string) (entry *dedupeEntry, owner bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.entries[key]; ok {
		return existing, false
	}

	if len(d.entries) >= MaxDedupeMapSize {
		oldest := d.order.Front()
		if oldest != nil {
			oldestKey := oldest.Value.(string)
			d.order.Remove(oldest)
			delete(d.elems, oldestKey)
			delete(d.entries, oldestKey)
		}
	}

	e := &dedupeEntry{done: make(chan struct{})}
	d.entries[key] = e
	d.elems[key] = d.order.PushBack(key)
	return e, true
}

// Settle fulfils the entry for key with (response, err), wakes every
// waiter, and removes key from the map so future calls start fresh
// (spec §4.4: "the entry is removed... so new calls do not observe prior
// results").
func (d *DedupeMap) Settle(key string, response any, err error) {
	d.mu.Lock()
	entry, ok := d.entries[key]
	if ok {
		delete(d.entries, key)
		if elem, ok := d.elems[key]; ok {
			d.order.Remove(elem)
			delete(d.elems, key)
		}
	}
	d.mu.Unlock()

	if !ok {
		return
	}
	entry.response = response
	entry.err = err
	close(entry.done)
}

// Wait blocks until entry settles and returns its result.
func (e *dedupeEntry) Wait() (any, error) {
	<-e.done
	return e.response, e.err
}

// Eligible reports whether dedup applies to this request under the
// criteria in spec §4.4: dedupe enabled, method GET/HEAD, and
// maxAttempts <= 1 (enabling retries silently disables dedup — spec §9.4,
// kept intentionally: sharing a retry lifecycle between unrelated callers
// would let one caller's retry policy govern another's request).
func Eligible(dedupeEnabled bool, method Method, retry RetryConfig) bool {
	return dedupeEnabled && (method == MethodGet || method == MethodHead) && retry.MaxAttempts <= 1
}

// Len reports the current number of tracked in-flight entries.
func (d *DedupeMap) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
