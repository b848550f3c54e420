// README: Owned registry of live order subscriptions, one per user and subscription type.
package ordercache

import (
	"context"
	"errors"
	"sync"

	"gigmarket/internal/types"
)

// ErrReplaced is returned by Attach when the key was torn down while the
// listener was being opened.
var ErrReplaced = errors.New("order subscription replaced")

// Key identifies a live listener. Type distinguishes views of the same user,
// e.g. "orders:client" and "orders:freelancer".
type Key struct {
	UserID types.ID
	Type   string
}

type registration struct {
	id uint64
	// unsubscribe is nil while the key is only reserved.
	unsubscribe func()
	ready       chan struct{}
}

// Registry guarantees at most one live listener per Key.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]registration
	seq     uint64
	closed  bool
}

func NewRegistry() *Registry {
	return &Registry{entries: map[Key]registration{}}
}

// Reservation holds a key after the old listener is gone and before the new
// one is attached. Exactly one of Attach or Cancel must follow.
type Reservation struct {
	r     *Registry
	key   Key
	id    uint64
	ready chan struct{}
	once  sync.Once
}

// Reserve tears down the listener registered under key and claims the key.
// A reservation still being attached by someone else is waited for first,
// so two listeners for one key never overlap.
func (r *Registry) Reserve(ctx context.Context, key Key) (*Reservation, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		prev, hadPrev := r.entries[key]
		if hadPrev && prev.unsubscribe == nil {
			r.mu.Unlock()
			select {
			case <-prev.ready:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		r.seq++
		res := &Reservation{r: r, key: key, id: r.seq, ready: make(chan struct{})}
		r.entries[key] = registration{id: res.id, ready: res.ready}
		r.mu.Unlock()

		if hadPrev {
			prev.unsubscribe()
		}
		return res, nil
	}
}

// Attach installs unsubscribe under the reserved key. When the key was torn
// down in the meantime, unsubscribe runs at once and the error says why.
func (res *Reservation) Attach(unsubscribe func()) (release func(), err error) {
	r := res.r
	r.mu.Lock()
	cur, ok := r.entries[res.key]
	if !ok || cur.id != res.id {
		closed := r.closed
		r.mu.Unlock()
		res.settle()
		unsubscribe()
		if closed {
			return func() {}, ErrClosed
		}
		return func() {}, ErrReplaced
	}
	r.entries[res.key] = registration{id: res.id, unsubscribe: unsubscribe, ready: res.ready}
	r.mu.Unlock()
	res.settle()

	var once sync.Once
	return func() {
		once.Do(func() {
			if r.remove(res.key, res.id) {
				unsubscribe()
			}
		})
	}, nil
}

// Cancel gives the key back without attaching a listener.
func (res *Reservation) Cancel() {
	res.r.remove(res.key, res.id)
	res.settle()
}

func (res *Reservation) settle() {
	res.once.Do(func() { close(res.ready) })
}

func (r *Registry) remove(key Key, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.entries[key]
	if !ok || cur.id != id {
		return false
	}
	delete(r.entries, key)
	return true
}

// Register installs unsubscribe under key after tearing down any listener
// already registered there. The returned release removes this registration
// only; once a newer one replaced it, release does nothing.
func (r *Registry) Register(key Key, unsubscribe func()) (release func()) {
	res, err := r.Reserve(context.Background(), key)
	if err != nil {
		unsubscribe()
		return func() {}
	}
	release, _ = res.Attach(unsubscribe)
	return release
}

// Unregister tears down whatever is registered under key. A pending
// reservation is dropped and its Attach reports ErrReplaced.
func (r *Registry) Unregister(key Key) bool {
	r.mu.Lock()
	cur, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()
	if ok && cur.unsubscribe != nil {
		cur.unsubscribe()
	}
	return ok
}

func (r *Registry) Active(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close tears down every listener. Later registrations are torn down immediately.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = map[Key]registration{}
	r.closed = true
	r.mu.Unlock()
	for _, e := range entries {
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
	}
}
