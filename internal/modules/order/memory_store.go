// README: In-memory order store for local runs and tests; mirrors the Firestore store's compare-and-set and watch semantics.
package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gigmarket/internal/types"
)

type MemoryStore struct {
	mu       sync.Mutex
	orders   map[types.ID]*Order
	seq      int64
	watchers map[*memoryWatcher]struct{}
}

type memoryWatcher struct {
	userID types.ID
	role   Role
	wake   chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[types.ID]*Order),
		watchers: make(map[*memoryWatcher]struct{}),
	}
}

// nextVersion must be called with mu held.
func (s *MemoryStore) nextVersion() time.Time {
	s.seq++
	return time.Unix(0, s.seq).UTC()
}

func (s *MemoryStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s already exists", ErrConflict, o.ID)
	}
	o.Version = s.nextVersion()
	s.orders[o.ID] = o.Clone()
	s.wakeLocked(o)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(o)
}

func (s *MemoryStore) saveLocked(o *Order) error {
	cur, ok := s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if !cur.Version.Equal(o.Version) {
		return fmt.Errorf("%w: order %s changed since it was read", ErrConflict, o.ID)
	}
	o.Version = s.nextVersion()
	s.orders[o.ID] = o.Clone()
	s.wakeLocked(o)
	return nil
}

func (s *MemoryStore) SaveBatch(_ context.Context, orders []*Order) []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := make([]error, len(orders))
	for i, o := range orders {
		errs[i] = s.saveLocked(o)
	}
	return errs
}

func (s *MemoryStore) ListByParty(_ context.Context, userID types.ID, role Role, statuses ...Status) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(userID, role, statuses), nil
}

func (s *MemoryStore) listLocked(userID types.ID, role Role, statuses []Status) []*Order {
	var out []*Order
	for _, o := range s.orders {
		if !matchesParty(o, userID, role) || !statusIn(o.Status, statuses) {
			continue
		}
		out = append(out, o.Clone())
	}
	sortNewestFirst(out)
	return out
}

func (s *MemoryStore) ListExpired(_ context.Context, kind DeadlineKind, now time.Time, limit int) ([]*Order, error) {
	st := statusForDeadline(kind)
	if st == StatusNone {
		return nil, fmt.Errorf("order: no expiry sweep for deadline %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for _, o := range s.orders {
		if o.Status != st {
			continue
		}
		_, deadline := ActiveDeadline(o)
		if deadline == nil || deadline.After(now) {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		_, a := ActiveDeadline(out[i])
		_, b := ActiveDeadline(out[j])
		return a.Before(*b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Watch(ctx context.Context, userID types.ID, role Role, fn func([]*Order)) error {
	w := &memoryWatcher{userID: userID, role: role, wake: make(chan struct{}, 1)}
	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.watchers, w)
		s.mu.Unlock()
	}()

	w.wake <- struct{}{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.wake:
			s.mu.Lock()
			orders := s.listLocked(userID, role, nil)
			s.mu.Unlock()
			fn(orders)
		}
	}
}

func (s *MemoryStore) wakeLocked(o *Order) {
	for w := range s.watchers {
		if !matchesParty(o, w.userID, w.role) {
			continue
		}
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func matchesParty(o *Order, userID types.ID, role Role) bool {
	switch role {
	case RoleClient:
		return o.ClientID == userID
	case RoleFreelancer:
		return o.FreelancerID == userID
	}
	return o.IsParty(userID)
}

func statusIn(s Status, set []Status) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func sortNewestFirst(orders []*Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
