// README: In-process directory for local runs and tests.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

type MemoryDirectory struct {
	mu    sync.RWMutex
	gigs  map[types.ID]*order.GigSummary
	users map[types.ID]*order.PartySummary
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		gigs:  map[types.ID]*order.GigSummary{},
		users: map[types.ID]*order.PartySummary{},
	}
}

func (d *MemoryDirectory) PutGig(g *order.GigSummary) {
	d.mu.Lock()
	d.gigs[g.ID] = g
	d.mu.Unlock()
}

func (d *MemoryDirectory) PutUser(u *order.PartySummary) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

func (d *MemoryDirectory) GigSummary(_ context.Context, id types.ID) (*order.GigSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.gigs[id]
	if !ok {
		return nil, &order.NotFoundError{Kind: "gig", ID: id}
	}
	return g, nil
}

func (d *MemoryDirectory) PartySummary(_ context.Context, id types.ID) (*order.PartySummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, &order.NotFoundError{Kind: "user", ID: id}
	}
	return u, nil
}

// LoadFile fills the directory from a JSON file shaped like the Firestore
// collections: {"gigs": {id: gig}, "users": {id: user}}.
func (d *MemoryDirectory) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("directory: read %s: %w", path, err)
	}
	var file struct {
		Gigs  map[string]gigDoc  `json:"gigs"`
		Users map[string]userDoc `json:"users"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("directory: parse %s: %w", path, err)
	}
	for id, doc := range file.Gigs {
		g, err := toGigSummary(types.ID(id), doc)
		if err != nil {
			return err
		}
		d.PutGig(g)
	}
	for id, doc := range file.Users {
		d.PutUser(toPartySummary(types.ID(id), doc))
	}
	return nil
}
