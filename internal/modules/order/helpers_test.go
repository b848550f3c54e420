package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gigmarket/internal/types"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(at time.Time) *testClock { return &testClock{now: at} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDirectory struct {
	gigs  map[types.ID]*GigSummary
	users map[types.ID]*PartySummary
}

func newFakeDirectory() *fakeDirectory {
	d := &fakeDirectory{gigs: map[types.ID]*GigSummary{}, users: map[types.ID]*PartySummary{}}
	for _, id := range []types.ID{"client-1", "freelancer-1", "client-2", "stranger"} {
		d.users[id] = &PartySummary{ID: id, DisplayName: string(id)}
	}
	d.gigs["gig-1"] = &GigSummary{
		ID:           "gig-1",
		Title:        "Logo design",
		FreelancerID: "freelancer-1",
		Packages: map[string]PackageTerms{
			"basic":    {Price: types.NewMoney(10000, "BRL"), DeliveryDays: 7, Revisions: Numeric(3)},
			"premium":  {Price: types.NewMoney(50000, "BRL"), DeliveryDays: 3, Revisions: Unlimited()},
			"free":     {Price: types.NewMoney(0, "BRL"), DeliveryDays: 3, Revisions: Numeric(1)},
			"instant":  {Price: types.NewMoney(1000, "BRL"), DeliveryDays: 0, Revisions: Numeric(1)},
			"onceonly": {Price: types.NewMoney(2000, "BRL"), DeliveryDays: 2, Revisions: Numeric(1)},
		},
	}
	return d
}

func (d *fakeDirectory) GigSummary(_ context.Context, id types.ID) (*GigSummary, error) {
	if g, ok := d.gigs[id]; ok {
		return g, nil
	}
	return nil, &NotFoundError{Kind: "gig", ID: id}
}

func (d *fakeDirectory) PartySummary(_ context.Context, id types.ID) (*PartySummary, error) {
	if u, ok := d.users[id]; ok {
		return u, nil
	}
	return nil, &NotFoundError{Kind: "user", ID: id}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []NotificationEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) all() []NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotificationEvent(nil), n.events...)
}

type recordingChat struct {
	mu     sync.Mutex
	events []ChatEvent
	err    error
}

func (c *recordingChat) SendStatusMessage(_ context.Context, e ChatEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *recordingChat) all() []ChatEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatEvent(nil), c.events...)
}

type memoryEventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *memoryEventLog) AppendEvent(_ context.Context, e *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = int64(len(l.events) + 1)
	l.events = append(l.events, *e)
	return nil
}

func (l *memoryEventLog) ListEvents(_ context.Context, id types.ID) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.OrderID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type testEnv struct {
	svc      *Service
	store    *MemoryStore
	clock    *testClock
	notifier *recordingNotifier
	chat     *recordingChat
	events   *memoryEventLog
	dir      *fakeDirectory
}

const testPaymentTimeout = 15 * time.Minute

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    NewMemoryStore(),
		clock:    newTestClock(t0),
		notifier: &recordingNotifier{},
		chat:     &recordingChat{},
		events:   &memoryEventLog{},
		dir:      newFakeDirectory(),
	}
	seq := 0
	base := []Option{
		WithClock(env.clock.Now),
		WithDirectory(env.dir),
		WithEventLog(env.events),
		WithOutbox(NewOutbox(env.notifier, env.chat, nil)),
		WithIDGenerator(func() types.ID {
			seq++
			return types.ID(fmt.Sprintf("ord%03d-aaaa", seq))
		}),
	}
	env.svc = NewService(env.store, NewDeadlines(testPaymentTimeout), append(base, opts...)...)
	return env
}

func mustCreateOrder(t *testing.T, svc *Service, clientID types.ID, pkg string) *Order {
	t.Helper()
	o, err := svc.CreateOrder(context.Background(), CreateCommand{ClientID: clientID, GigID: "gig-1", PackageType: pkg})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func assertStatus(t *testing.T, svc *Service, orderID types.ID, want Status) *Order {
	t.Helper()
	o, err := svc.store.Get(context.Background(), orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != want {
		t.Fatalf("expected status %s, got %s", want, o.Status)
	}
	return o
}

// advanceTo drives a freshly created order to the wanted status along the happy path.
func advanceTo(t *testing.T, env *testEnv, id types.ID, want Status) {
	t.Helper()
	ctx := context.Background()
	steps := []struct {
		status Status
		run    func() error
	}{
		{StatusPayment, func() error { _, err := env.svc.Checkout(ctx, id, "client-1"); return err }},
		{StatusPending, func() error { _, err := env.svc.MarkPaymentCompleted(ctx, id); return err }},
		{StatusActive, func() error { _, err := env.svc.AcceptOrder(ctx, id, "freelancer-1"); return err }},
		{StatusDelivered, func() error {
			_, err := env.svc.DeliverOrder(ctx, id, "freelancer-1", Delivery{Message: "first cut", Files: []string{"logo.png"}})
			return err
		}},
	}
	if want == StatusDraft {
		return
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("advance to %s: %v", step.status, err)
		}
		if step.status == want {
			return
		}
	}
	t.Fatalf("advanceTo: unsupported target %s", want)
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
