// README: Client-side order cache with optimistic transitions over a live subscription.
package ordercache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

// DefaultFallbackAfter is how long Start waits for the first pushed snapshot
// before fetching once.
const DefaultFallbackAfter = 5 * time.Second

var ErrClosed = errors.New("order cache closed")

// Source provides the authoritative orders; *order.Service satisfies it.
type Source interface {
	SubscribeToUserOrders(ctx context.Context, userID types.ID, role order.Role, fn func([]*order.Order)) (func(), error)
	ListUserOrders(ctx context.Context, userID types.ID, role order.Role) ([]*order.Order, error)
}

// Writer performs the authoritative transition; *order.Service satisfies it.
type Writer interface {
	UpdateOrderStatus(ctx context.Context, cmd order.StatusCommand) (order.StatusChange, error)
}

type Options struct {
	UserID        types.ID
	Role          order.Role
	Registry      *Registry
	Machine       *order.Machine
	FallbackAfter time.Duration
	// OnChange receives the full order list after every change. It may be
	// called from the subscription goroutine and from Transition callers.
	OnChange func([]*order.Order)
	Logger   *zap.Logger
	Now      func() time.Time
}

// Cache is one user's view of their orders. Pushed snapshots always win over
// local state.
type Cache struct {
	source   Source
	writer   Writer
	registry *Registry
	machine  *order.Machine
	key      Key
	userID   types.ID
	role     order.Role
	fallback time.Duration
	onChange func([]*order.Order)
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	entries  map[types.ID]*entry
	loading  bool
	received bool
	started  bool
	closed   bool
	timer    *time.Timer
	release  func()
	lastErr  error

	done     chan struct{}
	doneOnce sync.Once
}

func New(source Source, writer Writer, opts Options) *Cache {
	if opts.Role == "" {
		opts.Role = order.RoleAny
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Machine == nil {
		opts.Machine = order.NewMachine(order.Deadlines{})
	}
	if opts.FallbackAfter <= 0 {
		opts.FallbackAfter = DefaultFallbackAfter
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Cache{
		source:   source,
		writer:   writer,
		registry: opts.Registry,
		machine:  opts.Machine,
		key:      SubscriptionKey(opts.UserID, opts.Role),
		userID:   opts.UserID,
		role:     opts.Role,
		fallback: opts.FallbackAfter,
		onChange: opts.OnChange,
		logger:   opts.Logger,
		now:      opts.Now,
		entries:  map[types.ID]*entry{},
		loading:  true,
		done:     make(chan struct{}),
	}
}

// SubscriptionKey is the registry key of a user's order list for role.
func SubscriptionKey(userID types.ID, role order.Role) Key {
	return Key{UserID: userID, Type: "orders:" + string(role)}
}

// Start subscribes and arms the fallback fetch. Any listener already
// registered for the same user and role is torn down first.
func (c *Cache) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	res, err := c.registry.Reserve(ctx, c.key)
	if err != nil {
		c.abandon()
		return err
	}
	unsubscribe, err := c.source.SubscribeToUserOrders(ctx, c.userID, c.role, c.onSnapshot)
	if err != nil {
		res.Cancel()
		return err
	}
	release, err := res.Attach(func() {
		unsubscribe()
		c.finish()
	})
	if err != nil {
		c.abandon()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.release = release
	if c.closed {
		// closed while subscribing
		go release()
		return ErrClosed
	}
	if !c.received {
		c.timer = time.AfterFunc(c.fallback, func() { c.fetchFallback(ctx) })
	}
	return nil
}

// abandon marks a cache whose subscription could not be registered as closed.
func (c *Cache) abandon() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()
	c.finish()
}

// Close unsubscribes and clears the fallback timer. It is safe to call twice.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	release := c.release
	c.mu.Unlock()

	if release != nil {
		release()
	}
	c.finish()
}

// Done is closed once the cache stops receiving updates, either through Close
// or because a newer cache took over the same registry key.
func (c *Cache) Done() <-chan struct{} {
	return c.done
}

func (c *Cache) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Orders returns the current list, newest first.
func (c *Cache) Orders() []*order.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Order returns one cached order.
func (c *Cache) Order(id types.ID) (*order.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.order.Clone(), true
}

// Loading is true until the first snapshot or fallback fetch arrives.
func (c *Cache) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Err returns the last fallback fetch error, if any.
func (c *Cache) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Transition applies the status change locally, writes it, and reverts the
// local change when the write fails and no push has replaced it. Commands on
// the same order chain; a failed one drops itself and every command built on
// it, and the order falls back to the last confirmed state.
func (c *Cache) Transition(ctx context.Context, orderID types.ID, to order.Status, extra order.Extra) Result {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{Err: ErrClosed}
	}
	e, ok := c.entries[orderID]
	if !ok {
		c.mu.Unlock()
		return Result{Err: order.ErrNotFound}
	}
	tr, err := c.machine.Apply(e.order, to, order.UserActor(c.userID), extra, c.now())
	if err != nil {
		c.mu.Unlock()
		return Result{Err: err}
	}
	if tr.NoOp {
		c.mu.Unlock()
		return Result{Change: order.StatusChange{OldStatus: tr.From, NewStatus: tr.To}}
	}
	cmd := &Command{OrderID: orderID, Prior: e.order, Next: tr.Order}
	c.apply(e, cmd)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	change, err := c.writer.UpdateOrderStatus(ctx, order.StatusCommand{
		OrderID: orderID,
		Status:  to,
		ActorID: c.userID,
		Extra:   extra,
	})
	if err == nil {
		c.mu.Lock()
		c.confirm(cmd)
		c.mu.Unlock()
		return Result{Change: change}
	}

	c.mu.Lock()
	reverted := c.revert(cmd)
	snap = c.snapshotLocked()
	c.mu.Unlock()
	if reverted {
		c.notify(snap)
	}
	c.logger.Info("optimistic order transition rejected",
		zap.String("order_id", string(orderID)),
		zap.String("to", string(to)),
		zap.Bool("reverted", reverted),
		zap.Error(err),
	)
	return Result{Err: err}
}

func (c *Cache) onSnapshot(orders []*order.Order) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.received = true
	c.stopTimerLocked()
	c.replaceLocked(orders)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Cache) fetchFallback(ctx context.Context) {
	c.mu.Lock()
	skip := c.closed || c.received
	c.mu.Unlock()
	if skip {
		return
	}

	orders, err := c.source.ListUserOrders(ctx, c.userID, c.role)

	c.mu.Lock()
	if c.closed || c.received {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.lastErr = err
		c.loading = false
		c.mu.Unlock()
		c.logger.Warn("order fallback fetch failed", zap.String("user_id", string(c.userID)), zap.Error(err))
		return
	}
	c.replaceLocked(orders)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// replaceLocked installs an authoritative list, superseding pending commands.
func (c *Cache) replaceLocked(orders []*order.Order) {
	next := make(map[types.ID]*entry, len(orders))
	for _, o := range orders {
		o = o.Clone()
		next[o.ID] = &entry{order: o, confirmed: o}
	}
	c.entries = next
	c.loading = false
	c.lastErr = nil
}

func (c *Cache) snapshotLocked() []*order.Order {
	out := make([]*order.Order, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.order.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (c *Cache) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Cache) notify(orders []*order.Order) {
	if c.onChange != nil {
		c.onChange(orders)
	}
}
