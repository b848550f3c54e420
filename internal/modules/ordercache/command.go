// README: Optimistic status change captured as a prior/next pair with a typed result.
package ordercache

import (
	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

// Result is the outcome of an optimistic transition after the write settled.
type Result struct {
	Change order.StatusChange
	Err    error
}

func (r Result) Ok() bool { return r.Err == nil }

// Command is a local state change waiting for its write. Prior is what the
// cache showed when the command was issued; it may itself be unconfirmed.
type Command struct {
	OrderID types.ID
	Prior   *order.Order
	Next    *order.Order
}

type entry struct {
	// order is what the cache shows: the last pending Next, else confirmed.
	order *order.Order
	// confirmed is the last state pushed by the source or acknowledged by a write.
	confirmed *order.Order
	pending   []*Command
}

func (e *entry) settle() {
	if n := len(e.pending); n > 0 {
		e.order = e.pending[n-1].Next
		return
	}
	e.order = e.confirmed
}

func (e *entry) indexOf(cmd *Command) int {
	for i, p := range e.pending {
		if p == cmd {
			return i
		}
	}
	return -1
}

// apply shows cmd.Next and queues cmd behind the commands already pending.
func (c *Cache) apply(e *entry, cmd *Command) {
	e.pending = append(e.pending, cmd)
	e.order = cmd.Next
}

// confirm records cmd.Next as written. Older pending commands are settled by it.
func (c *Cache) confirm(cmd *Command) {
	e, ok := c.entries[cmd.OrderID]
	if !ok {
		return
	}
	i := e.indexOf(cmd)
	if i < 0 {
		return
	}
	e.confirmed = cmd.Next
	e.pending = append([]*Command(nil), e.pending[i+1:]...)
	e.settle()
}

// revert drops cmd and every command queued after it, since those were
// computed from cmd.Next. It reports false when a push already replaced the
// order, in which case the pushed state stays.
func (c *Cache) revert(cmd *Command) bool {
	e, ok := c.entries[cmd.OrderID]
	if !ok {
		return false
	}
	i := e.indexOf(cmd)
	if i < 0 {
		return false
	}
	e.pending = e.pending[:i]
	e.settle()
	return true
}
