// README: Repository port the order service and expiry scanner persist through.
package order

import (
	"context"
	"time"

	"gigmarket/internal/types"
)

// Repository persists orders. Save and SaveBatch are compare-and-set on
// Order.Version, which they advance on success. Orders are never deleted.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	Save(ctx context.Context, o *Order) error
	// SaveBatch returns one error slot per order, nil when committed.
	SaveBatch(ctx context.Context, orders []*Order) []error
	ListByParty(ctx context.Context, userID types.ID, role Role, statuses ...Status) ([]*Order, error)
	// ListExpired returns orders still in the status governed by kind whose
	// deadline is at or before now, oldest first.
	ListExpired(ctx context.Context, kind DeadlineKind, now time.Time, limit int) ([]*Order, error)
	// Watch calls fn with the full order list for the user on every change
	// until ctx is done. It blocks.
	Watch(ctx context.Context, userID types.ID, role Role, fn func([]*Order)) error
}

func statusForDeadline(kind DeadlineKind) Status {
	switch kind {
	case DeadlinePayment:
		return StatusPayment
	case DeadlineConfirmation:
		return StatusPending
	}
	return StatusNone
}
