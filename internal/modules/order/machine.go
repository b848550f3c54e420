// README: State machine applying a status change to a copy of an order and collecting its side effects.
package order

import (
	"time"

	"gigmarket/internal/types"
)

// Extra carries transition payload supplied by the caller.
type Extra struct {
	Message string   `json:"message,omitempty"`
	Files   []string `json:"files,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

type NotificationEvent struct {
	OrderID       types.ID
	OrderNumber   string
	RecipientID   types.ID
	RecipientRole Role
	Status        Status
	Extra         Extra
}

type ChatEvent struct {
	OrderID      types.ID
	OrderNumber  string
	ClientID     types.ID
	FreelancerID types.ID
	Status       Status
	Extra        Extra
}

// Transition is the outcome of Machine.Apply. Order is the next state; the
// input order is never modified.
type Transition struct {
	Order         *Order
	From          Status
	To            Status
	Actor         Actor
	NoOp          bool
	Notifications []NotificationEvent
	Chat          *ChatEvent
}

type Machine struct {
	deadlines Deadlines
}

func NewMachine(d Deadlines) *Machine {
	return &Machine{deadlines: d}
}

func (m *Machine) Deadlines() Deadlines { return m.deadlines }

// Apply validates and applies to on a clone of o.
func (m *Machine) Apply(o *Order, to Status, actor Actor, extra Extra, now time.Time) (*Transition, error) {
	if o == nil {
		return nil, ErrNotFound
	}
	role, ok := RoleOf(o, actor)
	if !ok {
		return nil, &PermissionError{ActorID: actor.ID, OrderID: o.ID}
	}
	if to == o.Status {
		return &Transition{Order: o.Clone(), From: o.Status, To: to, Actor: actor, NoOp: true}, nil
	}
	perm, ok := AllowedTransitions[o.Status][to]
	if !ok {
		return nil, &TransitionError{From: o.Status, To: to, Role: role}
	}
	if !perm.allows(role) {
		return nil, &TransitionError{From: o.Status, To: to, Role: role, Forbidden: true}
	}

	next := o.Clone()
	switch to {
	case StatusPayment:
		next.stamp(TimelinePaymentStarted, now)
	case StatusPending:
		next.PaymentStatus = PaymentPaid
		next.stamp(TimelinePaid, now)
		if next.PaidAt == nil {
			next.PaidAt = timePtr(now)
		}
		if next.ConfirmationDeadline == nil {
			next.ConfirmationDeadline = timePtr(m.deadlines.ConfirmationDeadline(*next.PaidAt))
		}
	case StatusActive:
		next.stamp(TimelineConfirmed, now)
		next.stamp(TimelineStarted, now)
		if next.WorkDeadline == nil {
			next.WorkDeadline = timePtr(m.deadlines.WorkDeadline(now, next.DeliveryDays))
		}
	case StatusDelivered:
		if o.Status == StatusInRevision {
			next.stamp(TimelineRevisionCompleted, now)
		}
		next.stamp(TimelineDelivered, now)
		next.DeliveredAt = timePtr(now)
		next.DeliveryMessage = extra.Message
		next.DeliveryFiles = append([]string(nil), extra.Files...)
	case StatusInRevision:
		if err := CheckRevision(o); err != nil {
			return nil, err
		}
		next.RevisionLog = append(next.RevisionLog, RevisionRequest{
			Message:     extra.Message,
			RequestedAt: now,
			RequestedBy: actor.ID,
		})
		next.RevisionCount++
		next.stamp(TimelineRevisionRequested, now)
	case StatusCompleted:
		next.stamp(TimelineCompleted, now)
		next.CompletedAt = timePtr(now)
	case StatusCancelled:
		next.stamp(TimelineCancelled, now)
		next.CancelledAt = timePtr(now)
		next.CancellationReason = extra.Reason
		next.CancelledBy = actor.ID
	}
	next.Status = to
	next.UpdatedAt = now

	return &Transition{
		Order:         next,
		From:          o.Status,
		To:            to,
		Actor:         actor,
		Notifications: notificationsFor(next, actor, extra),
		Chat:          chatFor(next, extra),
	}, nil
}

// notificationsFor addresses the party who did not act; system-driven
// changes notify both.
func notificationsFor(o *Order, actor Actor, extra Extra) []NotificationEvent {
	event := func(id types.ID, role Role) NotificationEvent {
		return NotificationEvent{
			OrderID:       o.ID,
			OrderNumber:   o.OrderNumber,
			RecipientID:   id,
			RecipientRole: role,
			Status:        o.Status,
			Extra:         extra,
		}
	}
	switch {
	case actor.System:
		return []NotificationEvent{event(o.ClientID, RoleClient), event(o.FreelancerID, RoleFreelancer)}
	case actor.ID == o.ClientID:
		return []NotificationEvent{event(o.FreelancerID, RoleFreelancer)}
	default:
		return []NotificationEvent{event(o.ClientID, RoleClient)}
	}
}

func chatFor(o *Order, extra Extra) *ChatEvent {
	switch o.Status {
	case StatusPending, StatusActive, StatusDelivered, StatusInRevision, StatusCompleted, StatusCancelled:
	default:
		return nil
	}
	return &ChatEvent{
		OrderID:      o.ID,
		OrderNumber:  o.OrderNumber,
		ClientID:     o.ClientID,
		FreelancerID: o.FreelancerID,
		Status:       o.Status,
		Extra:        extra,
	}
}
