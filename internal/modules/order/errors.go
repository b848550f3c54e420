// README: Order error taxonomy; typed errors match their sentinel through errors.Is.
package order

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gigmarket/internal/types"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrPermission            = errors.New("permission denied")
	ErrInvalidTransition     = errors.New("invalid state transition")
	ErrNotFound              = errors.New("order not found")
	ErrConflict              = errors.New("order state conflict")
	ErrRevisionQuotaExceeded = errors.New("revision quota exceeded")
	ErrExpiryProcessing      = errors.New("expiry processing failed")
	ErrDispatch              = errors.New("dispatch failed")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PermissionError is returned when the actor is not a party of the order.
type PermissionError struct {
	ActorID types.ID
	OrderID types.ID
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s is not a party of order %s", e.ActorID, e.OrderID)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

// TransitionError reports an edge missing from the table, or, with Forbidden
// set, an edge the acting party may not take. The latter also matches ErrPermission.
type TransitionError struct {
	From      Status
	To        Status
	Role      Role
	Forbidden bool
}

func (e *TransitionError) Error() string {
	if e.Forbidden {
		return fmt.Sprintf("invalid state transition: %s may not move order from %s to %s", e.Role, e.From, e.To)
	}
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || (e.Forbidden && target == ErrPermission)
}

type RevisionQuotaError struct {
	Current int
	Max     int
}

func (e *RevisionQuotaError) Error() string {
	return fmt.Sprintf("revision quota exceeded: %d of %d used", e.Current, e.Max)
}

func (e *RevisionQuotaError) Is(target error) bool { return target == ErrRevisionQuotaExceeded }

// ExpiryProcessingError lists the orders a sweep could not cancel. Orders
// counted in Updated were committed regardless.
type ExpiryProcessingError struct {
	Updated int
	Failed  map[types.ID]error
}

func (e *ExpiryProcessingError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	return fmt.Sprintf("expiry processing failed for %d orders (%s), %d updated",
		len(ids), strings.Join(ids, ", "), e.Updated)
}

func (e *ExpiryProcessingError) Is(target error) bool { return target == ErrExpiryProcessing }

func (e *ExpiryProcessingError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		out = append(out, err)
	}
	return out
}

// DispatchFailure is logged when a post-commit notification or chat message
// could not be delivered. It never reaches the caller of a transition.
type DispatchFailure struct {
	Channel     string
	OrderID     types.ID
	RecipientID types.ID
	Err         error
}

func (e *DispatchFailure) Error() string {
	return fmt.Sprintf("dispatch %s for order %s to %s: %v", e.Channel, e.OrderID, e.RecipientID, e.Err)
}

func (e *DispatchFailure) Is(target error) bool { return target == ErrDispatch }

func (e *DispatchFailure) Unwrap() error { return e.Err }

// NotFoundError names a missing gig or party; missing orders use ErrNotFound directly.
type NotFoundError struct {
	Kind string
	ID   types.ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
