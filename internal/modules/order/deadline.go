// README: Deadline computation for payment, freelancer confirmation and work.
package order

import "time"

// ConfirmationWindow is how long a freelancer has to accept a paid order.
const ConfirmationWindow = 3 * time.Hour

type Deadlines struct {
	PaymentTimeout time.Duration
}

func NewDeadlines(paymentTimeout time.Duration) Deadlines {
	return Deadlines{PaymentTimeout: paymentTimeout}
}

func (d Deadlines) PaymentExpiry(createdAt time.Time) time.Time {
	return createdAt.Add(d.PaymentTimeout)
}

func (d Deadlines) ConfirmationDeadline(paidAt time.Time) time.Time {
	return paidAt.Add(ConfirmationWindow)
}

// WorkDeadline adds calendar days in UTC so zone offsets never move the instant.
func (d Deadlines) WorkDeadline(confirmedAt time.Time, deliveryDays int) time.Time {
	return confirmedAt.UTC().AddDate(0, 0, deliveryDays)
}

// DeadlineKind names the deadline governing a status.
type DeadlineKind string

const (
	DeadlineNone         DeadlineKind = ""
	DeadlinePayment      DeadlineKind = "paymentExpiredAt"
	DeadlineConfirmation DeadlineKind = "confirmationDeadline"
	DeadlineWork         DeadlineKind = "workDeadline"
)

// DeadlineFor returns the deadline kind active while an order sits in s.
func DeadlineFor(s Status) DeadlineKind {
	switch s {
	case StatusPayment:
		return DeadlinePayment
	case StatusPending:
		return DeadlineConfirmation
	case StatusActive, StatusInRevision:
		return DeadlineWork
	}
	return DeadlineNone
}

// ActiveDeadline returns the deadline currently governing o, if any.
func ActiveDeadline(o *Order) (DeadlineKind, *time.Time) {
	kind := DeadlineFor(o.Status)
	switch kind {
	case DeadlinePayment:
		return kind, o.PaymentExpiredAt
	case DeadlineConfirmation:
		return kind, o.ConfirmationDeadline
	case DeadlineWork:
		return kind, o.WorkDeadline
	}
	return DeadlineNone, nil
}
