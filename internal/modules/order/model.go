// README: Order aggregate, status definitions and the transition ledger event.
package order

import (
	"time"

	"gigmarket/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusDraft      Status = "draft"
	StatusPayment    Status = "payment"
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusDelivered  Status = "delivered"
	StatusInRevision Status = "in_revision"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPayment, StatusPending, StatusActive,
		StatusDelivered, StatusInRevision, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentExpired PaymentStatus = "expired"
)

// RefundStatus is empty when no refund is owed.
type RefundStatus string

const RefundPending RefundStatus = "pending"

// TimelineKey names a milestone stamped into Order.Timeline.
type TimelineKey string

const (
	TimelineCreated           TimelineKey = "created"
	TimelinePaymentStarted    TimelineKey = "payment_started"
	TimelinePaid              TimelineKey = "paid"
	TimelineConfirmed         TimelineKey = "confirmed"
	TimelineStarted           TimelineKey = "started"
	TimelineDelivered         TimelineKey = "delivered"
	TimelineRevisionRequested TimelineKey = "revision_requested"
	TimelineRevisionCompleted TimelineKey = "revision_completed"
	TimelineCompleted         TimelineKey = "completed"
	TimelineCancelled         TimelineKey = "cancelled"
)

type RevisionRequest struct {
	Message     string    `json:"message"`
	RequestedAt time.Time `json:"requestedAt"`
	RequestedBy types.ID  `json:"requestedBy"`
}

type Order struct {
	ID          types.ID `json:"id"`
	OrderNumber string   `json:"orderNumber"`

	ClientID     types.ID `json:"clientId"`
	FreelancerID types.ID `json:"freelancerId"`
	GigID        types.ID `json:"gigId"`
	PackageType  string   `json:"packageType"`
	Requirements string   `json:"requirements,omitempty"`

	Price             types.Money `json:"price"`
	TotalAmount       types.Money `json:"totalAmount"`
	PlatformFee       types.Money `json:"platformFee"`
	FreelancerEarning types.Money `json:"freelancerEarning"`

	DeliveryDays  int               `json:"deliveryTime"`
	Revisions     Revisions         `json:"revisions"`
	RevisionCount int               `json:"revisionCount"`
	RevisionLog   []RevisionRequest `json:"revisionRequests,omitempty"`

	Status        Status                    `json:"status"`
	PaymentStatus PaymentStatus             `json:"paymentStatus"`
	RefundStatus  RefundStatus              `json:"refundStatus,omitempty"`
	Timeline      map[TimelineKey]time.Time `json:"timeline"`

	PaymentExpiredAt     *time.Time `json:"paymentExpiredAt,omitempty"`
	PaidAt               *time.Time `json:"paidAt,omitempty"`
	ConfirmationDeadline *time.Time `json:"confirmationDeadline,omitempty"`
	WorkDeadline         *time.Time `json:"workDeadline,omitempty"`

	DeliveryMessage string     `json:"deliveryMessage,omitempty"`
	DeliveryFiles   []string   `json:"deliveryFiles,omitempty"`
	DeliveredAt     *time.Time `json:"deliveredAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`

	CancellationReason string     `json:"cancellationReason,omitempty"`
	CancelledBy        types.ID   `json:"cancelledBy,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Version is the store's last write time; writes are rejected when it moved.
	Version time.Time `json:"-"`
}

// IsParty reports whether id is the client or the freelancer of o.
func (o *Order) IsParty(id types.ID) bool {
	return id != "" && (id == o.ClientID || id == o.FreelancerID)
}

// Counterparty returns the other party of id, or "" when id is not a party.
func (o *Order) Counterparty(id types.ID) types.ID {
	switch id {
	case o.ClientID:
		return o.FreelancerID
	case o.FreelancerID:
		return o.ClientID
	}
	return ""
}

// Clone returns a deep copy; transitions are applied to clones only.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.Timeline != nil {
		c.Timeline = make(map[TimelineKey]time.Time, len(o.Timeline))
		for k, v := range o.Timeline {
			c.Timeline[k] = v
		}
	}
	c.RevisionLog = append([]RevisionRequest(nil), o.RevisionLog...)
	c.DeliveryFiles = append([]string(nil), o.DeliveryFiles...)
	c.PaymentExpiredAt = cloneTime(o.PaymentExpiredAt)
	c.PaidAt = cloneTime(o.PaidAt)
	c.ConfirmationDeadline = cloneTime(o.ConfirmationDeadline)
	c.WorkDeadline = cloneTime(o.WorkDeadline)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.CompletedAt = cloneTime(o.CompletedAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	return &c
}

func (o *Order) stamp(key TimelineKey, at time.Time) {
	if o.Timeline == nil {
		o.Timeline = make(map[TimelineKey]time.Time)
	}
	o.Timeline[key] = at
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time { return &t }

// Event is one row of the transition ledger.
type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	Reason     string
	CreatedAt  time.Time
}
