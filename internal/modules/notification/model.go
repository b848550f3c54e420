// README: Notification records stored per user and the per-status title/body.
package notification

import (
	"fmt"
	"time"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

const TypeOrderStatus = "order_status"

// Record is one entry of a user's notification inbox.
type Record struct {
	ID          types.ID     `firestore:"-"`
	UserID      types.ID     `firestore:"userId"`
	Type        string       `firestore:"type"`
	OrderID     types.ID     `firestore:"orderId"`
	OrderNumber string       `firestore:"orderNumber"`
	Role        string       `firestore:"recipientRole"`
	Status      order.Status `firestore:"status"`
	Title       string       `firestore:"title"`
	Body        string       `firestore:"body"`
	Read        bool         `firestore:"read"`
	CreatedAt   time.Time    `firestore:"createdAt"`
}

func content(e order.NotificationEvent) (title, body string) {
	ref := e.OrderNumber
	switch e.Status {
	case order.StatusPayment:
		return "Awaiting payment", fmt.Sprintf("Order %s is waiting for payment.", ref)
	case order.StatusPending:
		return "New paid order", fmt.Sprintf("Order %s was paid and awaits confirmation.", ref)
	case order.StatusActive:
		return "Order started", fmt.Sprintf("Work on order %s has started.", ref)
	case order.StatusDelivered:
		return "Order delivered", fmt.Sprintf("Order %s has a new delivery.", ref)
	case order.StatusInRevision:
		return "Revision requested", fmt.Sprintf("A revision was requested on order %s.", ref)
	case order.StatusCompleted:
		return "Order completed", fmt.Sprintf("Order %s was completed.", ref)
	case order.StatusCancelled:
		if e.Extra.Reason != "" {
			return "Order cancelled", fmt.Sprintf("Order %s was cancelled: %s.", ref, e.Extra.Reason)
		}
		return "Order cancelled", fmt.Sprintf("Order %s was cancelled.", ref)
	}
	return "Order updated", fmt.Sprintf("Order %s is now %s.", ref, e.Status)
}
