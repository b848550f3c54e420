// README: Chat dispatcher posting system messages about order status changes.
package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

const (
	SystemSender       = "system"
	TypeOrderStatus    = "order_status"
	chatIDSeparator    = "_"
	maxDeliveryPreview = 280
)

// Message mirrors an entry under chats/{chatId}/messages.
type Message struct {
	Type         string   `json:"type"`
	SenderID     string   `json:"senderId"`
	Text         string   `json:"text"`
	OrderID      string   `json:"orderId"`
	OrderNumber  string   `json:"orderNumber"`
	Status       string   `json:"status"`
	Files        []string `json:"files,omitempty"`
	Participants []string `json:"participants"`
	Timestamp    int64    `json:"timestamp"`
}

type Dispatcher struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewDispatcher(store Store, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, logger: logger, now: time.Now}
}

// ChatID is the conversation key shared by two users, independent of order.
func ChatID(a, b types.ID) string {
	ids := []string{string(a), string(b)}
	sort.Strings(ids)
	return strings.Join(ids, chatIDSeparator)
}

// SendStatusMessage implements order.ChatSender.
func (d *Dispatcher) SendStatusMessage(ctx context.Context, e order.ChatEvent) error {
	chatID := ChatID(e.ClientID, e.FreelancerID)
	m := Message{
		Type:         TypeOrderStatus,
		SenderID:     SystemSender,
		Text:         statusText(e),
		OrderID:      string(e.OrderID),
		OrderNumber:  e.OrderNumber,
		Status:       string(e.Status),
		Files:        e.Extra.Files,
		Participants: []string{string(e.ClientID), string(e.FreelancerID)},
		Timestamp:    d.now().UnixMilli(),
	}
	if err := d.store.Append(ctx, chatID, m); err != nil {
		return err
	}
	d.logger.Debug("chat status message sent",
		zap.String("chat_id", chatID), zap.String("order_id", m.OrderID), zap.String("status", m.Status))
	return nil
}

func statusText(e order.ChatEvent) string {
	var text string
	switch e.Status {
	case order.StatusPending:
		text = fmt.Sprintf("Order %s was paid and is waiting for the freelancer to confirm.", e.OrderNumber)
	case order.StatusActive:
		text = fmt.Sprintf("Order %s was accepted. Work has started.", e.OrderNumber)
	case order.StatusDelivered:
		text = fmt.Sprintf("Order %s was delivered.", e.OrderNumber)
	case order.StatusInRevision:
		text = fmt.Sprintf("A revision was requested on order %s.", e.OrderNumber)
	case order.StatusCompleted:
		text = fmt.Sprintf("Order %s is complete.", e.OrderNumber)
	case order.StatusCancelled:
		text = fmt.Sprintf("Order %s was cancelled.", e.OrderNumber)
		if e.Extra.Reason != "" {
			text = fmt.Sprintf("Order %s was cancelled (%s).", e.OrderNumber, e.Extra.Reason)
		}
	default:
		text = fmt.Sprintf("Order %s is now %s.", e.OrderNumber, e.Status)
	}
	if msg := strings.TrimSpace(e.Extra.Message); msg != "" {
		if r := []rune(msg); len(r) > maxDeliveryPreview {
			msg = string(r[:maxDeliveryPreview]) + "…"
		}
		text += "\n\n" + msg
	}
	return text
}
