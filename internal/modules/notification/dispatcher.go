// README: Notification dispatcher writing the inbox record and pushing FCM messages.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

// Sender is the FCM surface used here; *messaging.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, m *messaging.Message) (string, error)
}

type Dispatcher struct {
	inbox  Inbox
	sender Sender
	logger *zap.Logger
	now    func() time.Time
	newID  func() types.ID
}

func NewDispatcher(inbox Inbox, sender Sender, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		inbox:  inbox,
		sender: sender,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  types.NewID,
	}
}

// Notify implements order.Notifier. The inbox record is written first; a
// device that rejects the push does not undo it.
func (d *Dispatcher) Notify(ctx context.Context, e order.NotificationEvent) error {
	title, body := content(e)
	rec := &Record{
		ID:          d.newID(),
		UserID:      e.RecipientID,
		Type:        TypeOrderStatus,
		OrderID:     e.OrderID,
		OrderNumber: e.OrderNumber,
		Role:        string(e.RecipientRole),
		Status:      e.Status,
		Title:       title,
		Body:        body,
		CreatedAt:   d.now(),
	}
	if err := d.inbox.Save(ctx, rec); err != nil {
		return fmt.Errorf("notification: save %s: %w", rec.ID, err)
	}
	if d.sender == nil {
		return nil
	}

	tokens, err := d.inbox.Tokens(ctx, e.RecipientID)
	if err != nil {
		return err
	}
	var errs []error
	for _, token := range tokens {
		if err := d.push(ctx, token, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) push(ctx context.Context, token string, rec *Record) error {
	msg := &messaging.Message{
		Token: token,
		Data: map[string]string{
			"type":            rec.Type,
			"notification_id": string(rec.ID),
			"order_id":        string(rec.OrderID),
			"status":          string(rec.Status),
		},
		Notification: &messaging.Notification{
			Title: rec.Title,
			Body:  rec.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	messageID, err := d.sender.Send(ctx, msg)
	if err != nil && messaging.IsUnregistered(err) {
		d.logger.Info("dropping unregistered device token", zap.String("user_id", string(rec.UserID)))
		if err := d.inbox.RemoveToken(ctx, rec.UserID, token); err != nil {
			d.logger.Warn("device token cleanup failed", zap.String("user_id", string(rec.UserID)), zap.Error(err))
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("notification: send FCM for order %s: %w", rec.OrderID, err)
	}

	d.logger.Debug("FCM sent",
		zap.String("order_id", string(rec.OrderID)),
		zap.String("user_id", string(rec.UserID)),
		zap.String("message_id", messageID),
	)
	return nil
}
