// README: Post-commit outbox emitting notification and chat events; failures are logged, never returned.
package order

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, e NotificationEvent) error
}

type ChatSender interface {
	SendStatusMessage(ctx context.Context, e ChatEvent) error
}

const dispatchTimeout = 10 * time.Second

// Outbox runs strictly after a status write commits. Delivery is best-effort
// and at-least-once; the committed transition is never rolled back.
type Outbox struct {
	notifier Notifier
	chat     ChatSender
	logger   *zap.Logger
	metrics  serviceMetrics
	async    bool
	wg       sync.WaitGroup
}

func NewOutbox(notifier Notifier, chat ChatSender, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{notifier: notifier, chat: chat, logger: logger}
}

// SetAsync makes Emit return immediately and deliver on a background goroutine.
func (o *Outbox) SetAsync(async bool) *Outbox {
	o.async = async
	return o
}

// Emit delivers the transition's events. In async mode it returns at once
// and the failures are only logged.
func (o *Outbox) Emit(ctx context.Context, tr *Transition) []*DispatchFailure {
	if o == nil || tr == nil || tr.NoOp {
		return nil
	}
	if !o.async {
		return o.emit(ctx, tr)
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		defer cancel()
		o.emit(ctx, tr)
	}()
	return nil
}

// Wait blocks until in-flight async emissions finish.
func (o *Outbox) Wait() {
	if o != nil {
		o.wg.Wait()
	}
}

func (o *Outbox) emit(ctx context.Context, tr *Transition) []*DispatchFailure {
	var failures []*DispatchFailure
	if o.notifier != nil {
		for _, n := range tr.Notifications {
			if err := o.notifier.Notify(ctx, n); err != nil {
				failures = append(failures, &DispatchFailure{
					Channel: "notification", OrderID: n.OrderID, RecipientID: n.RecipientID, Err: err,
				})
			}
		}
	}
	if o.chat != nil && tr.Chat != nil {
		if err := o.chat.SendStatusMessage(ctx, *tr.Chat); err != nil {
			failures = append(failures, &DispatchFailure{Channel: "chat", OrderID: tr.Chat.OrderID, Err: err})
		}
	}
	for _, f := range failures {
		o.metrics.recordDispatchFailure(ctx, f.Channel)
		o.logger.Warn("order event dispatch failed",
			zap.String("channel", f.Channel),
			zap.String("order_id", string(f.OrderID)),
			zap.String("recipient_id", string(f.RecipientID)),
			zap.String("status", string(tr.To)),
			zap.Error(f),
		)
	}
	return failures
}
