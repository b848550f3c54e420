// README: Turns gateway payment notifications into order payment completions.
package payment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

type Lookuper interface {
	Lookup(ctx context.Context, paymentID string) (Payment, error)
}

type Completer interface {
	MarkPaymentCompleted(ctx context.Context, id types.ID) (*order.Order, error)
}

type Reconciler struct {
	gateway Lookuper
	orders  Completer
	logger  *zap.Logger
}

func NewReconciler(gateway Lookuper, orders Completer, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{gateway: gateway, orders: orders, logger: logger}
}

// Reconcile applies one payment notification. Payments that are not approved
// yet are ignored; the gateway notifies again when they settle.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID string) (applied bool, err error) {
	p, err := r.gateway.Lookup(ctx, paymentID)
	if err != nil {
		return false, err
	}
	if !p.Approved {
		r.logger.Info("payment not approved yet",
			zap.String("payment_id", p.ID), zap.String("order_id", string(p.OrderID)), zap.String("status", p.Status))
		return false, nil
	}
	if _, err := r.orders.MarkPaymentCompleted(ctx, p.OrderID); err != nil {
		// late payment for an order the sweep already cancelled
		if errors.Is(err, order.ErrInvalidTransition) {
			r.logger.Warn("payment arrived for a closed order",
				zap.String("payment_id", p.ID), zap.String("order_id", string(p.OrderID)), zap.Error(err))
		}
		return false, err
	}
	r.logger.Info("payment reconciled", zap.String("payment_id", p.ID), zap.String("order_id", string(p.OrderID)))
	return true, nil
}
