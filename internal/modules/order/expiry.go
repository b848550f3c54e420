// README: Expiry sweep cancelling orders whose payment or confirmation deadline has passed.
package order

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"gigmarket/internal/types"
)

const (
	ReasonPaymentTimeout      = "payment timeout"
	ReasonConfirmationTimeout = "freelancer confirmation timeout"

	sweepLockKey = "order:expiry-sweep"
)

// Locker grants a lease so only one replica sweeps per tick.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type SweepResult struct {
	UpdatedCount int `json:"updatedCount"`
}

type expirySweep struct {
	kind   DeadlineKind
	reason string
	mutate func(o *Order)
}

var expirySweeps = []expirySweep{
	{
		kind:   DeadlinePayment,
		reason: ReasonPaymentTimeout,
		mutate: func(o *Order) { o.PaymentStatus = PaymentExpired },
	},
	{
		kind:   DeadlineConfirmation,
		reason: ReasonConfirmationTimeout,
		// payment was captured, so the client is owed a refund
		mutate: func(o *Order) { o.RefundStatus = RefundPending },
	},
}

// UpdateExpiredOrders runs one sweep. Committed cancellations stay committed
// when others fail; the failures come back as *ExpiryProcessingError.
func (s *Service) UpdateExpiredOrders(ctx context.Context) (res SweepResult, err error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateExpiredOrders")
	defer func() {
		span.SetAttributes(attribute.Int("order.expired", res.UpdatedCount))
		endSpan(span, err)
	}()

	now := s.now()
	failed := map[types.ID]error{}
	for _, sweep := range expirySweeps {
		n, err := s.sweep(ctx, sweep, now, failed)
		res.UpdatedCount += n
		if err != nil {
			return res, err
		}
	}
	if len(failed) > 0 {
		return res, &ExpiryProcessingError{Updated: res.UpdatedCount, Failed: failed}
	}
	return res, nil
}

func (s *Service) sweep(ctx context.Context, sweep expirySweep, now time.Time, failed map[types.ID]error) (int, error) {
	due, err := s.store.ListExpired(ctx, sweep.kind, now, s.batchSize)
	if err != nil {
		return 0, err
	}
	var batch []*Transition
	for _, o := range due {
		tr, err := s.machine.Apply(o, StatusCancelled, SystemActor, Extra{Reason: sweep.reason}, now)
		if err != nil {
			failed[o.ID] = err
			continue
		}
		sweep.mutate(tr.Order)
		batch = append(batch, tr)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	orders := make([]*Order, len(batch))
	for i, tr := range batch {
		orders[i] = tr.Order
	}
	errs := s.store.SaveBatch(ctx, orders)
	updated := 0
	for i, tr := range batch {
		if errs[i] != nil {
			failed[tr.Order.ID] = errs[i]
			continue
		}
		updated++
		s.afterCommit(ctx, tr)
	}
	s.metrics.recordExpired(ctx, sweep.kind, updated)
	if updated > 0 {
		s.logger.Info("expired orders cancelled",
			zap.String("deadline", string(sweep.kind)), zap.Int("count", updated))
	}
	return updated, nil
}

// RunTimeoutMonitor sweeps every interval until ctx is done. With a locker,
// a tick is skipped when another replica holds the lease.
func (s *Service) RunTimeoutMonitor(ctx context.Context, interval time.Duration, locker Locker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx, interval, locker)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context, lease time.Duration, locker Locker) {
	if locker != nil {
		release, ok, err := locker.TryLock(ctx, sweepLockKey, lease)
		if err != nil {
			s.logger.Warn("expiry sweep lock failed", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		defer release()
	}
	res, err := s.UpdateExpiredOrders(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Int("updated", res.UpdatedCount), zap.Error(err))
	}
}
