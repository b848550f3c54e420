// README: Repository decorator retrying transient store errors with exponential backoff.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gigmarket/internal/types"
)

// RetryPolicy bounds retries of a single repository call.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxRetries:      3,
}

// IsTransient reports whether err is worth retrying. Permission and
// authentication failures are configuration problems and never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted, codes.Internal:
		return true
	}
	return false
}

type RetryingStore struct {
	inner  Repository
	policy RetryPolicy
	logger *zap.Logger
}

func NewRetryingStore(inner Repository, policy RetryPolicy, logger *zap.Logger) *RetryingStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.InitialInterval <= 0 {
		policy = DefaultRetryPolicy
	}
	return &RetryingStore{inner: inner, policy: policy, logger: logger}
}

func (r *RetryingStore) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, r.policy.MaxRetries), ctx)
}

func (r *RetryingStore) do(ctx context.Context, op string, fn func() error) error {
	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.backOff(ctx), func(err error, wait time.Duration) {
		r.logger.Warn("order store call failed, retrying",
			zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	})
}

func (r *RetryingStore) Create(ctx context.Context, o *Order) error {
	return r.do(ctx, "create", func() error { return r.inner.Create(ctx, o) })
}

func (r *RetryingStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	var out *Order
	err := r.do(ctx, "get", func() error {
		o, err := r.inner.Get(ctx, id)
		out = o
		return err
	})
	return out, err
}

// Save retries transient failures. A write that committed but still reported
// a transient error makes the retry lose its compare-and-set; when the stored
// order is the one being written, the save counts as done.
func (r *RetryingStore) Save(ctx context.Context, o *Order) error {
	var sawTransient bool
	err := r.do(ctx, "save", func() error {
		err := r.inner.Save(ctx, o)
		if IsTransient(err) {
			sawTransient = true
		}
		return err
	})
	if !sawTransient || !errors.Is(err, ErrConflict) {
		return err
	}
	cur, gerr := r.Get(ctx, o.ID)
	if gerr != nil || !sameWrite(cur, o) {
		return err
	}
	r.logger.Warn("order save committed before a transient error",
		zap.String("order_id", string(o.ID)), zap.String("status", string(o.Status)))
	o.Version = cur.Version
	return nil
}

// sameWrite compares at microsecond precision, which is what Firestore keeps.
func sameWrite(stored, written *Order) bool {
	return stored.Status == written.Status &&
		stored.UpdatedAt.Truncate(time.Microsecond).Equal(written.UpdatedAt.Truncate(time.Microsecond))
}

// SaveBatch retries only the slots that failed transiently.
func (r *RetryingStore) SaveBatch(ctx context.Context, orders []*Order) []error {
	errs := make([]error, len(orders))
	pending := make([]int, len(orders))
	for i := range orders {
		pending[i] = i
	}
	_ = r.do(ctx, "save_batch", func() error {
		batch := make([]*Order, len(pending))
		for i, idx := range pending {
			batch[i] = orders[idx]
		}
		results := r.inner.SaveBatch(ctx, batch)
		var retry []int
		var last error
		for i, idx := range pending {
			errs[idx] = results[i]
			if IsTransient(results[i]) {
				retry = append(retry, idx)
				last = results[i]
			}
		}
		pending = retry
		return last
	})
	return errs
}

func (r *RetryingStore) ListByParty(ctx context.Context, userID types.ID, role Role, statuses ...Status) ([]*Order, error) {
	var out []*Order
	err := r.do(ctx, "list_by_party", func() error {
		orders, err := r.inner.ListByParty(ctx, userID, role, statuses...)
		out = orders
		return err
	})
	return out, err
}

func (r *RetryingStore) ListExpired(ctx context.Context, kind DeadlineKind, now time.Time, limit int) ([]*Order, error) {
	var out []*Order
	err := r.do(ctx, "list_expired", func() error {
		orders, err := r.inner.ListExpired(ctx, kind, now, limit)
		out = orders
		return err
	})
	return out, err
}

// Watch re-establishes the listener after transient failures until ctx is done.
func (r *RetryingStore) Watch(ctx context.Context, userID types.ID, role Role, fn func([]*Order)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = 0
	err := backoff.RetryNotify(func() error {
		err := r.inner.Watch(ctx, userID, role, func(orders []*Order) {
			b.Reset()
			fn(orders)
		})
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		r.logger.Warn("order watch dropped, reconnecting",
			zap.String("user_id", string(userID)), zap.Duration("wait", wait), zap.Error(err))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
