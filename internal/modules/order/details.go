// README: Read path enriching a user's orders with gig and party summaries.
package order

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gigmarket/internal/types"
)

const enrichConcurrency = 8

// GetOrdersWithDetails lists the user's orders newest first. Summaries that
// cannot be loaded are left empty rather than failing the read.
func (s *Service) GetOrdersWithDetails(ctx context.Context, userID types.ID, role Role) (out []OrderDetails, err error) {
	ctx, span := s.tracer.Start(ctx, "order.GetOrdersWithDetails", trace.WithAttributes(
		attribute.String("user.id", string(userID)),
		attribute.String("user.role", string(role)),
	))
	defer func() { endSpan(span, err) }()

	orders, err := s.ListUserOrders(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	out = make([]OrderDetails, len(orders))
	for i, o := range orders {
		out[i] = OrderDetails{Order: o}
	}
	if s.directory == nil || len(orders) == 0 {
		return out, nil
	}

	gigIDs := map[types.ID]struct{}{}
	userIDs := map[types.ID]struct{}{}
	for _, o := range orders {
		gigIDs[o.GigID] = struct{}{}
		userIDs[o.ClientID] = struct{}{}
		userIDs[o.FreelancerID] = struct{}{}
	}

	var mu sync.Mutex
	gigs := make(map[types.ID]*GigSummary, len(gigIDs))
	users := make(map[types.ID]*PartySummary, len(userIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for id := range gigIDs {
		g.Go(func() error {
			gig, err := s.directory.GigSummary(gctx, id)
			if err != nil {
				return s.tolerateLookup(gctx, "gig", id, err)
			}
			mu.Lock()
			gigs[id] = gig
			mu.Unlock()
			return nil
		})
	}
	for id := range userIDs {
		g.Go(func() error {
			u, err := s.directory.PartySummary(gctx, id)
			if err != nil {
				return s.tolerateLookup(gctx, "user", id, err)
			}
			mu.Lock()
			users[id] = u
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Gig = gigs[out[i].GigID]
		out[i].Client = users[out[i].ClientID]
		out[i].Freelancer = users[out[i].FreelancerID]
	}
	return out, nil
}

// tolerateLookup swallows lookup failures unless the request itself is gone.
func (s *Service) tolerateLookup(ctx context.Context, kind string, id types.ID, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("order summary lookup failed",
			zap.String("kind", kind), zap.String("id", string(id)), zap.Error(err))
	}
	return nil
}
