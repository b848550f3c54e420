// README: Pricing service splits a package price into platform fee and freelancer earning.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gigmarket/internal/types"
)

type Service struct {
	store  *Store
	logger *zap.Logger

	mu      sync.RWMutex
	percent int64
}

// NewService charges percent until Refresh loads a stored rate. store may be nil.
func NewService(percent int64, store *Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, percent: percent}
}

func (s *Service) Percent() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.percent
}

// Refresh replaces the fee percent with the stored rate for currency. A missing
// rate keeps the current one.
func (s *Service) Refresh(ctx context.Context, currency string) error {
	if s.store == nil {
		return nil
	}
	rate, err := s.store.GetRate(ctx, currency)
	if errors.Is(err, ErrRateNotFound) {
		s.logger.Info("no stored fee rate, keeping default",
			zap.String("currency", currency), zap.Int64("fee_percent", s.Percent()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("pricing: load rate: %w", err)
	}
	if rate.FeePercent < 0 || rate.FeePercent > 100 {
		return fmt.Errorf("pricing: stored fee percent %d out of range", rate.FeePercent)
	}
	s.mu.Lock()
	s.percent = rate.FeePercent
	s.mu.Unlock()
	s.logger.Info("fee rate loaded", zap.String("currency", currency), zap.Int64("fee_percent", rate.FeePercent))
	return nil
}

func (s *Service) Breakdown(price types.Money) Breakdown {
	fee := price.Percent(s.Percent())
	return Breakdown{Total: price, PlatformFee: fee, FreelancerEarning: price.Sub(fee)}
}

// Quote satisfies order.Pricing.
func (s *Service) Quote(price types.Money) (total, fee, earning types.Money) {
	b := s.Breakdown(price)
	return b.Total, b.PlatformFee, b.FreelancerEarning
}
