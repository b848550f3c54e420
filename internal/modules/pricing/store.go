// README: Fee rate store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRateNotFound = errors.New("fee rate not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, currency string) (Rate, error) {
	r := Rate{Currency: currency}
	err := s.db.QueryRow(ctx, `
        SELECT fee_percent
        FROM platform_fee_rates
        WHERE currency = $1`, currency,
	).Scan(&r.FeePercent)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrRateNotFound
	}
	return r, err
}
