package marketdata

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/veritas/backend/internal/contracts"
)

// PriceRepository implements contracts.PriceHistoryProvider over the
// daily kline table maintained by the snapshot pipeline.
// ⭐ SSOT: 가격 이력 조회는 여기서만
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository.
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// GetHistory returns close prices for [from, to], ordered by date ascending.
func (r *PriceRepository) GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]contracts.ClosePrice, error) {
	query := `
		SELECT trade_date, close_price
		FROM data.daily_klines
		WHERE ticker = $1 AND timeframe = 'DAY' AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, ticker, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []contracts.ClosePrice
	for rows.Next() {
		var p contracts.ClosePrice
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
