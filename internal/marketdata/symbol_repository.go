package marketdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/veritas/backend/internal/contracts"
)

// SymbolRepository implements contracts.IndustryDirectory over the symbol
// metadata table (level-1 industry classification).
// ⭐ SSOT: 업종 분류 조회는 여기서만
type SymbolRepository struct {
	pool *pgxpool.Pool
}

// NewSymbolRepository creates a new symbol repository.
func NewSymbolRepository(pool *pgxpool.Pool) *SymbolRepository {
	return &SymbolRepository{pool: pool}
}

// GetIndustry returns the level-1 industry for a ticker.
func (r *SymbolRepository) GetIndustry(ctx context.Context, ticker string) (string, error) {
	query := `
		SELECT COALESCE(industry_lv1, '')
		FROM data.symbols
		WHERE ticker = $1
	`

	var industry string
	err := r.pool.QueryRow(ctx, query, ticker).Scan(&industry)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s not in symbol directory", contracts.ErrIndustryMissing, ticker)
	}
	if err != nil {
		return "", err
	}
	if industry == "" {
		return "", fmt.Errorf("%w: %s has no industry classification", contracts.ErrIndustryMissing, ticker)
	}
	return industry, nil
}

// GetPeers returns all tickers classified under an industry.
func (r *SymbolRepository) GetPeers(ctx context.Context, industry string) ([]string, error) {
	query := `
		SELECT ticker
		FROM data.symbols
		WHERE industry_lv1 = $1
		ORDER BY ticker ASC
	`

	rows, err := r.pool.Query(ctx, query, industry)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, err
		}
		peers = append(peers, ticker)
	}
	return peers, rows.Err()
}
