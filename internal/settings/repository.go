package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads and writes the system_configuration singleton.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads the configuration row.
func (r *Repository) Get(ctx context.Context) (SystemConfiguration, error) {
	var cfg SystemConfiguration
	err := r.pool.QueryRow(ctx, `SELECT auto_reorder, low_stock_threshold, updated_at FROM system_configuration WHERE id = 1`).
		Scan(&cfg.AutoReorder, &cfg.LowStockThreshold, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SystemConfiguration{}, ErrNotConfigured
	}
	return cfg, err
}

// Save upserts the configuration row.
func (r *Repository) Save(ctx context.Context, cfg SystemConfiguration) (SystemConfiguration, error) {
	var saved SystemConfiguration
	err := r.pool.QueryRow(ctx, `INSERT INTO system_configuration (id, auto_reorder, low_stock_threshold, updated_at)
VALUES (1, $1, $2, NOW())
ON CONFLICT (id) DO UPDATE SET auto_reorder = EXCLUDED.auto_reorder, low_stock_threshold = EXCLUDED.low_stock_threshold, updated_at = NOW()
RETURNING auto_reorder, low_stock_threshold, updated_at`, cfg.AutoReorder, cfg.LowStockThreshold).
		Scan(&saved.AutoReorder, &saved.LowStockThreshold, &saved.UpdatedAt)
	return saved, err
}
