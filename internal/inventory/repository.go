package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/clinicstock/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LockItem(ctx context.Context, id int64) (Item, error)
	AdjustStock(ctx context.Context, id int64, delta int) (int, error)
	InsertMovement(ctx context.Context, movement Movement) (Movement, error)
}

type txRepository struct {
	tx pgx.Tx
}

const itemColumns = `id, name, sku, unit, current_stock, minimum_stock, maximum_stock, unit_price, COALESCE(supplier_id, 0), created_at, updated_at`

// WithTx executes the callback inside a read-committed transaction. Row locks
// taken by LockItem serialise concurrent movements on the same item.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetItem loads one catalog item.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return item, err
}

// ListItems returns a page of items and the total match count.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter, fallbackThreshold int) ([]Item, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR sku ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	if filter.SupplierID > 0 {
		args = append(args, filter.SupplierID)
		where += ` AND supplier_id = $` + strconv.Itoa(len(args))
	}
	if filter.LowStock {
		args = append(args, fallbackThreshold)
		where += ` AND current_stock <= CASE WHEN minimum_stock > 0 THEN minimum_stock ELSE $` + strconv.Itoa(len(args)) + ` END`
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * filter.Limit
	}
	args = append(args, filter.Limit, offset)
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items`+where+
		` ORDER BY name ASC, id ASC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// CreateItem inserts a catalog item.
func (r *Repository) CreateItem(ctx context.Context, input ItemInput) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `INSERT INTO inventory_items (name, sku, unit, current_stock, minimum_stock, maximum_stock, unit_price, supplier_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING `+itemColumns,
		input.Name, nullString(input.SKU), input.Unit, input.InitialStock, input.MinimumStock, input.MaximumStock, input.UnitPrice, nullInt(input.SupplierID)))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Item{}, ErrDuplicateSKU
		}
		return Item{}, err
	}
	return item, nil
}

// UpdateItem changes catalog fields, leaving current_stock untouched.
func (r *Repository) UpdateItem(ctx context.Context, id int64, input ItemInput) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `UPDATE inventory_items SET name=$1, sku=$2, unit=$3, minimum_stock=$4, maximum_stock=$5, unit_price=$6, supplier_id=$7, updated_at=NOW()
WHERE id=$8 RETURNING `+itemColumns,
		input.Name, nullString(input.SKU), input.Unit, input.MinimumStock, input.MaximumStock, input.UnitPrice, nullInt(input.SupplierID), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		if db.IsUniqueViolation(err) {
			return Item{}, ErrDuplicateSKU
		}
		return Item{}, err
	}
	return item, nil
}

// ListMovements returns ledger rows newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, movement_type, quantity, balance_after, ref_module, COALESCE(ref_id, 0), note, actor, posted_at
FROM stock_movements
WHERE item_id=$1 AND posted_at BETWEEN COALESCE($2, '-infinity'::timestamptz) AND COALESCE($3, 'infinity'::timestamptz)
ORDER BY posted_at DESC, id DESC
LIMIT $4`, filter.ItemID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.ItemID, &kind, &m.Quantity, &m.BalanceAfter, &m.RefModule, &m.RefID, &m.Note, &m.Actor, &m.PostedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(kind)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) LockItem(ctx context.Context, id int64) (Item, error) {
	item, err := scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return item, err
}

func (r *txRepository) AdjustStock(ctx context.Context, id int64, delta int) (int, error) {
	var balance int
	err := r.tx.QueryRow(ctx, `UPDATE inventory_items SET current_stock = current_stock + $1, updated_at = NOW()
WHERE id=$2 RETURNING current_stock`, delta, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return balance, err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (item_id, movement_type, quantity, balance_after, ref_module, ref_id, note, actor, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id, posted_at`,
		m.ItemID, string(m.Type), m.Quantity, m.BalanceAfter, m.RefModule, nullInt(m.RefID), m.Note, m.Actor).Scan(&m.ID, &m.PostedAt)
	return m, err
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	var sku *string
	err := row.Scan(&item.ID, &item.Name, &sku, &item.Unit, &item.CurrentStock, &item.MinimumStock, &item.MaximumStock, &item.UnitPrice, &item.SupplierID, &item.CreatedAt, &item.UpdatedAt)
	if sku != nil {
		item.SKU = *sku
	}
	return item, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
