package procurement

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/clinicstock/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for procurement.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	InsertItems(ctx context.Context, poID int64, items []PurchaseOrderItem) ([]PurchaseOrderItem, error)
	LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateStatus(ctx context.Context, id int64, status POStatus) error
}

type txRepo struct {
	tx pgx.Tx
}

const poColumns = `id, number, supplier_id, status, total_amount, order_date, expected_delivery, notes, auto_generated, created_at`

// WithTx wraps operations within a DB transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// NextNumber asks the database numbering function for a PO number.
func (r *Repository) NextNumber(ctx context.Context) (string, error) {
	var number string
	err := r.pool.QueryRow(ctx, `SELECT generate_po_number()`).Scan(&number)
	return number, err
}

// GetPurchaseOrder loads header and items.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, purchase_order_id, inventory_item_id, quantity, unit_price, total_price
FROM purchase_order_items WHERE purchase_order_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &item.InventoryItemID, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return PurchaseOrder{}, err
		}
		po.Items = append(po.Items, item)
	}
	return po, rows.Err()
}

// ListPurchaseOrders returns a page of order headers.
func (r *Repository) ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.SupplierID > 0 {
		args = append(args, filter.SupplierID)
		where += ` AND supplier_id = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += ` AND (number ILIKE $` + strconv.Itoa(len(args)) + ` OR notes ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders`+where+
		` ORDER BY order_date DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders := []PurchaseOrder{}
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, po)
	}
	return orders, total, rows.Err()
}

// OpenOrderItemIDs returns the subset of itemIDs that appear on an order not
// yet received or cancelled, in a single join.
func (r *Repository) OpenOrderItemIDs(ctx context.Context, itemIDs []int64) (map[int64]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT poi.inventory_item_id
FROM purchase_order_items poi
JOIN purchase_orders po ON po.id = poi.purchase_order_id
WHERE poi.inventory_item_id = ANY($1) AND po.status NOT IN ('received', 'cancelled')`, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	open := make(map[int64]bool, len(itemIDs))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		open[id] = true
	}
	return open, rows.Err()
}

func (t *txRepo) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	return scanPO(t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, status, total_amount, order_date, expected_delivery, notes, auto_generated, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING `+poColumns,
		po.Number, po.SupplierID, string(po.Status), po.TotalAmount, po.OrderDate, po.ExpectedDelivery, po.Notes, po.AutoGenerated))
}

func (t *txRepo) InsertItems(ctx context.Context, poID int64, items []PurchaseOrderItem) ([]PurchaseOrderItem, error) {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`INSERT INTO purchase_order_items (purchase_order_id, inventory_item_id, quantity, unit_price, total_price)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, poID, item.InventoryItemID, item.Quantity, item.UnitPrice, item.TotalPrice)
	}
	results := t.tx.SendBatch(ctx, batch)
	out := make([]PurchaseOrderItem, len(items))
	for i, item := range items {
		item.PurchaseOrderID = poID
		if err := results.QueryRow().Scan(&item.ID); err != nil {
			_ = results.Close()
			return nil, err
		}
		out[i] = item
	}
	return out, results.Close()
}

func (t *txRepo) LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(t.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrNotFound
	}
	return po, err
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status POStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$1 WHERE id=$2`, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &status, &po.TotalAmount, &po.OrderDate, &po.ExpectedDelivery, &po.Notes, &po.AutoGenerated, &po.CreatedAt)
	po.Status = POStatus(status)
	return po, err
}
