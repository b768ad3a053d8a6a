package receiving

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/clinicstock/internal/platform/db"
)

// Repository persists receipts in PostgreSQL. Header and items are written
// in separate statements; the service compensates a failed item insert.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const receiptColumns = `id, number, purchase_order_id, supplier_id, receipt_date, received_by, notes, created_at`

const itemColumns = `id, receipt_id, purchase_order_item_id, inventory_item_id, item_name, ordered_quantity, received_quantity,
has_discrepancy, batch_number, lot_number, expiry_date, manufacture_date, condition, storage_location, remarks`

// NextNumber asks the database numbering function for a receipt number.
func (r *Repository) NextNumber(ctx context.Context) (string, error) {
	var number string
	err := r.pool.QueryRow(ctx, `SELECT generate_receipt_number()`).Scan(&number)
	return number, err
}

// InsertReceipt stores the header.
func (r *Repository) InsertReceipt(ctx context.Context, receipt StockReceipt) (StockReceipt, error) {
	return scanReceipt(r.pool.QueryRow(ctx, `INSERT INTO stock_receipts (number, purchase_order_id, supplier_id, receipt_date, received_by, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING `+receiptColumns,
		receipt.Number, nullID(receipt.PurchaseOrderID), receipt.SupplierID, receipt.ReceiptDate, receipt.ReceivedBy, receipt.Notes))
}

// InsertItems stores all lines of a receipt in one transaction.
func (r *Repository) InsertItems(ctx context.Context, receiptID int64, items []StockReceiptItem) ([]StockReceiptItem, error) {
	out := make([]StockReceiptItem, len(items))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, item := range items {
			batch.Queue(`INSERT INTO stock_receipt_items (receipt_id, purchase_order_item_id, inventory_item_id, item_name, ordered_quantity,
received_quantity, has_discrepancy, batch_number, lot_number, expiry_date, manufacture_date, condition, storage_location, remarks)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
				receiptID, nullID(item.PurchaseOrderItemID), nullID(item.InventoryItemID), item.ItemName, item.OrderedQuantity,
				item.ReceivedQuantity, item.HasDiscrepancy, item.BatchNumber, item.LotNumber, item.ExpiryDate, item.ManufactureDate,
				string(item.Condition), item.StorageLocation, item.Remarks)
		}
		results := tx.SendBatch(ctx, batch)
		for i, item := range items {
			item.ReceiptID = receiptID
			if err := results.QueryRow().Scan(&item.ID); err != nil {
				_ = results.Close()
				return err
			}
			out[i] = item
		}
		return results.Close()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteReceipt removes a header and any lines attached to it.
func (r *Repository) DeleteReceipt(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM stock_receipt_items WHERE receipt_id=$1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM stock_receipts WHERE id=$1`, id)
		return err
	})
}

// GetReceipt loads a header with its lines in insertion order.
func (r *Repository) GetReceipt(ctx context.Context, id int64) (StockReceipt, error) {
	receipt, err := scanReceipt(r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM stock_receipts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockReceipt{}, ErrNotFound
		}
		return StockReceipt{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM stock_receipt_items WHERE receipt_id=$1 ORDER BY id`, id)
	if err != nil {
		return StockReceipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return StockReceipt{}, err
		}
		receipt.Items = append(receipt.Items, item)
	}
	return receipt, rows.Err()
}

// ListReceipts returns a page of receipt headers.
func (r *Repository) ListReceipts(ctx context.Context, filter ListFilter) ([]StockReceipt, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.PurchaseOrderID > 0 {
		args = append(args, filter.PurchaseOrderID)
		where += ` AND purchase_order_id = $` + strconv.Itoa(len(args))
	}
	if filter.SupplierID > 0 {
		args = append(args, filter.SupplierID)
		where += ` AND supplier_id = $` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += ` AND receipt_date >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += ` AND receipt_date <= $` + strconv.Itoa(len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_receipts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	rows, err := r.pool.Query(ctx, `SELECT `+receiptColumns+` FROM stock_receipts`+where+
		` ORDER BY receipt_date DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	receipts := []StockReceipt{}
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, total, rows.Err()
}

// UpdateReceipt writes the header and every line back in one transaction.
func (r *Repository) UpdateReceipt(ctx context.Context, receipt StockReceipt) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE stock_receipts SET received_by=$1, notes=$2 WHERE id=$3`,
			receipt.ReceivedBy, receipt.Notes, receipt.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		batch := &pgx.Batch{}
		for _, item := range receipt.Items {
			batch.Queue(`UPDATE stock_receipt_items SET received_quantity=$1, has_discrepancy=$2, batch_number=$3, lot_number=$4,
expiry_date=$5, manufacture_date=$6, condition=$7, storage_location=$8, remarks=$9 WHERE id=$10 AND receipt_id=$11`,
				item.ReceivedQuantity, item.HasDiscrepancy, item.BatchNumber, item.LotNumber, item.ExpiryDate,
				item.ManufactureDate, string(item.Condition), item.StorageLocation, item.Remarks, item.ID, receipt.ID)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func scanReceipt(row pgx.Row) (StockReceipt, error) {
	var (
		receipt StockReceipt
		poID    *int64
	)
	err := row.Scan(&receipt.ID, &receipt.Number, &poID, &receipt.SupplierID, &receipt.ReceiptDate,
		&receipt.ReceivedBy, &receipt.Notes, &receipt.CreatedAt)
	if poID != nil {
		receipt.PurchaseOrderID = *poID
	}
	return receipt, err
}

func scanItem(row pgx.Row) (StockReceiptItem, error) {
	var (
		item      StockReceiptItem
		poItemID  *int64
		catalogID *int64
		condition string
	)
	err := row.Scan(&item.ID, &item.ReceiptID, &poItemID, &catalogID, &item.ItemName, &item.OrderedQuantity,
		&item.ReceivedQuantity, &item.HasDiscrepancy, &item.BatchNumber, &item.LotNumber, &item.ExpiryDate,
		&item.ManufactureDate, &condition, &item.StorageLocation, &item.Remarks)
	if poItemID != nil {
		item.PurchaseOrderItemID = *poItemID
	}
	if catalogID != nil {
		item.InventoryItemID = *catalogID
	}
	item.Condition = Condition(condition)
	return item, err
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
