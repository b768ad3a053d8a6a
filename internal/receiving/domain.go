package receiving

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/clinicstock/internal/platform/httpx"
)

// Condition describes the physical state of received goods.
type Condition string

const (
	ConditionGood    Condition = "good"
	ConditionDamaged Condition = "damaged"
	ConditionExpired Condition = "expired"
)

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	switch c {
	case ConditionGood, ConditionDamaged, ConditionExpired:
		return true
	}
	return false
}

// StockReceipt is one delivery event.
type StockReceipt struct {
	ID              int64              `json:"id"`
	Number          string             `json:"number"`
	PurchaseOrderID int64              `json:"purchase_order_id,omitempty"`
	SupplierID      int64              `json:"supplier_id"`
	ReceiptDate     time.Time          `json:"receipt_date"`
	ReceivedBy      string             `json:"received_by,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	Items           []StockReceiptItem `json:"items,omitempty"`
}

// StockReceiptItem is one received line.
type StockReceiptItem struct {
	ID                  int64      `json:"id"`
	ReceiptID           int64      `json:"receipt_id"`
	PurchaseOrderItemID int64      `json:"purchase_order_item_id,omitempty"`
	InventoryItemID     int64      `json:"inventory_item_id,omitempty"`
	ItemName            string     `json:"item_name"`
	OrderedQuantity     int        `json:"ordered_quantity"`
	ReceivedQuantity    int        `json:"received_quantity"`
	HasDiscrepancy      bool       `json:"has_discrepancy"`
	BatchNumber         string     `json:"batch_number,omitempty"`
	LotNumber           string     `json:"lot_number,omitempty"`
	ExpiryDate          *time.Time `json:"expiry_date,omitempty"`
	ManufactureDate     *time.Time `json:"manufacture_date,omitempty"`
	Condition           Condition  `json:"condition"`
	StorageLocation     string     `json:"storage_location,omitempty"`
	Remarks             string     `json:"remarks,omitempty"`
}

// LineInput describes one line of a new receipt.
type LineInput struct {
	PurchaseOrderItemID int64
	InventoryItemID     int64
	ItemName            string
	ReceivedQuantity    int
	BatchNumber         string
	LotNumber           string
	ExpiryDate          *time.Time
	ManufactureDate     *time.Time
	Condition           Condition
	StorageLocation     string
	Remarks             string
}

// CreateReceiptInput describes a receipt submission.
type CreateReceiptInput struct {
	PurchaseOrderID int64
	SupplierID      int64
	ReceiptDate     time.Time
	ReceivedBy      string
	Notes           string
	IdempotencyKey  string
	Items           []LineInput
}

// LineEdit carries the editable fields of an existing line.
type LineEdit struct {
	ReceivedQuantity int
	BatchNumber      string
	LotNumber        string
	ExpiryDate       *time.Time
	ManufactureDate  *time.Time
	Condition        Condition
	StorageLocation  string
	Remarks          string
}

// UpdateReceiptInput edits an existing receipt. Items match existing lines by position.
type UpdateReceiptInput struct {
	ReceivedBy *string
	Notes      *string
	Items      []LineEdit
}

// ListFilter filters receipt listings.
type ListFilter struct {
	PurchaseOrderID int64
	SupplierID      int64
	From            time.Time
	To              time.Time
	Page            int
	Limit           int
}

var (
	// ErrInvalidInput rejects a submission before anything is stored.
	ErrInvalidInput = fmt.Errorf("receiving: invalid input: %w", httpx.ErrValidation)
	// ErrNotFound indicates a missing receipt.
	ErrNotFound = fmt.Errorf("receiving: receipt %w", httpx.ErrNotFound)
	// ErrPurchaseOrderNotFound indicates the referenced order does not exist.
	ErrPurchaseOrderNotFound = fmt.Errorf("receiving: purchase order %w", httpx.ErrNotFound)
	// ErrPurchaseOrderCancelled refuses receipts against a cancelled order.
	ErrPurchaseOrderCancelled = fmt.Errorf("receiving: purchase order is cancelled: %w", httpx.ErrConflict)
	// ErrDuplicateRequest indicates the idempotency key was already used.
	ErrDuplicateRequest = fmt.Errorf("receiving: request already processed: %w", httpx.ErrConflict)
)
