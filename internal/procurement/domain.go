package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clinicstock/internal/platform/httpx"
)

// POStatus is the purchase order lifecycle status.
type POStatus string

const (
	POStatusPending   POStatus = "pending"
	POStatusApproved  POStatus = "approved"
	POStatusOrdered   POStatus = "ordered"
	POStatusReceived  POStatus = "received"
	POStatusCancelled POStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s POStatus) IsTerminal() bool {
	return s == POStatusReceived || s == POStatusCancelled
}

// Valid reports whether s is a known status.
func (s POStatus) Valid() bool {
	switch s {
	case POStatusPending, POStatusApproved, POStatusOrdered, POStatusReceived, POStatusCancelled:
		return true
	}
	return false
}

// PurchaseOrder is a request to a supplier for catalog items.
type PurchaseOrder struct {
	ID               int64               `json:"id"`
	Number           string              `json:"number"`
	SupplierID       int64               `json:"supplier_id"`
	Status           POStatus            `json:"status"`
	TotalAmount      decimal.Decimal     `json:"total_amount"`
	OrderDate        time.Time           `json:"order_date"`
	ExpectedDelivery *time.Time          `json:"expected_delivery,omitempty"`
	Notes            string              `json:"notes,omitempty"`
	AutoGenerated    bool                `json:"auto_generated"`
	CreatedAt        time.Time           `json:"created_at"`
	Items            []PurchaseOrderItem `json:"items,omitempty"`
}

// PurchaseOrderItem is one ordered catalog item.
type PurchaseOrderItem struct {
	ID              int64           `json:"id"`
	PurchaseOrderID int64           `json:"purchase_order_id"`
	InventoryItemID int64           `json:"inventory_item_id"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
}

// CreatePOInput describes a purchase order to create.
type CreatePOInput struct {
	SupplierID       int64
	OrderDate        time.Time
	ExpectedDelivery *time.Time
	Notes            string
	AutoGenerated    bool
	Items            []POItemInput
	Actor            string
}

// POItemInput describes one order line.
type POItemInput struct {
	InventoryItemID int64
	Quantity        int
	UnitPrice       decimal.Decimal
}

// ListFilter filters purchase order listings.
type ListFilter struct {
	Status     POStatus
	SupplierID int64
	Search     string
	Page       int
	Limit      int
}

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = fmt.Errorf("procurement: invalid state transition: %w", httpx.ErrConflict)
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("procurement: %w", httpx.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("procurement: invalid input: %w", httpx.ErrValidation)
)

var transitions = map[POStatus][]POStatus{
	POStatusPending:  {POStatusApproved, POStatusCancelled, POStatusReceived},
	POStatusApproved: {POStatusOrdered, POStatusCancelled, POStatusReceived},
	POStatusOrdered:  {POStatusCancelled, POStatusReceived},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to POStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func lineTotal(qty int, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}
