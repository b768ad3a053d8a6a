package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clinicstock/internal/platform/httpx"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents received stock.
	MovementIn MovementType = "IN"
	// MovementOut represents issued stock.
	MovementOut MovementType = "OUT"
)

// Ref modules written on movements.
const (
	RefReceiving     = "receiving"
	RefReceivingEdit = "receiving-edit"
	RefIssue         = "issue"
)

// Item is a stock keeping unit tracked by the clinic.
type Item struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Unit         string          `json:"unit"`
	CurrentStock int             `json:"current_stock"`
	MinimumStock int             `json:"minimum_stock"`
	MaximumStock *int            `json:"maximum_stock,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	SupplierID   int64           `json:"supplier_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsLow reports whether on-hand is at or below the effective minimum.
func (i Item) IsLow(fallbackThreshold int) bool {
	min := i.MinimumStock
	if min == 0 {
		min = fallbackThreshold
	}
	return i.CurrentStock <= min
}

// Movement is one stock ledger row.
type Movement struct {
	ID           int64        `json:"id"`
	ItemID       int64        `json:"item_id"`
	Type         MovementType `json:"type"`
	Quantity     int          `json:"quantity"`
	BalanceAfter int          `json:"balance_after"`
	RefModule    string       `json:"ref_module"`
	RefID        int64        `json:"ref_id,omitempty"`
	Note         string       `json:"note,omitempty"`
	Actor        string       `json:"actor"`
	PostedAt     time.Time    `json:"posted_at"`
}

// StockChange reports the result of a stock movement.
type StockChange struct {
	ItemID        int64    `json:"item_id"`
	PreviousStock int      `json:"previous_stock"`
	CurrentStock  int      `json:"current_stock"`
	Movement      Movement `json:"movement"`
}

// ItemInput carries the editable catalog fields.
type ItemInput struct {
	Name         string
	SKU          string
	Unit         string
	InitialStock int
	MinimumStock int
	MaximumStock *int
	UnitPrice    decimal.Decimal
	SupplierID   int64
}

// StockInput describes a stock-in or stock-out request.
type StockInput struct {
	ItemID    int64
	Quantity  int
	RefModule string
	RefID     int64
	// LineKey identifies the source line so the same line is posted at most once.
	LineKey string
	Note    string
	Actor   string
}

// ItemFilter filters catalog listings.
type ItemFilter struct {
	Search     string
	SupplierID int64
	LowStock   bool
	Page       int
	Limit      int
}

// MovementFilter filters ledger listings.
type MovementFilter struct {
	ItemID int64
	From   time.Time
	To     time.Time
	Limit  int
}

var (
	// ErrNotFound indicates a missing catalog item.
	ErrNotFound = fmt.Errorf("inventory: item %w", httpx.ErrNotFound)
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = fmt.Errorf("inventory: negative stock not allowed: %w", httpx.ErrConflict)
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be positive: %w", httpx.ErrValidation)
	// ErrInvalidItem rejects catalog payloads.
	ErrInvalidItem = fmt.Errorf("inventory: invalid item: %w", httpx.ErrValidation)
	// ErrDuplicateSKU indicates the SKU is taken.
	ErrDuplicateSKU = fmt.Errorf("inventory: sku %w", httpx.ErrDuplicate)
	// ErrAlreadyPosted signals the line was already applied to stock.
	ErrAlreadyPosted = fmt.Errorf("inventory: movement already posted: %w", httpx.ErrConflict)
)
