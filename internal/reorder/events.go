package reorder

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReorderCreated is published after a replenishment order is stored.
type ReorderCreated struct {
	PurchaseOrderID int64           `json:"purchase_order_id"`
	Number          string          `json:"number"`
	SupplierID      int64           `json:"supplier_id"`
	ItemID          int64           `json:"item_id"`
	ItemName        string          `json:"item_name"`
	Quantity        int             `json:"quantity"`
	OnHand          int             `json:"on_hand"`
	Minimum         int             `json:"minimum"`
	Total           decimal.Decimal `json:"total"`
}

// Notifier delivers reorder notifications.
type Notifier interface {
	NotifyReorder(ctx context.Context, evt ReorderCreated) error
}
