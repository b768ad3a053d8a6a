package reorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"

	"github.com/odyssey-erp/clinicstock/internal/inventory"
	"github.com/odyssey-erp/clinicstock/internal/observability"
	"github.com/odyssey-erp/clinicstock/internal/procurement"
	"github.com/odyssey-erp/clinicstock/internal/settings"
	"github.com/odyssey-erp/clinicstock/internal/shared"
)

// Skip reasons reported on decisions.
const (
	ReasonDisabled     = "auto reorder disabled"
	ReasonAboveMinimum = "stock above minimum"
	ReasonOpenOrder    = "open order exists"
	ReasonNoQuantity   = "nothing to order"
	ReasonNoSupplier   = "no supplier configured"
	ReasonInProgress   = "evaluation in progress"
)

// ItemPort reads catalog items.
type ItemPort interface {
	GetItem(ctx context.Context, id int64) (inventory.Item, error)
}

// OrderPort checks and creates purchase orders.
type OrderPort interface {
	OpenOrderItems(ctx context.Context, itemIDs []int64) (map[int64]bool, error)
	CreatePurchaseOrder(ctx context.Context, input procurement.CreatePOInput) (procurement.PurchaseOrder, error)
}

// Candidate is one item whose stock was just increased by Received.
// Line is the 1-based receipt line, zero for sweep candidates.
type Candidate struct {
	Line           int
	ItemID         int64
	PreviousOnHand int
	Received       int
}

// Decision reports what the evaluator did for one candidate.
type Decision struct {
	ItemID    int64                      `json:"item_id"`
	NewOnHand int                        `json:"new_on_hand"`
	Quantity  int                        `json:"quantity,omitempty"`
	Order     *procurement.PurchaseOrder `json:"order,omitempty"`
	Reason    string                     `json:"reason,omitempty"`
	Err       error                      `json:"-"`
}

// Created reports whether a purchase order was created.
func (d Decision) Created() bool {
	return d.Order != nil
}

// Config tunes the evaluator. LockWait bounds each lock attempt.
type Config struct {
	LockTTL  time.Duration
	LockWait time.Duration
}

// Evaluator creates replenishment orders for items left at or below minimum.
type Evaluator struct {
	items    ItemPort
	orders   OrderPort
	locker   *redislock.Client
	notifier Notifier
	metrics  *observability.Workflow
	logger   *slog.Logger
	lockTTL  time.Duration
	lockWait time.Duration
}

// NewEvaluator builds the evaluator. locker, notifier and metrics may be nil.
func NewEvaluator(items ItemPort, orders OrderPort, locker *redislock.Client, notifier Notifier, metrics *observability.Workflow, logger *slog.Logger, cfg Config) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 2 * time.Second
	}
	return &Evaluator{
		items:    items,
		orders:   orders,
		locker:   locker,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		lockTTL:  cfg.LockTTL,
		lockWait: cfg.LockWait,
	}
}

type pending struct {
	idx  int
	item inventory.Item
}

// Evaluate runs the reorder rule for each candidate in line order. cfg is the
// configuration read once by the caller. One candidate failing never stops the
// others. An order created for an earlier line counts as open for later lines
// of the same item.
func (e *Evaluator) Evaluate(ctx context.Context, cfg settings.SystemConfiguration, candidates []Candidate) []Decision {
	decisions := make([]Decision, len(candidates))
	for i, c := range candidates {
		decisions[i] = Decision{ItemID: c.ItemID, NewOnHand: c.PreviousOnHand + c.Received}
	}
	if !cfg.AutoReorder {
		for i := range decisions {
			decisions[i].Reason = ReasonDisabled
		}
		return decisions
	}

	locks := make(map[int64]*redislock.Lock)
	defer func() {
		for itemID, lock := range locks {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				e.logger.Warn("release reorder lock", slog.Int64("item_id", itemID), slog.Any("error", err))
			}
		}
	}()

	locking := e.locker != nil
	var queue []pending
	for i, c := range candidates {
		d := &decisions[i]
		item, err := e.items.GetItem(ctx, c.ItemID)
		if err != nil {
			e.fail(d, fmt.Errorf("load item: %w", err))
			continue
		}
		if d.NewOnHand > item.MinimumStock {
			e.skip(d, ReasonAboveMinimum)
			continue
		}
		if _, held := locks[item.ID]; locking && !held {
			lock, err := e.obtain(ctx, item.ID)
			switch {
			case errors.Is(err, redislock.ErrNotObtained):
				e.skip(d, ReasonInProgress)
				continue
			case err != nil:
				// Redis unreachable: the open-order check below still guards duplicates.
				locking = false
				e.logger.Warn("reorder lock unavailable, evaluating unlocked",
					slog.Int64("item_id", item.ID), slog.Any("error", err))
			default:
				locks[item.ID] = lock
			}
		}
		queue = append(queue, pending{idx: i, item: item})
	}
	if len(queue) == 0 {
		return decisions
	}

	ids := make([]int64, 0, len(queue))
	seen := make(map[int64]bool, len(queue))
	for _, p := range queue {
		if !seen[p.item.ID] {
			seen[p.item.ID] = true
			ids = append(ids, p.item.ID)
		}
	}
	open, err := e.orders.OpenOrderItems(ctx, ids)
	if err != nil {
		for _, p := range queue {
			e.fail(&decisions[p.idx], fmt.Errorf("check open orders: %w", err))
		}
		return decisions
	}
	if open == nil {
		open = make(map[int64]bool)
	}

	for _, p := range queue {
		d := &decisions[p.idx]
		if open[p.item.ID] {
			e.skip(d, ReasonOpenOrder)
			continue
		}
		qty := ReorderQuantity(p.item.MinimumStock, p.item.MaximumStock, d.NewOnHand)
		if qty <= 0 {
			e.skip(d, ReasonNoQuantity)
			continue
		}
		if p.item.SupplierID == 0 {
			e.skip(d, ReasonNoSupplier)
			continue
		}
		po, err := e.orders.CreatePurchaseOrder(ctx, procurement.CreatePOInput{
			SupplierID:    p.item.SupplierID,
			AutoGenerated: true,
			Notes:         fmt.Sprintf("Auto-generated: %s at %d (minimum %d)", p.item.Name, d.NewOnHand, p.item.MinimumStock),
			Items: []procurement.POItemInput{{
				InventoryItemID: p.item.ID,
				Quantity:        qty,
				UnitPrice:       p.item.UnitPrice,
			}},
			Actor: "auto-reorder",
		})
		if err != nil {
			e.fail(d, fmt.Errorf("create purchase order: %w", err))
			continue
		}
		open[p.item.ID] = true
		d.Quantity = qty
		d.Order = &po
		e.metrics.ReorderEvaluated(observability.ReorderCreated)
		e.logger.Info("reorder created",
			slog.Int64("item_id", p.item.ID), slog.Int64("po_id", po.ID),
			slog.String("po_number", po.Number), slog.Int("quantity", qty))
		e.notify(ctx, po, p.item, d)
	}
	return decisions
}

func (e *Evaluator) obtain(ctx context.Context, itemID int64) (*redislock.Lock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	defer cancel()
	return e.locker.Obtain(lockCtx, shared.ReorderLockKey(itemID), e.lockTTL, nil)
}

func (e *Evaluator) notify(ctx context.Context, po procurement.PurchaseOrder, item inventory.Item, d *Decision) {
	if e.notifier == nil {
		return
	}
	evt := ReorderCreated{
		PurchaseOrderID: po.ID,
		Number:          po.Number,
		SupplierID:      po.SupplierID,
		ItemID:          item.ID,
		ItemName:        item.Name,
		Quantity:        d.Quantity,
		OnHand:          d.NewOnHand,
		Minimum:         item.MinimumStock,
		Total:           po.TotalAmount,
	}
	if err := e.notifier.NotifyReorder(ctx, evt); err != nil {
		e.logger.Warn("publish reorder notification", slog.Int64("po_id", po.ID), slog.Any("error", err))
	}
}

func (e *Evaluator) skip(d *Decision, reason string) {
	d.Reason = reason
	e.metrics.ReorderEvaluated(observability.ReorderSkipped)
}

func (e *Evaluator) fail(d *Decision, err error) {
	d.Err = err
	e.metrics.ReorderEvaluated(observability.ReorderFailed)
	e.logger.Error("reorder evaluation", slog.Int64("item_id", d.ItemID), slog.Any("error", err))
}
