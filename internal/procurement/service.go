package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clinicstock/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	OpenOrderItemIDs(ctx context.Context, itemIDs []int64) (map[int64]bool, error)
	NextNumber(ctx context.Context) (string, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort records status decisions.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service orchestrates the purchase order lifecycle.
type Service struct {
	repo      RepositoryPort
	approvals ApprovalPort
	audit     AuditPort
	numbering shared.Numbering
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs procurement service. approvals and audit may be nil.
func NewService(repo RepositoryPort, approvals ApprovalPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		approvals: approvals,
		audit:     audit,
		numbering: shared.Numbering{Prefix: "PO", Logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// CreatePurchaseOrder persists a pending order and its items.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if input.SupplierID <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	total := decimal.Zero
	for i, item := range input.Items {
		if item.InventoryItemID <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item %d has no catalog reference", ErrValidation, i+1)
		}
		if item.Quantity <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, i+1)
		}
		if item.UnitPrice.IsNegative() {
			return PurchaseOrder{}, fmt.Errorf("%w: item %d unit price must be >= 0", ErrValidation, i+1)
		}
		total = total.Add(lineTotal(item.Quantity, item.UnitPrice))
	}
	if input.OrderDate.IsZero() {
		input.OrderDate = s.now().UTC()
	}
	po := PurchaseOrder{
		Number:           s.numbering.Next(ctx, s.repo.NextNumber),
		SupplierID:       input.SupplierID,
		Status:           POStatusPending,
		TotalAmount:      total,
		OrderDate:        input.OrderDate,
		ExpectedDelivery: input.ExpectedDelivery,
		Notes:            input.Notes,
		AutoGenerated:    input.AutoGenerated,
	}
	var created PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.InsertPurchaseOrder(ctx, po)
		if err != nil {
			return err
		}
		items := make([]PurchaseOrderItem, 0, len(input.Items))
		for _, in := range input.Items {
			items = append(items, PurchaseOrderItem{
				PurchaseOrderID: header.ID,
				InventoryItemID: in.InventoryItemID,
				Quantity:        in.Quantity,
				UnitPrice:       in.UnitPrice,
				TotalPrice:      lineTotal(in.Quantity, in.UnitPrice),
			})
		}
		header.Items, err = tx.InsertItems(ctx, header.ID, items)
		if err != nil {
			return err
		}
		created = header
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.Actor, "PO_CREATE", created, map[string]any{
		"number":         created.Number,
		"total":          created.TotalAmount.String(),
		"auto_generated": created.AutoGenerated,
	})
	return created, nil
}

// GetPurchaseOrder loads an order with its items.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	if id <= 0 {
		return PurchaseOrder{}, ErrNotFound
	}
	return s.repo.GetPurchaseOrder(ctx, id)
}

// ListPurchaseOrders lists orders without items.
func (s *Service) ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	return s.repo.ListPurchaseOrders(ctx, filter)
}

// Approve moves a pending order to approved.
func (s *Service) Approve(ctx context.Context, id int64, note string) (PurchaseOrder, error) {
	return s.transition(ctx, id, []POStatus{POStatusPending}, POStatusApproved, shared.ApprovalApprove, note)
}

// MarkOrdered records that an approved order was sent to the supplier.
func (s *Service) MarkOrdered(ctx context.Context, id int64, note string) (PurchaseOrder, error) {
	return s.transition(ctx, id, []POStatus{POStatusApproved}, POStatusOrdered, shared.ApprovalOrder, note)
}

// Cancel cancels any non-terminal order.
func (s *Service) Cancel(ctx context.Context, id int64, note string) (PurchaseOrder, error) {
	return s.transition(ctx, id, []POStatus{POStatusPending, POStatusApproved, POStatusOrdered}, POStatusCancelled, shared.ApprovalCancel, note)
}

// MarkReceived sets the order to received regardless of discrepancies.
// Receiving an already received order is a no-op; cancelled orders are refused.
func (s *Service) MarkReceived(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		switch po.Status {
		case POStatusReceived:
			return nil
		case POStatusCancelled:
			return fmt.Errorf("%w: order %s is cancelled", ErrInvalidState, po.Number)
		}
		return tx.UpdateStatus(ctx, id, POStatusReceived)
	})
}

// HasOpenOrderForItem reports whether a non-terminal order already covers the item.
func (s *Service) HasOpenOrderForItem(ctx context.Context, itemID int64) (bool, error) {
	open, err := s.OpenOrderItems(ctx, []int64{itemID})
	if err != nil {
		return false, err
	}
	return open[itemID], nil
}

// OpenOrderItems answers the open-order question for many items in one query.
func (s *Service) OpenOrderItems(ctx context.Context, itemIDs []int64) (map[int64]bool, error) {
	if len(itemIDs) == 0 {
		return map[int64]bool{}, nil
	}
	return s.repo.OpenOrderItemIDs(ctx, itemIDs)
}

func (s *Service) transition(ctx context.Context, id int64, from []POStatus, to POStatus, action shared.ApprovalAction, note string) (PurchaseOrder, error) {
	if id <= 0 {
		return PurchaseOrder{}, ErrNotFound
	}
	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		allowed := false
		for _, st := range from {
			if po.Status == st {
				allowed = true
				break
			}
		}
		if !allowed || !CanTransition(po.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidState, po.Status, to)
		}
		if err := tx.UpdateStatus(ctx, id, to); err != nil {
			return err
		}
		po.Status = to
		updated = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	actor := shared.ActorFromContext(ctx)
	if s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{Module: "procurement", RefID: id, Actor: actor, Action: action, Note: note}); err != nil {
			s.logger.Warn("record po decision", slog.Int64("po_id", id), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actor, "PO_"+string(action), updated, map[string]any{"status": string(to), "note": note})
	return updated, nil
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, po PurchaseOrder, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if actor == "" {
		actor = shared.ActorFromContext(ctx)
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: strconv.FormatInt(po.ID, 10),
		Meta:     meta,
	}); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("audit purchase order", slog.Int64("po_id", po.ID), slog.Any("error", err))
	}
}
