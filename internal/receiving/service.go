package receiving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/clinicstock/internal/inventory"
	"github.com/odyssey-erp/clinicstock/internal/observability"
	"github.com/odyssey-erp/clinicstock/internal/procurement"
	"github.com/odyssey-erp/clinicstock/internal/reorder"
	"github.com/odyssey-erp/clinicstock/internal/settings"
	"github.com/odyssey-erp/clinicstock/internal/shared"
)

// RepositoryPort describes receipt persistence.
type RepositoryPort interface {
	NextNumber(ctx context.Context) (string, error)
	InsertReceipt(ctx context.Context, receipt StockReceipt) (StockReceipt, error)
	InsertItems(ctx context.Context, receiptID int64, items []StockReceiptItem) ([]StockReceiptItem, error)
	DeleteReceipt(ctx context.Context, id int64) error
	GetReceipt(ctx context.Context, id int64) (StockReceipt, error)
	ListReceipts(ctx context.Context, filter ListFilter) ([]StockReceipt, int, error)
	UpdateReceipt(ctx context.Context, receipt StockReceipt) error
}

// OrderPort reads and closes purchase orders.
type OrderPort interface {
	GetPurchaseOrder(ctx context.Context, id int64) (procurement.PurchaseOrder, error)
	MarkReceived(ctx context.Context, id int64) error
}

// StockPort moves on-hand stock.
type StockPort interface {
	StockIn(ctx context.Context, input inventory.StockInput) (inventory.StockChange, error)
	StockOut(ctx context.Context, input inventory.StockInput) (inventory.StockChange, error)
}

// ReorderPort evaluates replenishment after stock increases.
type ReorderPort interface {
	Evaluate(ctx context.Context, cfg settings.SystemConfiguration, candidates []reorder.Candidate) []reorder.Decision
}

// SettingsPort supplies the configuration read once per receipt.
type SettingsPort interface {
	Current(ctx context.Context) (settings.SystemConfiguration, error)
}

// IdempotencyPort guards against double submission of one delivery.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config tunes the receiving workflow.
type Config struct {
	// RestockOnEdit posts the received-quantity delta of an edited line to stock.
	RestockOnEdit bool
}

// Deps groups the collaborators of Service. Only Repo is mandatory.
type Deps struct {
	Repo        RepositoryPort
	Orders      OrderPort
	Stock       StockPort
	Reorder     ReorderPort
	Settings    SettingsPort
	Idempotency IdempotencyPort
	Audit       AuditPort
	Metrics     *observability.Workflow
	Logger      *slog.Logger
}

// LineError reports a best-effort failure for one line.
type LineError struct {
	Line   int    `json:"line"`
	ItemID int64  `json:"item_id"`
	Error  string `json:"error"`
}

// Outcome is the result of recording or editing a receipt. The receipt is
// stored whenever Outcome is returned without error; the other fields report
// best-effort steps.
type Outcome struct {
	Receipt       StockReceipt            `json:"receipt"`
	Discrepancies int                     `json:"discrepancies"`
	StockUpdates  []inventory.StockChange `json:"stock_updates,omitempty"`
	StockErrors   []LineError             `json:"stock_errors,omitempty"`
	Reorders      []reorder.Decision      `json:"reorders,omitempty"`
	ReorderErrors []LineError             `json:"reorder_errors,omitempty"`
	Warnings      []string                `json:"warnings,omitempty"`
}

// Service records receipts and drives stock and reorder updates.
type Service struct {
	deps      Deps
	cfg       Config
	numbering shared.Numbering
	logger    *slog.Logger
}

// NewService constructs the receiving service.
func NewService(deps Deps, cfg Config) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deps:      deps,
		cfg:       cfg,
		numbering: shared.Numbering{Prefix: "RCV", Logger: logger},
		logger:    logger,
	}
}

// CreateReceipt validates and stores a receipt, closes the referenced order,
// then applies stock and reorder updates on a best-effort basis.
func (s *Service) CreateReceipt(ctx context.Context, input CreateReceiptInput) (Outcome, error) {
	input = normaliseCreate(input)
	if err := validateCreate(input); err != nil {
		return Outcome{}, err
	}
	if input.ReceivedBy == "" {
		input.ReceivedBy = shared.ActorFromContext(ctx)
	}

	if input.IdempotencyKey != "" && s.deps.Idempotency != nil {
		if err := s.deps.Idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "receiving"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Outcome{}, ErrDuplicateRequest
			}
			return Outcome{}, err
		}
	}
	receipt, err := s.persist(ctx, input)
	if err != nil {
		if input.IdempotencyKey != "" && s.deps.Idempotency != nil {
			if delErr := s.deps.Idempotency.Delete(ctx, input.IdempotencyKey); delErr != nil {
				s.logger.Warn("release receipt idempotency key", slog.Any("error", delErr))
			}
		}
		return Outcome{}, err
	}

	out := Outcome{Receipt: receipt, Discrepancies: CountDiscrepancies(receipt.Items)}
	s.deps.Metrics.ReceiptRecorded(out.Discrepancies)
	if out.Discrepancies > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d line(s) differ from the ordered quantity", out.Discrepancies))
	}
	s.audit(ctx, "RECEIPT_CREATE", receipt, map[string]any{
		"number":            receipt.Number,
		"purchase_order_id": receipt.PurchaseOrderID,
		"lines":             len(receipt.Items),
		"discrepancies":     out.Discrepancies,
	})

	if receipt.PurchaseOrderID != 0 && s.deps.Orders != nil {
		if err := s.deps.Orders.MarkReceived(ctx, receipt.PurchaseOrderID); err != nil {
			s.logger.Warn("mark purchase order received",
				slog.Int64("po_id", receipt.PurchaseOrderID), slog.Int64("receipt_id", receipt.ID), slog.Any("error", err))
			out.Warnings = append(out.Warnings, "purchase order status was not updated: "+shared.UserSafeMessage(err))
		}
	}

	candidates := s.applyStock(ctx, receipt, &out)
	s.evaluateReorders(ctx, candidates, &out)
	return out, nil
}

// persist stores the header, then the items. When the items cannot be
// stored the header is deleted again so no empty receipt remains.
func (s *Service) persist(ctx context.Context, input CreateReceiptInput) (StockReceipt, error) {
	header := StockReceipt{
		PurchaseOrderID: input.PurchaseOrderID,
		SupplierID:      input.SupplierID,
		ReceiptDate:     input.ReceiptDate,
		ReceivedBy:      input.ReceivedBy,
		Notes:           input.Notes,
	}
	var ordered orderedQuantities
	if input.PurchaseOrderID != 0 {
		if s.deps.Orders == nil {
			return StockReceipt{}, errors.New("receiving: purchase order lookup not configured")
		}
		po, err := s.deps.Orders.GetPurchaseOrder(ctx, input.PurchaseOrderID)
		if err != nil {
			if errors.Is(err, procurement.ErrNotFound) {
				return StockReceipt{}, ErrPurchaseOrderNotFound
			}
			return StockReceipt{}, err
		}
		if po.Status == procurement.POStatusCancelled {
			return StockReceipt{}, ErrPurchaseOrderCancelled
		}
		if header.SupplierID == 0 {
			header.SupplierID = po.SupplierID
		}
		ordered = newOrderedQuantities(po.Items)
	}
	items := make([]StockReceiptItem, 0, len(input.Items))
	for _, line := range input.Items {
		item := StockReceiptItem{
			PurchaseOrderItemID: line.PurchaseOrderItemID,
			InventoryItemID:     line.InventoryItemID,
			ItemName:            line.ItemName,
			ReceivedQuantity:    line.ReceivedQuantity,
			BatchNumber:         line.BatchNumber,
			LotNumber:           line.LotNumber,
			ExpiryDate:          line.ExpiryDate,
			ManufactureDate:     line.ManufactureDate,
			Condition:           line.Condition,
			StorageLocation:     line.StorageLocation,
			Remarks:             line.Remarks,
		}
		if input.PurchaseOrderID != 0 {
			item.SetOrderedQuantity(ordered.lookup(line.PurchaseOrderItemID, line.InventoryItemID))
		} else {
			item.SetOrderedQuantity(line.ReceivedQuantity)
		}
		items = append(items, item)
	}

	header.Number = s.numbering.Next(ctx, s.deps.Repo.NextNumber)
	saved, err := s.deps.Repo.InsertReceipt(ctx, header)
	if err != nil {
		return StockReceipt{}, fmt.Errorf("receiving: insert receipt: %w", err)
	}
	savedItems, err := s.deps.Repo.InsertItems(ctx, saved.ID, items)
	if err != nil {
		err = fmt.Errorf("receiving: insert receipt items: %w", err)
		if delErr := s.deps.Repo.DeleteReceipt(ctx, saved.ID); delErr != nil {
			s.logger.Error("compensate receipt header",
				slog.Int64("receipt_id", saved.ID), slog.Any("error", delErr))
			return StockReceipt{}, errors.Join(err, fmt.Errorf("receiving: delete orphan receipt %d: %w", saved.ID, delErr))
		}
		return StockReceipt{}, err
	}
	saved.Items = savedItems
	return saved, nil
}

func (s *Service) applyStock(ctx context.Context, receipt StockReceipt, out *Outcome) []reorder.Candidate {
	if s.deps.Stock == nil {
		return nil
	}
	var candidates []reorder.Candidate
	for i, item := range receipt.Items {
		if item.InventoryItemID == 0 || item.ReceivedQuantity <= 0 {
			continue
		}
		change, err := s.deps.Stock.StockIn(ctx, inventory.StockInput{
			ItemID:    item.InventoryItemID,
			Quantity:  item.ReceivedQuantity,
			RefModule: inventory.RefReceiving,
			RefID:     receipt.ID,
			LineKey:   fmt.Sprintf("receipt:%d:line:%d", receipt.ID, item.ID),
			Note:      receipt.Number,
			Actor:     receipt.ReceivedBy,
		})
		if err != nil {
			s.deps.Metrics.StockUpdateFailed()
			s.logger.Error("stock update after receipt",
				slog.Int64("receipt_id", receipt.ID), slog.Int64("item_id", item.InventoryItemID), slog.Any("error", err))
			out.StockErrors = append(out.StockErrors, LineError{Line: i + 1, ItemID: item.InventoryItemID, Error: shared.UserSafeMessage(err)})
			continue
		}
		out.StockUpdates = append(out.StockUpdates, change)
		candidates = append(candidates, reorder.Candidate{
			Line:           i + 1,
			ItemID:         item.InventoryItemID,
			PreviousOnHand: change.PreviousStock,
			Received:       item.ReceivedQuantity,
		})
	}
	if len(out.StockErrors) > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("stock was not updated for %d line(s)", len(out.StockErrors)))
	}
	return candidates
}

func (s *Service) evaluateReorders(ctx context.Context, candidates []reorder.Candidate, out *Outcome) {
	if len(candidates) == 0 || s.deps.Reorder == nil || s.deps.Settings == nil {
		return
	}
	cfg, err := s.deps.Settings.Current(ctx)
	if err != nil {
		s.logger.Warn("load settings for reorder", slog.Int64("receipt_id", out.Receipt.ID), slog.Any("error", err))
		out.Warnings = append(out.Warnings, "automatic reorder was skipped: settings unavailable")
		return
	}
	if !cfg.AutoReorder {
		return
	}
	decisions := s.deps.Reorder.Evaluate(ctx, cfg, candidates)
	for i, d := range decisions {
		if d.Err != nil {
			out.ReorderErrors = append(out.ReorderErrors, LineError{Line: candidates[i].Line, ItemID: d.ItemID, Error: shared.UserSafeMessage(d.Err)})
			continue
		}
		if d.Created() {
			out.Warnings = append(out.Warnings, fmt.Sprintf("reorder %s created for item %d (qty %d)", d.Order.Number, d.ItemID, d.Quantity))
		}
	}
	out.Reorders = decisions
}

// GetReceipt loads a receipt with its lines.
func (s *Service) GetReceipt(ctx context.Context, id int64) (StockReceipt, error) {
	if id <= 0 {
		return StockReceipt{}, ErrNotFound
	}
	return s.deps.Repo.GetReceipt(ctx, id)
}

// ListReceipts lists receipt headers.
func (s *Service) ListReceipts(ctx context.Context, filter ListFilter) ([]StockReceipt, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	return s.deps.Repo.ListReceipts(ctx, filter)
}

// UpdateReceipt edits received quantities and descriptive fields of existing
// lines, matched by position. On-hand stock is left as it was unless
// Config.RestockOnEdit is set.
func (s *Service) UpdateReceipt(ctx context.Context, id int64, input UpdateReceiptInput) (Outcome, error) {
	receipt, err := s.GetReceipt(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if len(input.Items) > len(receipt.Items) {
		return Outcome{}, fmt.Errorf("%w: receipt has %d lines, got %d", ErrInvalidInput, len(receipt.Items), len(input.Items))
	}
	if input.ReceivedBy != nil {
		receipt.ReceivedBy = strings.TrimSpace(*input.ReceivedBy)
	}
	if input.Notes != nil {
		receipt.Notes = strings.TrimSpace(*input.Notes)
	}
	previous := make([]int, len(receipt.Items))
	for i, edit := range input.Items {
		if edit.ReceivedQuantity < 0 {
			return Outcome{}, fmt.Errorf("%w: line %d received quantity must be >= 0", ErrInvalidInput, i+1)
		}
		if edit.Condition == "" {
			edit.Condition = ConditionGood
		}
		if !edit.Condition.Valid() {
			return Outcome{}, fmt.Errorf("%w: line %d condition %q", ErrInvalidInput, i+1, edit.Condition)
		}
		item := &receipt.Items[i]
		previous[i] = item.ReceivedQuantity
		item.SetReceivedQuantity(edit.ReceivedQuantity)
		item.BatchNumber = strings.TrimSpace(edit.BatchNumber)
		item.LotNumber = strings.TrimSpace(edit.LotNumber)
		item.ExpiryDate = edit.ExpiryDate
		item.ManufactureDate = edit.ManufactureDate
		item.Condition = edit.Condition
		item.StorageLocation = strings.TrimSpace(edit.StorageLocation)
		item.Remarks = strings.TrimSpace(edit.Remarks)
	}
	if err := s.deps.Repo.UpdateReceipt(ctx, receipt); err != nil {
		return Outcome{}, fmt.Errorf("receiving: update receipt: %w", err)
	}

	out := Outcome{Receipt: receipt, Discrepancies: CountDiscrepancies(receipt.Items)}
	if out.Discrepancies > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d line(s) differ from the ordered quantity", out.Discrepancies))
	}
	s.audit(ctx, "RECEIPT_UPDATE", receipt, map[string]any{"lines_edited": len(input.Items), "restock": s.cfg.RestockOnEdit})

	if !s.cfg.RestockOnEdit {
		if stockChanged(receipt.Items[:len(input.Items)], previous) {
			out.Warnings = append(out.Warnings, "on-hand stock was not adjusted for edited quantities")
		}
		return out, nil
	}
	s.restock(ctx, receipt, input.Items, previous, &out)
	return out, nil
}

func (s *Service) restock(ctx context.Context, receipt StockReceipt, edits []LineEdit, previous []int, out *Outcome) {
	if s.deps.Stock == nil {
		return
	}
	for i := range edits {
		item := receipt.Items[i]
		delta := item.ReceivedQuantity - previous[i]
		if item.InventoryItemID == 0 || delta == 0 {
			continue
		}
		input := inventory.StockInput{
			ItemID:    item.InventoryItemID,
			RefModule: inventory.RefReceivingEdit,
			RefID:     receipt.ID,
			Note:      receipt.Number,
			Actor:     shared.ActorFromContext(ctx),
		}
		var (
			change inventory.StockChange
			err    error
		)
		if delta > 0 {
			input.Quantity = delta
			change, err = s.deps.Stock.StockIn(ctx, input)
		} else {
			input.Quantity = -delta
			change, err = s.deps.Stock.StockOut(ctx, input)
		}
		if err != nil {
			s.deps.Metrics.StockUpdateFailed()
			s.logger.Error("restock after receipt edit",
				slog.Int64("receipt_id", receipt.ID), slog.Int64("item_id", item.InventoryItemID), slog.Any("error", err))
			out.StockErrors = append(out.StockErrors, LineError{Line: i + 1, ItemID: item.InventoryItemID, Error: shared.UserSafeMessage(err)})
			continue
		}
		out.StockUpdates = append(out.StockUpdates, change)
	}
}

func (s *Service) audit(ctx context.Context, action string, receipt StockReceipt, meta map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "stock_receipt",
		EntityID: strconv.FormatInt(receipt.ID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit receipt", slog.Int64("receipt_id", receipt.ID), slog.Any("error", err))
	}
}

func stockChanged(items []StockReceiptItem, previous []int) bool {
	for i, item := range items {
		if item.InventoryItemID != 0 && item.ReceivedQuantity != previous[i] {
			return true
		}
	}
	return false
}

type orderedQuantities struct {
	byLine map[int64]int
	byItem map[int64]int
}

func newOrderedQuantities(items []procurement.PurchaseOrderItem) orderedQuantities {
	q := orderedQuantities{byLine: make(map[int64]int, len(items)), byItem: make(map[int64]int, len(items))}
	for _, item := range items {
		q.byLine[item.ID] = item.Quantity
		q.byItem[item.InventoryItemID] += item.Quantity
	}
	return q
}

// lookup prefers the explicit order line, then the catalog item. Lines that
// match neither were not ordered.
func (q orderedQuantities) lookup(lineID, itemID int64) int {
	if qty, ok := q.byLine[lineID]; ok && lineID != 0 {
		return qty
	}
	if qty, ok := q.byItem[itemID]; ok && itemID != 0 {
		return qty
	}
	return 0
}

func normaliseCreate(input CreateReceiptInput) CreateReceiptInput {
	input.ReceivedBy = strings.TrimSpace(input.ReceivedBy)
	input.Notes = strings.TrimSpace(input.Notes)
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if !input.ReceiptDate.IsZero() {
		input.ReceiptDate = input.ReceiptDate.UTC()
	}
	for i := range input.Items {
		line := &input.Items[i]
		line.ItemName = strings.TrimSpace(line.ItemName)
		line.BatchNumber = strings.TrimSpace(line.BatchNumber)
		line.LotNumber = strings.TrimSpace(line.LotNumber)
		line.StorageLocation = strings.TrimSpace(line.StorageLocation)
		line.Remarks = strings.TrimSpace(line.Remarks)
		if line.Condition == "" {
			line.Condition = ConditionGood
		}
	}
	return input
}

func validateCreate(input CreateReceiptInput) error {
	var problems []string
	if len(input.Items) == 0 {
		problems = append(problems, "at least one line item is required")
	}
	if input.SupplierID <= 0 && input.PurchaseOrderID == 0 {
		problems = append(problems, "supplier is required")
	}
	if input.ReceiptDate.IsZero() {
		problems = append(problems, "receipt date is required")
	} else if input.ReceiptDate.After(time.Now().Add(24 * time.Hour)) {
		problems = append(problems, "receipt date cannot be in the future")
	}
	for i, line := range input.Items {
		if line.ReceivedQuantity < 0 {
			problems = append(problems, fmt.Sprintf("line %d: received quantity must be >= 0", i+1))
		}
		if line.InventoryItemID == 0 && line.ItemName == "" {
			problems = append(problems, fmt.Sprintf("line %d: item name or catalog item is required", i+1))
		}
		if !line.Condition.Valid() {
			problems = append(problems, fmt.Sprintf("line %d: unknown condition %q", i+1, line.Condition))
		}
		if line.ExpiryDate != nil && line.ManufactureDate != nil && line.ExpiryDate.Before(*line.ManufactureDate) {
			problems = append(problems, fmt.Sprintf("line %d: expiry date precedes manufacture date", i+1))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}
