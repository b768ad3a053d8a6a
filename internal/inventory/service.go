package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/clinicstock/internal/settings"
	"github.com/odyssey-erp/clinicstock/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (Item, error)
	ListItems(ctx context.Context, filter ItemFilter, fallbackThreshold int) ([]Item, int, error)
	CreateItem(ctx context.Context, input ItemInput) (Item, error)
	UpdateItem(ctx context.Context, id int64, input ItemInput) (Item, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards a stock line from being posted twice.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// SettingsPort supplies the system low-stock threshold.
type SettingsPort interface {
	Current(ctx context.Context) (settings.SystemConfiguration, error)
}

// Service coordinates catalog and stock operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	settings    SettingsPort
	logger      *slog.Logger
}

// NewService builds Service. audit, idempotency and settings may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg SettingsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, settings: cfg, logger: logger}
}

// CreateItem adds a catalog item with its opening balance.
func (s *Service) CreateItem(ctx context.Context, input ItemInput) (Item, error) {
	input = normaliseItem(input)
	if err := validateItem(input); err != nil {
		return Item{}, err
	}
	if input.InitialStock < 0 {
		return Item{}, fmt.Errorf("%w: initial stock must be >= 0", ErrInvalidItem)
	}
	return s.repo.CreateItem(ctx, input)
}

// GetItem fetches a catalog item.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, ErrNotFound
	}
	return s.repo.GetItem(ctx, id)
}

// ListItems lists catalog items. The low-stock filter uses the item minimum,
// or the system threshold for items without one.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	threshold := settings.DefaultLowStockThreshold
	if filter.LowStock && s.settings != nil {
		cfg, err := s.settings.Current(ctx)
		if err != nil {
			return nil, 0, err
		}
		threshold = cfg.LowStockThreshold
	}
	return s.repo.ListItems(ctx, filter, threshold)
}

// UpdateItem edits catalog fields. On-hand stock is never changed here.
func (s *Service) UpdateItem(ctx context.Context, id int64, input ItemInput) (Item, error) {
	if id <= 0 {
		return Item{}, ErrNotFound
	}
	input = normaliseItem(input)
	if err := validateItem(input); err != nil {
		return Item{}, err
	}
	return s.repo.UpdateItem(ctx, id, input)
}

// ListMovements returns the ledger for an item.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ItemID <= 0 {
		return nil, ErrNotFound
	}
	if _, err := s.repo.GetItem(ctx, filter.ItemID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, filter)
}

// StockIn increments on-hand by the received quantity and appends a ledger row.
func (s *Service) StockIn(ctx context.Context, input StockInput) (StockChange, error) {
	if input.Quantity <= 0 {
		return StockChange{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, MovementIn, input)
}

// StockOut issues stock, refusing to take on-hand below zero.
func (s *Service) StockOut(ctx context.Context, input StockInput) (StockChange, error) {
	if input.Quantity <= 0 {
		return StockChange{}, ErrInvalidQuantity
	}
	if input.RefModule == "" {
		input.RefModule = RefIssue
	}
	return s.postMovement(ctx, MovementOut, input)
}

func (s *Service) postMovement(ctx context.Context, kind MovementType, input StockInput) (StockChange, error) {
	if input.ItemID <= 0 {
		return StockChange{}, ErrNotFound
	}
	if input.Actor == "" {
		input.Actor = shared.ActorFromContext(ctx)
	}
	key := ""
	if s.idempotency != nil && input.LineKey != "" {
		key = fmt.Sprintf("%s:%s:%d", kind, input.LineKey, input.ItemID)
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return StockChange{}, ErrAlreadyPosted
			}
			return StockChange{}, err
		}
	}
	delta := input.Quantity
	if kind == MovementOut {
		delta = -delta
	}
	var change StockChange
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.LockItem(ctx, input.ItemID)
		if err != nil {
			return err
		}
		if item.CurrentStock+delta < 0 {
			return ErrNegativeStock
		}
		balance, err := tx.AdjustStock(ctx, input.ItemID, delta)
		if err != nil {
			return err
		}
		movement := Movement{
			ItemID:       input.ItemID,
			Type:         kind,
			Quantity:     input.Quantity,
			BalanceAfter: balance,
			RefModule:    input.RefModule,
			RefID:        input.RefID,
			Note:         input.Note,
			Actor:        input.Actor,
		}
		movement, err = tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		change = StockChange{
			ItemID:        input.ItemID,
			PreviousStock: balance - delta,
			CurrentStock:  balance,
			Movement:      movement,
		}
		return nil
	})
	if err != nil {
		if key != "" {
			if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
				s.logger.Warn("release stock idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return StockChange{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    input.Actor,
			Action:   fmt.Sprintf("STOCK_%s", kind),
			Entity:   "inventory_item",
			EntityID: fmt.Sprintf("%d", input.ItemID),
			Meta: map[string]any{
				"quantity":   input.Quantity,
				"balance":    change.CurrentStock,
				"ref_module": input.RefModule,
				"ref_id":     input.RefID,
			},
		}); err != nil {
			s.logger.Warn("audit stock movement", slog.Int64("item_id", input.ItemID), slog.Any("error", err))
		}
	}
	return change, nil
}

func normaliseItem(input ItemInput) ItemInput {
	input.Name = strings.TrimSpace(input.Name)
	input.SKU = strings.ToUpper(strings.TrimSpace(input.SKU))
	input.Unit = strings.TrimSpace(input.Unit)
	if input.Unit == "" {
		input.Unit = "pcs"
	}
	return input
}

func validateItem(input ItemInput) error {
	if input.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if input.MinimumStock < 0 {
		return fmt.Errorf("%w: minimum stock must be >= 0", ErrInvalidItem)
	}
	if input.MaximumStock != nil && *input.MaximumStock < input.MinimumStock {
		return fmt.Errorf("%w: maximum stock must be >= minimum stock", ErrInvalidItem)
	}
	if input.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must be >= 0", ErrInvalidItem)
	}
	return nil
}
