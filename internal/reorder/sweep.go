package reorder

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/clinicstock/internal/inventory"
	"github.com/odyssey-erp/clinicstock/internal/settings"
)

// CatalogPort lists catalog items for the sweep.
type CatalogPort interface {
	ListItems(ctx context.Context, filter inventory.ItemFilter) ([]inventory.Item, int, error)
}

// SettingsPort supplies the current configuration.
type SettingsPort interface {
	Current(ctx context.Context) (settings.SystemConfiguration, error)
}

// SweepResult summarises one low-stock sweep.
type SweepResult struct {
	Scanned int
	Created int
	Failed  int
}

const sweepPageSize = 100

// Sweeper periodically re-checks every low-stock item, catching items that
// dropped below minimum through issuance rather than receiving.
type Sweeper struct {
	catalog   CatalogPort
	settings  SettingsPort
	evaluator *Evaluator
	logger    *slog.Logger
}

// NewSweeper builds Sweeper.
func NewSweeper(catalog CatalogPort, cfg SettingsPort, evaluator *Evaluator, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{catalog: catalog, settings: cfg, evaluator: evaluator, logger: logger}
}

// Run evaluates every item currently at or below minimum.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	var result SweepResult
	if !cfg.AutoReorder {
		s.logger.Info("reorder sweep skipped", slog.String("reason", ReasonDisabled))
		return result, nil
	}
	var candidates []Candidate
	for page := 1; ; page++ {
		items, total, err := s.catalog.ListItems(ctx, inventory.ItemFilter{LowStock: true, Page: page, Limit: sweepPageSize})
		if err != nil {
			return result, err
		}
		for _, item := range items {
			candidates = append(candidates, Candidate{ItemID: item.ID, PreviousOnHand: item.CurrentStock})
		}
		if len(items) == 0 || page*sweepPageSize >= total {
			break
		}
	}
	result.Scanned = len(candidates)
	for _, d := range s.evaluator.Evaluate(ctx, cfg, candidates) {
		switch {
		case d.Err != nil:
			result.Failed++
		case d.Created():
			result.Created++
		}
	}
	s.logger.Info("reorder sweep finished",
		slog.Int("scanned", result.Scanned), slog.Int("created", result.Created), slog.Int("failed", result.Failed))
	return result, nil
}
