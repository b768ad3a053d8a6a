package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/clinicstock/internal/inventory"
	"github.com/odyssey-erp/clinicstock/internal/observability"
	"github.com/odyssey-erp/clinicstock/internal/platform/cache"
	"github.com/odyssey-erp/clinicstock/internal/procurement"
	"github.com/odyssey-erp/clinicstock/internal/receiving"
	"github.com/odyssey-erp/clinicstock/internal/reorder"
	"github.com/odyssey-erp/clinicstock/internal/settings"
	"github.com/odyssey-erp/clinicstock/internal/shared"
	"github.com/odyssey-erp/clinicstock/internal/suppliers"
)

// ServiceDeps carries the infrastructure shared by the API and the worker.
type ServiceDeps struct {
	Config   *Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Notifier reorder.Notifier
	Workflow *observability.Workflow
}

// Services holds the domain services of one process.
type Services struct {
	Settings    *settings.Service
	Suppliers   *suppliers.Service
	Inventory   *inventory.Service
	Procurement *procurement.Service
	Evaluator   *reorder.Evaluator
	Sweeper     *reorder.Sweeper
	Receiving   *receiving.Service
}

// BuildServices wires repositories and services against PostgreSQL and Redis.
func BuildServices(deps ServiceDeps) *Services {
	cfg := deps.Config
	if cfg == nil {
		cfg = &Config{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	auditLogger := shared.NewAuditLogger(deps.Pool)
	idempotency := shared.NewIdempotencyStore(deps.Pool)
	approvals := shared.NewApprovalRecorder(deps.Pool, logger)

	var settingsCache *settings.Cache
	if deps.Redis != nil {
		settingsCache = settings.NewCache(deps.Redis, cfg.SettingsCacheTTL)
	}
	settingsService := settings.NewService(settings.NewRepository(deps.Pool), settingsCache, logger)

	inventoryService := inventory.NewService(inventory.NewRepository(deps.Pool), auditLogger, idempotency, settingsService, logger)
	procurementService := procurement.NewService(procurement.NewRepository(deps.Pool), approvals, auditLogger, logger)

	evaluator := reorder.NewEvaluator(
		inventoryService,
		procurementService,
		cache.NewLocker(deps.Redis),
		deps.Notifier,
		deps.Workflow,
		logger,
		reorder.Config{LockTTL: cfg.ReorderLockTTL, LockWait: cfg.ReorderLockWait},
	)

	receivingService := receiving.NewService(receiving.Deps{
		Repo:        receiving.NewRepository(deps.Pool),
		Orders:      procurementService,
		Stock:       inventoryService,
		Reorder:     evaluator,
		Settings:    settingsService,
		Idempotency: idempotency,
		Audit:       auditLogger,
		Metrics:     deps.Workflow,
		Logger:      logger,
	}, receiving.Config{RestockOnEdit: cfg.RestockOnEdit})

	return &Services{
		Settings:    settingsService,
		Suppliers:   suppliers.NewService(suppliers.NewRepository(deps.Pool)),
		Inventory:   inventoryService,
		Procurement: procurementService,
		Evaluator:   evaluator,
		Sweeper:     reorder.NewSweeper(inventoryService, settingsService, evaluator, logger),
		Receiving:   receivingService,
	}
}
