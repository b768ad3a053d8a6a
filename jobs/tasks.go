package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/clinicstock/internal/jobs"
	"github.com/odyssey-erp/clinicstock/internal/reorder"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReorderNotify announces a replenishment order created automatically.
	TaskReorderNotify = "reorder:notify"
	// TaskReorderSweep re-evaluates every catalog item at or below minimum.
	TaskReorderSweep = "reorder:sweep"
)

// Reorder trigger sources carried on notifications.
const (
	SourceReceipt = "receipt"
	SourceSweep   = "sweep"
)

// ReorderNotifyPayload describes one automatically created purchase order.
type ReorderNotifyPayload struct {
	reorder.ReorderCreated
	Source string `json:"source"`
}

// NewReorderNotifyTask constructs a notification task. Notifications retry at
// most three times.
func NewReorderNotifyTask(payload ReorderNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderNotify, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// ReorderSweepPayload carries optional sweep parameters.
type ReorderSweepPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewReorderSweepTask builds a sweep task. The sweep is idempotent so it is
// not retried; the next scheduled run picks up anything missed.
func NewReorderSweepTask(payload ReorderSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderSweep, data, asynq.Queue(QueueDefault), asynq.MaxRetry(0), asynq.Timeout(10*time.Minute)), nil
}

// ReorderNotifyJob logs reorder notifications. Delivery to staff channels is
// a deployment concern layered on top of the log stream.
type ReorderNotifyJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskReorderNotify tasks.
func (j *ReorderNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReorderNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode reorder notification: %v: %w", err, asynq.SkipRetry)
	}
	if payload.PurchaseOrderID == 0 {
		return fmt.Errorf("reorder notification without purchase order: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskReorderNotify)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "replenishment order created",
		slog.String("po_number", payload.Number),
		slog.Int64("po_id", payload.PurchaseOrderID),
		slog.Int64("supplier_id", payload.SupplierID),
		slog.Int64("item_id", payload.ItemID),
		slog.String("item_name", payload.ItemName),
		slog.Int("quantity", payload.Quantity),
		slog.Int("on_hand", payload.OnHand),
		slog.Int("minimum", payload.Minimum),
		slog.String("total", payload.Total.StringFixed(2)),
		slog.String("source", payload.Source),
	)
	if payload.Source != SourceSweep {
		j.Metrics.AddReorders(payload.Source, 1)
	}
	return tracker.End(nil)
}

// Sweeper runs one low-stock sweep.
type Sweeper interface {
	Run(ctx context.Context) (reorder.SweepResult, error)
}

// ReorderSweepJob runs the scheduled low-stock sweep.
type ReorderSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskReorderSweep tasks.
func (j *ReorderSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("reorder sweep: handler not configured")
	}
	var payload ReorderSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode reorder sweep: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := j.Metrics.Track(TaskReorderSweep)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	result, err := j.Sweeper.Run(ctx)
	if err != nil {
		logger.Error("reorder sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetLowStock(result.Scanned, result.Created)
	logger.Info("reorder sweep completed",
		slog.String("requested_by", payload.RequestedBy),
		slog.Int("low_stock", result.Scanned),
		slog.Int("created", result.Created),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// TaskIdempotencyCleanup prunes old idempotency keys.
const TaskIdempotencyCleanup = "idempotency:cleanup"

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// KeyCleaner deletes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob prunes keys past Retention.
type IdempotencyCleanupJob struct {
	Store     KeyCleaner
	Retention time.Duration
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	retention := j.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	return tracker.End(j.Store.Cleanup(ctx, retention))
}
