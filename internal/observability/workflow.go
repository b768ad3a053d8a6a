package observability

import "github.com/prometheus/client_golang/prometheus"

// Reorder outcome labels.
const (
	ReorderCreated = "created"
	ReorderSkipped = "skipped"
	ReorderFailed  = "failed"
)

// Workflow counts receiving and reorder activity. A nil *Workflow is a no-op.
type Workflow struct {
	receipts       prometheus.Counter
	discrepancies  prometheus.Counter
	stockFailures  prometheus.Counter
	reorderResults *prometheus.CounterVec
}

// NewWorkflow registers the workflow collectors. A nil registerer selects the
// default Prometheus registerer.
func NewWorkflow(registerer prometheus.Registerer) *Workflow {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	w := &Workflow{
		receipts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinicstock_receipts_total",
			Help: "Stock receipts recorded.",
		}),
		discrepancies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinicstock_receipt_discrepancies_total",
			Help: "Receipt lines whose received quantity differs from the ordered quantity.",
		}),
		stockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinicstock_stock_update_failures_total",
			Help: "Stock increments that failed after a receipt was saved.",
		}),
		reorderResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicstock_reorder_evaluations_total",
			Help: "Reorder evaluations by outcome.",
		}, []string{"outcome"}),
	}
	registerer.MustRegister(w.receipts, w.discrepancies, w.stockFailures, w.reorderResults)
	return w
}

// ReceiptRecorded counts one receipt and its discrepant lines.
func (w *Workflow) ReceiptRecorded(discrepancies int) {
	if w == nil {
		return
	}
	w.receipts.Inc()
	if discrepancies > 0 {
		w.discrepancies.Add(float64(discrepancies))
	}
}

// StockUpdateFailed counts a failed stock increment.
func (w *Workflow) StockUpdateFailed() {
	if w == nil {
		return
	}
	w.stockFailures.Inc()
}

// ReorderEvaluated counts an evaluation outcome.
func (w *Workflow) ReorderEvaluated(outcome string) {
	if w == nil {
		return
	}
	w.reorderResults.WithLabelValues(outcome).Inc()
}
