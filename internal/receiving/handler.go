package receiving

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/clinicstock/internal/platform/httpx"
	"github.com/odyssey-erp/clinicstock/internal/shared"
)

// IdempotencyHeader carries the client key for a receipt submission.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes goods receiving endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the receiving handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers receiving routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/receipts", h.list)
	r.Post("/receipts", h.create)
	r.Get("/receipts/{id}", h.show)
	r.Put("/receipts/{id}", h.update)
}

type createRequest struct {
	PurchaseOrderID int64         `json:"purchase_order_id" validate:"gte=0"`
	SupplierID      int64         `json:"supplier_id" validate:"required_without=PurchaseOrderID,gte=0"`
	ReceiptDate     *time.Time    `json:"receipt_date" validate:"required"`
	ReceivedBy      string        `json:"received_by" validate:"max=120"`
	Notes           string        `json:"notes" validate:"max=1000"`
	Items           []lineRequest `json:"items" validate:"required,min=1,dive"`
}

type lineRequest struct {
	PurchaseOrderItemID int64      `json:"purchase_order_item_id" validate:"gte=0"`
	InventoryItemID     int64      `json:"inventory_item_id" validate:"gte=0"`
	ItemName            string     `json:"item_name" validate:"max=200"`
	ReceivedQuantity    int        `json:"received_quantity" validate:"gte=0"`
	BatchNumber         string     `json:"batch_number" validate:"max=100"`
	LotNumber           string     `json:"lot_number" validate:"max=100"`
	ExpiryDate          *time.Time `json:"expiry_date"`
	ManufactureDate     *time.Time `json:"manufacture_date"`
	Condition           string     `json:"condition" validate:"omitempty,oneof=good damaged expired"`
	StorageLocation     string     `json:"storage_location" validate:"max=100"`
	Remarks             string     `json:"remarks" validate:"max=500"`
}

type updateRequest struct {
	ReceivedBy *string       `json:"received_by" validate:"omitempty,max=120"`
	Notes      *string       `json:"notes" validate:"omitempty,max=1000"`
	Items      []editRequest `json:"items" validate:"dive"`
}

type editRequest struct {
	ReceivedQuantity int        `json:"received_quantity" validate:"gte=0"`
	BatchNumber      string     `json:"batch_number" validate:"max=100"`
	LotNumber        string     `json:"lot_number" validate:"max=100"`
	ExpiryDate       *time.Time `json:"expiry_date"`
	ManufactureDate  *time.Time `json:"manufacture_date"`
	Condition        string     `json:"condition" validate:"omitempty,oneof=good damaged expired"`
	StorageLocation  string     `json:"storage_location" validate:"max=100"`
	Remarks          string     `json:"remarks" validate:"max=500"`
}

type listResponse struct {
	Data       []StockReceipt    `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		PurchaseOrderID: int64(httpx.QueryInt(r, "purchase_order_id", 0)),
		SupplierID:      int64(httpx.QueryInt(r, "supplier_id", 0)),
		Page:            httpx.QueryInt(r, "page", 1),
		Limit:           httpx.QueryInt(r, "limit", 20),
	}
	if from, err := parseDate(q.Get("from")); err == nil {
		filter.From = from
	}
	if to, err := parseDate(q.Get("to")); err == nil {
		filter.To = to
	}
	receipts, total, err := h.service.ListReceipts(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: receipts, Pagination: shared.NewPagination(filter.Page, filter.Limit, total)})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	receipt, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	input := CreateReceiptInput{
		PurchaseOrderID: req.PurchaseOrderID,
		SupplierID:      req.SupplierID,
		ReceivedBy:      req.ReceivedBy,
		Notes:           req.Notes,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
		ReceiptDate:     *req.ReceiptDate,
	}
	for _, line := range req.Items {
		input.Items = append(input.Items, LineInput{
			PurchaseOrderItemID: line.PurchaseOrderItemID,
			InventoryItemID:     line.InventoryItemID,
			ItemName:            line.ItemName,
			ReceivedQuantity:    line.ReceivedQuantity,
			BatchNumber:         line.BatchNumber,
			LotNumber:           line.LotNumber,
			ExpiryDate:          line.ExpiryDate,
			ManufactureDate:     line.ManufactureDate,
			Condition:           Condition(line.Condition),
			StorageLocation:     line.StorageLocation,
			Remarks:             line.Remarks,
		})
	}
	out, err := h.service.CreateReceipt(r.Context(), input)
	if err != nil {
		h.logger.Warn("create receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	input := UpdateReceiptInput{ReceivedBy: req.ReceivedBy, Notes: req.Notes}
	for _, line := range req.Items {
		input.Items = append(input.Items, LineEdit{
			ReceivedQuantity: line.ReceivedQuantity,
			BatchNumber:      line.BatchNumber,
			LotNumber:        line.LotNumber,
			ExpiryDate:       line.ExpiryDate,
			ManufactureDate:  line.ManufactureDate,
			Condition:        Condition(line.Condition),
			StorageLocation:  line.StorageLocation,
			Remarks:          line.Remarks,
		})
	}
	out, err := h.service.UpdateReceipt(r.Context(), id, input)
	if err != nil {
		h.logger.Warn("update receipt", slog.Int64("receipt_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}
