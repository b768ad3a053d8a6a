package procurement

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clinicstock/internal/platform/httpx"
	"github.com/odyssey-erp/clinicstock/internal/shared"
)

// Handler exposes purchase order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/purchase-orders", h.list)
	r.Post("/purchase-orders", h.create)
	r.Get("/purchase-orders/{id}", h.show)
	r.Post("/purchase-orders/{id}/approve", h.approve)
	r.Post("/purchase-orders/{id}/order", h.markOrdered)
	r.Post("/purchase-orders/{id}/cancel", h.cancel)
}

type createRequest struct {
	SupplierID       int64         `json:"supplier_id" validate:"required,gt=0"`
	OrderDate        *time.Time    `json:"order_date"`
	ExpectedDelivery *time.Time    `json:"expected_delivery"`
	Notes            string        `json:"notes" validate:"max=1000"`
	Items            []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type itemRequest struct {
	InventoryItemID int64           `json:"inventory_item_id" validate:"required,gt=0"`
	Quantity        int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
}

type decisionRequest struct {
	Note string `json:"note" validate:"max=500"`
}

type listResponse struct {
	Data       []PurchaseOrder   `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:     POStatus(q.Get("status")),
		SupplierID: int64(httpx.QueryInt(r, "supplier_id", 0)),
		Search:     q.Get("search"),
		Page:       httpx.QueryInt(r, "page", 1),
		Limit:      httpx.QueryInt(r, "limit", 20),
	}
	orders, total, err := h.service.ListPurchaseOrders(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: orders, Pagination: shared.NewPagination(filter.Page, filter.Limit, total)})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	input := CreatePOInput{
		SupplierID:       req.SupplierID,
		ExpectedDelivery: req.ExpectedDelivery,
		Notes:            req.Notes,
		Actor:            shared.ActorFromContext(r.Context()),
	}
	if req.OrderDate != nil {
		input.OrderDate = *req.OrderDate
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, POItemInput{InventoryItemID: item.InventoryItemID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), input)
	if err != nil {
		h.logger.Warn("create purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

func (h *Handler) markOrdered(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.MarkOrdered)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Cancel)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int64, note string) (PurchaseOrder, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req decisionRequest
	if r.ContentLength > 0 && !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	po, err := action(r.Context(), id, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}
