package inventory

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clinicstock/internal/platform/httpx"
	"github.com/odyssey-erp/clinicstock/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.listItems)
	r.Post("/items", h.createItem)
	r.Get("/items/{id}", h.showItem)
	r.Put("/items/{id}", h.updateItem)
	r.Post("/items/{id}/issue", h.issue)
	r.Get("/items/{id}/movements", h.movements)
}

type itemRequest struct {
	Name         string          `json:"name" validate:"required,max=200"`
	SKU          string          `json:"sku" validate:"max=64"`
	Unit         string          `json:"unit" validate:"max=32"`
	InitialStock int             `json:"initial_stock" validate:"min=0"`
	MinimumStock int             `json:"minimum_stock" validate:"min=0"`
	MaximumStock *int            `json:"maximum_stock" validate:"omitempty,min=0"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	SupplierID   int64           `json:"supplier_id" validate:"min=0"`
}

func (req itemRequest) toInput() ItemInput {
	return ItemInput{
		Name:         req.Name,
		SKU:          req.SKU,
		Unit:         req.Unit,
		InitialStock: req.InitialStock,
		MinimumStock: req.MinimumStock,
		MaximumStock: req.MaximumStock,
		UnitPrice:    req.UnitPrice,
		SupplierID:   req.SupplierID,
	}
}

type issueRequest struct {
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Note     string `json:"note" validate:"max=500"`
}

type listResponse struct {
	Data       []Item            `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ItemFilter{
		Search:   q.Get("search"),
		LowStock: q.Get("low_stock") == "true",
		Page:     httpx.QueryInt(r, "page", 1),
		Limit:    httpx.QueryInt(r, "limit", 50),
	}
	filter.SupplierID = int64(httpx.QueryInt(r, "supplier_id", 0))
	items, total, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.logger.Error("list items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: items, Pagination: shared.NewPagination(filter.Page, filter.Limit, total)})
}

func (h *Handler) showItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	item, err := h.service.CreateItem(r.Context(), req.toInput())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, req.toInput())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req issueRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	change, err := h.service.StockOut(r.Context(), StockInput{
		ItemID:    id,
		Quantity:  req.Quantity,
		RefModule: RefIssue,
		Note:      req.Note,
	})
	if err != nil {
		h.logger.Warn("issue stock", slog.Int64("item_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := MovementFilter{ItemID: id, Limit: httpx.QueryInt(r, "limit", 200)}
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		if filter.From, err = time.Parse("2006-01-02", from); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from must be YYYY-MM-DD")
			return
		}
	}
	if to := q.Get("to"); to != "" {
		if filter.To, err = time.Parse("2006-01-02", to); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "to must be YYYY-MM-DD")
			return
		}
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}
