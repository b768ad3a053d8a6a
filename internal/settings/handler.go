package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/clinicstock/internal/platform/httpx"
)

// Handler exposes the configuration over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the settings handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
	r.Put("/", h.update)
}

type updateRequest struct {
	AutoReorder       *bool `json:"auto_reorder" validate:"required"`
	LowStockThreshold *int  `json:"low_stock_threshold" validate:"required,min=0"`
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Current(r.Context())
	if err != nil {
		h.logger.Error("load settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	saved, err := h.service.Update(r.Context(), SystemConfiguration{
		AutoReorder:       *req.AutoReorder,
		LowStockThreshold: *req.LowStockThreshold,
	})
	if err != nil {
		h.logger.Error("update settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}
