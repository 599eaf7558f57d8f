package transport

import (
	"net/http"

	"shop-orders/internal/middleware"
	"shop-orders/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ReconciliationHandler lists reservations awaiting manual stock correction.
type ReconciliationHandler struct {
	queries service.OrderQueryService
	logger  *zap.Logger
}

func NewReconciliationHandler(queries service.OrderQueryService, logger *zap.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		queries: queries,
		logger:  logger,
	}
}

func (h *ReconciliationHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware, adminMiddleware).Get("/api/admin/reconciliations", h.ListOpen)
}

func (h *ReconciliationHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.queries.ListOpenReconciliations(r.Context())
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, tasks)
}
