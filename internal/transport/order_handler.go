package transport

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"shop-orders/internal/domain"
	"shop-orders/internal/middleware"
	"shop-orders/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PlaceOrderRequest is the body of POST /api/orders. Product carries the product id.
type PlaceOrderRequest struct {
	CustomerName string `json:"customerName" validate:"required"`
	Product      string `json:"product" validate:"required"`
	Quantity     int    `json:"quantity" validate:"required,gte=1"`
}

// PlaceOrderResponse confirms a recorded order.
type PlaceOrderResponse struct {
	Message   string    `json:"message"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Product   string    `json:"product"`
	Quantity  int       `json:"quantity"`
}

// OrderHandler exposes order placement and listing.
type OrderHandler struct {
	orders  service.OrderService
	queries service.OrderQueryService
	logger  *zap.Logger
}

func NewOrderHandler(orders service.OrderService, queries service.OrderQueryService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:  orders,
		queries: queries,
		logger:  logger,
	}
}

// RegisterRoutes mounts the order routes. Both require a valid access token.
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.PlaceOrder)
		r.Get("/", h.ListOrders)
	})
}

func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Order request rejected", zap.Error(err))
		if errors.Is(err, middleware.ErrMalformedBody) {
			middleware.RespondWithDomainError(w, fmt.Errorf("%w: malformed request body", domain.ErrInvalidRequest), h.logger)
			return
		}
		middleware.RespondWithDecodeError(w, err)
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		CustomerName: req.CustomerName,
		ProductID:    req.Product,
		Quantity:     req.Quantity,
	})
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, PlaceOrderResponse{
		Message:   "Order placed successfully",
		ID:        result.OrderID.String(),
		CreatedAt: result.CreatedAt,
		Product:   result.ProductID.String(),
		Quantity:  result.Quantity,
	})
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queries.ListOrders(r.Context())
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}
