package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shop-orders/internal/domain"
	"shop-orders/internal/metrics"
	"shop-orders/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPersistTimeout = 5 * time.Second
	defaultMaxAttempts    = 5
	defaultInitialDelay   = 50 * time.Millisecond
	defaultMaxDelay       = 2 * time.Second
	defaultMultiplier     = 2.0
)

// PlaceOrderRequest is the raw input of a placement, before validation.
type PlaceOrderRequest struct {
	CustomerName string
	ProductID    string
	Quantity     int
}

// PlacementResult is returned for a recorded order.
type PlacementResult struct {
	OrderID        uuid.UUID
	CustomerName   string
	ProductID      uuid.UUID
	Quantity       int
	RemainingStock int
	CreatedAt      time.Time
}

// RetryConfig bounds the compensating release after a failed order insert.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// OrderServiceConfig bounds the store calls of a placement and its compensation.
type OrderServiceConfig struct {
	// PersistTimeout bounds each store call made after stock is reserved.
	PersistTimeout time.Duration
	Compensation   RetryConfig
}

// OrderService places orders against finite stock.
type OrderService interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlacementResult, error)
}

type orderService struct {
	reservation     InventoryReservation
	orders          repository.OrderRepository
	reconciliations repository.ReconciliationRepository
	metrics         *metrics.OrderMetrics
	config          OrderServiceConfig
	logger          *zap.Logger
}

func NewOrderService(
	reservation InventoryReservation,
	orders repository.OrderRepository,
	reconciliations repository.ReconciliationRepository,
	orderMetrics *metrics.OrderMetrics,
	config OrderServiceConfig,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		reservation:     reservation,
		orders:          orders,
		reconciliations: reconciliations,
		metrics:         orderMetrics,
		config:          withDefaults(config),
		logger:          logger,
	}
}

func withDefaults(c OrderServiceConfig) OrderServiceConfig {
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = defaultPersistTimeout
	}
	if c.Compensation.MaxAttempts < 1 {
		c.Compensation.MaxAttempts = defaultMaxAttempts
	}
	if c.Compensation.InitialDelay <= 0 {
		c.Compensation.InitialDelay = defaultInitialDelay
	}
	if c.Compensation.MaxDelay < c.Compensation.InitialDelay {
		c.Compensation.MaxDelay = max(defaultMaxDelay, c.Compensation.InitialDelay)
	}
	if c.Compensation.Multiplier < 1 {
		c.Compensation.Multiplier = defaultMultiplier
	}
	return c
}

func (s *orderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlacementResult, error) {
	start := time.Now()
	result, err := s.placeOrder(ctx, req)

	label := metrics.ResultOK
	if err != nil {
		label = string(domain.CodeOf(err))
	}
	s.metrics.RecordPlacement(label, time.Since(start))

	return result, err
}

func (s *orderService) placeOrder(ctx context.Context, req PlaceOrderRequest) (*PlacementResult, error) {
	customerName := strings.TrimSpace(req.CustomerName)
	rawProductID := strings.TrimSpace(req.ProductID)

	switch {
	case customerName == "":
		return nil, fmt.Errorf("%w: customer name is required", domain.ErrInvalidRequest)
	case rawProductID == "":
		return nil, fmt.Errorf("%w: product is required", domain.ErrInvalidRequest)
	case req.Quantity < 1:
		return nil, fmt.Errorf("%w: quantity must be at least 1", domain.ErrInvalidRequest)
	}

	// Ids are UUIDs; anything else cannot name a stored product.
	productID, err := uuid.Parse(rawProductID)
	if err != nil {
		return nil, domain.ErrProductNotFound
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Past this point the caller can no longer abandon the placement halfway.
	detached := context.WithoutCancel(ctx)

	reserveCtx, cancel := context.WithTimeout(detached, s.config.PersistTimeout)
	reservation, err := s.reservation.Reserve(reserveCtx, productID, req.Quantity)
	cancel()
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:           uuid.New(),
		CustomerName: customerName,
		ProductID:    productID,
		Quantity:     req.Quantity,
		CreatedAt:    time.Now().UTC(),
	}

	insertCtx, cancel := context.WithTimeout(detached, s.config.PersistTimeout)
	orderID, insertErr := s.orders.Insert(insertCtx, order)
	cancel()
	if insertErr != nil {
		fields := []zap.Field{
			zap.String("order_id", order.ID.String()),
			zap.String("product_id", productID.String()),
			zap.Int("quantity", req.Quantity),
			zap.Error(insertErr),
		}

		// An insert can commit and still report an error. Stock is released
		// only once the order is known to be absent.
		recorded, attempts, err := s.confirmRecorded(detached, order.ID)
		switch {
		case err != nil:
			s.logger.Error("Order outcome unknown after failed insert, keeping stock reserved", fields...)
			s.flagReconciliation(detached, order,
				fmt.Sprintf("order outcome unknown after %d lookup attempt(s): %v", attempts, err))
			return nil, fmt.Errorf("%w: %w", domain.ErrOrderPersistenceFailed, insertErr)
		case !recorded:
			s.logger.Error("Failed to record order, releasing reserved stock", fields...)
			s.compensate(detached, order)
			return nil, fmt.Errorf("%w: %w", domain.ErrOrderPersistenceFailed, insertErr)
		}

		s.logger.Warn("Order recorded despite insert error", fields...)
		orderID = order.ID
	}

	s.logger.Info("Order placed",
		zap.String("order_id", orderID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("quantity", req.Quantity),
		zap.Int("remaining_stock", reservation.RemainingStock),
	)

	return &PlacementResult{
		OrderID:        orderID,
		CustomerName:   customerName,
		ProductID:      productID,
		Quantity:       req.Quantity,
		RemainingStock: reservation.RemainingStock,
		CreatedAt:      order.CreatedAt,
	}, nil
}

func (s *orderService) retryPolicy(ctx context.Context) backoff.BackOff {
	retry := s.config.Compensation

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retry.InitialDelay
	b.MaxInterval = retry.MaxDelay
	b.Multiplier = retry.Multiplier
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retry.MaxAttempts-1)), ctx)
}

// confirmRecorded looks the order up, retrying with the compensation policy.
// A non-nil error means the outcome of the insert could not be determined.
func (s *orderService) confirmRecorded(ctx context.Context, id uuid.UUID) (bool, int, error) {
	attempts := 0
	var recorded bool

	operation := func() error {
		attempts++
		lookupCtx, cancel := context.WithTimeout(ctx, s.config.PersistTimeout)
		defer cancel()

		exists, err := s.orders.Exists(lookupCtx, id)
		if err != nil {
			return err
		}
		recorded = exists
		return nil
	}

	notify := func(err error, next time.Duration) {
		s.logger.Warn("Order lookup failed, retrying",
			zap.String("order_id", id.String()),
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, s.retryPolicy(ctx), notify)
	return recorded, attempts, err
}

// compensate releases the stock held for order, retrying with exponential
// backoff. If the release cannot be completed a reconciliation task is flagged.
func (s *orderService) compensate(ctx context.Context, order *domain.Order) {
	attempts := 0
	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, s.config.PersistTimeout)
		defer cancel()

		_, err := s.reservation.Release(attemptCtx, order.ProductID, order.Quantity)
		if errors.Is(err, domain.ErrProductNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		s.logger.Warn("Stock release failed, retrying",
			zap.String("order_id", order.ID.String()),
			zap.String("product_id", order.ProductID.String()),
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, s.retryPolicy(ctx), notify)
	if err == nil {
		s.metrics.RecordCompensation(metrics.CompensationReleased, attempts)
		s.logger.Info("Reserved stock released after failed order insert",
			zap.String("order_id", order.ID.String()),
			zap.String("product_id", order.ProductID.String()),
			zap.Int("quantity", order.Quantity),
			zap.Int("attempts", attempts),
		)
		return
	}

	s.metrics.RecordCompensation(metrics.CompensationFailed, attempts)
	s.flagReconciliation(ctx, order, fmt.Sprintf("stock release failed after %d attempt(s): %v", attempts, err))
}

func (s *orderService) flagReconciliation(ctx context.Context, order *domain.Order, reason string) {
	task := &domain.ReconciliationTask{
		ID:        uuid.New(),
		ProductID: order.ProductID,
		OrderID:   order.ID,
		Quantity:  order.Quantity,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}

	fields := []zap.Field{
		zap.String("reconciliation_id", task.ID.String()),
		zap.String("order_id", task.OrderID.String()),
		zap.String("product_id", task.ProductID.String()),
		zap.Int("quantity", task.Quantity),
		zap.String("reason", task.Reason),
	}

	flagCtx, cancel := context.WithTimeout(ctx, s.config.PersistTimeout)
	defer cancel()

	if err := s.reconciliations.Flag(flagCtx, task); err != nil {
		s.logger.Error("Failed to flag stock reconciliation", append(fields, zap.Error(err))...)
		return
	}

	s.metrics.RecordReconciliationFlagged()
	s.logger.Error("Stock reconciliation flagged", fields...)
}
