package service

import (
	"context"
	"errors"
	"fmt"

	"shop-orders/internal/domain"
	"shop-orders/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReservationResult describes stock held for a single order.
type ReservationResult struct {
	ProductID      uuid.UUID
	Quantity       int
	RemainingStock int
}

// InventoryReservation deducts and restores product stock. It never creates orders.
type InventoryReservation interface {
	Reserve(ctx context.Context, productID uuid.UUID, quantity int) (*ReservationResult, error)

	// Release undoes a successful Reserve of the same product and quantity.
	Release(ctx context.Context, productID uuid.UUID, quantity int) (int, error)
}

type inventoryReservation struct {
	stock  repository.StockStore
	logger *zap.Logger
}

func NewInventoryReservation(stock repository.StockStore, logger *zap.Logger) InventoryReservation {
	return &inventoryReservation{
		stock:  stock,
		logger: logger,
	}
}

func (r *inventoryReservation) Reserve(ctx context.Context, productID uuid.UUID, quantity int) (*ReservationResult, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", domain.ErrInvalidRequest)
	}

	remaining, err := r.stock.TryDecrement(ctx, productID, quantity)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) || errors.Is(err, domain.ErrInsufficientStock) {
			r.logger.Info("Stock reservation rejected",
				zap.String("product_id", productID.String()),
				zap.Int("quantity", quantity),
				zap.String("reason", err.Error()),
			)
			return nil, err
		}
		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}

	r.logger.Debug("Stock reserved",
		zap.String("product_id", productID.String()),
		zap.Int("quantity", quantity),
		zap.Int("remaining", remaining),
	)

	return &ReservationResult{
		ProductID:      productID,
		Quantity:       quantity,
		RemainingStock: remaining,
	}, nil
}

func (r *inventoryReservation) Release(ctx context.Context, productID uuid.UUID, quantity int) (int, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("%w: quantity must be at least 1", domain.ErrInvalidRequest)
	}

	restored, err := r.stock.Increment(ctx, productID, quantity)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to release stock: %w", err)
	}

	r.logger.Debug("Stock released",
		zap.String("product_id", productID.String()),
		zap.Int("quantity", quantity),
		zap.Int("stock", restored),
	)
	return restored, nil
}
