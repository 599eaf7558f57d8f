package service

import (
	"context"
	"fmt"

	"shop-orders/internal/domain"
	"shop-orders/internal/repository"
)

// OrderQueryService is the read side over recorded orders and open reconciliations.
type OrderQueryService interface {
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	ListOpenReconciliations(ctx context.Context) ([]*domain.ReconciliationTask, error)
}

type orderQueryService struct {
	orders          repository.OrderRepository
	reconciliations repository.ReconciliationRepository
}

func NewOrderQueryService(orders repository.OrderRepository, reconciliations repository.ReconciliationRepository) OrderQueryService {
	return &orderQueryService{
		orders:          orders,
		reconciliations: reconciliations,
	}
}

func (s *orderQueryService) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *orderQueryService) ListOpenReconciliations(ctx context.Context) ([]*domain.ReconciliationTask, error) {
	tasks, err := s.reconciliations.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliations: %w", err)
	}
	return tasks, nil
}
