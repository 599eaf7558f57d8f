package memory

import (
	"context"
	"sync"
	"time"

	"shop-orders/internal/domain"
	"shop-orders/internal/repository"

	"github.com/google/uuid"
)

var _ repository.OrderRepository = (*orderRepositoryInMemory)(nil)

// orderRepositoryInMemory keeps orders in a slice so List preserves insertion order.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items []domain.Order
}

func NewOrderRepository() repository.OrderRepository {
	return &orderRepositoryInMemory{}
}

func (r *orderRepositoryInMemory) Insert(_ context.Context, order *domain.Order) (uuid.UUID, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *order)
	return order.ID, nil
}

func (r *orderRepositoryInMemory) List(_ context.Context) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Order, 0, len(r.items))
	for i := range r.items {
		o := r.items[i]
		result = append(result, &o)
	}
	return result, nil
}

func (r *orderRepositoryInMemory) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.items {
		if r.items[i].ID == id {
			return true, nil
		}
	}
	return false, nil
}
