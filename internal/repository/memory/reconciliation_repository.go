package memory

import (
	"context"
	"sync"
	"time"

	"shop-orders/internal/domain"
	"shop-orders/internal/repository"

	"github.com/google/uuid"
)

var _ repository.ReconciliationRepository = (*reconciliationRepositoryInMemory)(nil)

type reconciliationRepositoryInMemory struct {
	mu    sync.Mutex
	items []domain.ReconciliationTask
}

func NewReconciliationRepository() repository.ReconciliationRepository {
	return &reconciliationRepositoryInMemory{}
}

func (r *reconciliationRepositoryInMemory) Flag(_ context.Context, task *domain.ReconciliationTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *task)
	return nil
}

func (r *reconciliationRepositoryInMemory) ListOpen(_ context.Context) ([]*domain.ReconciliationTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*domain.ReconciliationTask, 0, len(r.items))
	for i := range r.items {
		t := r.items[i]
		result = append(result, &t)
	}
	return result, nil
}
