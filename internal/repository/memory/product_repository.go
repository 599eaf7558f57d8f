package memory

import (
	"context"
	"sort"
	"sync"

	"shop-orders/internal/domain"
	"shop-orders/internal/repository"

	"github.com/google/uuid"
)

var _ repository.ProductRepository = (*productRepositoryInMemory)(nil)

// productEntry guards a single product. Stock checks and writes for one
// product are serialised on mu; different products never contend.
type productEntry struct {
	mu      sync.Mutex
	product domain.Product
	deleted bool
}

type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*productEntry
}

// NewProductRepository returns an in-memory product store for local runs and tests.
func NewProductRepository() repository.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[uuid.UUID]*productEntry),
	}
}

func (r *productRepositoryInMemory) entry(id uuid.UUID) (*productEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[id]
	return e, ok
}

func (r *productRepositoryInMemory) Create(_ context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrInvalidRequest
	}
	r.items[product.ID] = &productEntry{product: *product}
	return nil
}

// Update keeps the stored quantity; only descriptive fields and price change.
func (r *productRepositoryInMemory) Update(_ context.Context, product *domain.Product) error {
	e, ok := r.entry(product.ID)
	if !ok {
		return domain.ErrProductNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return domain.ErrProductNotFound
	}

	e.product.Name = product.Name
	e.product.Description = product.Description
	e.product.Category = product.Category
	e.product.Price = product.Price
	e.product.UpdatedAt = product.UpdatedAt

	product.Quantity = e.product.Quantity
	product.CreatedAt = e.product.CreatedAt
	return nil
}

func (r *productRepositoryInMemory) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	e, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	r.mu.Unlock()

	if !ok {
		return domain.ErrProductNotFound
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

func (r *productRepositoryInMemory) FindByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, domain.ErrProductNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, domain.ErrProductNotFound
	}
	p := e.product
	return &p, nil
}

func (r *productRepositoryInMemory) List(_ context.Context) ([]*domain.Product, error) {
	r.mu.RLock()
	entries := make([]*productEntry, 0, len(r.items))
	for _, e := range r.items {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	result := make([]*domain.Product, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			p := e.product
			result = append(result, &p)
		}
		e.mu.Unlock()
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	return result, nil
}

func (r *productRepositoryInMemory) TryDecrement(_ context.Context, id uuid.UUID, amount int) (int, error) {
	e, ok := r.entry(id)
	if !ok {
		return 0, domain.ErrProductNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return 0, domain.ErrProductNotFound
	}
	if e.product.Quantity < amount {
		return 0, domain.ErrInsufficientStock
	}
	e.product.Quantity -= amount
	return e.product.Quantity, nil
}

func (r *productRepositoryInMemory) Increment(_ context.Context, id uuid.UUID, amount int) (int, error) {
	e, ok := r.entry(id)
	if !ok {
		return 0, domain.ErrProductNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return 0, domain.ErrProductNotFound
	}
	e.product.Quantity += amount
	return e.product.Quantity, nil
}
