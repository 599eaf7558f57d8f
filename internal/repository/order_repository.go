package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shop-orders/internal/domain"

	"github.com/google/uuid"
)

// OrderRepository defines the interface for order data access.
// Orders are append-only.
type OrderRepository interface {
	Insert(ctx context.Context, order *domain.Order) (uuid.UUID, error)
	List(ctx context.Context) ([]*domain.Order, error)

	// Exists reports whether an order with id was recorded.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Insert stores the order, assigning an id and creation time when unset.
func (r *orderRepository) Insert(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO orders (id, customer_name, product_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		order.ID,
		order.CustomerName,
		order.ProductID,
		order.Quantity,
		order.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert order: %w", err)
	}

	return order.ID, nil
}

func (r *orderRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check order existence: %w", err)
	}
	return exists, nil
}

// List returns every order in insertion order.
func (r *orderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	query := `
		SELECT id, customer_name, product_id, quantity, created_at
		FROM orders
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order := &domain.Order{}
		if err := rows.Scan(
			&order.ID,
			&order.CustomerName,
			&order.ProductID,
			&order.Quantity,
			&order.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}
