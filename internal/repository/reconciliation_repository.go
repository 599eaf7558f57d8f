package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shop-orders/internal/domain"

	"github.com/google/uuid"
)

// ReconciliationRepository records stock that must be restored by an operator.
type ReconciliationRepository interface {
	Flag(ctx context.Context, task *domain.ReconciliationTask) error
	ListOpen(ctx context.Context) ([]*domain.ReconciliationTask, error)
}

type reconciliationRepository struct {
	db *sql.DB
}

func NewReconciliationRepository(db *sql.DB) ReconciliationRepository {
	return &reconciliationRepository{db: db}
}

func (r *reconciliationRepository) Flag(ctx context.Context, task *domain.ReconciliationTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO stock_reconciliations (id, product_id, order_id, quantity, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.ProductID,
		task.OrderID,
		task.Quantity,
		task.Reason,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to flag reconciliation: %w", err)
	}

	return nil
}

func (r *reconciliationRepository) ListOpen(ctx context.Context) ([]*domain.ReconciliationTask, error) {
	query := `
		SELECT id, product_id, order_id, quantity, reason, created_at
		FROM stock_reconciliations
		WHERE resolved_at IS NULL
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliations: %w", err)
	}
	defer rows.Close()

	tasks := []*domain.ReconciliationTask{}
	for rows.Next() {
		task := &domain.ReconciliationTask{}
		if err := rows.Scan(
			&task.ID,
			&task.ProductID,
			&task.OrderID,
			&task.Quantity,
			&task.Reason,
			&task.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconciliations: %w", err)
	}

	return tasks, nil
}
