package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order records a placed order. It references the product by id and is never
// mutated after creation.
type Order struct {
	ID           uuid.UUID `json:"id" db:"id"`
	CustomerName string    `json:"customerName" db:"customer_name"`
	ProductID    uuid.UUID `json:"product" db:"product_id"`
	Quantity     int       `json:"quantity" db:"quantity"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// ReconciliationTask describes reserved stock that could not be released
// automatically after a failed order insert.
type ReconciliationTask struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
