package server

import (
	"errors"
	"fmt"

	"shop-orders/internal/database"
	"shop-orders/internal/repository"
	"shop-orders/internal/repository/memory"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

var ErrDatabaseRequired = errors.New("postgres store driver requires a database connection")

type stores struct {
	products        repository.ProductRepository
	orders          repository.OrderRepository
	reconciliations repository.ReconciliationRepository
	users           repository.UserRepository
}

func newStores(driver string, db database.Service) (stores, error) {
	switch driver {
	case StoreDriverMemory:
		return stores{
			products:        memory.NewProductRepository(),
			orders:          memory.NewOrderRepository(),
			reconciliations: memory.NewReconciliationRepository(),
			users:           memory.NewUserRepository(),
		}, nil
	case StoreDriverPostgres, "":
		if db == nil {
			return stores{}, ErrDatabaseRequired
		}
		return stores{
			products:        repository.NewProductRepository(db.DB()),
			orders:          repository.NewOrderRepository(db.DB()),
			reconciliations: repository.NewReconciliationRepository(db.DB()),
			users:           repository.NewUserRepository(db.DB()),
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown store driver %q", driver)
	}
}
