package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shop-orders/internal/domain"
	"shop-orders/internal/metrics"
	"shop-orders/internal/repository"
	"shop-orders/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errStoreDown = errors.New("store unavailable")

// failingOrderRepository rejects every insert and records nothing.
type failingOrderRepository struct {
	inserts atomic.Int32
	lookups atomic.Int32
}

func (m *failingOrderRepository) Insert(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
	m.inserts.Add(1)
	return uuid.Nil, errStoreDown
}

func (m *failingOrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	return []*domain.Order{}, nil
}

func (m *failingOrderRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.lookups.Add(1)
	return false, nil
}

// lostAckOrderRepository stores the order and then reports a timeout, as when
// the commit lands just before the deadline fires.
type lostAckOrderRepository struct {
	repository.OrderRepository
}

func (m *lostAckOrderRepository) Insert(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
	if _, err := m.OrderRepository.Insert(ctx, order); err != nil {
		return uuid.Nil, err
	}
	return uuid.Nil, context.DeadlineExceeded
}

// unreachableOrderRepository fails inserts and every lookup.
type unreachableOrderRepository struct {
	failingOrderRepository
}

func (m *unreachableOrderRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.lookups.Add(1)
	return false, errStoreDown
}

// blockingOrderRepository waits for release before delegating, so tests can
// cancel the caller while the insert is in flight.
type blockingOrderRepository struct {
	repository.OrderRepository
	started chan struct{}
	release chan struct{}
}

func (m *blockingOrderRepository) Insert(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
	close(m.started)
	<-m.release
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	return m.OrderRepository.Insert(ctx, order)
}

// flakyStockStore fails the first failIncrements Increment calls.
type flakyStockStore struct {
	repository.StockStore
	failIncrements int32
	increments     atomic.Int32
}

func (m *flakyStockStore) Increment(ctx context.Context, id uuid.UUID, amount int) (int, error) {
	if m.increments.Add(1) <= m.failIncrements {
		return 0, errStoreDown
	}
	return m.StockStore.Increment(ctx, id, amount)
}

type failingReconciliationRepository struct{}

func (failingReconciliationRepository) Flag(ctx context.Context, task *domain.ReconciliationTask) error {
	return errStoreDown
}

func (failingReconciliationRepository) ListOpen(ctx context.Context) ([]*domain.ReconciliationTask, error) {
	return nil, errStoreDown
}

type orderFixture struct {
	products        repository.ProductRepository
	orders          repository.OrderRepository
	reconciliations repository.ReconciliationRepository
	registry        *prometheus.Registry
}

func newOrderFixture() *orderFixture {
	return &orderFixture{
		products:        memory.NewProductRepository(),
		orders:          memory.NewOrderRepository(),
		reconciliations: memory.NewReconciliationRepository(),
		registry:        prometheus.NewRegistry(),
	}
}

func (f *orderFixture) service(stock repository.StockStore) OrderService {
	if stock == nil {
		stock = f.products
	}
	logger := zap.NewNop()
	return NewOrderService(
		NewInventoryReservation(stock, logger),
		f.orders,
		f.reconciliations,
		metrics.NewOrderMetricsWithRegisterer(f.registry),
		OrderServiceConfig{
			PersistTimeout: time.Second,
			Compensation: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: time.Millisecond,
				MaxDelay:     5 * time.Millisecond,
				Multiplier:   2,
			},
		},
		logger,
	)
}

func (f *orderFixture) seed(t *testing.T, quantity int) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	p := &domain.Product{
		ID:        uuid.New(),
		Name:      "Widget",
		Price:     decimal.RequireFromString("4.20"),
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p.ID
}

func (f *orderFixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.products.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

func (f *orderFixture) orderCount(t *testing.T) int {
	t.Helper()
	orders, err := f.orders.List(context.Background())
	require.NoError(t, err)
	return len(orders)
}

func TestPlaceOrder_Success(t *testing.T) {
	f := newOrderFixture()
	svc := f.service(nil)
	productID := f.seed(t, 5)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerName: "  Alice ",
		ProductID:    productID.String(),
		Quantity:     2,
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, result.OrderID)
	assert.Equal(t, "Alice", result.CustomerName)
	assert.Equal(t, 3, result.RemainingStock)
	assert.Equal(t, 3, f.stock(t, productID))

	orders, err := f.orders.List(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, result.OrderID, orders[0].ID)
	assert.Equal(t, productID, orders[0].ProductID)
	assert.Equal(t, 2, orders[0].Quantity)
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newOrderFixture()
	svc := f.service(nil)
	productID := f.seed(t, 5)

	tests := []struct {
		name string
		req  PlaceOrderRequest
		want error
	}{
		{"blank customer", PlaceOrderRequest{CustomerName: "   ", ProductID: productID.String(), Quantity: 1}, domain.ErrInvalidRequest},
		{"zero quantity", PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 0}, domain.ErrInvalidRequest},
		{"negative quantity", PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: -3}, domain.ErrInvalidRequest},
		{"missing product", PlaceOrderRequest{CustomerName: "Alice", ProductID: "", Quantity: 1}, domain.ErrInvalidRequest},
		{"unknown id", PlaceOrderRequest{CustomerName: "Alice", ProductID: "unknown-id", Quantity: 1}, domain.ErrProductNotFound},
		{"absent product", PlaceOrderRequest{CustomerName: "Alice", ProductID: uuid.NewString(), Quantity: 1}, domain.ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, 5, f.stock(t, productID))
	assert.Equal(t, 0, f.orderCount(t))
}

func TestPlaceOrder_DrainThenInsufficientStock(t *testing.T) {
	f := newOrderFixture()
	svc := f.service(nil)
	productID := f.seed(t, 5)
	ctx := context.Background()

	result, err := svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, result.RemainingStock)

	for i := 0; i < 3; i++ {
		_, err = svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerName: "Bob", ProductID: productID.String(), Quantity: 1})
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Equal(t, domain.CodeInsufficientStock, domain.CodeOf(err))
	}

	assert.Equal(t, 0, f.stock(t, productID))
	assert.Equal(t, 1, f.orderCount(t))
}

func TestPlaceOrder_TwoConcurrentOrdersForMoreThanHalfTheStock(t *testing.T) {
	f := newOrderFixture()
	svc := f.service(nil)
	productID := f.seed(t, 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PlaceOrder(context.Background(), PlaceOrderRequest{
				CustomerName: "Customer",
				ProductID:    productID.String(),
				Quantity:     7,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, f.stock(t, productID))
	assert.Equal(t, 1, f.orderCount(t))
}

func TestPlaceOrder_ConcurrentPlacementsNeverOversell(t *testing.T) {
	f := newOrderFixture()
	svc := f.service(nil)
	const initial = 25
	productID := f.seed(t, initial)

	var wg sync.WaitGroup
	var sold atomic.Int64
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(quantity int) {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
				CustomerName: "Customer",
				ProductID:    productID.String(),
				Quantity:     quantity,
			})
			if err == nil {
				sold.Add(int64(quantity))
			}
		}(i%3 + 1)
	}
	wg.Wait()

	remaining := f.stock(t, productID)
	assert.GreaterOrEqual(t, remaining, 0)
	assert.Equal(t, initial-int(sold.Load()), remaining)

	orders, err := f.orders.List(context.Background())
	require.NoError(t, err)
	total := 0
	for _, o := range orders {
		total += o.Quantity
	}
	assert.Equal(t, int(sold.Load()), total)
}

func TestPlaceOrder_PersistenceFailureRestoresStock(t *testing.T) {
	f := newOrderFixture()
	failing := &failingOrderRepository{}
	f.orders = failing
	svc := f.service(nil)
	productID := f.seed(t, 5)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 3})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderPersistenceFailed)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, domain.CodeOrderPersistenceFailed, domain.CodeOf(err))
	assert.Equal(t, int32(1), failing.inserts.Load())
	assert.Equal(t, int32(1), failing.lookups.Load())
	assert.Equal(t, 5, f.stock(t, productID))

	open, err := f.reconciliations.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPlaceOrder_InsertErrorAfterCommitKeepsStockConsumed(t *testing.T) {
	f := newOrderFixture()
	f.orders = &lostAckOrderRepository{OrderRepository: memory.NewOrderRepository()}
	svc := f.service(nil)
	productID := f.seed(t, 5)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 3})
	require.NoError(t, err)

	orders, err := f.orders.List(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, orders[0].ID, result.OrderID)

	recorded := 0
	for _, o := range orders {
		recorded += o.Quantity
	}
	assert.Equal(t, 5-recorded, f.stock(t, productID))

	open, err := f.reconciliations.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPlaceOrder_UnknownInsertOutcomeKeepsReservationAndFlags(t *testing.T) {
	f := newOrderFixture()
	unreachable := &unreachableOrderRepository{}
	f.orders = unreachable
	svc := f.service(nil)
	productID := f.seed(t, 5)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 2})

	assert.ErrorIs(t, err, domain.ErrOrderPersistenceFailed)
	assert.Equal(t, int32(3), unreachable.lookups.Load())
	assert.Equal(t, 3, f.stock(t, productID))

	open, err := f.reconciliations.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 2, open[0].Quantity)
	assert.Contains(t, open[0].Reason, "order outcome unknown after 3 lookup attempt(s)")
}

func TestPlaceOrder_QuantityBeyondAnyStockIsInsufficient(t *testing.T) {
	f := newOrderFixture()
	svc := f.service(nil)
	productID := f.seed(t, 5)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 3_000_000_000})

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 5, f.stock(t, productID))
}

func TestPlaceOrder_CompensationRetriesUntilReleaseSucceeds(t *testing.T) {
	f := newOrderFixture()
	f.orders = &failingOrderRepository{}
	stock := &flakyStockStore{StockStore: f.products, failIncrements: 2}
	svc := f.service(stock)
	productID := f.seed(t, 5)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 2})

	assert.ErrorIs(t, err, domain.ErrOrderPersistenceFailed)
	assert.Equal(t, int32(3), stock.increments.Load())
	assert.Equal(t, 5, f.stock(t, productID))

	open, err := f.reconciliations.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
	series, err := testutil.GatherAndCount(f.registry, "shop_stock_compensations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestPlaceOrder_CompensationExhaustedFlagsReconciliation(t *testing.T) {
	f := newOrderFixture()
	f.orders = &failingOrderRepository{}
	stock := &flakyStockStore{StockStore: f.products, failIncrements: 100}
	svc := f.service(stock)
	productID := f.seed(t, 5)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 2})

	assert.ErrorIs(t, err, domain.ErrOrderPersistenceFailed)
	assert.Equal(t, int32(3), stock.increments.Load())
	assert.Equal(t, 3, f.stock(t, productID))

	open, err := f.reconciliations.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, productID, open[0].ProductID)
	assert.Equal(t, 2, open[0].Quantity)
	assert.Contains(t, open[0].Reason, "3 attempt(s)")
}

func TestPlaceOrder_FlaggingFailureStillReportsPersistenceFailure(t *testing.T) {
	f := newOrderFixture()
	f.orders = &failingOrderRepository{}
	f.reconciliations = failingReconciliationRepository{}
	stock := &flakyStockStore{StockStore: f.products, failIncrements: 100}
	svc := f.service(stock)
	productID := f.seed(t, 5)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 1})

	assert.ErrorIs(t, err, domain.ErrOrderPersistenceFailed)
}

func TestPlaceOrder_ProductDeletedBeforeReleaseIsNotRetried(t *testing.T) {
	f := newOrderFixture()
	productID := f.seed(t, 5)
	f.orders = &deletingOrderRepository{products: f.products, productID: productID}
	svc := f.service(nil)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrOrderPersistenceFailed)

	open, err := f.reconciliations.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Contains(t, open[0].Reason, "1 attempt(s)")
}

// deletingOrderRepository removes the product and then fails the insert.
type deletingOrderRepository struct {
	failingOrderRepository
	products  repository.ProductRepository
	productID uuid.UUID
}

func (m *deletingOrderRepository) Insert(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
	_ = m.products.Delete(ctx, m.productID)
	return m.failingOrderRepository.Insert(ctx, order)
}

func TestPlaceOrder_CancelledBeforeReservationTouchesNothing(t *testing.T) {
	f := newOrderFixture()
	svc := f.service(nil)
	productID := f.seed(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 1})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.CodeInternal, domain.CodeOf(err))
	assert.Equal(t, 5, f.stock(t, productID))
	assert.Equal(t, 0, f.orderCount(t))
}

func TestPlaceOrder_CancelledAfterReservationStillRecordsOrder(t *testing.T) {
	f := newOrderFixture()
	blocking := &blockingOrderRepository{
		OrderRepository: f.orders,
		started:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	f.orders = blocking
	svc := f.service(nil)
	productID := f.seed(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerName: "Alice", ProductID: productID.String(), Quantity: 2})
		done <- err
	}()

	<-blocking.started
	cancel()
	close(blocking.release)

	require.NoError(t, <-done)
	assert.Equal(t, 3, f.stock(t, productID))
	assert.Equal(t, 1, f.orderCount(t))
}

func TestProperty_StockAccountsForEveryRecordedOrder(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("final stock equals initial stock minus quantities of recorded orders", prop.ForAll(
		func(initial int, quantities []int) bool {
			f := newOrderFixture()
			svc := f.service(nil)
			productID := f.seed(t, initial)

			for _, q := range quantities {
				_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
					CustomerName: "Customer",
					ProductID:    productID.String(),
					Quantity:     q,
				})
				if err != nil && !errors.Is(err, domain.ErrInsufficientStock) {
					return false
				}
			}

			orders, err := f.orders.List(context.Background())
			if err != nil {
				return false
			}
			recorded := 0
			for _, o := range orders {
				recorded += o.Quantity
			}

			remaining := f.stock(t, productID)
			return remaining >= 0 && remaining == initial-recorded
		},
		gen.IntRange(0, 30),
		gen.SliceOf(gen.IntRange(1, 8)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
