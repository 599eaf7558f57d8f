package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"shop-orders/internal/domain"
	"shop-orders/internal/metrics"
	"shop-orders/internal/middleware"
	"shop-orders/internal/repository"
	"shop-orders/internal/repository/memory"
	"shop-orders/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testJWTSecret = "test-secret"

// testAPI wires the handlers over in-memory stores the way the server does.
type testAPI struct {
	router          chi.Router
	products        repository.ProductRepository
	orders          repository.OrderRepository
	reconciliations repository.ReconciliationRepository
	users           service.UserService
}

type apiOption func(*apiDeps)

type apiDeps struct {
	orders   repository.OrderRepository
	attempts service.LoginAttemptTracker
}

func withOrderRepository(orders repository.OrderRepository) apiOption {
	return func(d *apiDeps) { d.orders = orders }
}

func withLoginAttempts(attempts service.LoginAttemptTracker) apiOption {
	return func(d *apiDeps) { d.attempts = attempts }
}

func newTestAPI(t *testing.T, opts ...apiOption) *testAPI {
	t.Helper()

	deps := apiDeps{orders: memory.NewOrderRepository()}
	for _, opt := range opts {
		opt(&deps)
	}

	logger := zap.NewNop()
	products := memory.NewProductRepository()
	reconciliations := memory.NewReconciliationRepository()

	orderService := service.NewOrderService(
		service.NewInventoryReservation(products, logger),
		deps.orders,
		reconciliations,
		metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry()),
		service.OrderServiceConfig{
			PersistTimeout: time.Second,
			Compensation:   service.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		},
		logger,
	)
	queries := service.NewOrderQueryService(deps.orders, reconciliations)
	userService := service.NewUserService(memory.NewUserRepository(), deps.attempts, testJWTSecret, time.Hour, logger)

	auth := middleware.AuthMiddleware(testJWTSecret, logger)
	admin := middleware.RequireAdmin(logger)

	router := chi.NewRouter()
	NewUserHandler(userService, logger).RegisterRoutes(router, auth)
	NewProductHandler(service.NewProductService(products), logger).RegisterRoutes(router, auth, admin)
	NewOrderHandler(orderService, queries, logger).RegisterRoutes(router, auth)
	NewReconciliationHandler(queries, logger).RegisterRoutes(router, auth, admin)

	return &testAPI{
		router:          router,
		products:        products,
		orders:          deps.orders,
		reconciliations: reconciliations,
		users:           userService,
	}
}

func (a *testAPI) seedProduct(t *testing.T, quantity int) *domain.Product {
	t.Helper()
	now := time.Now().UTC()
	product := &domain.Product{
		ID:        uuid.New(),
		Name:      "Margherita",
		Category:  "pizza",
		Price:     decimal.RequireFromString("9.50"),
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, a.products.Create(context.Background(), product))
	return product
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func issueToken(t *testing.T, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": uuid.NewString(),
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[middleware.ErrorResponse](t, w).Error.Code
}

func ptr[T any](v T) *T {
	return &v
}

// storeDownOrderRepository fails every insert.
type storeDownOrderRepository struct {
	repository.OrderRepository
}

func (r storeDownOrderRepository) Insert(context.Context, *domain.Order) (uuid.UUID, error) {
	return uuid.Nil, context.DeadlineExceeded
}

