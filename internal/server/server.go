package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"shop-orders/internal/config"
	"shop-orders/internal/database"
	"shop-orders/internal/metrics"
	custommiddleware "shop-orders/internal/middleware"
	"shop-orders/internal/service"
	"shop-orders/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

type Server struct {
	*http.Server
	logger *zap.Logger
	db     database.Service
	redis  *redis.Client
}

// NewServer wires stores, services and handlers. db may be nil when the
// memory store driver is selected.
func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service) (*Server, error) {
	st, err := newStores(cfg.Store.Driver, db)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Services
	reservation := service.NewInventoryReservation(st.products, logger)
	orderService := service.NewOrderService(
		reservation,
		st.orders,
		st.reconciliations,
		metrics.NewOrderMetrics(),
		service.OrderServiceConfig{
			PersistTimeout: cfg.Orders.PersistTimeout,
			Compensation: service.RetryConfig{
				MaxAttempts:  cfg.Orders.CompensationMaxAttempts,
				InitialDelay: cfg.Orders.CompensationInitialDelay,
				MaxDelay:     cfg.Orders.CompensationMaxDelay,
				Multiplier:   cfg.Orders.CompensationMultiplier,
			},
		},
		logger,
	)
	queryService := service.NewOrderQueryService(st.orders, st.reconciliations)
	productService := service.NewProductService(st.products)
	loginAttempts := service.NewRedisLoginAttemptTracker(redisClient, cfg.Auth.MaxLoginAttempts, cfg.Auth.LoginAttemptWindow)
	userService := service.NewUserService(
		st.users,
		loginAttempts,
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessExpiry)*time.Minute,
		logger,
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.IsDevelopment()))

	s := &Server{
		logger: logger,
		db:     db,
		redis:  redisClient,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminMiddleware := custommiddleware.RequireAdmin(logger)
	rateLimit := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.Requests,
		Window:            cfg.RateLimit.Window,
		KeyPrefix:         "rate_limit",
	}, logger)

	router.Group(func(r chi.Router) {
		r.Use(rateLimit)

		transport.NewUserHandler(userService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewProductHandler(productService, logger).RegisterRoutes(r, authMiddleware, adminMiddleware)
		transport.NewOrderHandler(orderService, queryService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewReconciliationHandler(queryService, logger).RegisterRoutes(r, authMiddleware, adminMiddleware)
	})

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	stats := map[string]string{"status": "up", "store": StoreDriverMemory}
	if s.db != nil {
		stats = s.db.Health(ctx)
		stats["store"] = StoreDriverPostgres
	}

	if err := s.redis.Ping(ctx).Err(); err != nil {
		stats["redis"] = "down"
	} else {
		stats["redis"] = "up"
	}

	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	custommiddleware.RespondWithJSON(w, status, stats)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if err := s.redis.Close(); err != nil {
		s.logger.Error("Failed to close redis client", zap.Error(err))
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}
