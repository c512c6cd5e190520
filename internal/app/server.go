// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"sokopay-service/internal/config"
	"sokopay-service/internal/db"
	"sokopay-service/internal/events"
	opsHandler "sokopay-service/internal/handlers/ops"
	paymentHandler "sokopay-service/internal/handlers/payment"
	streamHandler "sokopay-service/internal/handlers/stream"
	"sokopay-service/internal/metrics"
	"sokopay-service/internal/middleware"
	"sokopay-service/internal/repository/postgres"
	"sokopay-service/internal/service/mpesa"
	paymentUsecase "sokopay-service/internal/service/payment"
	"sokopay-service/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	http   *http.Server

	pool      *pgxpool.Pool
	redis     *redis.Client
	publisher events.Publisher
	hubStop   context.CancelFunc
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.Default()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectPostgres(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.pool = pool
	log.Println("[POSTGRES] ✅ Connected successfully")

	paymentRepo := postgres.NewPaymentRepository(pool)
	if err := paymentRepo.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize payments schema: %w", err)
	}

	// ----- Redis -----
	// The gateway works without Redis; tokens are then fetched per call.
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		logger.Warn("redis unavailable, gateway token caching disabled", zap.Error(err))
		redisClient = nil
	} else {
		s.redis = redisClient
		log.Println("[REDIS] ✅ Connected successfully")
	}

	// ----- Metrics -----
	m := metrics.New(prometheus.DefaultRegisterer)

	// ----- Event publisher -----
	var publisher events.Publisher = events.NopPublisher{}
	if len(s.cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(s.cfg.KafkaBrokers, s.cfg.KafkaTopic)
		log.Printf("[KAFKA] ✅ Publishing payment events to %s", s.cfg.KafkaTopic)
	} else {
		logger.Info("no Kafka brokers configured, payment events are not published")
	}
	s.publisher = publisher

	// ----- Status stream hub -----
	hubCtx, hubStop := context.WithCancel(ctx)
	s.hubStop = hubStop
	hub := stream.NewHub(m, logger)
	go hub.Run(hubCtx)

	// ----- M-Pesa gateway -----
	gateway := mpesa.NewClient(s.cfg.Mpesa, redisClient, m, logger)

	// ----- Services (Usecases) -----
	initiationService := paymentUsecase.NewInitiationService(
		paymentRepo,
		gateway,
		s.cfg.Mpesa,
		s.cfg.IsProduction(),
		m,
		logger,
	)
	reconciler := paymentUsecase.NewReconciler(
		paymentRepo,
		gateway,
		publisher,
		hub,
		m,
		logger,
	)
	queryService := paymentUsecase.NewQueryService(paymentRepo, logger)

	// ----- Handlers -----
	stkHandlerInst := paymentHandler.NewStkHandler(initiationService, logger)
	callbackHandlerInst := paymentHandler.NewCallbackHandler(reconciler, s.cfg.Mpesa.CallbackSecret, m, logger)
	statusHandlerInst := paymentHandler.NewStatusHandler(queryService, logger)
	opsHandlerInst := opsHandler.NewOpsHandler(queryService, reconciler)
	streamHandlerInst := streamHandler.NewStreamHandler(hub, queryService, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(s.cfg.OpsJWTSecret)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger, "/payments/callback"),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		StkHandler:      stkHandlerInst,
		CallbackHandler: callbackHandlerInst,
		StatusHandler:   statusHandlerInst,
		OpsHandler:      opsHandlerInst,
		StreamHandler:   streamHandlerInst,
		AuthMiddleware:  authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	s.http = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("🚀 Server running on %s", s.cfg.HTTPAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the connections the
// server holds. Safe to call even when Start failed part way through.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if s.hubStop != nil {
		s.hubStop()
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return firstErr
}
