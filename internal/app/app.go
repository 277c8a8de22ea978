package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clinio/server/internal/module/booking"
	"github.com/clinio/server/internal/module/ledger"
	"github.com/clinio/server/internal/module/payment"
	"github.com/clinio/server/internal/module/payment/gateway"
	"github.com/clinio/server/internal/module/refund"
	"github.com/clinio/server/internal/shared/cache"
	"github.com/clinio/server/internal/shared/config"
	"github.com/clinio/server/internal/shared/database"
	"github.com/clinio/server/internal/shared/logger"
	"github.com/clinio/server/internal/utils/metrics"
	"github.com/clinio/server/internal/utils/middleware"
)

// App wires the modules together and owns shared infrastructure.
type App struct {
	config    *config.Config
	db        *gorm.DB
	redis     redis.UniversalClient
	router    *gin.Engine
	logger    *logger.Logger
	zapLogger *zap.Logger
	metrics   *metrics.Metrics

	jwtValidator *middleware.JWTValidator
	authorizer   *middleware.RoleAuthorizer

	ledgerHandler  *ledger.Handler
	bookingHandler *booking.Handler
	paymentHandler *payment.Handler
	webhookHandler *payment.WebhookHandler
	refundHandler  *refund.Handler
}

// bookingOutcomes defers the payment → booking dependency: the payment
// service needs a BookingUpdater at construction time, but the booking
// service is built after it because it reads payments back through the
// payment service.
type bookingOutcomes struct {
	svc *booking.Service
}

func (b *bookingOutcomes) ApplyPaymentOutcome(ctx context.Context, reference string, outcome booking.Outcome) error {
	return b.svc.ApplyPaymentOutcome(ctx, reference, outcome)
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    log,
		zapLogger: zapLog,
		metrics:   metrics.New("clinio"),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	// Redis is optional: without it the rate-limit and idempotency
	// middleware are simply not installed.
	if cfg.Redis.Address != "" {
		redisClient, err := cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			zapLog.Warn("redis connection failed, continuing without it", zap.Error(err))
		} else {
			app.redis = redisClient
		}
	}

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}

	app.router = app.setupRouter()
	app.registerRoutes()

	return app, nil
}

// initModules builds repositories, services and handlers.
func (a *App) initModules() error {
	cfg := a.config

	a.jwtValidator = middleware.NewJWTValidator(&middleware.JWTConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	})
	a.authorizer = middleware.NewRoleAuthorizer(
		cfg.Auth.AdminEmails,
		cfg.Auth.FinanceEmails,
		cfg.Auth.SupportEmails,
	)

	// Ledger first: both payments and bookings post to it.
	ledgerRepo := ledger.NewRepository(a.db)
	ledgerSvc := ledger.NewService(a.db, ledgerRepo, a.zapLogger)
	a.ledgerHandler = ledger.NewHandler(ledgerSvc, a.zapLogger)

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:     cfg.Gateway.BaseURL,
		AccessToken: cfg.Gateway.AccessToken,
		Timeout:     cfg.Gateway.Timeout,
	}, a.zapLogger)
	hasGateway := cfg.Gateway.AccessToken != ""
	if !hasGateway {
		a.zapLogger.Warn("gateway access token not configured, webhooks will be recorded but not reconciled")
	}

	paymentRepo := payment.NewRepository(a.db)
	outcomes := &bookingOutcomes{}
	paymentSvc := payment.NewService(
		paymentRepo,
		gatewayClient,
		outcomes,
		ledgerSvc,
		a.metrics,
		cfg.Gateway.WebhookSecret,
		hasGateway,
		a.zapLogger,
	)

	bookingRepo := booking.NewRepository(a.db)
	bookingSvc := booking.NewService(a.db, bookingRepo, ledgerSvc, paymentSvc, a.zapLogger)
	outcomes.svc = bookingSvc

	a.paymentHandler = payment.NewHandler(paymentSvc, a.zapLogger)
	a.webhookHandler = payment.NewWebhookHandler(paymentSvc, a.zapLogger)
	a.bookingHandler = booking.NewHandler(bookingSvc, a.authorizer, a.zapLogger)

	s3Client, err := refund.NewS3Client(context.Background(), refund.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKeyID,
		SecretKey: cfg.Storage.SecretAccessKey,
		Bucket:    cfg.Storage.Bucket,
	})
	if err != nil {
		return fmt.Errorf("init s3 client: %w", err)
	}
	evidenceStore := refund.NewS3EvidenceStore(s3Client, cfg.Storage.Bucket)

	var mailer refund.Mailer
	if cfg.Email.Provider == "smtp" {
		mailer = refund.NewSMTPMailer(&refund.SMTPConfig{
			Host:        cfg.Email.SMTP.Host,
			Port:        cfg.Email.SMTP.Port,
			User:        cfg.Email.SMTP.User,
			Password:    cfg.Email.SMTP.Password,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
		}, a.zapLogger)
	} else {
		mailer = refund.NewNoOpMailer(a.zapLogger)
	}

	refundRepo := refund.NewRepository(a.db)
	refundSvc := refund.NewService(
		a.db,
		refundRepo,
		paymentRepo,
		bookingSvc,
		ledgerSvc,
		evidenceStore,
		a.metrics,
		a.zapLogger,
	)
	dispatcher := refund.NewDispatcher(refundRepo, mailer, a.metrics, refund.DispatcherConfig{
		MaxAttempts:  cfg.Dispatch.MaxAttempts,
		BatchSize:    cfg.Dispatch.BatchSize,
		RetryBackoff: cfg.Dispatch.RetryBackoff,
	}, a.zapLogger)
	a.refundHandler = refund.NewHandler(refundSvc, dispatcher, cfg.Dispatch.CronTokenHash, a.zapLogger)

	return nil
}

// setupRouter creates the gin router with the global middleware chain.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(a.metrics.Middleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// registerRoutes registers routes for all modules.
func (a *App) registerRoutes() {
	// Gateway push endpoint, outside the operator API surface.
	a.webhookHandler.RegisterRoutes(a.router)

	v1 := a.router.Group("/api/v1")
	if a.redis != nil {
		limiter := middleware.NewRedisRateLimiter(a.redis)
		v1.Use(middleware.RateLimit(limiter, middleware.DefaultRateLimitConfig()))
	}

	protected := v1.Group("")
	protected.Use(middleware.RequireAuth(a.jwtValidator))

	a.paymentHandler.RegisterRoutes(protected)
	a.bookingHandler.RegisterRoutes(protected)

	adminRouter := protected.Group("")
	adminRouter.Use(middleware.RequireAdmin(a.authorizer))
	financeRouter := protected.Group("")
	financeRouter.Use(middleware.RequireAnyRole(a.authorizer, middleware.RoleAdmin, middleware.RoleFinance))
	a.ledgerHandler.RegisterRoutes(adminRouter, financeRouter)

	refundRouter := protected.Group("")
	refundRouter.Use(middleware.RequireRefundRole(a.authorizer))
	if a.redis != nil {
		refundRouter.Use(middleware.Idempotency(a.redis, middleware.DefaultIdempotencyConfig()))
	}
	overviewRouter := protected.Group("")
	overviewRouter.Use(middleware.RequireOverviewRole(a.authorizer))

	// Dispatch authenticates inside the handler (operator JWT or cron token),
	// so it only gets optional auth here.
	dispatchRouter := v1.Group("")
	dispatchRouter.Use(middleware.OptionalAuth(a.jwtValidator))

	a.refundHandler.RegisterRoutes(refundRouter, overviewRouter, dispatchRouter)
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases shared resources.
func (a *App) Stop() {
	if a.zapLogger != nil {
		_ = a.zapLogger.Sync()
	}
	if a.redis != nil {
		_ = cache.Close(a.redis)
	}
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
