package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/controllers"
	"checkout-service/database"
	"checkout-service/logger"
	"checkout-service/middleware"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/providers"
	"checkout-service/repository"
	"checkout-service/routes"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "checkout-service"

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// AWS clients are optional in local development.
	awsCfg, awsErr := aws_pkg.LoadAWSConfig(ctx, nil)

	var shipTo io.Writer
	if cfg.CloudWatchEnabled && awsErr == nil {
		cwWriter, err := aws_pkg.NewCloudWatchLogsWriter(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			log.Printf("CloudWatch Logs unavailable, logging to stdout only: %v", err)
		} else {
			shipTo = cwWriter
		}
	}

	zapLogger, err := logger.New(cfg.AppEnv, shipTo)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := controllers.RegisterValidators(); err != nil {
		zapLogger.Fatal("Failed to register validators", zap.Error(err))
	}

	db, err := database.ConnectPostgres(cfg.DSN(), zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	var locker services.Locker
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, zapLogger)
		if err != nil {
			zapLogger.Warn("Redis unavailable, reconciliation runs without advisory lock", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			locker = database.NewRedisLocker(redisClient)
		}
	}

	var (
		snsClient     aws_pkg.SNSPublisher
		metricsClient *aws_pkg.MetricsClient
		queue         *aws_pkg.SQSConsumer
	)
	if awsErr != nil {
		zapLogger.Warn("AWS config unavailable, SNS, SQS and CloudWatch disabled", zap.Error(awsErr))
	} else {
		snsClient = aws_pkg.NewSNSClient(awsCfg)
		metricsClient = aws_pkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)
		if cfg.ReconcileQueueURL != "" {
			queue = aws_pkg.NewSQSConsumer(awsCfg, cfg.ReconcileQueueURL, zapLogger)
		}
	}

	// Providers: only the configured ones are registered.
	var (
		enabled     []providers.PaymentProvider
		mercadoPago *providers.MercadoPagoProvider
		currencies  []string
	)
	if cfg.StripeEnabled() {
		currencies = append(currencies, cfg.StripeCurrency)
		enabled = append(enabled, providers.NewStripeProvider(providers.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			Currency:  cfg.StripeCurrency,
		}, zapLogger))
	}
	if cfg.MercadoPagoEnabled() {
		mercadoPago = providers.NewMercadoPagoProvider(providers.MercadoPagoConfig{
			AccessToken: cfg.MercadoPagoAccessToken,
			Currency:    cfg.MercadoPagoCurrency,
			BaseURL:     cfg.MercadoPagoBaseURL,
		}, zapLogger)
		enabled = append(enabled, mercadoPago)
		currencies = append(currencies, cfg.MercadoPagoCurrency)
	}
	registry := providers.NewRegistry(enabled...)
	zapLogger.Info("Payment providers registered", zap.Strings("providers", registry.Names()))

	// DI chain
	orderRepo := repository.NewGormOrderRepository(db)
	orderService := services.NewOrderService(orderRepo, services.OrderConfig{Currencies: currencies}, zapLogger)
	checkoutService := services.NewCheckoutService(orderRepo, registry, services.CheckoutConfig{
		SiteURL:     cfg.SiteURL,
		SNSTopicArn: cfg.PaymentSNSTopicARN,
	}, snsClient, metricsClient, zapLogger)
	issuer := services.NewContentIssuer(orderRepo, metricsClient, zapLogger)
	verifier := services.NewVerificationService(orderRepo, registry, issuer, locker,
		snsClient, cfg.PaymentSNSTopicARN, metricsClient, zapLogger)

	var (
		payments services.PaymentLookup
		requeue  services.ReconcileQueue
	)
	if mercadoPago != nil {
		payments = mercadoPago
	}
	if queue != nil {
		requeue = queue
	}
	webhookService := services.NewWebhookService(verifier, cfg.StripeWebhookSecret, payments, requeue, zapLogger)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if queue != nil {
		consumer := services.NewReconcileConsumer(queue, verifier, zapLogger)
		go func() {
			if err := consumer.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
				zapLogger.Error("Reconcile consumer stopped", zap.Error(err))
			}
		}()
	}

	handlers := routes.Handlers{
		Orders:   controllers.NewOrderController(orderService, zapLogger),
		Checkout: controllers.NewCheckoutController(checkoutService, zapLogger),
		Verify:   controllers.NewVerifyController(verifier, zapLogger),
		Webhooks: controllers.NewWebhookController(webhookService, zapLogger),
	}
	auth := middleware.NewAuthenticator(cfg.JWTSecret, zapLogger)
	verifyLimiter := middleware.NewRateLimiter(rate.Limit(5), 10, 10*time.Minute)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger(zapLogger))
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics(metricsClient, serviceName))

	// 30-second request timeout
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})

	routes.RegisterCheckoutRoutes(r, handlers, auth, verifyLimiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("Checkout service started", zap.String("port", cfg.Port))
	<-quit
	zapLogger.Info("Shutting down checkout service...")
	stopConsumer()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exited cleanly")
}
