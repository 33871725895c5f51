package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/internal/config"
	"github.com/crosslogic/payment-orchestrator/internal/eventpublisher"
	"github.com/crosslogic/payment-orchestrator/internal/exchange"
	"github.com/crosslogic/payment-orchestrator/internal/orderclient"
	"github.com/crosslogic/payment-orchestrator/internal/payment"
	"github.com/crosslogic/payment-orchestrator/internal/payment/pgstore"
	"github.com/crosslogic/payment-orchestrator/internal/payment/rediscache"
	"github.com/crosslogic/payment-orchestrator/internal/providers/paypal"
	"github.com/crosslogic/payment-orchestrator/internal/providers/razorpay"
	"github.com/crosslogic/payment-orchestrator/internal/providers/stripe"
	"github.com/crosslogic/payment-orchestrator/internal/rpcserver"
	"github.com/crosslogic/payment-orchestrator/internal/timeoutsvc"
	"github.com/crosslogic/payment-orchestrator/internal/webhookingress"
	"github.com/crosslogic/payment-orchestrator/pkg/cache"
	"github.com/crosslogic/payment-orchestrator/pkg/database"
	"github.com/crosslogic/payment-orchestrator/pkg/events"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting payment orchestrator")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to database")

	redisCache, err := cache.NewCache(cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()
	logger.Info("connected to Redis")

	eventBus := events.NewBus(logger)
	publisher := eventpublisher.New(eventBus)

	store := pgstore.New(db.Pool)
	idempotencyCache := rediscache.New(redisCache)
	exchangeClient := exchange.New(cfg.Exchange.BaseURL, redisCache, logger)
	orderClient := orderclient.New(orderclient.Config{
		BaseURL:        cfg.Order.BaseURL,
		Token:          cfg.Order.Token,
		RequestTimeout: cfg.Order.RequestTimeout,
		MaxRetries:     cfg.Order.MaxRetries,
	}, logger)

	stripeAdapter := stripe.New(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, logger)
	paypalAdapter := paypal.New(paypal.Config{
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
		WebhookID:    cfg.PayPal.WebhookID,
		BaseURL:      cfg.PayPal.BaseURL,
	}, logger)
	razorpayAdapter := razorpay.New(razorpay.Config{
		KeyID:         cfg.Razorpay.KeyID,
		KeySecret:     cfg.Razorpay.KeySecret,
		WebhookSecret: cfg.Razorpay.WebhookSecret,
	}, logger)

	providers := map[payment.Provider]payment.ProviderAdapter{
		payment.ProviderStripe:   stripeAdapter,
		payment.ProviderPayPal:   paypalAdapter,
		payment.ProviderRazorpay: razorpayAdapter,
	}

	service := payment.NewService(
		store,
		idempotencyCache,
		idempotencyCache,
		idempotencyCache,
		publisher,
		orderClient,
		orderClient,
		exchangeClient,
		providers,
		logger,
		cfg.Timeout.PaymentTTL,
	)

	webhookHandler := &webhookingress.Handler{
		Stripe:    stripeAdapter,
		PayPal:    paypalAdapter,
		Razorpay:  razorpayAdapter,
		Publisher: publisher,
		Logger:    logger,
	}

	consumer := &webhookingress.Consumer{
		Service:   service,
		Processed: idempotencyCache,
		Logger:    logger,
	}
	consumer.Register(eventBus)
	logger.Info("registered webhook consumer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := &timeoutsvc.Listener{
		Service:   service,
		Scheduler: idempotencyCache,
		Logger:    logger,
	}
	go func() {
		if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("timeout listener stopped unexpectedly", zap.Error(err))
		}
	}()

	sweeper := &timeoutsvc.Sweeper{
		Service:  service,
		Store:    store,
		Logger:   logger,
		Interval: cfg.Timeout.SweepInterval,
	}
	go sweeper.Run(ctx)
	logger.Info("started timeout listener and sweeper")

	rpc := rpcserver.NewServer(service, db, webhookHandler, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      rpc,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
