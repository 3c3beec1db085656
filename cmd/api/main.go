package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/safar/go-storefront/internal/api"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/currency"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/logging"
	"github.com/safar/go-storefront/internal/metrics"
	"github.com/safar/go-storefront/internal/notify"
	"github.com/safar/go-storefront/internal/payment"
	"github.com/safar/go-storefront/internal/tracing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	tp, err := tracing.InitTracerProvider(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		logger.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("Tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to database")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "storefront"),
	)
	m := metrics.New(registry)

	gateway := payment.NewWebpayClient(payment.WebpayOptions{
		BaseURL:      cfg.Webpay.BaseURL,
		CommerceCode: cfg.Webpay.CommerceCode,
		APIKey:       cfg.Webpay.APIKey,
		Timeout:      cfg.Webpay.Timeout,
	}, m, logger)

	sink, err := notify.New(notify.Options{
		Driver: cfg.Notify.Driver,
		SMTP: notify.SMTPOptions{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.SMTPUsername,
			Password: cfg.Notify.SMTPPassword,
			From:     cfg.Notify.From,
		},
		KafkaBrokers: cfg.Notify.KafkaBrokers,
		KafkaTopic:   cfg.Notify.KafkaTopic,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to build notification sink", zap.Error(err))
	}
	if closer, ok := sink.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	rateCache, closeCache := buildRateCache(ctx, cfg, logger)
	defer closeCache()

	converter := currency.NewConverter(
		currency.NewBancoCentralClient(currency.BancoCentralOptions{
			BaseURL:      cfg.Currency.BaseURL,
			User:         cfg.Currency.User,
			Password:     cfg.Currency.Password,
			LookbackDays: cfg.Currency.LookbackDays,
		}, logger),
		rateCache, m, logger)

	checkoutService := checkout.NewService(db, gateway, sink, m, logger, checkout.Options{
		ReturnURL:      cfg.ReturnURL(),
		BuyOrderPrefix: cfg.Checkout.BuyOrderPrefix,
	})

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Deps{
		DB:              db,
		Checkout:        checkoutService,
		Converter:       converter,
		Issuer:          auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Gatherer:        registry,
		Logger:          logger,
		ConfirmationURL: cfg.Checkout.ConfirmationURL,
		ReturnPath:      cfg.Checkout.ReturnPath,
		ProxySecret:     cfg.Auth.ProxySecret,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}
	logger.Info("Server stopped")
}

func buildRateCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (currency.RateCache, func()) {
	if cfg.Currency.CacheDriver != "redis" {
		return currency.NewMemoryCache(cfg.Currency.CacheTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, rates will be fetched until it recovers", zap.Error(err))
	}

	return currency.NewRedisCache(client, cfg.Currency.CacheTTL), func() { _ = client.Close() }
}
