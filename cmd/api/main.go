package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gaaka/commerce/internal/cart"
	"github.com/gaaka/commerce/internal/checkout"
	"github.com/gaaka/commerce/internal/handlers"
	"github.com/gaaka/commerce/internal/payments"
	"github.com/gaaka/commerce/internal/platform/config"
	"github.com/gaaka/commerce/internal/platform/observability"
	"github.com/gaaka/commerce/internal/shipping"
)

func main() {
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	tables := shipping.DefaultTables()
	engine, err := shipping.NewEngine(shipping.EngineDeps{
		Tables:              tables,
		SupportedCurrencies: cfg.Commerce.SupportedCurrencies,
		Logger:              componentLogger(logger.Named("shipping")),
	})
	if err != nil {
		logger.Fatal("failed to initialise shipping engine", zap.Error(err))
	}

	tracker, err := shipping.NewTracker(shipping.TrackerDeps{
		Tables:       tables,
		Logger:       componentLogger(logger.Named("tracking")),
		DisableProbe: !cfg.Features.EnableCarrierProbe,
	})
	if err != nil {
		logger.Fatal("failed to initialise shipment tracker", zap.Error(err))
	}

	catalog := buildCatalog(cfg)

	providers := map[string]payments.Provider{}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		logger.Fatal("stripe api key is required (API_PSP_STRIPE_API_KEY)")
	}
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:    cfg.PSP.StripeAPIKey,
		AccountID: cfg.PSP.StripeAccountID,
		Logger:    componentLogger(logger.Named("stripe")),
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}
	providers["card"] = stripeProvider

	paypalProvider, err := payments.NewPayPalProvider(payments.PayPalProviderConfig{
		ClientID: cfg.PSP.PayPalClientID,
		Currency: cfg.Commerce.Currency,
		Sandbox:  cfg.PSP.PayPalSandbox,
		Logger:   componentLogger(logger.Named("paypal")),
	})
	if err != nil {
		logger.Warn("paypal provider disabled", zap.Error(err))
	} else {
		providers["paypal"] = paypalProvider
	}

	manager, err := payments.NewManager(providers, catalog,
		payments.WithLogger(componentLogger(logger.Named("payments"))),
	)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	pricingTables := checkout.DefaultPricingTables()
	pricingTables.Currency = cfg.Commerce.Currency
	calculator, err := checkout.NewCalculator(checkout.CalculatorDeps{
		Tables: pricingTables,
		Logger: componentLogger(logger.Named("pricing")),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing calculator", zap.Error(err))
	}

	store := cart.NewStore()

	// Wallet availability is ultimately a client runtime question; the API
	// offers every configured wallet and lets the storefront filter.
	co, err := checkout.NewCheckout(checkout.CheckoutDeps{
		Cart:       store,
		Processor:  manager,
		Catalog:    catalog,
		Caps:       payments.Capabilities{ApplePay: true, PaymentRequest: true},
		Rates:      engine,
		Calculator: calculator,
		Logger:     componentLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout", zap.Error(err))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(cfg, startedAt)),
		handlers.WithHealthCheck("shipping_tables", func(context.Context) error {
			if tables.ZoneForCountry("DE") == "" {
				return errors.New("zone resolution failed")
			}
			return nil
		}),
		handlers.WithHealthCheck("payment_catalog", func(context.Context) error {
			if len(catalog.AvailableForCountry("DE")) == 0 {
				return errors.New("no payment methods configured")
			}
			return nil
		}),
	)

	shippingHandlers := handlers.NewShippingHandlers(engine, tracker, metrics, cfg.Commerce.Locale)
	checkoutHandlers := handlers.NewCheckoutHandlers(co, metrics, cfg.Commerce.Locale)
	cartHandlers := handlers.NewCartHandlers(store)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithShippingRoutes(shippingHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("commerce api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// componentLogger adapts a zap logger to the event callback the domain
// packages accept.
func componentLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}

func buildCatalog(cfg config.Config) *payments.Catalog {
	catalog := payments.DefaultCatalog()
	if cfg.Features.EnableKlarna {
		return catalog
	}
	methods := catalog.Methods()
	filtered := make([]payments.Method, 0, len(methods))
	for _, method := range methods {
		if method.ID == "klarna" {
			continue
		}
		filtered = append(filtered, method)
	}
	return payments.NewCatalog(filtered)
}

func buildInfoFromEnv(cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Server.Environment,
		StartedAt:   started,
	}
}
