package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	calendarapp "github.com/numberport/golang_services/internal/calendar_service/app"
	rulescache "github.com/numberport/golang_services/internal/calendar_service/repository/redis"
	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/core_porting/repository"
	deliveryapp "github.com/numberport/golang_services/internal/delivery_service/app"
	"github.com/numberport/golang_services/internal/delivery_service/provider"
	notifapp "github.com/numberport/golang_services/internal/notification_service/app"
	"github.com/numberport/golang_services/internal/platform/cache"
	"github.com/numberport/golang_services/internal/platform/config"
	"github.com/numberport/golang_services/internal/platform/database"
	"github.com/numberport/golang_services/internal/platform/logger"
	"github.com/numberport/golang_services/internal/platform/messagebroker"
	"github.com/numberport/golang_services/internal/platform/ticker"
	portingapp "github.com/numberport/golang_services/internal/porting_service/app"
	httptransport "github.com/numberport/golang_services/internal/public_api_service/transport/http"
	"github.com/numberport/golang_services/internal/reconciliation_service/adapters/telecom"
	reconapp "github.com/numberport/golang_services/internal/reconciliation_service/app"
	relayapp "github.com/numberport/golang_services/internal/relay_service/app"
)

const (
	serviceName     = "porting_service"
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFile).With("service", serviceName)
	appLogger.Info("Porting service starting...", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	loc, err := time.LoadLocation(cfg.NotificationTimezone)
	if err != nil {
		appLogger.Error("Invalid notification timezone", "timezone", cfg.NotificationTimezone, "error", err)
		os.Exit(1)
	}

	store := repository.Open(mainCtx, cfg.PostgresDSN, database.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}, appLogger)
	defer store.Close()
	appLogger.Info("Storage backend selected", "backend", store.Backend)

	// Leave the interface nil when Redis is off; a typed nil would be called.
	var rulesCache calendarapp.RulesCache
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewRedisClient(mainCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			appLogger.Warn("Redis unavailable, rules cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			rulesCache = rulescache.NewRulesCache(redisClient, cfg.RulesCacheTTL)
			appLogger.Info("Rules cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RulesCacheTTL)
		}
	}

	var publisher messagebroker.Publisher = messagebroker.NoopPublisher{}
	if cfg.NATSUrl != "" {
		natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			appLogger.Warn("NATS unavailable, events disabled", "error", err)
		} else {
			defer natsClient.Close()
			publisher = natsClient
			appLogger.Info("Connected to NATS", "url", cfg.NATSUrl)
		}
	}

	rules := calendarapp.NewRulesService(store.Rules, rulesCache, appLogger)
	if cfg.RulesSeedFile != "" {
		n, err := rules.SeedFromFile(mainCtx, cfg.RulesSeedFile)
		if err != nil {
			appLogger.Error("Failed to seed porting rules", "file", cfg.RulesSeedFile, "error", err)
			os.Exit(1)
		}
		appLogger.Info("Porting rules seeded", "file", cfg.RulesSeedFile, "circles", n)
	}

	templateIDs := make(map[domain.NotificationType]string, len(cfg.SMSTemplateIDs))
	for k, v := range cfg.SMSTemplateIDs {
		templateIDs[domain.NotificationType(k)] = v
	}
	overrides := make(map[domain.NotificationType]notifapp.Template, len(cfg.MessageTemplates))
	for k, v := range cfg.MessageTemplates {
		overrides[domain.NotificationType(k)] = notifapp.Template{Subject: v.Subject, Body: v.Body}
	}
	catalogue := notifapp.Catalogue(overrides)
	scheduler := notifapp.NewScheduler(store.Requests, store.Notifications, store.Relay, appLogger, notifapp.SchedulerConfig{
		Location:           loc,
		SendHour:           cfg.NotificationSendHour,
		RegulatorShortCode: cfg.RegulatorShortCode,
		RegulatorKeyword:   cfg.RegulatorKeyword,
		SMSTemplateIDs:     templateIDs,
		Templates:          catalogue,
	})

	httpClient := &http.Client{Timeout: cfg.SMSProviderTimeout + 5*time.Second}
	primary, secondary := smsProviders(cfg, httpClient, appLogger)
	policy := deliveryapp.NewRetryPolicy(cfg.SMSMaxAttempts, cfg.SMSRetryBaseDelay, cfg.SMSProviderTimeout, cfg.SMSRetryableCodes)
	smsSender := deliveryapp.NewChannelSender(primary, secondary, cfg.DomesticPrefix, policy, appLogger)

	var emailProvider provider.EmailProvider
	if p := provider.NewHTTPEmailProvider(cfg.Email, httpClient, appLogger); p != nil {
		emailProvider = p
	}
	var pushProvider provider.PushProvider
	if p := provider.NewHTTPPushProvider(cfg.Push, httpClient, appLogger); p != nil {
		pushProvider = p
	}

	dispatcher := deliveryapp.NewDispatcher(store.Notifications, store.Failures, smsSender, emailProvider, pushProvider, publisher, appLogger,
		deliveryapp.DispatcherConfig{BatchSize: cfg.DispatchBatchSize})

	telecoms := telecom.NewRegistryFromConfig(cfg.TelecomProviders, &http.Client{Timeout: cfg.StatusCheckTimeout}, appLogger)
	appLogger.Info("Telecom providers registered", "providers", telecoms.Names())

	reconciler := reconapp.NewReconciler(store.Requests, store.Notifications, telecoms, publisher, appLogger, reconapp.ReconcilerConfig{
		BatchSize:      cfg.ReconcileBatchSize,
		CheckTimeout:   cfg.StatusCheckTimeout,
		NotifyUser:     true,
		StatusTemplate: catalogue[domain.NotificationStatusUpdate],
	})

	relay := relayapp.NewRelayService(store.Relay, store.Requests, store.Notifications, appLogger, relayapp.RelayConfig{
		RegulatorShortCode: cfg.RegulatorShortCode,
		RegulatorKeyword:   cfg.RegulatorKeyword,
	})

	validate := validator.New()
	intake := portingapp.NewIntakeService(store.Requests, store.Notifications, store.Relay, rules, scheduler, telecoms, publisher, validate, appLogger,
		portingapp.IntakeConfig{DomesticPrefix: cfg.DomesticPrefix, InitiateTimeout: cfg.StatusCheckTimeout})

	dispatchTicker, err := ticker.New("notification_dispatch", cfg.DispatchInterval, dispatcher.Tick, appLogger)
	if err != nil {
		appLogger.Error("Invalid dispatch interval", "error", err)
		os.Exit(1)
	}
	reconcileTicker, err := ticker.New("status_reconcile", cfg.ReconcileInterval, reconciler.Tick, appLogger)
	if err != nil {
		appLogger.Error("Invalid reconcile interval", "error", err)
		os.Exit(1)
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Porting:   httptransport.NewPortingHandler(intake, scheduler, reconciler, appLogger, validate),
		Circles:   httptransport.NewCircleHandler(rules, appLogger),
		Relay:     httptransport.NewRelayHandler(relay, appLogger, validate),
		Failures:  httptransport.NewFailureHandler(dispatcher, appLogger, validate),
		JWTSecret: []byte(cfg.JWTSecret),
		Logger:    appLogger,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		appLogger.Error("Failed to listen for gRPC", "port", cfg.GRPCPort, "error", err)
		os.Exit(1)
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error { return ignoreCanceled(dispatchTicker.Run(groupCtx)) })
	g.Go(func() error { return ignoreCanceled(reconcileTicker.Run(groupCtx)) })

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("HTTP server shut down gracefully.")
		return nil
	})

	g.Go(func() error {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		appLogger.Info("gRPC health server starting", "address", grpcListener.Addr().String())
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			appLogger.Error("gRPC server failed to serve", "error", err)
			return err
		}
		return nil
	})

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
		case <-groupCtx.Done():
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var shutdownErr error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", "error", err)
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("http shutdown: %w", err))
		}

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		return shutdownErr
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Porting service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Porting service shut down.")
}

// smsProviders builds the primary and secondary gateways. An unconfigured
// gateway is returned as a nil interface so the sender reports it as missing.
func smsProviders(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (primary, secondary provider.SMSSenderProvider) {
	if cfg.SMSUseMock {
		logger.Warn("Using mock SMS providers")
		return provider.NewMockSMSProvider(cfg.SMSPrimary.Name, logger, 0),
			provider.NewMockTemplateSMSProvider(cfg.SMSSecondary.Name, logger)
	}
	if p := provider.NewTransactionalProvider(cfg.SMSPrimary, httpClient, logger); p != nil {
		primary = p
	} else {
		logger.Warn("Primary SMS provider not configured", "name", cfg.SMSPrimary.Name)
	}
	if p := provider.NewRegionalProvider(cfg.SMSSecondary, httpClient, logger); p != nil {
		secondary = p
	} else {
		logger.Warn("Secondary SMS provider not configured", "name", cfg.SMSSecondary.Name)
	}
	return primary, secondary
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
