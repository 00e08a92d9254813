package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/docintel/internal/backend/dispatch"
	"github.com/cuongbtq/docintel/internal/backend/handler"
	"github.com/cuongbtq/docintel/internal/backend/router"
	"github.com/cuongbtq/docintel/internal/backend/simulator"
	"github.com/cuongbtq/docintel/internal/backend/storage"
	"github.com/cuongbtq/docintel/internal/config"
	"github.com/cuongbtq/docintel/internal/metrics"
	"github.com/cuongbtq/docintel/shared/logger"
	"github.com/cuongbtq/docintel/shared/postgresql"
	"github.com/cuongbtq/docintel/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const dispatchBuffer = 1024

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("DOCINTEL_BACKEND_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/backend-stub/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateBackendConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting backend stub",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("store", cfg.Backend.Store),
		slog.String("dispatch", cfg.Backend.Dispatch),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := initStore(ctx, &cfg.Backend, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closeStore()

	dispatcher, err := initDispatcher(ctx, &cfg.Backend, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	defer dispatcher.Close()

	metrics.MustRegister(nil)

	hostname, _ := os.Hostname()
	sim := simulator.New(&simulator.Config{
		Logger:       appLogger.Logger,
		Store:        store,
		Dispatcher:   dispatcher,
		WorkerID:     fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		Concurrency:  cfg.Backend.Simulator.Concurrency,
		StepInterval: cfg.Backend.Simulator.StepInterval,
		JobTimeout:   cfg.Backend.Simulator.JobTimeout,
		FailMarker:   cfg.Backend.Simulator.FailMarker,
	})
	if err := sim.Start(ctx); err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}

	r := initRouter(cfg, appLogger.Logger, store, dispatcher)

	addr := fmt.Sprintf(":%d", cfg.Backend.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Backend.Server.ReadTimeout,
		WriteTimeout: cfg.Backend.Server.WriteTimeout,
		IdleTimeout:  cfg.Backend.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	appLogger.Info("Backend stub is running", slog.String("address", addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully", slog.String("signal", sig.String()))
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Backend.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	cancel()
	done := make(chan struct{})
	go func() {
		sim.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Backend stub stopped")
	case <-shutdownCtx.Done():
		appLogger.Warn("Simulator shutdown timeout exceeded, forcing exit")
	}
	return nil
}

func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		NoColor:      cfg.NoColor,
		TimeFormat:   time.RFC3339,
	})
}

func initStore(ctx context.Context, cfg *config.BackendConfig, logger *slog.Logger) (storage.Store, func(), error) {
	policy := storage.CreditPolicy{
		Initial: cfg.Simulator.Credits,
		Empty:   cfg.Simulator.NoCredits,
	}

	if cfg.Store != "postgres" {
		return storage.NewMemoryStore(policy), func() {}, nil
	}

	db := &cfg.Database
	client, err := postgresql.NewClient(ctx, &postgresql.Config{
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		Database:        db.Database,
		SSLMode:         db.SSLMode,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewPostgres(client.DB(), policy, logger)
	if err := store.Migrate(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}

	return store, func() { client.Close() }, nil
}

func initDispatcher(ctx context.Context, cfg *config.BackendConfig, logger *slog.Logger) (dispatch.Dispatcher, error) {
	if cfg.Dispatch != "rabbitmq" {
		return dispatch.NewInProcess(dispatchBuffer), nil
	}

	mq := &cfg.RabbitMQ
	client, err := rabbitmq.NewClient(ctx, &rabbitmq.Config{
		Host:               mq.Host,
		Port:               mq.Port,
		User:               mq.User,
		Password:           mq.Password,
		VHost:              mq.VHost,
		ExchangeName:       mq.Exchange.Name,
		ExchangeType:       mq.Exchange.Type,
		ExchangeDurable:    mq.Exchange.Durable,
		ExchangeAutoDelete: mq.Exchange.AutoDelete,
		QueueName:          mq.Queue.Name,
		QueueDurable:       mq.Queue.Durable,
		QueueAutoDelete:    mq.Queue.AutoDelete,
		RoutingKey:         mq.RoutingKey,
		RetryAttempts:      mq.Connection.RetryAttempts,
		RetryInterval:      mq.Connection.RetryInterval,
		Heartbeat:          mq.Connection.Heartbeat,
		PublishRetries:     mq.Publish.RetryAttempts,
		PublishRetryDelay:  mq.Publish.RetryInterval,
		PublishBackoffMult: mq.Publish.BackoffMultiplier,
		PrefetchCount:      mq.Consumer.PrefetchCount,
	}, logger)
	if err != nil {
		return nil, err
	}

	tag := mq.Consumer.Tag
	if tag == "" {
		tag = "docintel-backend-stub"
	}
	return dispatch.NewRabbitMQ(client, tag, logger), nil
}

func initRouter(cfg *config.Config, logger *slog.Logger, store storage.Store, dispatcher dispatch.Dispatcher) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	deps := &handler.Dependencies{
		Logger:        logger,
		Store:         store,
		Dispatcher:    dispatcher,
		FailMarker:    cfg.Backend.Simulator.FailMarker,
		DeferKeywords: cfg.Backend.Simulator.DeferKeywords,
	}
	auth := router.AuthConfig{
		Secret: cfg.Backend.Auth.SigningSecret(),
		Issuer: cfg.Backend.Auth.Issuer,
	}
	if auth.Secret == "" {
		logger.Warn("Authentication disabled: no signing secret configured")
	}

	return router.SetupRouter(deps, auth)
}
