package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gridmesh/gpumarket/internal/api/handler"
	"github.com/gridmesh/gpumarket/internal/api/router"
	"github.com/gridmesh/gpumarket/internal/config"
	"github.com/gridmesh/gpumarket/internal/coordinator"
	"github.com/gridmesh/gpumarket/internal/events"
	"github.com/gridmesh/gpumarket/internal/journal"
	"github.com/gridmesh/gpumarket/shared/logger"
	"github.com/gridmesh/gpumarket/shared/postgresql"
	"github.com/gridmesh/gpumarket/shared/rabbitmq"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Bank backs the escrow ledger; in this deployment it is in-memory and
	// funded through the deposit endpoint.
	bank := coordinator.NewMemoryBank()

	coordOpts := coordinator.Options{
		Bank:              bank,
		Logger:            appLogger.Logger,
		Arbiter:           cfg.Coordinator.Arbiter,
		FreeNodeOnRelease: cfg.Coordinator.FreeNodeOnRelease,
	}

	// Optional PostgreSQL journal for durability across restarts
	var dbClient *postgresql.Client
	var jnl *journal.Journal
	if cfg.Database.Enabled {
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		jnl = journal.New(dbClient, appLogger.Logger)
		if err := jnl.EnsureSchema(context.Background()); err != nil {
			return err
		}
		coordOpts.Journal = jnl
		appLogger.Info("Journal enabled")
	}

	// Optional RabbitMQ lifecycle event stream
	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		coordOpts.Events = events.NewPublisher(rabbitClient, appLogger.Logger)
		appLogger.Info("Event stream enabled")
	}

	coord := coordinator.New(coordOpts)

	if jnl != nil {
		if err := restoreState(coord, jnl); err != nil {
			return fmt.Errorf("failed to restore state: %w", err)
		}
	}

	// Deadline monitor sweeps for overdue jobs
	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	monitor := coordinator.NewMonitor(coord, cfg.Coordinator.SweepInterval, appLogger.Logger)
	monitor.Start(monitorCtx)

	r := initRouter(cfg.App.Environment, appLogger.Logger, coord, bank)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	cleanup := func() {
		cancel()
		cancelMonitor()
		monitor.Stop()
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// restoreState reloads journaled coordinator state on startup
func restoreState(coord *coordinator.Coordinator, jnl *journal.Journal) error {
	ctx := context.Background()

	jobs, err := jnl.LoadJobs(ctx)
	if err != nil {
		return err
	}
	nodes, err := jnl.LoadNodes(ctx)
	if err != nil {
		return err
	}
	entries, err := jnl.LoadEscrowEntries(ctx)
	if err != nil {
		return err
	}

	coord.Restore(jobs, nodes, entries)
	return nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, logger *slog.Logger, coord *coordinator.Coordinator, bank *coordinator.MemoryBank) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:      logger,
		Coordinator: coord,
		Bank:        bank,
	}

	return router.SetupRouter(handlerDeps)
}
