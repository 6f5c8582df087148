package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/operis/record-ingestion/internal/config"
	"github.com/operis/record-ingestion/internal/database"
	"github.com/operis/record-ingestion/internal/handlers"
	"github.com/operis/record-ingestion/internal/importer"
	"github.com/operis/record-ingestion/internal/kafka"
	"github.com/operis/record-ingestion/internal/metrics"
)

var (
	logger  = logrus.New()
	version = "1.0.0"
)

func init() {
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}
}

func main() {
	logger.WithField("version", version).Info("Starting Record Ingestion Service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize metrics
	metricsCollector := metrics.NewCollector()

	// Initialize database connection
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Run database migrations
	if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	// Initialize Kafka producer
	kafkaProducer, err := kafka.NewProducer(cfg.Kafka, metricsCollector, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Kafka producer")
	}
	defer kafkaProducer.Close()

	// Initialize import pipeline
	imp := importer.New(
		importer.NewDB(db),
		kafkaProducer,
		metricsCollector,
		logger,
		cfg.Import.BatchSize,
	)

	// Set up HTTP routes
	router := mux.NewRouter()
	httpHandlers := handlers.NewHTTPHandlers(db, imp, metricsCollector, logger, cfg.Import)
	httpHandlers.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.HTTPPort).Info("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to serve HTTP")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Record Ingestion Service...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}

	logger.Info("Record Ingestion Service stopped")
}
