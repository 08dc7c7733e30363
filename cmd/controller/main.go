package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/config"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/definitions"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/logging"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/storage"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/system"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully")

	db, err := storage.NewPostgresClient(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure database schema", zap.Error(err))
	}

	importer, err := definitions.NewImporter(cfg.Seeds.SearchPaths, db, logger.Named("definitions"))
	if err != nil {
		logger.Fatal("Failed to create definitions importer", zap.Error(err))
	}

	imported, err := importer.Run(ctx)
	if err != nil {
		logger.Fatal("Failed to import diagnostic definitions", zap.Error(err))
	}
	if imported > 0 {
		logger.Info("Diagnostic definitions imported", zap.Int("count", imported))
	}

	lifecycle := system.NewLifecycleManager(db, cfg, logger)

	if err := lifecycle.Start(); err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("Diagnostic controller started successfully",
		zap.String("state", lifecycle.Status().State))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Diagnostic controller stopped successfully")
}
