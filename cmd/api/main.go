package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perchapp/perch/internal/api"
	"github.com/perchapp/perch/internal/api/middleware"
	"github.com/perchapp/perch/internal/config"
	"github.com/perchapp/perch/internal/logger"
	"github.com/perchapp/perch/internal/repository"
	"github.com/perchapp/perch/internal/service"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "perch",
		LogFile:     cfg.Log.File,
	})
	logger.SetDefaultLogger(appLogger)

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	recordRepo := repository.NewRecordRepository(db)
	socialRepo := repository.NewSocialRepository(db)

	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	ctx := context.Background()
	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

	embeddingService := service.NewEmbeddingService(&service.EmbeddingClientConfig{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})

	summaryService := service.NewSummaryService(&service.SummaryServiceConfig{
		Enabled:     cfg.Summary.Enabled,
		Model:       cfg.Summary.Model,
		APIKey:      cfg.Summary.APIKey,
		BaseURL:     cfg.Summary.BaseURL,
		Timeout:     cfg.Summary.Timeout,
		MaxTokens:   cfg.Summary.MaxTokens,
		Temperature: cfg.Summary.Temperature,
	}, appLogger)
	if summaryService.IsEnabled() {
		appLogger.WithField("model", cfg.Summary.Model).Info("Summary generation enabled")
	}

	embeddingQueue := service.NewEmbeddingQueue(recordRepo, qdrantRepo, embeddingService, appLogger, service.QueueOptions{
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		MaxRetries:    cfg.Queue.MaxRetries,
		RetryDelay:    cfg.Queue.RetryDelay,
		PollInterval:  cfg.Queue.PollInterval,
	})
	embeddingQueue.Start()

	searchService := service.NewSearchService(
		embeddingService,
		qdrantRepo,
		socialRepo,
		summaryService,
		recordRepo,
		appLogger,
		&service.SearchServiceConfig{
			ScoreThreshold: cfg.Search.ScoreThreshold,
			DefaultLimit:   cfg.Search.DefaultLimit,
			MaxLimit:       cfg.Search.MaxLimit,
		},
	)

	router := api.SetupRouter(&api.RouterDeps{
		SearchService: searchService,
		Records:       recordRepo,
		Queue:         embeddingQueue,
		Logger:        appLogger,
		Mode:          cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	// drain in-flight embedding work before exit
	embeddingQueue.Stop()

	appLogger.Info("Server exited")
}
