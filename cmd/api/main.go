// main.go - The entry point and router setup.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bosocmputer/product_ocr_reconcile/configs"
	"github.com/bosocmputer/product_ocr_reconcile/internal/api"
	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
	"github.com/bosocmputer/product_ocr_reconcile/internal/service"
	"github.com/bosocmputer/product_ocr_reconcile/internal/storage"
)

func main() {
	cfg, err := configs.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		bootLogger := common.NewLogger("info", "json", os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := common.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	if ginMode := os.Getenv("GIN_MODE"); ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	var history storage.HistoryStore
	if cfg.Mongo.URI != "" {
		mongoHistory, err := storage.NewMongoHistory(ctx, cfg.Mongo.URI, cfg.Mongo.DBName, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
		}
		history = mongoHistory
	} else {
		logger.Warn().Msg("MONGO_URI not set, execution logs are not persisted")
	}

	svc, closeService, err := service.Build(ctx, cfg, history, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise service")
	}

	router := api.NewRouter(api.NewHandler(svc, logger), cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Minute, // large folders take minutes of AI calls
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("provider", cfg.AI.Provider).
			Int("max_concurrent_groups", cfg.MaxConcurrentGroups).
			Msg("starting server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := closeService(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to release resources")
	}

	logger.Info().Msg("server exited")
}
