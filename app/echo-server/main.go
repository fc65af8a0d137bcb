package main

import (
	"context"
	"fmt"
	"log"
	"myContentLab/app/echo-server/router"
	"myContentLab/business/experiment"
	"myContentLab/domain"
	"myContentLab/internal/jobs"
	"myContentLab/internal/middleware"
	psqlRepo "myContentLab/internal/repository/postgres"
	"myContentLab/internal/repository/storefront"
	"myContentLab/internal/repository/suggestion"
	"myContentLab/internal/rest"
	"myContentLab/pkg/config"
	"myContentLab/pkg/database"
	redisdb "myContentLab/pkg/database/redis"
	"myContentLab/pkg/logger"
	"myContentLab/pkg/metrics"
	"myContentLab/pkg/utils"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	logger.Info("Starting Content Lab", "version", cfg.App.Version)

	utils.InitJWT(cfg.JWT.SecretKey)
	metrics.Init()

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	logger.Info("Database connected successfully")

	if err := db.AutoMigrate(
		&domain.Experiment{},
		&domain.Variant{},
		&domain.VariantAssignment{},
		&domain.Segment{},
		&domain.SegmentPerformance{},
	); err != nil {
		logger.Fatal("Failed to migrate schema", "error", err)
	}

	redisClient, err := redisdb.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to redis", "error", err)
	}

	// Init outbound collaborators
	storefrontRepo := storefront.NewStorefrontRepository(
		storefront.StorefrontConfig{
			BaseURL:           cfg.Storefront.BaseURL,
			BasicAuthUsername: cfg.Storefront.BasicAuthUsername,
			BasicAuthPassword: cfg.Storefront.BasicAuthPassword,
		},
	)
	suggestionRepo := suggestion.NewSuggestionRepository(
		suggestion.SuggestionConfig{
			BaseURL: cfg.Suggestion.BaseURL,
			APIKey:  cfg.Suggestion.APIKey,
			Model:   cfg.Suggestion.Model,
		},
	)

	// Init repo
	experimentRepo := psqlRepo.NewExperimentRepository(db)
	variantRepo := psqlRepo.NewVariantRepository(db)
	assignmentRepo := psqlRepo.NewAssignmentRepository(db)
	segmentRepo := psqlRepo.NewSegmentRepository(db)
	perfRepo := psqlRepo.NewSegmentPerformanceRepository(db)

	// Init service
	experimentService := experiment.NewExperimentService(
		experimentRepo, variantRepo, assignmentRepo, segmentRepo, perfRepo,
		storefrontRepo, suggestionRepo, cfg.Engine,
	)

	// Init handler
	experimentHandler := rest.NewExperimentHandler(experimentService)
	trackingHandler := rest.NewTrackingHandler(experimentService)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Auth middleware
	authRequired := middleware.AuthMiddleware()
	adminOnly := middleware.AdminOnly()

	// Setup routes
	api := e.Group("/api/v1")
	router.SetupExperimentRoutes(api, experimentHandler, authRequired, adminOnly)
	router.SetupTrackingRoutes(api, trackingHandler)

	// Background sweeps
	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	sweeper := jobs.NewSweeper(experimentService, redisClient, cfg.Sweep)
	go sweeper.Run(sweepCtx)

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSweeps()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	if err := redisdb.CloseRedisClient(redisClient); err != nil {
		logger.Error("Redis shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
