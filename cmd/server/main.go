// VizFlow Server - multi-tenant visual-analytics backend
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vizflow/vizflow/internal/application/apikey"
	"github.com/vizflow/vizflow/internal/application/catalog"
	"github.com/vizflow/vizflow/internal/application/execution"
	"github.com/vizflow/vizflow/internal/application/livepoll"
	"github.com/vizflow/vizflow/internal/application/ratelimit"
	"github.com/vizflow/vizflow/internal/config"
	"github.com/vizflow/vizflow/internal/domain/cacheexec"
	"github.com/vizflow/vizflow/internal/domain/compiler"
	"github.com/vizflow/vizflow/internal/domain/livehub"
	"github.com/vizflow/vizflow/internal/domain/router"
	"github.com/vizflow/vizflow/internal/domain/schema"
	"github.com/vizflow/vizflow/internal/infrastructure/api/rest"
	"github.com/vizflow/vizflow/internal/infrastructure/cache"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/internal/infrastructure/storage"
	"github.com/vizflow/vizflow/internal/infrastructure/storeclients"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("starting vizflow server", "port", cfg.Server.Port)

	db, err := storage.NewDB(cfg.Database, cfg.Logging.Level == "debug", appLogger)
	if err != nil {
		appLogger.Error("failed to connect to relational store", "error", err)
		os.Exit(1)
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		appLogger.Error("failed to connect to fast store", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	// Schema Engine + Workflow Compiler (spec.md §4.1, §4.2).
	schemaEngine := schema.NewEngine()
	comp := compiler.New(schemaEngine)

	// Backing-store clients the Query Router dispatches against
	// (spec.md §4.3). The point store shares the fast-store Redis client.
	analyticalClient := storeclients.NewAnalyticalClient(cfg.Stores.AnalyticalURL)
	liveClient := storeclients.NewLiveClient(cfg.Stores.LiveURL)
	pointClient := storeclients.NewPointClient(redisCache.Client())
	queryRouter := router.New(analyticalClient, liveClient, pointClient)

	ttls := cacheexec.TTLs{Analytical: cfg.Budget.AnalyticalTTL, Live: cfg.Budget.LiveTTL, Point: cfg.Budget.PointTTL}
	previewBudget := cacheexec.Budget{WallTime: cfg.Budget.PreviewTimeout, MemoryMB: cfg.Budget.PreviewMemoryMB, MaxRowsScanned: cfg.Budget.PreviewMaxRows}
	widgetBudget := cacheexec.Budget{WallTime: cfg.Budget.WidgetTimeout, MemoryMB: cfg.Budget.WidgetMemoryMB, MaxRowsScanned: cfg.Budget.WidgetMaxRows}
	cacheExecutor := cacheexec.New(comp, queryRouter, redisCache, ttls, previewBudget, widgetBudget, appLogger)

	// Schema catalog: discovers and caches the backing stores' system
	// catalogs (SPEC_FULL.md §12 "Schema catalog refresh").
	catalogSvc := catalog.New(analyticalClient, liveClient, catalog.StaticPointCatalog(), redisCache, cfg.Stores.ChannelNamespace, cfg.Budget.SchemaTTL, appLogger)

	// Live Channel Hub: WebSocket fan-out with Redis pub/sub for
	// multi-process delivery (spec.md §4.5).
	hub := livehub.New(cfg.Stores.ChannelNamespace, redisCache.Client(), appLogger)
	hubCtx, cancelHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)
	defer cancelHub()

	// Repositories.
	workflowRepo := storage.NewWorkflowRepository(db)
	dashboardRepo := storage.NewDashboardRepository(db)
	widgetRepo := storage.NewWidgetRepository(db)
	apiKeyRepo := storage.NewAPIKeyRepository(db)

	executionStore := execution.NewStore(redisCache, cfg.Stores.ChannelNamespace)
	executionSvc := execution.New(comp, queryRouter, cacheExecutor, hub, executionStore, workflowRepo, cfg.Stores.ChannelNamespace, appLogger)

	pollSource := execution.WidgetGraphResolver{Workflows: workflowRepo}
	pollSupervisor := livepoll.New(cacheExecutor, hub, pollSource, cfg.Stores.ChannelNamespace, appLogger)
	resumeLivePolls(widgetRepo, pollSupervisor, appLogger)

	apiKeySvc := apikey.New(apiKeyRepo)
	limiter := ratelimit.New(redisCache.Client(), cfg.Stores.ChannelNamespace, appLogger)

	jwtAuth := livehub.NewJWTAuth(cfg.Auth.JWTSecret)
	authMiddleware := rest.NewAuthMiddleware(jwtAuth)
	loggingMiddleware := rest.NewLoggingMiddleware(appLogger)
	recoveryMiddleware := rest.NewRecoveryMiddleware(appLogger)

	workflowHandlers := rest.NewWorkflowHandlers(workflowRepo, schemaEngine, appLogger)
	executionHandlers := rest.NewExecutionHandlers(executionSvc, appLogger)
	dashboardHandlers := rest.NewDashboardHandlers(dashboardRepo, appLogger)
	widgetHandlers := rest.NewWidgetHandlers(widgetRepo, workflowRepo, executionSvc, pollSupervisor, appLogger)
	embedHandlers := rest.NewEmbedHandlers(widgetRepo, workflowRepo, executionSvc, appLogger)
	apiKeyHandlers := rest.NewAPIKeyHandlers(apiKeySvc, appLogger)
	schemaHandlers := rest.NewSchemaHandlers(catalogSvc)
	healthHandlers := rest.NewHealthHandlers(db, redisCache)
	wsHandler := livehub.NewHandler(hub, jwtAuth, appLogger)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(recoveryMiddleware.Recovery())
	engine.Use(loggingMiddleware.RequestLogger())

	if cfg.Server.CORS {
		engine.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))
	}

	engine.GET("/health", healthHandlers.HandleHealth)
	engine.GET("/health/live", healthHandlers.HandleLive)
	engine.GET("/health/ready", healthHandlers.HandleReady)
	engine.GET("/ws", func(c *gin.Context) { wsHandler.ServeHTTP(c.Writer, c.Request) })

	apiV1 := engine.Group("/api/v1")
	apiV1.Use(authMiddleware.RequireAuth())
	{
		workflows := apiV1.Group("/workflows")
		{
			workflows.POST("", workflowHandlers.HandleCreate)
			workflows.GET("", workflowHandlers.HandleList)
			workflows.POST("/import", workflowHandlers.HandleImport)
			workflows.GET("/:workflow_id", workflowHandlers.HandleGet)
			workflows.PUT("/:workflow_id", workflowHandlers.HandleUpdate)
			workflows.DELETE("/:workflow_id", workflowHandlers.HandleDelete)
			workflows.GET("/:workflow_id/export", workflowHandlers.HandleExport)
			workflows.GET("/:workflow_id/versions", workflowHandlers.HandleListVersions)
			workflows.POST("/:workflow_id/versions/:version_id/rollback", workflowHandlers.HandleRollback)
		}

		executions := apiV1.Group("/executions")
		{
			executions.POST("/preview", executionHandlers.HandlePreview)
			executions.POST("", executionHandlers.HandleExecute)
			executions.GET("/:execution_id", executionHandlers.HandleGet)
			executions.POST("/:execution_id/cancel", executionHandlers.HandleCancel)
		}

		dashboards := apiV1.Group("/dashboards")
		{
			dashboards.POST("", dashboardHandlers.HandleCreate)
			dashboards.GET("", dashboardHandlers.HandleList)
			dashboards.GET("/:dashboard_id", dashboardHandlers.HandleGet)
			dashboards.PUT("/:dashboard_id", dashboardHandlers.HandleUpdate)
			dashboards.DELETE("/:dashboard_id", dashboardHandlers.HandleDelete)
		}

		widgets := apiV1.Group("/widgets")
		{
			widgets.POST("", widgetHandlers.HandleCreate)
			widgets.GET("/:widget_id", widgetHandlers.HandleGet)
			widgets.GET("/by-dashboard/:dashboard_id", widgetHandlers.HandleListByDashboard)
			widgets.PUT("/:widget_id", widgetHandlers.HandleUpdate)
			widgets.DELETE("/:widget_id", widgetHandlers.HandleDelete)
			widgets.GET("/:widget_id/data", widgetHandlers.HandleData)
		}

		apiKeys := apiV1.Group("/api-keys")
		{
			apiKeys.POST("", apiKeyHandlers.HandleCreate)
			apiKeys.GET("", apiKeyHandlers.HandleList)
			apiKeys.DELETE("/:key_id", apiKeyHandlers.HandleRevoke)
		}

		schemaGroup := apiV1.Group("/schema")
		{
			schemaGroup.GET("", schemaHandlers.HandleGet)
			schemaGroup.POST("/refresh", schemaHandlers.HandleRefresh)
		}
	}

	// Embed endpoint authenticates off an API key, not the tenant JWT, and
	// carries its own rate limit, so it lives outside apiV1's auth group.
	engine.GET("/embed/:widget_id", rest.EmbedAuthMiddleware(apiKeySvc, limiter), embedHandlers.HandleData)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("http server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		appLogger.Info("shutdown initiated", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			if err := server.Close(); err != nil {
				appLogger.Error("server close failed", "error", err)
			}
		}

		appLogger.Info("server stopped")
	}
}

// resumeLivePolls restarts the poll loop for every live-mode widget across
// every tenant after a server restart, since Supervisor holds poll state
// only in memory.
func resumeLivePolls(widgets *storage.WidgetRepository, poll *livepoll.Supervisor, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	live, err := widgets.ListLive(ctx)
	if err != nil {
		log.Warn("failed to list live widgets on startup", "error", err)
		return
	}
	for _, lw := range live {
		poll.Start(lw.TenantID, lw.Widget, time.Second)
	}
	log.Info("resumed live widget polls", "count", len(live))
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := "*"
		if len(allowedOrigins) > 0 {
			origin = allowedOrigins[0]
			for _, o := range allowedOrigins {
				if o == c.GetHeader("Origin") {
					origin = o
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

