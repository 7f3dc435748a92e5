// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"gnrtax/internal/domain/auth"
	"gnrtax/internal/domain/capture"
	"gnrtax/internal/domain/catalogs/client"
	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/internal/domain/declaration"
	"gnrtax/internal/domain/rate"
	"gnrtax/internal/domain/reconciliation"
	"gnrtax/internal/domain/registers/tax"
	"gnrtax/internal/domain/uom"
	"gnrtax/internal/infrastructure/http/v1/handlers"
	"gnrtax/internal/infrastructure/http/v1/middleware"
	"gnrtax/internal/infrastructure/storage/postgres"
	"gnrtax/pkg/logger"
)

// RouterConfig holds everything the router wires together.
type RouterConfig struct {
	Pool   *postgres.Pool
	Logger *logger.Logger

	JWTValidator middleware.JWTValidator
	TokenService *auth.TokenService

	Items        *item.Service
	Clients      *client.Service
	Converter    *uom.Converter
	Rates        *rate.Engine
	Ledger       *tax.Service
	Materializer *capture.Materializer
	Declarations *declaration.Service
	Recon        *reconciliation.Service

	// ReportsDir keeps copies of rendered report files; empty disables it
	ReportsDir string

	// AdminRole guards the /admin group; empty means any authenticated
	// caller
	AdminRole string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	taxHandler := handlers.NewTaxHandler(cfg.Items, cfg.Converter, cfg.Rates)
	movementHandler := handlers.NewMovementHandler(cfg.Materializer, cfg.Ledger)
	declarationHandler := handlers.NewDeclarationHandler(cfg.Declarations)
	reportHandler := handlers.NewReportHandler(cfg.Declarations, cfg.ReportsDir)
	itemHandler := handlers.NewItemHandler(cfg.Items)
	clientHandler := handlers.NewClientHandler(cfg.Clients)
	adminHandler := handlers.NewAdminHandler(cfg.Materializer, cfg.Recon, cfg.TokenService)

	// API v1 - all routes require authentication
	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.Auth(cfg.JWTValidator, cfg.TokenService))
	{
		apiV1.POST("/tax/resolve", taxHandler.Resolve)

		movements := apiV1.Group("/movements")
		{
			movements.POST("/capture/sale", movementHandler.CaptureSale)
			movements.POST("/capture/purchase", movementHandler.CapturePurchase)
			movements.POST("/capture/stock", movementHandler.CaptureStock)
			movements.POST("/cancel", movementHandler.Cancel)
			movements.GET("", movementHandler.List)
			movements.GET("/:id", movementHandler.Get)
		}

		declarations := apiV1.Group("/declarations")
		{
			declarations.POST("", declarationHandler.Generate)
			declarations.GET("", declarationHandler.List)
			declarations.GET("/:id", declarationHandler.Get)
			declarations.POST("/:id/submit", declarationHandler.Submit)
			declarations.POST("/:id/validate", declarationHandler.Validate)
			declarations.POST("/:id/cancel", declarationHandler.Cancel)
			declarations.POST("/:id/amend", declarationHandler.Amend)
		}

		reports := apiV1.Group("/reports")
		{
			reports.GET("/quarterly-statement", reportHandler.QuarterlyStatement)
			reports.GET("/client-list", reportHandler.ClientList)
		}

		items := apiV1.Group("/items")
		{
			items.POST("", itemHandler.Create)
			items.GET("", itemHandler.List)
			items.GET("/:id", itemHandler.Get)
			items.PUT("/:id", itemHandler.Update)
			items.POST("/:id/tracking", itemHandler.SetTracking)
		}

		clients := apiV1.Group("/clients")
		{
			clients.POST("", clientHandler.Create)
			clients.GET("", clientHandler.List)
			clients.GET("/:id", clientHandler.Get)
			clients.PUT("/:id", clientHandler.Update)
		}

		admin := apiV1.Group("/admin")
		if cfg.AdminRole != "" {
			admin.Use(middleware.RequireRole(cfg.AdminRole))
		}
		{
			admin.POST("/reprocess", adminHandler.Reprocess)
			admin.POST("/analyze", adminHandler.Analyze)
			admin.POST("/recompute", adminHandler.Recompute)
			admin.POST("/tokens", adminHandler.IssueToken)
			admin.DELETE("/tokens/:id", adminHandler.RevokeToken)
		}
	}

	return router
}
