package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/viewplay/vpc-sale-service/internal/api/handlers"
	"github.com/viewplay/vpc-sale-service/internal/api/middleware"
	"github.com/viewplay/vpc-sale-service/pkg/logger"
	"github.com/viewplay/vpc-sale-service/pkg/metrics"
)

// Deps carries everything the router needs
type Deps struct {
	DB     *sqlx.DB
	Orders handlers.OrderService
	Expiry handlers.ExpirySweeper
	Pool   handlers.ReservationSweeper
	Logger *logger.Logger
}

// SetupRoutes configures all application routes
func SetupRoutes(deps Deps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.CORS())

	orderHandler := handlers.NewOrderHandler(deps.Orders, deps.Logger.Zap())
	adminHandler := handlers.NewAdminHandler(deps.Expiry, deps.Pool, deps.Logger.Zap())
	healthHandler := handlers.NewHealthHandler(deps.DB)

	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api")
	{
		api.POST("/order", orderHandler.Create)
		api.GET("/order/:id", orderHandler.Get)
		api.POST("/order/:id/paid", orderHandler.MarkPaid)
		api.POST("/admin/release-expired", adminHandler.ReleaseExpired)
	}

	return router
}
