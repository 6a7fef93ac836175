package server

import (
	"github.com/labstack/echo/v4"

	"github.com/fusion-flap/flap-w7x-mdsplus/internal/server/middleware"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo, app *middleware.App) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	if app.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(app.Metrics.Handler()))
	}

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Data source routes
	apiRoutes.GET("/sources", routes.GetSourcesHandler, middleware.RequirePermission(middleware.PermSignalRead))
	apiRoutes.POST("/sources/:source/data", routes.GetDataHandler, middleware.RequirePermission(middleware.PermSignalRead))

	// Prefetch routes
	apiRoutes.POST("/prefetch", routes.PostPrefetchHandler, middleware.RequirePermission(middleware.PermSignalPrefetch))
	apiRoutes.GET("/fetch-time", routes.GetFetchTimeHandler, middleware.RequireAnyPermission(middleware.PermSignalRead, middleware.PermSignalPrefetch))

	// Export routes
	apiRoutes.GET("/exports/:exp_id", routes.GetExportsHandler, middleware.RequireAnyPermission(middleware.PermSignalRead, middleware.PermSignalPrefetch))
	apiRoutes.GET("/exports/:exp_id/:id", routes.GetExportLinkHandler, middleware.RequireAnyPermission(middleware.PermSignalRead, middleware.PermSignalPrefetch))
}
