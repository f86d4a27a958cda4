package server

import (
	"proteinshake/internal/server/middleware"
	"proteinshake/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Dataset routes
	apiRoutes.GET("/datasets", routes.GetKindsHandler, middleware.RequirePermission("dataset.view"))
	apiRoutes.GET("/datasets/:name/records", routes.GetRecordsHandler, middleware.RequirePermission("record.view"))
	apiRoutes.GET("/datasets/:name/records/:id", routes.GetRecordHandler, middleware.RequirePermission("record.view"))
	apiRoutes.POST("/datasets/:name/search", routes.SearchRecordsHandler, middleware.RequirePermission("record.view"))
	apiRoutes.GET("/datasets/:name/graphs", routes.GetGraphsHandler, middleware.RequirePermission("dataset.view"))
	apiRoutes.GET("/datasets/:name/artifact", routes.GetArtifactHandler, middleware.RequirePermission("artifact.download"))

	// Build routes
	apiRoutes.POST("/builds", routes.CreateBuildHandler, middleware.RequirePermission("build.create"))
	apiRoutes.GET("/builds/:id", routes.GetBuildHandler, middleware.RequirePermission("build.view"))
}
