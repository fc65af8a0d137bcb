package router

import (
	"myContentLab/internal/rest"

	"github.com/labstack/echo/v4"
)

func SetupExperimentRoutes(api *echo.Group, handler *rest.ExperimentHandler, authRequired echo.MiddlewareFunc, adminOnly echo.MiddlewareFunc) {
	experiments := api.Group("/experiments", authRequired)

	experiments.POST("", handler.CreateExperiment)
	experiments.GET("", handler.ListExperiments)
	experiments.GET("/:id", handler.GetExperiment)
	experiments.DELETE("/:id", handler.DeleteExperiment, adminOnly)

	experiments.POST("/:id/start", handler.StartExperiment)
	experiments.POST("/:id/pause", handler.PauseExperiment)
	experiments.POST("/:id/end", handler.EndExperiment)
	experiments.POST("/:id/winner", handler.DeclareWinner)
	experiments.POST("/:id/rotate", handler.RotateActiveVariant)

	experiments.GET("/:id/results", handler.GetResults)
	experiments.GET("/:id/segment-winners", handler.GetSegmentWinners)
}

// Tracking routes are called by storefront pages for anonymous
// visitors, so they carry no auth.
func SetupTrackingRoutes(api *echo.Group, handler *rest.TrackingHandler) {
	track := api.Group("/track")
	track.POST("/impression", handler.TrackImpression)
	track.POST("/click", handler.TrackClick)
	track.POST("/conversion", handler.TrackConversion)
	track.POST("/metric", handler.TrackMetric)

	api.GET("/experiments/:id/assignment", handler.GetAssignment)
}
