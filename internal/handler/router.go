package handler

import (
	"github.com/gin-gonic/gin"
)

// Routes groups the handlers mounted under the API prefix.
type Routes struct {
	Instances *InstanceHandler
	Sensors   *SensorHandler
	Students  *StudentHandler
	Calendar  *CalendarHandler
	Refresh   *RefreshHandler
	Auth      *AuthHandler
	Metrics   *MetricsHandler
}

// Register mounts every route. protect guards the operator-only routes.
func (r Routes) Register(engine *gin.Engine, prefix string, protect gin.HandlerFunc) {
	engine.GET("/health", r.Metrics.Health)
	engine.GET("/metrics", r.Metrics.Prometheus)

	api := engine.Group(prefix)
	api.POST("/auth/login", r.Auth.Login)
	api.GET("/system/metrics", r.Metrics.System)

	instances := api.Group("/instances")
	instances.GET("", r.Instances.List)
	instances.GET("/:id", r.Instances.Get)
	instances.GET("/:id/schedule", r.Instances.NextRuns)
	instances.GET("/:id/diagnostics", protect, r.Instances.Diagnostics)
	instances.PUT("/:id/options", protect, r.Instances.UpdateOptions)
	instances.DELETE("/:id", protect, r.Instances.Unload)

	instances.GET("/:id/sensors", r.Sensors.List)
	instances.GET("/:id/sensors/:key", r.Sensors.Get)

	instances.GET("/:id/students", r.Students.List)
	instances.GET("/:id/students/:slug", r.Students.Get)
	instances.GET("/:id/students/:slug/export", r.Students.Export)
	instances.GET("/:id/students/:slug/calendar", r.Calendar.Timetable)
	instances.GET("/:id/students/:slug/calendar/next", r.Calendar.NextLesson)

	instances.GET("/:id/calendar/holidays", r.Calendar.Holidays)
	instances.GET("/:id/calendar/holidays/current", r.Calendar.CurrentHoliday)

	api.POST("/refresh", protect, r.Refresh.Refresh)
	api.GET("/refresh/runs", r.Instances.Runs)
}
