package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all verification routes
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	plansAPI := router.Group("/api/v1/plans")
	{
		plansAPI.GET("", handlers.ListPlans())
		plansAPI.GET("/:planId", handlers.GetPlan())
		plansAPI.POST("/:planId/open", handlers.OpenPlan())
		plansAPI.POST("/:planId/scan", handlers.Scan())
		plansAPI.POST("/:planId/finish", handlers.Finish())
	}

	router.GET("/api/v1/staff", handlers.ListStaff())
	router.POST("/api/v1/codes/decode", handlers.Decode())
}
