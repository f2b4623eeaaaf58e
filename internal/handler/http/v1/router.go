package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	// Health-check доступен без ключа
	api.GET("/system/health", h.healthCheck)

	protected := api.Group("")
	protected.Use(APIKeyAuthMiddleware(h.cfg, h.logger))

	incidents := protected.Group("/incidents")
	{
		incidents.POST("", h.createIncident)
		incidents.GET("", h.listIncidents)
		incidents.GET("/:id", h.getIncident)
		incidents.GET("/:id/history", h.getHistory)

		// Переходы жизненного цикла
		incidents.POST("/:id/dispatch", h.dispatchIncident)
		incidents.POST("/:id/assign", h.assignIncident)
		incidents.POST("/:id/unassign", h.unassignIncident)
		incidents.POST("/:id/start", h.startIncident)
		incidents.POST("/:id/resolve", h.resolveIncident)
		incidents.POST("/:id/reject", h.rejectIncident)
		incidents.POST("/:id/cancel", h.cancelIncident)
	}

	responders := protected.Group("/responders")
	{
		responders.POST("", h.createResponder)
		responders.GET("", h.listResponders)
		responders.GET("/:id", h.getResponder)
		responders.PUT("/:id/status", h.updateResponderStatus)
	}

	protected.POST("/dispatch/sweep", h.sweepQueue)
	protected.GET("/admin/integrity", h.checkIntegrity)
}
