package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes wires all distribution-layer endpoints.
func RegisterRoutes(r *gin.Engine, ws *WSHandler, sse *SSEHandler, events *EventsHandler) {
	r.GET("/ws", ws.HandleWebSocket)

	api := r.Group("/api")
	{
		api.GET("/orders/stream", sse.HandleStream)
		api.POST("/events", events.PublishEvent)
	}
}
