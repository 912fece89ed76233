package handlers

import "github.com/gin-gonic/gin"

type Router struct {
	handler *Handler
}

func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

func (r *Router) RegisterRoutes(engine *gin.Engine, idempotency gin.HandlerFunc) {
	engine.GET("/healthz", r.handler.health)

	v1 := engine.Group("/v1")
	v1.POST("/commands", idempotency, r.handler.dispatch)
	v1.GET("/schedules", r.handler.listSchedules)
	v1.GET("/schedules/:id", r.handler.getSchedule)
}
