package http

import (
	"worklens/internal/core/ports"
	"worklens/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// Routes is implemented by handlers mounted on the authenticated /api/v1 group.
type Routes interface {
	SetupRoutes(api *gin.RouterGroup)
}

// RegisterAPI mounts the login route publicly and every handler behind
// AuthMiddleware.
func RegisterAPI(router *gin.Engine, authHandler *AuthHandler, resolver ports.IdentityResolver, handlers ...Routes) {
	api := router.Group("/api/v1")
	authHandler.SetupRoutes(api)

	authed := api.Group("", middleware.AuthMiddleware(resolver))
	for _, h := range handlers {
		h.SetupRoutes(authed)
	}
}
