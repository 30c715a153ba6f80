package http

import (
	"net/http"

	"worklens/internal/core/domain"
	"worklens/internal/core/services"
	"worklens/internal/infrastructure/middleware"
	"worklens/pkg/errors"

	"github.com/gin-gonic/gin"
)

// LiveHandler exposes presence and the out-of-band frame upload feed.
type LiveHandler struct {
	relay *services.RelayService
}

func NewLiveHandler(relay *services.RelayService) *LiveHandler {
	return &LiveHandler{
		relay: relay,
	}
}

func (h *LiveHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/presence/online",
		middleware.RequireRoles(domain.RoleTeamViewer, domain.RoleGlobalViewer), h.Online)

	live := api.Group("/live", middleware.RequireRoles(domain.RoleSource))
	{
		live.POST("/frames", h.PushFrame)
		live.GET("/status", h.Status)
	}
}

type FrameRequest struct {
	FrameBytes []byte `json:"frameBytes" binding:"required"`
	TS         int64  `json:"ts"`
}

func (h *LiveHandler) Online(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	users, err := h.relay.Snapshot(c.Request.Context(), identity)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// PushFrame relays one frame for the caller's own stream. A frame sent while
// nobody is watching is accepted and dropped.
func (h *LiveHandler) PushFrame(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	var req FrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("frameBytes is required"))
		return
	}

	relayed := h.relay.RelayFrame(identity, domain.Frame{
		SourceID:   identity.SubjectID,
		FrameBytes: req.FrameBytes,
		TS:         req.TS,
	})

	c.JSON(http.StatusAccepted, gin.H{"relayed": relayed})
}

func (h *LiveHandler) Status(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	c.JSON(http.StatusOK, gin.H{
		"streaming": h.relay.IsStreaming(identity.SubjectID),
		"online":    h.relay.IsOnline(identity.SubjectID),
	})
}
