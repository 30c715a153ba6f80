package http

import (
	"net/http"

	"worklens/internal/core/domain"
	"worklens/internal/core/services"
	"worklens/internal/infrastructure/middleware"
	"worklens/pkg/errors"

	"github.com/gin-gonic/gin"
)

type IntervalHandler struct {
	intervalService *services.IntervalService
}

func NewIntervalHandler(intervalService *services.IntervalService) *IntervalHandler {
	return &IntervalHandler{
		intervalService: intervalService,
	}
}

func (h *IntervalHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/capture-interval", h.Get)
	api.POST("/capture-interval",
		middleware.RequireRoles(domain.RoleTeamViewer, domain.RoleGlobalViewer), h.Assign)
}

type AssignIntervalRequest struct {
	SourceID        string `json:"sourceId" binding:"required,max=254"`
	IntervalMinutes int    `json:"intervalMinutes"`
}

// Get returns the caller's own cadence for sources. Viewers read sourceId's,
// or their own id when it is omitted.
func (h *IntervalHandler) Get(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	sourceID := identity.SubjectID
	if identity.Role != domain.RoleSource {
		requested, err := querySourceID(c)
		if err != nil {
			c.Error(err)
			return
		}
		if requested != "" {
			sourceID = requested
		}
	}

	assignment, err := h.intervalService.Get(c.Request.Context(), identity, sourceID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, assignment)
}

func (h *IntervalHandler) Assign(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	var req AssignIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("sourceId is required"))
		return
	}
	sourceID, err := parseSourceID(req.SourceID)
	if err != nil {
		c.Error(err)
		return
	}

	seconds, err := h.intervalService.Assign(c.Request.Context(), identity, sourceID, req.IntervalMinutes)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "sourceId": sourceID, "intervalSeconds": seconds})
}
