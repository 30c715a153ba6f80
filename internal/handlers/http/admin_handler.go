package http

import (
	"net/http"
	"strconv"

	"worklens/internal/core/domain"
	"worklens/internal/core/services"
	"worklens/internal/infrastructure/middleware"
	"worklens/pkg/errors"
	"worklens/pkg/utils"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	teamService  *services.TeamService
	auditService *services.AuditService
}

func NewAdminHandler(teamService *services.TeamService, auditService *services.AuditService) *AdminHandler {
	return &AdminHandler{
		teamService:  teamService,
		auditService: auditService,
	}
}

func (h *AdminHandler) SetupRoutes(api *gin.RouterGroup) {
	api.DELETE("/sources/:id",
		middleware.RequireRoles(domain.RoleTeamViewer, domain.RoleGlobalViewer), h.RemoveSource)
	api.GET("/audit-logs",
		middleware.RequireRoles(domain.RoleGlobalViewer), h.AuditLogs)
}

func (h *AdminHandler) RemoveSource(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	sourceID, err := parseSourceID(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.teamService.RemoveSource(c.Request.Context(), identity, sourceID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "sourceId": sourceID})
}

func (h *AdminHandler) AuditLogs(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	filter := domain.AuditFilter{
		Actor:  domain.SubjectID(utils.NormalizeSubjectID(c.Query("actor"))),
		Target: domain.SubjectID(utils.NormalizeSubjectID(c.Query("target"))),
		Type:   domain.AuditType(c.Query("type")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.Error(errors.NewInvalidInputError("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	// entries written moments ago should be visible
	h.auditService.Flush(c.Request.Context())

	entries, err := h.auditService.List(c.Request.Context(), identity, filter)
	if err != nil {
		c.Error(err)
		return
	}
	if entries == nil {
		entries = []*domain.AuditEntry{}
	}

	c.JSON(http.StatusOK, gin.H{"logs": entries})
}
