package http

import (
	stderrors "errors"
	"io"
	"net/http"

	"worklens/internal/core/domain"
	"worklens/internal/core/services"
	"worklens/internal/infrastructure/middleware"
	"worklens/pkg/errors"
	"worklens/pkg/utils"
	"worklens/pkg/validation"

	"github.com/gin-gonic/gin"
)

type WorkHandler struct {
	workService *services.WorkSessionService
}

func NewWorkHandler(workService *services.WorkSessionService) *WorkHandler {
	return &WorkHandler{
		workService: workService,
	}
}

// SetupRoutes registers the work session routes on an authenticated group.
func (h *WorkHandler) SetupRoutes(api *gin.RouterGroup) {
	work := api.Group("/work")

	source := work.Group("", middleware.RequireRoles(domain.RoleSource))
	{
		source.POST("/start", h.Start)
		source.POST("/heartbeat", h.Heartbeat)
		source.POST("/stop", h.Stop)
	}

	viewer := work.Group("", middleware.RequireRoles(domain.RoleTeamViewer, domain.RoleGlobalViewer))
	{
		viewer.GET("/summary/today", h.SummaryToday)
		viewer.GET("/summary/range", h.SummaryRange)
		viewer.GET("/sessions/today", h.SessionsToday)
		viewer.GET("/sessions/range", h.SessionsRange)
	}
}

type HeartbeatRequest struct {
	IdleDeltaSeconds float64 `json:"idleDeltaSeconds"`
}

func (h *WorkHandler) Start(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	session, created, err := h.workService.Start(c.Request.Context(), identity)
	if err != nil {
		c.Error(err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"ok": true, "session": session})
}

func (h *WorkHandler) Heartbeat(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	session, err := h.workService.Heartbeat(c.Request.Context(), identity, req.IdleDeltaSeconds)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "idleSeconds": session.IdleSeconds})
}

func (h *WorkHandler) Stop(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	session, err := h.workService.Stop(c.Request.Context(), identity)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "session": session})
}

func (h *WorkHandler) SummaryToday(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	sourceID, err := querySourceID(c)
	if err != nil {
		c.Error(err)
		return
	}
	filter := h.workService.TodayFilter(sourceID)

	summary, err := h.workService.Summary(c.Request.Context(), identity, filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"today": utils.Day(filter.From), "sources": summary})
}

func (h *WorkHandler) SummaryRange(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	filter, err := rangeFilter(c)
	if err != nil {
		c.Error(err)
		return
	}

	summary, err := h.workService.Summary(c.Request.Context(), identity, filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":    utils.FormatTimestamp(filter.From),
		"to":      utils.FormatTimestamp(filter.To),
		"sources": summary,
	})
}

func (h *WorkHandler) SessionsToday(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	sourceID, err := querySourceID(c)
	if err != nil {
		c.Error(err)
		return
	}
	filter := h.workService.TodayFilter(sourceID)

	sessions, err := h.workService.Sessions(c.Request.Context(), identity, filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"today": utils.Day(filter.From), "sources": sessions})
}

func (h *WorkHandler) SessionsRange(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	filter, err := rangeFilter(c)
	if err != nil {
		c.Error(err)
		return
	}

	sessions, err := h.workService.Sessions(c.Request.Context(), identity, filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":    utils.FormatTimestamp(filter.From),
		"to":      utils.FormatTimestamp(filter.To),
		"sources": sessions,
	})
}

// rangeFilter reads from/to (RFC3339, both required) and the optional sourceId.
func rangeFilter(c *gin.Context) (domain.SessionFilter, error) {
	from, err := utils.ParseTimestamp(c.Query("from"))
	if err != nil {
		return domain.SessionFilter{}, errors.NewInvalidInputError("from must be an RFC3339 timestamp")
	}
	to, err := utils.ParseTimestamp(c.Query("to"))
	if err != nil {
		return domain.SessionFilter{}, errors.NewInvalidInputError("to must be an RFC3339 timestamp")
	}
	if to.Before(from) {
		return domain.SessionFilter{}, errors.NewInvalidInputError("to must not be before from")
	}
	sourceID, err := querySourceID(c)
	if err != nil {
		return domain.SessionFilter{}, err
	}
	return domain.SessionFilter{
		From:     from.UTC(),
		To:       to.UTC(),
		SourceID: sourceID,
	}, nil
}

// querySourceID reads the optional sourceId query parameter.
func querySourceID(c *gin.Context) (domain.SubjectID, error) {
	raw := c.Query("sourceId")
	if raw == "" {
		return "", nil
	}
	return parseSourceID(raw)
}

func parseSourceID(raw string) (domain.SubjectID, error) {
	id := utils.NormalizeSubjectID(raw)
	if err := validation.ValidateSubjectID(id); err != nil {
		return "", errors.NewInvalidInputError("sourceId: " + err.Error())
	}
	return domain.SubjectID(id), nil
}
