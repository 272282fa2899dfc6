package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/schedule"
)

type ScheduleHandler struct {
	cfg   *config.Config
	sched *schedule.Scheduler
}

func NewScheduleHandler(cfg *config.Config, sched *schedule.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{cfg: cfg, sched: sched}
}

type setScheduleRequest struct {
	Expr string `json:"expr" binding:"required"`
}

// Set installs a cron schedule for the project.
func (h *ScheduleHandler) Set(c *gin.Context) {
	p, ok := lookupProject(c, h.cfg)
	if !ok {
		return
	}

	var req setScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	if err := h.sched.Set(p.ID, req.Expr); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	st, _ := h.sched.Status(p.ID)
	c.JSON(http.StatusOK, st)
}

// Remove disables the project's schedule.
func (h *ScheduleHandler) Remove(c *gin.Context) {
	p, ok := lookupProject(c, h.cfg)
	if !ok {
		return
	}
	h.sched.Remove(p.ID)
	c.JSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
}

// List returns every active schedule.
func (h *ScheduleHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schedules": h.sched.All()})
}
