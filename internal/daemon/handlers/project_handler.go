package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/schedule"
)

type ProjectHandler struct {
	cfg   *config.Config
	sched *schedule.Scheduler
}

func NewProjectHandler(cfg *config.Config, sched *schedule.Scheduler) *ProjectHandler {
	return &ProjectHandler{cfg: cfg, sched: sched}
}

// ProjectInfo is the API view of a project; credentials never leave the
// daemon.
type ProjectInfo struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	LocalPath string           `json:"localPath"`
	SiteURL   string           `json:"siteUrl,omitempty"`
	Protocol  config.Protocol  `json:"protocol"`
	Host      string           `json:"host"`
	Schedule  *schedule.Status `json:"schedule,omitempty"`
}

func (h *ProjectHandler) info(p *config.Project) ProjectInfo {
	info := ProjectInfo{
		ID:        p.ID,
		Name:      p.Name,
		LocalPath: p.LocalPath,
		SiteURL:   p.SiteURL,
		Protocol:  p.Remote.Protocol,
		Host:      p.Remote.Host,
	}
	if st, ok := h.sched.Status(p.ID); ok {
		info.Schedule = &st
	}
	return info
}

// List returns all configured projects.
func (h *ProjectHandler) List(c *gin.Context) {
	projects := make([]ProjectInfo, 0, len(h.cfg.Projects))
	for i := range h.cfg.Projects {
		projects = append(projects, h.info(&h.cfg.Projects[i]))
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// Get returns one project by id.
func (h *ProjectHandler) Get(c *gin.Context) {
	p, err := h.cfg.Project(c.Param("id"))
	if err != nil {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
		return
	}
	c.JSON(http.StatusOK, h.info(p))
}

// lookupProject resolves the :id route param, aborting with 404 on miss.
func lookupProject(c *gin.Context, cfg *config.Config) (*config.Project, bool) {
	id := c.Param("id")
	if id == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("project id is required"))
		return nil, false
	}
	p, err := cfg.Project(id)
	if err != nil {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
		return nil, false
	}
	return p, true
}
