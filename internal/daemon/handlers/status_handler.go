package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/sync"
	"github.com/forgeapp/forge/internal/version"
)

type StatusHandler struct {
	cfg   *config.Config
	store *sync.Store
}

func NewStatusHandler(cfg *config.Config, store *sync.Store) *StatusHandler {
	return &StatusHandler{cfg: cfg, store: store}
}

type StatusResponse struct {
	App      string                `json:"app"`
	Version  string                `json:"version"`
	Projects int                   `json:"projects"`
	States   map[string]sync.State `json:"states"`
}

// Status reports daemon health plus the sync state of every project.
func (h *StatusHandler) Status(c *gin.Context) {
	states := h.store.All()
	for _, p := range h.cfg.Projects {
		if _, ok := states[p.ID]; !ok {
			states[p.ID] = sync.DefaultState()
		}
	}

	c.JSON(http.StatusOK, StatusResponse{
		App:      version.AppName,
		Version:  version.Short(),
		Projects: len(h.cfg.Projects),
		States:   states,
	})
}
