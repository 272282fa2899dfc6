package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/sync"
)

type SyncHandler struct {
	cfg    *config.Config
	runner *sync.Runner
}

func NewSyncHandler(cfg *config.Config, runner *sync.Runner) *SyncHandler {
	return &SyncHandler{cfg: cfg, runner: runner}
}

// Status returns the sync state of one project.
func (h *SyncHandler) Status(c *gin.Context) {
	p, ok := lookupProject(c, h.cfg)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.runner.Store().Get(p.ID))
}

// Trigger starts a deployment run for the project. The run executes in the
// background; progress is observable via Status and Events. A run already
// in flight is rejected with 409.
func (h *SyncHandler) Trigger(c *gin.Context) {
	p, ok := lookupProject(c, h.cfg)
	if !ok {
		return
	}
	dryRun := c.Query("dryRun") == "true"

	if h.runner.Store().Busy(p.ID) {
		AbortWithError(c, http.StatusConflict, ErrCodeSyncInProgress, sync.ErrSyncInProgress)
		return
	}

	go func() {
		// background context: the run outlives the HTTP request
		_ = h.runner.Run(context.Background(), p, dryRun, nil)
	}()

	c.JSON(http.StatusOK, gin.H{"status": "sync started", "project": p.ID, "dryRun": dryRun})
}

// Preview returns the diff a sync would act on, without mutating state.
func (h *SyncHandler) Preview(c *gin.Context) {
	p, ok := lookupProject(c, h.cfg)
	if !ok {
		return
	}

	diff, err := h.runner.Preview(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, http.StatusBadGateway, ErrCodeUnknownError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": p.ID, "diff": diff})
}

// Reset returns the project's sync state to idle.
func (h *SyncHandler) Reset(c *gin.Context) {
	p, ok := lookupProject(c, h.cfg)
	if !ok {
		return
	}
	if h.runner.Store().Busy(p.ID) {
		AbortWithError(c, http.StatusConflict, ErrCodeSyncInProgress, errors.New("cannot reset while a run is in flight"))
		return
	}
	c.JSON(http.StatusOK, h.runner.Store().Reset(p.ID))
}

// Events streams state changes for all projects as server-sent events.
func (h *SyncHandler) Events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	eventCh := h.runner.Store().Subscribe()
	defer h.runner.Store().Unsubscribe(eventCh)

	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-eventCh:
			if !ok {
				return false
			}
			c.SSEvent("sync", event)
			return true
		}
	})
}
