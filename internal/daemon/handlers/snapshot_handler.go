package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/history"
)

type SnapshotHandler struct {
	cfg     *config.Config
	history *history.Service
}

func NewSnapshotHandler(cfg *config.Config, svc *history.Service) *SnapshotHandler {
	return &SnapshotHandler{cfg: cfg, history: svc}
}

type createSnapshotRequest struct {
	Description string `json:"description"`
}

// Create captures the project's current local tree.
func (h *SnapshotHandler) Create(c *gin.Context) {
	p, ok := lookupProject(c, h.cfg)
	if !ok {
		return
	}

	// body is optional
	var req createSnapshotRequest
	_ = c.ShouldBindJSON(&req)

	snap, err := h.history.Create(c.Request.Context(), p, req.Description)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// List returns the project's snapshots, newest first.
func (h *SnapshotHandler) List(c *gin.Context) {
	p, ok := lookupProject(c, h.cfg)
	if !ok {
		return
	}

	snaps, err := h.history.List(c.Request.Context(), p.ID)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

// Get returns one snapshot with its file manifest.
func (h *SnapshotHandler) Get(c *gin.Context) {
	snap, files, err := h.history.Get(c.Request.Context(), c.Param("snapshotId"))
	if errors.Is(err, history.ErrSnapshotNotFound) {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
		return
	}
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snap, "files": files})
}

// Compare diffs two snapshots by content hash.
func (h *SnapshotHandler) Compare(c *gin.Context) {
	oldID, newID := c.Query("old"), c.Query("new")
	if oldID == "" || newID == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("old and new snapshot ids are required"))
		return
	}

	diff, err := h.history.Compare(c.Request.Context(), oldID, newID)
	if errors.Is(err, history.ErrSnapshotNotFound) {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
		return
	}
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.JSON(http.StatusOK, diff)
}

// Restore copies a snapshot's files back over the project's local tree.
func (h *SnapshotHandler) Restore(c *gin.Context) {
	p, ok := lookupProject(c, h.cfg)
	if !ok {
		return
	}

	restored, err := h.history.Restore(c.Request.Context(), p, c.Param("snapshotId"))
	if errors.Is(err, history.ErrSnapshotNotFound) {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
		return
	}
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored})
}

// Delete removes a snapshot and its backups.
func (h *SnapshotHandler) Delete(c *gin.Context) {
	err := h.history.Delete(c.Request.Context(), c.Param("snapshotId"))
	if errors.Is(err, history.ErrSnapshotNotFound) {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
		return
	}
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.JSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
}
