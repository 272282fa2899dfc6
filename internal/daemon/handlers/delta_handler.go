package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/delta"
)

type DeltaHandler struct {
	cfg   *config.Config
	delta *delta.Service
}

func NewDeltaHandler(cfg *config.Config, svc *delta.Service) *DeltaHandler {
	return &DeltaHandler{cfg: cfg, delta: svc}
}

// Analyze signatures the project's local tree against the cached state and
// reports per-file change estimates.
func (h *DeltaHandler) Analyze(c *gin.Context) {
	p, ok := lookupProject(c, h.cfg)
	if !ok {
		return
	}

	analysis, err := h.delta.AnalyzeProject(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"files":          analysis.Files,
		"totalBytes":     analysis.TotalBytes,
		"bytesNeeded":    analysis.BytesNeeded,
		"savingsPercent": analysis.SavingsPercent(),
	})
}

// Forget drops the project's cached signatures.
func (h *DeltaHandler) Forget(c *gin.Context) {
	p, ok := lookupProject(c, h.cfg)
	if !ok {
		return
	}
	if err := h.delta.Forget(c.Request.Context(), p.ID); err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.JSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
}
