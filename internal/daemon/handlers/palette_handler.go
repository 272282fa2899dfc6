package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgeapp/forge/internal/palette"
)

type PaletteHandler struct{}

func NewPaletteHandler() *PaletteHandler {
	return &PaletteHandler{}
}

type mergeRequest struct {
	Colors    []string `json:"colors"`
	Threshold *float64 `json:"threshold"`
}

// Swatch describes one merged color for display.
type Swatch struct {
	Hex   string `json:"hex"`
	Light bool   `json:"light"`
}

// Merge collapses visually similar colors into representatives. The
// threshold defaults to the distance under which two colors read as the
// same.
func (h *PaletteHandler) Merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}
	if req.Colors == nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("colors is required"))
		return
	}

	threshold := palette.DefaultMergeThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	merged := palette.MergeSimilar(req.Colors, threshold)
	swatches := make([]Swatch, 0, len(merged))
	for _, hex := range merged {
		swatches = append(swatches, Swatch{Hex: hex, Light: palette.IsLight(hex)})
	}

	c.JSON(http.StatusOK, gin.H{
		"colors":    merged,
		"swatches":  swatches,
		"threshold": threshold,
	})
}
