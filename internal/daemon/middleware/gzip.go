package middleware

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

var (
	excludedPaths = []string{
		"/health",
	}
	// already-compressed payloads
	excludedExtensions = []string{
		".png", ".gif", ".jpeg", ".jpg", ".webp", ".mp4", ".zip", ".gz",
	}
)

func Gzip() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.DefaultCompression,
		gzip.WithExcludedPaths(excludedPaths),
		gzip.WithExcludedExtensions(excludedExtensions),
	)
}
