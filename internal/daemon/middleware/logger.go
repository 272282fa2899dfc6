package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

func Logger() gin.HandlerFunc {
	httpLogger := slog.Default().WithGroup("http")

	return sloggin.NewWithConfig(httpLogger, sloggin.Config{
		DefaultLevel:     slog.LevelDebug,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	})
}
