package daemon

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"

	"github.com/forgeapp/forge/internal/daemon/handlers"
	"github.com/forgeapp/forge/internal/daemon/middleware"
	"github.com/forgeapp/forge/internal/version"
)

func (d *Daemon) setupRoutes() http.Handler {
	r := gin.New()

	rateLimitStore := memory.NewStore()
	rateLimiter := limiter.New(rateLimitStore, limiter.Rate{
		Period: 1 * time.Second,
		Limit:  20,
	})

	statusH := handlers.NewStatusHandler(d.cfg, d.runner.Store())
	projectH := handlers.NewProjectHandler(d.cfg, d.scheduler)
	syncH := handlers.NewSyncHandler(d.cfg, d.runner)
	scrapeH := handlers.NewScrapeHandler(d.scraper, d.scrapeCache)
	snapshotH := handlers.NewSnapshotHandler(d.cfg, d.history)
	deltaH := handlers.NewDeltaHandler(d.cfg, d.delta)
	paletteH := handlers.NewPaletteHandler()
	scheduleH := handlers.NewScheduleHandler(d.cfg, d.scheduler)

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())
	r.Use(mgin.NewMiddleware(rateLimiter))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Detailed())
	})
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(middleware.TokenAuthConfig{Token: d.cfg.AuthToken}))
	{
		v1.GET("/status", statusH.Status)
		v1.GET("/projects", projectH.List)
		v1.GET("/projects/:id", projectH.Get)

		v1Sync := v1.Group("/projects/:id/sync")
		{
			v1Sync.GET("/status", syncH.Status)
			v1Sync.POST("/now", syncH.Trigger)
			v1Sync.GET("/preview", syncH.Preview)
			v1Sync.POST("/reset", syncH.Reset)
		}
		v1.GET("/sync/events", syncH.Events)

		v1Snapshots := v1.Group("/projects/:id/snapshots")
		{
			v1Snapshots.GET("", snapshotH.List)
			v1Snapshots.POST("", snapshotH.Create)
			v1Snapshots.GET("/compare", snapshotH.Compare)
			v1Snapshots.GET("/:snapshotId", snapshotH.Get)
			v1Snapshots.POST("/:snapshotId/restore", snapshotH.Restore)
			v1Snapshots.DELETE("/:snapshotId", snapshotH.Delete)
		}

		v1Delta := v1.Group("/projects/:id/delta")
		{
			v1Delta.GET("", deltaH.Analyze)
			v1Delta.DELETE("", deltaH.Forget)
		}

		v1Schedule := v1.Group("/projects/:id/schedule")
		{
			v1Schedule.PUT("", scheduleH.Set)
			v1Schedule.DELETE("", scheduleH.Remove)
		}
		v1.GET("/schedules", scheduleH.List)

		v1.GET("/scrape", scrapeH.Scrape)
		v1.GET("/scrape/events", scrapeH.Events)
		v1.POST("/palette/merge", paletteH.Merge)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	return r.Handler()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
