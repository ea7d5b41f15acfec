package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"thoughtcapture/internal/handler"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	eventsHandler *handler.SlackEventsHandler,
	interactionsHandler *handler.InteractionsHandler,
	healthHandler *handler.HealthHandler,
	adminHandler *handler.AdminHandler,
	jwtSecret string,
	db *pgxpool.Pool,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware(), MetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Slack callbacks
	r.POST("/slack/events", eventsHandler.HandleEvent)
	r.POST("/slack/interactions", interactionsHandler.HandleInteraction)

	r.GET("/health/report", healthHandler.Report)

	// Admin
	r.POST("/admin/login", adminHandler.Login)

	admin := r.Group("/admin")
	admin.Use(AuthMiddleware(jwtSecret))
	{
		admin.POST("/retention/run", adminHandler.RunRetention)
		admin.GET("/outbox/failed", adminHandler.GetFailedOutboxEvents)
		admin.POST("/outbox/:id/replay", adminHandler.ReplayOutboxEvent)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
