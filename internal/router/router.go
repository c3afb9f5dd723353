package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpy/paths"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/incubator-platform/support-chat/api"
	"github.com/incubator-platform/support-chat/internal/auth"
	"github.com/incubator-platform/support-chat/internal/gateway"
	"github.com/incubator-platform/support-chat/internal/handler"
)

const PathWebSocket = "/ws"

type Handlers struct {
	Health       *handler.HealthHandler
	Ticket       *handler.TicketHandler
	Notification *handler.NotificationHandler
	Gateway      *gateway.Server
	Verifier     auth.Verifier
	Log          *zap.Logger
}

func New(h Handlers) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	if h.Log != nil {
		r.Use(requestLogger(h.Log))
	}
	r.GET(paths.PathHealth, h.Health.Health)
	r.GET(paths.PathReady, h.Health.Ready)
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	// The gateway authenticates the handshake itself.
	r.GET(PathWebSocket, h.Gateway.Handle)

	// Session reminders are driven by the booking module, which calls with
	// a staff token.
	staff := auth.RequireRole(auth.RoleCoach, auth.RoleAdmin)
	v1 := r.Group("/api/v1", auth.RequireAuth(h.Verifier))
	{
		v1.GET("/tickets", h.Ticket.List)
		v1.GET("/tickets/:id", h.Ticket.Get)
		v1.GET("/tickets/:id/messages", h.Ticket.Messages)
		v1.PUT("/tickets/:id/status", staff, h.Ticket.UpdateStatus)
		v1.GET("/coaches/available", h.Ticket.AvailableCoaches)

		v1.GET("/notifications/preferences", h.Notification.GetPreferences)
		v1.PUT("/notifications/preferences", h.Notification.UpdatePreferences)
		v1.GET("/notifications/pending", auth.RequireRole(auth.RoleAdmin), h.Notification.Pending)
		v1.POST("/sessions/:id/notifications", staff, h.Notification.Schedule)
		v1.PUT("/sessions/:id/notifications", staff, h.Notification.Reschedule)
		v1.DELETE("/sessions/:id/notifications", staff, h.Notification.Cancel)
	}

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == paths.PathHealth || c.Request.URL.Path == paths.PathReady {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		log.Info("http request", fields...)
	}
}
