package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medline/teleconsult/internal/adapters"
	"github.com/medline/teleconsult/internal/app"
	"github.com/medline/teleconsult/internal/config"
	"github.com/medline/teleconsult/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every browser with a stable token so the
// signaling logs can correlate reconnects of the same client.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type feedbackRequest struct {
	AppointmentID string `json:"appointmentId" binding:"required"`
	AuthorID      string `json:"authorId" binding:"required"`
	Rating        int    `json:"rating" binding:"required"`
	Comment       string `json:"comment"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, registry *app.Registry, signal *adapters.SignalWSController, feedback *app.FeedbackCapture) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("TeleconsultSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		signal.HandleSignal(ctx, c)
	})

	api.GET("/presence/:id", func(c *gin.Context) {
		id := domain.ParticipantID(c.Param("id"))
		if err := id.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "online": registry.Online(id)})
	})

	api.POST("/feedback", func(c *gin.Context) {
		var req feedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feedback payload"})
			return
		}
		err := feedback.Capture(domain.CallAttemptID(req.AppointmentID), domain.ParticipantID(req.AuthorID), req.Rating, req.Comment)
		switch {
		case errors.Is(err, app.ErrFeedbackSubmitted):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusAccepted, gin.H{"status": "received"})
		}
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")

	return r
}
