package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/logger"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type sessionDirectory interface {
	sessionResolver
	Observe(ctx context.Context) (*service.SessionStream, error)
	Audit(ctx context.Context) ([]models.SessionAnomaly, error)
}

// SessionHandler exposes the active session to clients.
type SessionHandler struct {
	directory sessionDirectory
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewSessionHandler constructs a session handler. heartbeat is the idle
// interval between keep-alive events on the stream.
func NewSessionHandler(directory sessionDirectory, heartbeat time.Duration, logger *zap.Logger) *SessionHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{directory: directory, heartbeat: heartbeat, logger: logger}
}

// Active godoc
// @Summary Current active session
// @Description state is ACTIVE, NO_ACTIVE_YEAR or NO_ACTIVE_SEMESTER
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /session/active [get]
func (h *SessionHandler) Active(c *gin.Context) {
	snapshot, err := h.directory.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, snapshot)
}

// Stream godoc
// @Summary Stream the active session
// @Description Server-sent events: "session" on every change, "heartbeat" when idle, "error" before the stream ends on a store failure
// @Tags Session
// @Produce text/event-stream
// @Success 200
// @Router /session/stream [get]
func (h *SessionHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, err := h.directory.Observe(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer stream.Close()

	log := logger.WithContext(ctx, h.logger)
	started := time.Now()
	events := 0
	defer func() {
		log.Info("session stream closed",
			zap.Int("events", events),
			zap.Duration("duration", time.Since(started)),
			zap.String("actor_id", c.GetString(logger.ActorKey)),
		)
	}()

	response.StreamHeaders(c)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-stream.Updates():
			if !ok {
				if err := stream.Err(); err != nil {
					c.SSEvent("error", appErrors.FromError(err))
					c.Writer.Flush()
				}
				return
			}
			c.SSEvent("session", snapshot)
			c.Writer.Flush()
			events++
			heartbeat.Reset(h.heartbeat)
		case at := <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"at": at.UTC()})
			c.Writer.Flush()
		}
	}
}

// Audit godoc
// @Summary List session anomalies
// @Description Reports academic years or semesters that share the Active flag
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /session/audit [get]
func (h *SessionHandler) Audit(c *gin.Context) {
	anomalies, err := h.directory.Audit(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if anomalies == nil {
		anomalies = []models.SessionAnomaly{}
	}
	response.JSON(c, http.StatusOK, anomalies, nil, map[string]interface{}{"healthy": len(anomalies) == 0})
}
