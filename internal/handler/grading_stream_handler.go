package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/aisensei-api/internal/dto"
	"github.com/noah-isme/aisensei-api/internal/middleware"
	"github.com/noah-isme/aisensei-api/internal/service"
	"github.com/noah-isme/aisensei-api/internal/utils"
)

const (
	streamAssignmentLocal = "stream_assignment_id"
	streamSnapshotLocal   = "stream_snapshot"
	streamPingInterval    = 30 * time.Second
	streamWriteTimeout    = 10 * time.Second
)

// GradingStreamHandler pushes grading lifecycle events over websockets.
type GradingStreamHandler struct {
	hub      service.GradingEventHub
	progress service.GradingProgressService
	logger   zerolog.Logger
}

// NewGradingStreamHandler builds the websocket handler.
func NewGradingStreamHandler(hub service.GradingEventHub, progress service.GradingProgressService, logger zerolog.Logger) *GradingStreamHandler {
	return &GradingStreamHandler{
		hub:      hub,
		progress: progress,
		logger:   logger.With().Str("component", "grading_stream_handler").Logger(),
	}
}

// Register binds the stream under the provided router group.
func (h *GradingStreamHandler) Register(router fiber.Router) {
	router.Get("/assignments/:id/grading", h.authorize, websocket.New(h.handleConnection))
}

// authorize checks ownership before the upgrade so strangers get a plain 404.
func (h *GradingStreamHandler) authorize(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	snapshot, err := h.progress.Progress(requestContext(c), middleware.TeacherID(c), assignmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	c.Locals(streamAssignmentLocal, assignmentID)
	c.Locals(streamSnapshotLocal, snapshot)
	return c.Next()
}

func (h *GradingStreamHandler) handleConnection(conn *websocket.Conn) {
	assignmentID, _ := conn.Locals(streamAssignmentLocal).(uint)
	snapshot, _ := conn.Locals(streamSnapshotLocal).(dto.GradingProgressResponse)
	logger := h.logger.With().Uint("assignment_id", assignmentID).Logger()

	events, unsubscribe := h.hub.Subscribe(assignmentID)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go drainClient(conn, cancel)

	logger.Info().Msg("grading stream connected")
	defer logger.Info().Msg("grading stream disconnected")

	if err := writeFrame(conn, dto.GradingStreamMessage{Type: dto.StreamMessageProgress, Progress: &snapshot}); err != nil {
		return
	}

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"))
				return
			}
			if err := writeFrame(conn, dto.GradingStreamMessage{Type: dto.StreamMessageEvent, Event: &event}); err != nil {
				logger.Debug().Err(err).Msg("grading stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// drainClient discards inbound frames and cancels once the peer goes away.
func drainClient(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, message dto.GradingStreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(message)
}
