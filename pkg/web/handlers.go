package web

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-avatar-audio/pkg/audioio"
	"github.com/teslashibe/go-avatar-audio/pkg/avatar"
	"github.com/teslashibe/go-avatar-audio/pkg/hub"
	"github.com/teslashibe/go-avatar-audio/pkg/recorder"
)

// StartRequest is the body of POST /api/recording/start.
type StartRequest struct {
	SampleRate int `json:"sample_rate"`
}

// StopRequest is the body of POST /api/recording/stop. Send overrides the
// server's SendOnStop setting when present.
type StopRequest struct {
	Send       *bool `json:"send"`
	ChunkBytes int   `json:"chunk_bytes"`
}

// StopResponse describes a finished recording.
type StopResponse struct {
	SessionID  string `json:"session_id"`
	Bytes      int    `json:"bytes"`
	Samples    int    `json:"samples"`
	SampleRate int    `json:"sample_rate"`
	DurationMs int64  `json:"duration_ms"`
	Sent       bool   `json:"sent"`
	SentRate   int    `json:"sent_rate,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
	Warning    string `json:"warning,omitempty"`
	Error      string `json:"error,omitempty"`
}

// AvatarStatus describes the controller as seen by the host.
type AvatarStatus struct {
	Loaded       bool                     `json:"loaded"`
	Connection   avatar.ConnectionState   `json:"connection"`
	Conversation avatar.ConversationState `json:"conversation"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Recorder recorder.Status      `json:"recorder"`
	Source   *audioio.SourceStats `json:"source,omitempty"`
	Avatar   AvatarStatus         `json:"avatar"`
	Clients  int                  `json:"clients"`
}

func errorBody(err error) fiber.Map {
	return fiber.Map{"error": err.Error()}
}

// handleStatus returns recorder, source and controller state.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Recorder: s.recorder.Status(),
		Avatar: AvatarStatus{
			Loaded:       s.avatar.Loaded(),
			Connection:   s.avatar.Events().ConnectionState(),
			Conversation: s.avatar.Events().ConversationState(),
		},
		Clients: s.status.ClientCount(),
	}
	if src, ok := s.recorder.Source().(audioio.SourceWithStats); ok {
		stats := src.Stats()
		resp.Source = &stats
	}
	return c.JSON(resp)
}

// handleStart opens the microphone.
func (s *Server) handleStart(c *fiber.Ctx) error {
	var req StartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorBody(err))
		}
	}

	if err := s.recorder.Start(c.UserContext(), req.SampleRate); err != nil {
		if audioio.IsDeviceUnavailable(err) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(errorBody(err))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody(err))
	}

	return c.JSON(fiber.Map{
		"state":   s.recorder.State(),
		"session": s.recorder.Session(),
	})
}

// handleStop ends the recording and optionally forwards it to the
// controller.
func (s *Server) handleStop(c *fiber.Ctx) error {
	var req StopRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorBody(err))
		}
	}

	ctx := c.UserContext()
	audio, err := s.recorder.Stop(ctx)

	var warning string
	if err != nil {
		if !recorder.IsCloseError(err) {
			return c.Status(fiber.StatusInternalServerError).JSON(errorBody(err))
		}
		warning = err.Error()
	}

	if audio == nil {
		s.publish(hub.EventRecordingStopped, fiber.Map{"empty": true})
		return c.SendStatus(fiber.StatusNoContent)
	}

	s.lastMu.Lock()
	s.last = audio
	s.lastMu.Unlock()

	resp := StopResponse{
		SessionID:  audio.SessionID,
		Bytes:      len(audio.Data),
		Samples:    audio.Samples,
		SampleRate: audio.SampleRate,
		DurationMs: audio.Duration.Milliseconds(),
		Warning:    warning,
	}

	send := s.cfg.SendOnStop
	if req.Send != nil {
		send = *req.Send
	}
	status := fiber.StatusOK

	if send {
		chunkBytes := req.ChunkBytes
		if chunkBytes <= 0 {
			chunkBytes = s.cfg.ChunkBytes
		}

		// The controller expects its own rate; convert when it differs.
		out, err := audio.Resample(s.avatar.SampleRate(), s.recorder.Resampler())
		if err != nil {
			resp.Error = err.Error()
			s.publish(hub.EventRecordingStopped, resp)
			return c.Status(fiber.StatusInternalServerError).JSON(resp)
		}
		if out.SampleRate != audio.SampleRate {
			s.logger.Info("resampling recording for controller",
				"session_id", audio.SessionID,
				"from_rate", audio.SampleRate,
				"to_rate", out.SampleRate,
			)
		}
		resp.SentRate = out.SampleRate

		n, err := s.avatar.Stream(ctx, out.Data, chunkBytes)
		resp.Chunks = n
		switch {
		case err == nil:
			resp.Sent = true
		case avatar.IsNotLoaded(err):
			resp.Error = err.Error()
			status = fiber.StatusConflict
		default:
			resp.Error = err.Error()
			status = fiber.StatusBadGateway
		}
	}

	s.publish(hub.EventRecordingStopped, resp)
	return c.Status(status).JSON(resp)
}

// handleCleanup releases the microphone without producing audio.
func (s *Server) handleCleanup(c *fiber.Ctx) error {
	s.recorder.Cleanup()
	return c.SendStatus(fiber.StatusNoContent)
}

// handleLast returns the most recent recording as raw PCM16LE.
func (s *Server) handleLast(c *fiber.Ctx) error {
	s.lastMu.RLock()
	last := s.last
	s.lastMu.RUnlock()

	if last == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no recording"})
	}

	c.Set(fiber.HeaderContentType, fmt.Sprintf("audio/L16; rate=%d; channels=1", last.SampleRate))
	c.Set("X-Session-Id", last.SessionID)
	return c.Send(last.Data)
}

// handleInterrupt asks the controller to stop its current response.
func (s *Server) handleInterrupt(c *fiber.Ctx) error {
	err := s.avatar.Interrupt(c.UserContext())
	switch {
	case err == nil:
		return c.SendStatus(fiber.StatusNoContent)
	case avatar.IsNotLoaded(err):
		return c.Status(fiber.StatusConflict).JSON(errorBody(err))
	case errors.Is(err, avatar.ErrInterruptUnsupported):
		return c.Status(fiber.StatusNotImplemented).JSON(errorBody(err))
	default:
		return c.Status(fiber.StatusBadGateway).JSON(errorBody(err))
	}
}

// handleStatusWS streams status events.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.status, c, hub.ParseTopics(c.Query("events"))...)
	client.Run()
}
