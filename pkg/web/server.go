// Package web serves the host control surface for the microphone recorder:
// a small JSON API to start and stop recordings, forward them to the avatar
// controller, and a websocket status stream.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-avatar-audio/pkg/avatar"
	"github.com/teslashibe/go-avatar-audio/pkg/hub"
	"github.com/teslashibe/go-avatar-audio/pkg/recorder"
)

// Config configures the control server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr" json:"addr" mapstructure:"addr"`

	// ChunkBytes is the chunk size used when streaming a recording to the
	// controller.
	ChunkBytes int `yaml:"chunk_bytes" json:"chunk_bytes" mapstructure:"chunk_bytes"`

	// SendOnStop streams every recording to the controller unless the stop
	// request says otherwise.
	SendOnStop bool `yaml:"send_on_stop" json:"send_on_stop" mapstructure:"send_on_stop"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:       ":8080",
		ChunkBytes: avatar.DefaultChunkBytes,
		SendOnStop: true,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.ChunkBytes < 0 {
		return fmt.Errorf("chunk_bytes must not be negative, got %d", c.ChunkBytes)
	}
	return nil
}

// Server is the control server.
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger

	recorder *recorder.Recorder
	avatar   *avatar.Handle
	status   *hub.Hub

	lastMu sync.RWMutex
	last   *recorder.EncodedAudio

	unsubscribe []func()

	stopOnce sync.Once
	stopErr  error
}

// NewServer creates a control server around rec and handle.
func NewServer(cfg Config, rec *recorder.Recorder, handle *avatar.Handle, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if handle == nil {
		handle = avatar.NewHandle(nil, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger.With("component", "web"),
		recorder: rec,
		avatar:   handle,
		status:   hub.New(logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Avatar Mic",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/recording/start", s.handleStart)
	api.Post("/recording/stop", s.handleStop)
	api.Post("/recording/cleanup", s.handleCleanup)
	api.Get("/recording/last", s.handleLast)
	api.Post("/interrupt", s.handleInterrupt)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	s.subscribe()
	return s, nil
}

// subscribe forwards recorder and controller state to the status stream.
func (s *Server) subscribe() {
	s.unsubscribe = append(s.unsubscribe, s.recorder.OnStateChange(func(from, to recorder.State) {
		s.publish(hub.EventRecorderState, fiber.Map{"from": from, "to": to})
	}))

	events := s.avatar.Events()
	if off, err := events.OnConnectionState(func(state avatar.ConnectionState) {
		s.publish(hub.EventConnectionState, fiber.Map{"state": state})
	}); err != nil {
		s.logger.Warn("connection state already observed elsewhere", "error", err)
	} else {
		s.unsubscribe = append(s.unsubscribe, off)
	}

	if off, err := events.OnConversationState(func(state avatar.ConversationState) {
		s.publish(hub.EventConversationState, fiber.Map{"state": state})
	}); err != nil {
		s.logger.Warn("conversation state already observed elsewhere", "error", err)
	} else {
		s.unsubscribe = append(s.unsubscribe, off)
	}
}

func (s *Server) publish(eventType string, data any) {
	if err := s.status.Publish(hub.NewEvent(eventType, data)); err != nil {
		s.logger.Warn("failed to publish status event", "type", eventType, "error", err)
	}
}

// Start runs the status hub and serves until ctx is done or the listener
// fails. Cancelling ctx shuts the listener down and Start returns nil.
func (s *Server) Start(ctx context.Context) error {
	go s.status.Run(ctx)

	listening := make(chan struct{})
	defer close(listening)
	go func() {
		select {
		case <-ctx.Done():
			if err := s.stopListener(); err != nil {
				s.logger.Warn("control server shutdown failed", "error", err)
			}
		case <-listening:
		}
	}()

	if ctx.Err() != nil {
		return nil
	}
	s.logger.Info("control server listening", "addr", s.cfg.Addr)
	err := s.app.Listen(s.cfg.Addr)
	if ctx.Err() != nil {
		s.logger.Info("control server stopped")
		return nil
	}
	return err
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("control server stopped", "error", err)
		}
	}()
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the status hub.
func (s *Server) Hub() *hub.Hub {
	return s.status
}

// Shutdown stops the listener and detaches event subscriptions.
func (s *Server) Shutdown() error {
	for _, off := range s.unsubscribe {
		off()
	}
	s.unsubscribe = nil
	return s.stopListener()
}

// stopListener shuts the app down once; later calls return the first result.
func (s *Server) stopListener() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.app.Shutdown()
	})
	return s.stopErr
}
