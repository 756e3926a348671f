package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-avatar-audio/pkg/codec"
)

// DefaultRetryInterval is the redial delay used by Maintain.
const DefaultRetryInterval = 5 * time.Second

// Frame flags carried in the first byte of every binary audio frame.
const (
	FlagFinal byte = 1 << 0
)

// Control message types exchanged as text frames.
const (
	MessageHello     = "hello"
	MessageInterrupt = "interrupt"
	MessageState     = "state"
	MessageError     = "error"
)

// ControlMessage is a JSON text frame on the controller connection.
type ControlMessage struct {
	Type string `json:"type"`

	// hello
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`

	// state
	Conversation string `json:"conversation,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// WSConfig configures a WSController.
type WSConfig struct {
	// URL is the ws:// or wss:// endpoint of the controller relay.
	URL string `yaml:"url" json:"url" mapstructure:"url"`

	// Codec is the payload codec name (see package codec).
	Codec string `yaml:"codec" json:"codec" mapstructure:"codec"`

	// SampleRate is the rate of the PCM16 audio handed to SendAudio.
	SampleRate int `yaml:"sample_rate" json:"sample_rate" mapstructure:"sample_rate"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout" mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval" json:"ping_interval" mapstructure:"ping_interval"`

	// Header is sent with the handshake.
	Header http.Header `yaml:"-" json:"-" mapstructure:"-"`
}

// DefaultWSConfig returns a WSConfig with sensible defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		Codec:            codec.PCM16,
		SampleRate:       16000,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *WSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	return nil
}

// WSStats holds controller counters.
type WSStats struct {
	FramesSent       int64 `json:"frames_sent"`
	BytesSent        int64 `json:"bytes_sent"`
	MessagesReceived int64 `json:"messages_received"`
}

// WSController relays audio to a remote avatar controller over a
// WebSocket. Each binary frame is one flag byte followed by the codec
// payload; control messages travel as JSON text frames. Conversation state
// reported by the peer is published through Events.
type WSController struct {
	cfg    WSConfig
	codec  codec.Codec
	events *Events
	logger *slog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	cancel     context.CancelFunc
	done       chan struct{}
	connecting bool

	// writeMu serializes writes; gorilla connections allow one writer.
	writeMu sync.Mutex

	framesSent       atomic.Int64
	bytesSent        atomic.Int64
	messagesReceived atomic.Int64
}

// NewWSController creates a controller. events may be shared with a Handle.
func NewWSController(cfg WSConfig, events *Events, logger *slog.Logger) (*WSController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c, err := codec.New(cfg.Codec, cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = NewEvents()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WSController{
		cfg:    cfg,
		codec:  c,
		events: events,
		logger: logger.With("component", "avatar.ws", "url", cfg.URL),
	}, nil
}

// Connect dials the relay, announces the audio format and starts the read
// and keepalive loops.
func (w *WSController) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.conn != nil || w.connecting {
		w.mu.Unlock()
		return ErrAlreadyConnected
	}
	w.connecting = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.connecting = false
		w.mu.Unlock()
	}()

	w.events.PublishConnectionState(ConnectionConnecting)

	dialer := websocket.Dialer{
		HandshakeTimeout: w.cfg.HandshakeTimeout,
	}

	w.logger.Info("connecting to avatar controller", "codec", w.codec.Name())

	conn, resp, err := dialer.DialContext(ctx, w.cfg.URL, w.cfg.Header)
	if err != nil {
		w.events.PublishConnectionState(ConnectionFailed)
		connErr := &ConnectionError{URL: w.cfg.URL, Cause: err}
		if resp != nil {
			connErr.StatusCode = resp.StatusCode
		}
		return connErr
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	if s, ok := w.codec.(codec.StreamEncoder); ok {
		s.Reset()
	}

	w.mu.Lock()
	w.conn = conn
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	hello := ControlMessage{Type: MessageHello, Codec: w.codec.Name(), SampleRate: w.cfg.SampleRate}
	if err := w.writeJSON(conn, hello); err != nil {
		w.teardown(conn, ConnectionFailed)
		return &ConnectionError{URL: w.cfg.URL, Cause: err}
	}

	w.events.PublishConnectionState(ConnectionConnected)

	go w.readLoop(loopCtx, conn)
	if w.cfg.PingInterval > 0 {
		go w.keepAlive(loopCtx, conn)
	}
	w.logger.Info("connected to avatar controller")
	return nil
}

// IsConnected returns true while a connection is open.
func (w *WSController) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn != nil
}

// SampleRate returns the PCM16 rate announced to the relay. SendAudio
// expects audio at this rate.
func (w *WSController) SampleRate() int {
	return w.cfg.SampleRate
}

// Done is closed when the current connection ends. It is already closed
// when no connection is open.
func (w *WSController) Done() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return w.done
}

// SendAudio implements AudioSender. Frame-based codecs see consecutive
// calls as one stream; a partial frame is held until isFinal.
func (w *WSController) SendAudio(ctx context.Context, data []byte, isFinal bool) error {
	conn := w.current()
	if conn == nil {
		return ErrNotConnected
	}

	var payload []byte
	var err error
	if s, ok := w.codec.(codec.StreamEncoder); ok {
		payload, err = s.EncodeStream(data, isFinal)
	} else {
		payload, err = w.codec.Encode(data)
	}
	if err != nil {
		return err
	}
	if len(payload) == 0 && !isFinal {
		return nil
	}

	frame := make([]byte, 1+len(payload))
	if isFinal {
		frame[0] |= FlagFinal
	}
	copy(frame[1:], payload)

	if err := w.write(ctx, conn, websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("avatar: send audio: %w", err)
	}

	w.framesSent.Add(1)
	w.bytesSent.Add(int64(len(frame)))
	return nil
}

// Interrupt implements Interrupter.
func (w *WSController) Interrupt(ctx context.Context) error {
	conn := w.current()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(ControlMessage{Type: MessageInterrupt})
	if err != nil {
		return err
	}
	return w.write(ctx, conn, websocket.TextMessage, data)
}

// Close sends a close frame and tears down the connection.
func (w *WSController) Close() error {
	conn := w.current()
	if conn == nil {
		return nil
	}

	w.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	w.writeMu.Unlock()

	w.teardown(conn, ConnectionDisconnected)
	w.logger.Info("disconnected from avatar controller")
	return nil
}

// Stats returns controller counters.
func (w *WSController) Stats() WSStats {
	return WSStats{
		FramesSent:       w.framesSent.Load(),
		BytesSent:        w.bytesSent.Load(),
		MessagesReceived: w.messagesReceived.Load(),
	}
}

func (w *WSController) current() *websocket.Conn {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn
}

// teardown closes conn once and publishes the final state. It does nothing
// when conn is no longer the current connection.
func (w *WSController) teardown(conn *websocket.Conn, state ConnectionState) {
	w.mu.Lock()
	if conn == nil || w.conn != conn {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	done := w.done
	w.conn = nil
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	conn.Close()
	if done != nil {
		close(done)
	}
	w.events.PublishConnectionState(state)
}

func (w *WSController) write(ctx context.Context, conn *websocket.Conn, messageType int, data []byte) error {
	deadline := time.Now().Add(w.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	_ = conn.SetWriteDeadline(deadline)
	return conn.WriteMessage(messageType, data)
}

func (w *WSController) writeJSON(conn *websocket.Conn, msg ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return w.write(context.Background(), conn, websocket.TextMessage, data)
}

func (w *WSController) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.teardown(conn, ConnectionDisconnected)
				return
			}
			w.logger.Error("read error", "error", err)
			w.teardown(conn, ConnectionFailed)
			return
		}

		w.messagesReceived.Add(1)

		if messageType != websocket.TextMessage {
			continue
		}

		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.Warn("failed to parse message", "error", err)
			continue
		}
		w.handleMessage(msg)
	}
}

func (w *WSController) handleMessage(msg ControlMessage) {
	switch msg.Type {
	case MessageState:
		state, ok := ParseConversationState(msg.Conversation)
		if !ok {
			w.logger.Warn("unknown conversation state", "state", msg.Conversation)
			return
		}
		w.events.PublishConversationState(state)
	case MessageError:
		w.logger.Error("controller reported error", "message", msg.Message)
	default:
		w.logger.Debug("ignoring message", "type", msg.Type)
	}
}

func (w *WSController) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.cfg.WriteTimeout))
			w.writeMu.Unlock()
			if err != nil {
				w.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

// Maintain keeps the controller connected and loaded into handle until ctx
// ends. A dropped connection unloads the controller and is redialed every
// retry interval. Close alone also triggers a redial; cancel ctx to stop.
func (w *WSController) Maintain(ctx context.Context, handle *Handle, retry time.Duration) {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}

	for {
		err := w.Connect(ctx)
		if err != nil && !(errors.Is(err, ErrAlreadyConnected) && w.IsConnected()) {
			w.logger.Warn("avatar controller unavailable, retrying",
				"error", err,
				"retry_in", retry,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			continue
		}

		done := w.Done()
		handle.Load(w)

		select {
		case <-ctx.Done():
			return
		case <-done:
		}
		handle.Unload()
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("avatar controller connection lost, redialing")
	}
}

var (
	_ AudioSender  = (*WSController)(nil)
	_ RateReporter = (*WSController)(nil)
	_ Interrupter  = (*WSController)(nil)
)
