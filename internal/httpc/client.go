// Package httpc provides an HTTP client with sensible defaults and a small
// client for the avatar-mic control API.
// Use this instead of http.DefaultClient to ensure timeouts are set.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-avatar-audio/pkg/web"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// NewClient creates a new HTTP client with the specified timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// StatusError is returned when the control API answers with a non-2xx code.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("httpc: %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("httpc: %s %s: %d", e.Method, e.Path, e.StatusCode)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Control talks to a running avatar-mic control server.
type Control struct {
	baseURL string
	client  *http.Client
}

// NewControl creates a control client. A nil client uses NewClient with
// DefaultTimeout.
func NewControl(baseURL string, client *http.Client) *Control {
	if client == nil {
		client = NewClient(DefaultTimeout)
	}
	return &Control{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Start begins a recording at sampleRate (0 uses the server default).
func (c *Control) Start(ctx context.Context, sampleRate int) error {
	return c.do(ctx, http.MethodPost, "/api/recording/start", web.StartRequest{SampleRate: sampleRate}, nil)
}

// Stop ends the recording. send overrides the server's send-on-stop
// setting when non-nil. It returns nil when nothing was captured.
func (c *Control) Stop(ctx context.Context, send *bool) (*web.StopResponse, error) {
	var resp web.StopResponse
	found, err := c.doFound(ctx, http.MethodPost, "/api/recording/stop", web.StopRequest{Send: send}, &resp)
	if !found {
		return nil, err
	}
	// A failed send still describes the recording.
	if err != nil && !IsStatus(err, http.StatusConflict) && !IsStatus(err, http.StatusBadGateway) {
		return nil, err
	}
	return &resp, err
}

// Last downloads the most recent recording as PCM16LE and its sample rate.
func (c *Control) Last(ctx context.Context) ([]byte, int, error) {
	const path = "/api/recording/last"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("httpc: build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("httpc: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, &StatusError{Method: http.MethodGet, Path: path, StatusCode: resp.StatusCode}
	}

	rate := 0
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		rate, _ = strconv.Atoi(params["rate"])
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("httpc: read recording: %w", err)
	}
	return data, rate, nil
}

// Cleanup releases the microphone without producing audio.
func (c *Control) Cleanup(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/recording/cleanup", nil, nil)
}

// Interrupt asks the controller to stop speaking.
func (c *Control) Interrupt(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/interrupt", nil, nil)
}

// Status returns the raw status document.
func (c *Control) Status(ctx context.Context) (map[string]any, error) {
	var status map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Control) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.doFound(ctx, method, path, body, out)
	return err
}

// doFound returns false on 204 No Content.
func (c *Control) doFound(ctx context.Context, method, path string, body, out any) (bool, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("httpc: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("httpc: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("httpc: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("httpc: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		se := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var msg struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &msg) == nil {
			se.Message = msg.Error
		}
		if out != nil && len(data) > 0 {
			_ = json.Unmarshal(data, out)
		}
		return true, se
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return false, fmt.Errorf("httpc: decode response: %w", err)
		}
	}
	return true, nil
}
