package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yoyostream/transcoderd/internal/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	upstreamName   = "session_manager"
)

// HTTPManager calls the Session Manager's REST surface. Responses use the
// {status, message, data} envelope.
type HTTPManager struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPOption configures an HTTPManager.
type HTTPOption func(*HTTPManager)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(m *HTTPManager) {
		if client != nil {
			m.client = client
		}
	}
}

// WithAPIKey sets the X-API-Key header on every request.
func WithAPIKey(key string) HTTPOption {
	return func(m *HTTPManager) { m.apiKey = key }
}

// NewHTTPManager creates an adapter for the Session Manager at baseURL.
func NewHTTPManager(baseURL string, opts ...HTTPOption) *HTTPManager {
	m := &HTTPManager{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type channelRequest struct {
	ChannelID string           `json:"channelId"`
	SourceURL string           `json:"sourceUrl,omitempty"`
	Config    *RecordingConfig `json:"config,omitempty"`
}

// StartPreload starts keeping the channel's transcoder warm.
func (m *HTTPManager) StartPreload(ctx context.Context, channelID, sourceURL string) error {
	return m.post(ctx, "startPreload", "/api/simple-stream/preload/start",
		channelRequest{ChannelID: channelID, SourceURL: sourceURL}, nil)
}

// StopPreload ends the preload of a channel.
func (m *HTTPManager) StopPreload(ctx context.Context, channelID string) error {
	return m.post(ctx, "stopPreload", "/api/simple-stream/preload/stop",
		channelRequest{ChannelID: channelID}, nil)
}

// EnableRecording starts writing the channel to disk.
func (m *HTTPManager) EnableRecording(ctx context.Context, channelID string, cfg RecordingConfig) error {
	return m.post(ctx, "enableRecording", "/api/simple-stream/recording/enable",
		channelRequest{ChannelID: channelID, Config: &cfg}, nil)
}

// DisableRecording stops writing the channel to disk.
func (m *HTTPManager) DisableRecording(ctx context.Context, channelID string) error {
	return m.post(ctx, "disableRecording", "/api/simple-stream/recording/disable",
		channelRequest{ChannelID: channelID}, nil)
}

// StopChannel stops every process of the channel.
func (m *HTTPManager) StopChannel(ctx context.Context, channelID string) error {
	return m.post(ctx, "stopChannel", "/api/simple-stream/stop-channel",
		channelRequest{ChannelID: channelID}, nil)
}

// IsRecording asks whether the channel currently records.
func (m *HTTPManager) IsRecording(ctx context.Context, channelID string) (bool, error) {
	var status struct {
		Recording bool `json:"recording"`
	}
	path := "/api/simple-stream/channels/" + url.PathEscape(channelID) + "/status"
	if err := m.do(ctx, "isRecording", channelID, http.MethodGet, path, nil, &status); err != nil {
		return false, err
	}
	return status.Recording, nil
}

func (m *HTTPManager) post(ctx context.Context, op, path string, body channelRequest, out any) error {
	return m.do(ctx, op, body.ChannelID, http.MethodPost, path, body, out)
}

func (m *HTTPManager) do(ctx context.Context, op, channelID, method, path string, body, out any) error {
	fail := func(status int, msg string, err error) error {
		return &Error{Op: op, ChannelID: channelID, Status: status, Message: msg, Err: err}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fail(0, "", fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reader)
	if err != nil {
		return fail(0, "", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if m.apiKey != "" {
		req.Header.Set("X-API-Key", m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		metrics.IncOutbound(upstreamName, 0)
		return fail(0, "", err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.IncOutbound(upstreamName, resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("read response: %w", err))
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && env.Message != "" {
			msg = env.Message
		}
		return fail(resp.StatusCode, msg, nil)
	}
	if decodeErr != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("decode response: %w", decodeErr))
	}
	if env.Status != "success" {
		return fail(resp.StatusCode, env.Message, errors.New("unsuccessful status "+env.Status))
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fail(resp.StatusCode, "", fmt.Errorf("decode data: %w", err))
		}
	}
	return nil
}
