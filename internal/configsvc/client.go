// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package configsvc is the client of the Configuration Service that
// publishes preload and record schedules and the channel list.
package configsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/yoyostream/transcoderd/internal/cache"
	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/metrics"
	"github.com/yoyostream/transcoderd/internal/resilience"
	"github.com/yoyostream/transcoderd/internal/schedule"
)

const (
	pathPreloadConfigs = "/schedule/preload-configs"
	pathRecordConfigs  = "/schedule/record-configs"
	pathChannels       = "/channels"

	channelsCacheKey = "configsvc:channels"
	maxBodyBytes     = 4 << 20
	upstreamName     = "config_service"
)

var (
	// ErrChannelNotFound is returned when a channel id is not in the channel list.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrNoSourceURL is returned when a channel has no usable source URL.
	ErrNoSourceURL = errors.New("channel has no source url")
)

// StatusError is a non-"success" envelope.
type StatusError struct {
	Resource string
	Status   string
	Message  string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no message"
	}
	return fmt.Sprintf("config service %s: status %q: %s", e.Resource, e.Status, msg)
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	Breaker   *resilience.CircuitBreaker
	Cache     cache.Cache
	CacheTTL  time.Duration
}

// Client talks to the Configuration Service.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	cache    cache.Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// New creates a client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		http:     httpClient,
		breaker:  opts.Breaker,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		logger:   xglog.WithComponent("configsvc"),
	}
	if c.cache == nil {
		c.cache = cache.NewNoOpCache()
	}
	if c.cacheTTL <= 0 {
		c.cacheTTL = time.Minute
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// PreloadConfigs fetches the preload schedules. On any failure it returns
// an empty slice together with the error.
func (c *Client) PreloadConfigs(ctx context.Context) ([]schedule.Config, error) {
	return c.fetchConfigs(ctx, "preload-configs", pathPreloadConfigs)
}

// RecordConfigs fetches the record schedules. On any failure it returns
// an empty slice together with the error.
func (c *Client) RecordConfigs(ctx context.Context) ([]schedule.Config, error) {
	return c.fetchConfigs(ctx, "record-configs", pathRecordConfigs)
}

func (c *Client) fetchConfigs(ctx context.Context, resource, path string) ([]schedule.Config, error) {
	var configs []schedule.Config
	if err := c.get(ctx, resource, path, &configs); err != nil {
		metrics.IncConfigFetchError(resource)
		c.logger.Error().
			Err(err).
			Str("resource", resource).
			Str(xglog.FieldEvent, "configsvc.fetch_failed").
			Msg("failed to fetch schedule configs")
		return []schedule.Config{}, err
	}
	if configs == nil {
		configs = []schedule.Config{}
	}
	c.logger.Debug().Str("resource", resource).Int("count", len(configs)).Msg("fetched schedule configs")
	return configs, nil
}

// get performs a GET and decodes the envelope data into out.
func (c *Client) get(ctx context.Context, resource, path string, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("config service %s: no base url configured", resource)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("config service %s: rate limit: %w", resource, err)
		}
	}

	call := func() error { return c.do(ctx, resource, path, out) }
	if c.breaker != nil {
		return c.breaker.Execute(call)
	}
	return call()
}

func (c *Client) do(ctx context.Context, resource, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("config service %s: build request: %w", resource, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if rid := xglog.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.IncOutbound(upstreamName, 0)
		return fmt.Errorf("config service %s: %w", resource, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.IncOutbound(upstreamName, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("config service %s: read body: %w", resource, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("config service %s: unexpected status %d", resource, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("config service %s: decode envelope: %w", resource, err)
	}
	if env.Status != "success" {
		return &StatusError{Resource: resource, Status: env.Status, Message: env.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("config service %s: decode data: %w", resource, err)
	}
	return nil
}
