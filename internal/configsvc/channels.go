package configsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yoyostream/transcoderd/internal/cache"
	xglog "github.com/yoyostream/transcoderd/internal/log"
)

// Channel is an entry of the channel list.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
	RTMPURL   string `json:"rtmpUrl,omitempty"`
}

// Source returns the channel's ingest URL.
func (ch Channel) Source() string {
	if s := strings.TrimSpace(ch.SourceURL); s != "" {
		return s
	}
	return strings.TrimSpace(ch.RTMPURL)
}

// channelList accepts both a bare array and an object wrapping the list.
type channelList []Channel

func (l *channelList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, (*[]Channel)(l))
	}
	var wrapped struct {
		Channels []Channel `json:"channels"`
		Streams  []Channel `json:"streams"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = append(wrapped.Channels, wrapped.Streams...)
	return nil
}

// Channels returns the channel list, served from the TTL cache when fresh.
func (c *Client) Channels(ctx context.Context) ([]Channel, error) {
	if cached, ok := cache.GetJSON[[]Channel](c.cache, channelsCacheKey); ok {
		return cached, nil
	}

	var list channelList
	if err := c.get(ctx, "channels", pathChannels, &list); err != nil {
		c.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "configsvc.channels_failed").
			Msg("failed to fetch channel list")
		return nil, err
	}
	channels := []Channel(list)
	if err := cache.SetJSON(c.cache, channelsCacheKey, channels, c.cacheTTL); err != nil {
		c.logger.Warn().Err(err).Msg("failed to cache channel list")
	}
	return channels, nil
}

// ChannelSourceURL resolves the current source URL of a channel.
func (c *Client) ChannelSourceURL(ctx context.Context, channelID string) (string, error) {
	channels, err := c.Channels(ctx)
	if err != nil {
		return "", err
	}
	for _, ch := range channels {
		if ch.ID != channelID {
			continue
		}
		if src := ch.Source(); src != "" {
			return src, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNoSourceURL, channelID)
	}
	return "", fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
}

// InvalidateChannels drops the cached channel list.
func (c *Client) InvalidateChannels() {
	c.cache.Delete(channelsCacheKey)
}
