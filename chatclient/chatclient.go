// Package chatclient implements the chat-platform REST client used by the
// Media Acquirer's Mode B (spec §4.3): parsing a chat-message URL, fetching
// the message/channel/guild objects over REST v10, and picking the first
// video attachment.
//
// Grounded on the Python predecessor's discord_client.py (_parse_message_url,
// attachment content-type filtering) re-expressed with the teacher's
// clients/callback_client.go retry posture (hashicorp/go-retryablehttp)
// instead of a gateway-connected bot client, since the core only ever needs
// one-shot REST reads.
package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/archivekit/vaultline/metrics"
	"github.com/hashicorp/go-retryablehttp"
)

// messageURLPattern mirrors discord_client.py's _parse_message_url regex.
var messageURLPattern = regexp.MustCompile(`^https?://(?:ptb\.|canary\.)?discord(?:app)?\.com/channels/(\d+)/(\d+)/(\d+)`)

// videoMIMEPrefixes are the content types recognized as a "video
// attachment" (spec §4.3 Mode B "first attachment whose content type is a
// recognized video MIME").
var videoMIMEPrefixes = []string{"video/"}

// ParseMessageURL extracts (guildID, channelID, messageID) from a chat-message
// URL (spec §4.3 Mode B). ok is false if the URL does not match the shape.
func ParseMessageURL(url string) (guildID, channelID, messageID string, ok bool) {
	m := messageURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

// Attachment is a single file on a message.
type Attachment struct {
	Filename    string
	URL         string
	Size        int64
	ContentType string
}

// Message is the subset of the chat platform's message object the
// coordinator needs.
type Message struct {
	ID          string
	ChannelID   string
	ChannelName string
	GuildID     string
	GuildName   string
	Content     string
	Timestamp   time.Time
	Attachments []Attachment
}

// FirstVideoAttachment returns the first attachment recognized as video by
// content type (spec §4.3 Mode B), or false if none qualify.
func (m Message) FirstVideoAttachment() (Attachment, bool) {
	for _, a := range m.Attachments {
		for _, prefix := range videoMIMEPrefixes {
			if strings.HasPrefix(strings.ToLower(a.ContentType), prefix) {
				return a, true
			}
		}
	}
	return Attachment{}, false
}

// Client is a thin REST v10 client authenticated with a user token (spec §6
// DISCORD_USER_TOKEN, chat-message mode only).
type Client struct {
	httpClient *http.Client
	baseURL    string
	userToken  string
}

// New builds a Client with the same retry posture every other outbound
// dependency in this system uses (spec §10.8 domain-stack wiring:
// hashicorp/go-retryablehttp).
func New(baseURL, userToken string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 300 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.CheckRetry = metrics.ChatHTTPRetryHook
	rc.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	rc.Logger = nil

	return &Client{
		httpClient: rc.StandardClient(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		userToken:  userToken,
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	// The predecessor authenticates as a user account rather than a bot;
	// REST v10 accepts the raw token as the Authorization header value in
	// that mode (no "Bot "/"Bearer " prefix).
	req.Header.Set("Authorization", c.userToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.Metrics.ChatClient.RequestDuration.WithLabelValues(c.baseURL).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Metrics.ChatClient.FailureCount.WithLabelValues(c.baseURL, "0").Inc()
		return fmt.Errorf("chat platform request %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		metrics.Metrics.ChatClient.FailureCount.WithLabelValues(c.baseURL, fmt.Sprint(resp.StatusCode)).Inc()
		return fmt.Errorf("chat platform request %s returned HTTP %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type rawAttachment struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

type rawMessage struct {
	ID          string          `json:"id"`
	ChannelID   string          `json:"channel_id"`
	Content     string          `json:"content"`
	Timestamp   string          `json:"timestamp"`
	Attachments []rawAttachment `json:"attachments"`
}

type rawChannel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GuildID string `json:"guild_id"`
}

type rawGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FetchMessage calls /channels/{id}/messages/{id}, /channels/{id}, and
// /guilds/{id} (spec §6 outbound interfaces) and assembles the Message the
// Media Acquirer needs to locate a video attachment.
func (c *Client) FetchMessage(ctx context.Context, guildID, channelID, messageID string) (Message, error) {
	var msg rawMessage
	if err := c.get(ctx, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), &msg); err != nil {
		return Message{}, fmt.Errorf("fetching message: %w", err)
	}

	var channel rawChannel
	if err := c.get(ctx, "/channels/"+channelID, &channel); err != nil {
		return Message{}, fmt.Errorf("fetching channel: %w", err)
	}

	var guild rawGuild
	if guildID != "" && guildID != "@me" {
		if err := c.get(ctx, "/guilds/"+guildID, &guild); err != nil {
			return Message{}, fmt.Errorf("fetching guild: %w", err)
		}
	}

	attachments := make([]Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		attachments = append(attachments, Attachment{
			Filename:    a.Filename,
			URL:         a.URL,
			Size:        a.Size,
			ContentType: a.ContentType,
		})
	}

	timestamp, err := time.Parse(time.RFC3339, msg.Timestamp)
	if err != nil {
		timestamp = time.Time{}
	}

	return Message{
		ID:          msg.ID,
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
		GuildID:     guild.ID,
		GuildName:   guild.Name,
		Content:     msg.Content,
		Timestamp:   timestamp,
		Attachments: attachments,
	}, nil
}
