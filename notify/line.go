package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const lineEndpoint = "https://api.line.me"

// LineProvider sends messages through the LINE Messaging API. The bounded
// timeout comes from the supplied http.Client, so a slow platform can never
// stall a polling loop indefinitely.
type LineProvider struct {
	httpClient  *http.Client
	logger      *slog.Logger
	accessToken string
	endpoint    string
}

// NewLineProvider creates a provider using the given channel access token.
func NewLineProvider(accessToken string, httpClient *http.Client, logger *slog.Logger) *LineProvider {
	return &LineProvider{
		httpClient:  httpClient,
		logger:      logger,
		accessToken: accessToken,
		endpoint:    lineEndpoint,
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

// Push delivers a text message to a user id.
func (p *LineProvider) Push(ctx context.Context, to, text string) error {
	return p.post(ctx, "/v2/bot/message/push", pushRequest{
		To:       to,
		Messages: []textMessage{{Type: "text", Text: text}},
	})
}

// Reply answers a webhook event via its reply token.
func (p *LineProvider) Reply(ctx context.Context, replyToken, text string) error {
	return p.post(ctx, "/v2/bot/message/reply", replyRequest{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: "text", Text: text}},
	})
}

func (p *LineProvider) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("LINE API %s: %w", path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("LINE API %s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	p.logger.Debug("LINE API request completed",
		"path", path,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
