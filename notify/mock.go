package notify

import (
	"context"
	"log/slog"
)

// MockProvider logs messages instead of sending them, for local development.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a new mock provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger}
}

// Push logs the message instead of delivering it.
func (m *MockProvider) Push(_ context.Context, to, text string) error {
	m.logger.Info("MOCK PUSH", "to", to, "text", text)
	return nil
}

// Reply logs the reply instead of delivering it.
func (m *MockProvider) Reply(_ context.Context, replyToken, text string) error {
	m.logger.Info("MOCK REPLY", "reply_token", replyToken, "text", text)
	return nil
}
