// Package notify delivers messages to tenants through a pluggable provider.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Provider defines the transport used to reach the messaging platform.
type Provider interface {
	// Push delivers text to the given platform user id.
	Push(ctx context.Context, to, text string) error
	// Reply answers an inbound webhook event using its reply token.
	Reply(ctx context.Context, replyToken, text string) error
}

// Sender delivers tenant notifications and operator alerts.
type Sender struct {
	provider   Provider
	logger     *slog.Logger
	operatorID string
}

// New creates a sender. operatorID is the recipient of operator alerts and
// may be empty, in which case alerts are only logged.
func New(provider Provider, operatorID string, logger *slog.Logger) *Sender {
	return &Sender{
		provider:   provider,
		operatorID: operatorID,
		logger:     logger,
	}
}

// Notify delivers one message to a tenant. Failures are returned to the
// caller, which decides whether to commit state; there is no internal retry,
// so a failed delivery is re-attempted on the tenant's next cycle.
func (s *Sender) Notify(ctx context.Context, tenantID, text string) error {
	if err := s.provider.Push(ctx, tenantID, text); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	s.logger.Info("Notification delivered", "tenant", tenantID)
	return nil
}

// Reply answers a webhook event.
func (s *Sender) Reply(ctx context.Context, replyToken, text string) error {
	if err := s.provider.Reply(ctx, replyToken, text); err != nil {
		return fmt.Errorf("reply message: %w", err)
	}
	return nil
}

// Alert tells the operator about a condition that needs manual action, such
// as a corrupt tenant document. Best effort: delivery failures are logged,
// never propagated.
func (s *Sender) Alert(ctx context.Context, text string) {
	if s.operatorID == "" {
		s.logger.Error("Operator alert (no OPERATOR_ID configured)", "text", text)
		return
	}
	if err := s.provider.Push(ctx, s.operatorID, text); err != nil {
		s.logger.Error("Operator alert delivery failed", "text", text, "error", err)
		return
	}
	s.logger.Warn("Operator alert delivered", "text", text)
}
