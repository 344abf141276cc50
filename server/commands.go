package server

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"listing-notifier/pkg/watch"
)

const (
	helpText = "📘 使用できるコマンド:\n" +
		"・seturl [URL]：監視するURLを設定\n" +
		"・setinterval [分]：チェック間隔を設定\n" +
		"・start / stop：監視の開始と停止\n" +
		"・status：現在の設定を表示\n" +
		"・help：このヘルプを表示"

	unknownReply    = "❓ コマンドが認識されませんでした。`help` と送ってみてください。"
	storeErrorReply = "⚠ 設定の保存に失敗しました。時間をおいて再度お試しください。"
)

// handleCommand applies one chat command for a tenant and returns the reply
// text. Invalid input is rejected here with a user-visible message; the
// scheduler never sees an invalid interval or URL.
func (s *Server) handleCommand(ctx context.Context, tenantID, text string) string {
	// A previously unseen id gets a default record before any command
	// applies, so every subsequent read finds the tenant.
	if err := s.ensureTenant(ctx, tenantID); err != nil {
		s.logger.Error("Creating tenant record failed", "tenant", tenantID, "error", err)
		return storeErrorReply
	}

	msg := strings.TrimSpace(text)

	switch {
	case strings.HasPrefix(msg, "seturl "):
		return s.setURL(ctx, tenantID, strings.TrimSpace(strings.TrimPrefix(msg, "seturl ")))

	case strings.HasPrefix(msg, "setinterval "):
		return s.setInterval(ctx, tenantID, strings.TrimSpace(strings.TrimPrefix(msg, "setinterval ")))

	case msg == "start":
		if err := s.store.Update(ctx, tenantID, func(t *watch.Tenant) {
			t.Active = true
		}); err != nil {
			s.logger.Error("Command failed", "tenant", tenantID, "command", "start", "error", err)
			return storeErrorReply
		}
		return "✅ 監視を開始しました。"

	case msg == "stop":
		if err := s.store.Update(ctx, tenantID, func(t *watch.Tenant) {
			t.Active = false
		}); err != nil {
			s.logger.Error("Command failed", "tenant", tenantID, "command", "stop", "error", err)
			return storeErrorReply
		}
		return "⏹ 監視を停止しました。"

	case msg == "status":
		tenants, err := s.store.Load(ctx)
		if err != nil {
			s.logger.Error("Command failed", "tenant", tenantID, "command", "status", "error", err)
			return storeErrorReply
		}
		t, ok := tenants[tenantID]
		if !ok {
			t = &watch.Tenant{Interval: watch.DefaultInterval}
		}
		return statusReply(t)

	case msg == "help":
		return helpText

	default:
		return unknownReply
	}
}

func (s *Server) setURL(ctx context.Context, tenantID, raw string) string {
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "⚠ URLの形式が正しくありません（例：seturl https://jmty.jp/tokyo/sale）"
	}

	if err := s.store.Update(ctx, tenantID, func(t *watch.Tenant) {
		t.URL = u.String()
		// A new target means old history is meaningless.
		t.LastTitle = ""
	}); err != nil {
		s.logger.Error("Command failed", "tenant", tenantID, "command", "seturl", "error", err)
		return storeErrorReply
	}
	return "✅ URLを設定しました。"
}

func (s *Server) setInterval(ctx context.Context, tenantID, raw string) string {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return "⚠ 1以上の数字を指定してください（例：setinterval 15）"
	}

	if err := s.store.Update(ctx, tenantID, func(t *watch.Tenant) {
		t.Interval = n
	}); err != nil {
		s.logger.Error("Command failed", "tenant", tenantID, "command", "setinterval", "error", err)
		return storeErrorReply
	}
	return fmt.Sprintf("✅ チェック間隔を%d分に設定しました。", n)
}

func (s *Server) ensureTenant(ctx context.Context, tenantID string) error {
	tenants, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if _, ok := tenants[tenantID]; ok {
		return nil
	}
	return s.store.Update(ctx, tenantID, func(*watch.Tenant) {})
}

func statusReply(t *watch.Tenant) string {
	target := t.URL
	if target == "" {
		target = "未設定"
	}
	state := "停止中"
	if t.Active {
		state = "稼働中"
	}
	return fmt.Sprintf("📊 現在の設定:\n🔗 URL: %s\n⏱ 間隔: %d分\n🟢 状態: %s", target, t.Interval, state)
}
