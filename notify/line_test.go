package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLinePushRequestShape(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody pushRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode push body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := NewLineProvider("secret-token", ts.Client(), discardLogger())
	p.endpoint = ts.URL

	if err := p.Push(context.Background(), "U1", "🆕新着投稿：Item A"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if gotPath != "/v2/bot/message/push" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.To != "U1" {
		t.Errorf("to = %q, want U1", gotBody.To)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Type != "text" {
		t.Fatalf("messages = %+v, want one text message", gotBody.Messages)
	}
	if gotBody.Messages[0].Text != "🆕新着投稿：Item A" {
		t.Errorf("text = %q", gotBody.Messages[0].Text)
	}
}

func TestLineReplyRequestShape(t *testing.T) {
	var gotPath string
	var gotBody replyRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode reply body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := NewLineProvider("secret-token", ts.Client(), discardLogger())
	p.endpoint = ts.URL

	if err := p.Reply(context.Background(), "rt-1", "✅ URLを設定しました。"); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}

	if gotPath != "/v2/bot/message/reply" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.ReplyToken != "rt-1" {
		t.Errorf("replyToken = %q", gotBody.ReplyToken)
	}
}

func TestLineNon200IsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Invalid user id"}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	p := NewLineProvider("secret-token", ts.Client(), discardLogger())
	p.endpoint = ts.URL

	if err := p.Push(context.Background(), "bogus", "hi"); err == nil {
		t.Fatal("Push() error = nil, want error on HTTP 400")
	}
}

type failingProvider struct{ err error }

func (f *failingProvider) Push(context.Context, string, string) error  { return f.err }
func (f *failingProvider) Reply(context.Context, string, string) error { return f.err }

func TestSenderNotifyPropagatesFailure(t *testing.T) {
	s := New(&failingProvider{err: io.ErrUnexpectedEOF}, "", discardLogger())

	if err := s.Notify(context.Background(), "U1", "hi"); err == nil {
		t.Fatal("Notify() error = nil, want provider failure propagated")
	}
}

func TestSenderAlertNeverPanicsWithoutOperator(t *testing.T) {
	s := New(&failingProvider{err: io.ErrUnexpectedEOF}, "", discardLogger())
	s.Alert(context.Background(), "tenant document is corrupt")

	s = New(&failingProvider{err: io.ErrUnexpectedEOF}, "op-1", discardLogger())
	s.Alert(context.Background(), "tenant document is corrupt")
}
