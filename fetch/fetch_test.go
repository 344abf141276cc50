package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchReturnsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); ua == "" || ua == "Go-http-client/1.1" {
			t.Errorf("expected browser-like User-Agent, got %q", ua)
		}
		if _, err := w.Write([]byte("<html><body>listings</body></html>")); err != nil {
			t.Fatal(err)
		}
	}))
	defer ts.Close()

	c := New(ts.Client(), discardLogger())

	body, err := c.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(body) != "<html><body>listings</body></html>" {
		t.Errorf("Fetch() body = %q", body)
	}
}

func TestFetchNon2xxIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(ts.Client(), discardLogger())
	c.attempts = 1

	if _, err := c.Fetch(context.Background(), ts.URL); err == nil {
		t.Fatal("Fetch() error = nil, want HTTP status error")
	}
}

func TestFetchConnectionFailureIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close() // nothing listening anymore

	c := New(&http.Client{Timeout: time.Second}, discardLogger())
	c.attempts = 1

	if _, err := c.Fetch(context.Background(), url); err == nil {
		t.Fatal("Fetch() error = nil, want connection error")
	}
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer ts.Close()

	c := New(ts.Client(), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := c.Fetch(ctx, ts.URL); err == nil {
		t.Fatal("Fetch() error = nil, want context deadline error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch() took %v after cancellation, want prompt return", elapsed)
	}
}
