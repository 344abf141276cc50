// Package server handles the inbound chat webhook and operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"listing-notifier/pkg/watch"
)

// Store mirrors the tenant store operations the command handler needs.
type Store interface {
	Load(ctx context.Context) (map[string]*watch.Tenant, error)
	Update(ctx context.Context, id string, mutate func(*watch.Tenant)) error
}

// Replier answers inbound webhook events.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// Server handles HTTP requests.
type Server struct {
	store   Store
	replier Replier
	logger  *slog.Logger
}

// New creates a server.
func New(store Store, replier Replier, logger *slog.Logger) *Server {
	return &Server{
		store:   store,
		replier: replier,
		logger:  logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", handleHealth)
	r.Handle("/metricz", promhttp.Handler())
	r.Post("/callback", s.handleCallback)
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Webhook payload, LINE Messaging API shape. Signature verification happens
// upstream of this handler.
type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

type webhookBody struct {
	Events []webhookEvent `json:"events"`
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var body webhookBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		s.logger.Warn("Malformed webhook body", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	for _, ev := range body.Events {
		if ev.Type != "message" || ev.Message.Type != "text" || ev.Source.UserID == "" {
			continue
		}

		reply := s.handleCommand(r.Context(), ev.Source.UserID, ev.Message.Text)
		if reply == "" {
			continue
		}
		if err := s.replier.Reply(r.Context(), ev.ReplyToken, reply); err != nil {
			s.logger.Warn("Reply failed", "tenant", ev.Source.UserID, "error", err)
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
