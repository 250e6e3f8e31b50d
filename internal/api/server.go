package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/docuvault/ragcore/internal/chatbot"
	"github.com/docuvault/ragcore/internal/common"
	"github.com/docuvault/ragcore/internal/config"
	"github.com/docuvault/ragcore/internal/ingest"
)

// Server exposes the pipeline over HTTP. It owns no state of its own; every
// request delegates to the chatbot controller.
type Server struct {
	router    chi.Router
	bot       *chatbot.Chatbot
	processor *ingest.Processor
}

func NewServer(bot *chatbot.Chatbot, cfg config.Config) (*Server, error) {
	if bot == nil {
		return nil, fmt.Errorf("chatbot required")
	}
	srv := &Server{
		router:    chi.NewRouter(),
		bot:       bot,
		processor: ingest.NewProcessor(cfg),
	}
	srv.routes()
	common.Logger().Info("api: server ready")
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Post("/api/v1/chat", s.handleChat)
	s.router.Post("/api/v1/documents", s.handleIndexDocuments)
	s.router.Delete("/api/v1/memory/{thread}", s.handleClearMemory)
	s.router.Delete("/api/v1/memory", s.handleClearAllMemory)
	s.router.Get("/api/v1/info", s.handleInfo)
	s.router.Get("/api/v1/logs", s.handleLogs)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
