package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/docuvault/ragcore/internal/common"
	"github.com/docuvault/ragcore/internal/rag"
)

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	threadID := strings.TrimSpace(chi.URLParam(r, "thread"))
	if threadID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("thread id required"))
		return
	}
	if err := s.bot.ClearMemory(threadID); err != nil {
		writeMemoryError(w, err)
		return
	}
	common.Logger().Info("api: thread memory cleared", "thread", threadID)
	writeJSON(w, http.StatusOK, map[string]string{"cleared": threadID})
}

func (s *Server) handleClearAllMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.ClearAllMemory(); err != nil {
		writeMemoryError(w, err)
		return
	}
	common.Logger().Info("api: all memory cleared")
	writeJSON(w, http.StatusOK, map[string]string{"cleared": "all"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Info(r.Context()))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": common.LogEntries()})
}

func writeMemoryError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, rag.ErrNotInitialized) {
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err)
}
