package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/docuvault/ragcore/internal/common"
	"github.com/docuvault/ragcore/internal/rag"
	"github.com/docuvault/ragcore/internal/retriever"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("api: chat decode failed", "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("question required"))
		return
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}
	logger.Info("api: chat request received", "thread", threadID, "question_length", len(req.Question))

	answer, sources, err := s.bot.Query(r.Context(), req.Question, threadID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rag.ErrNotInitialized) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	if sources == nil {
		sources = []retriever.Source{}
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: answer, Sources: sources, ThreadID: threadID})
}
