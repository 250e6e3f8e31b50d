package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/docuvault/ragcore/internal/common"
	"github.com/docuvault/ragcore/internal/rag"
)

func (s *Server) handleIndexDocuments(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("api: index decode failed", "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("documents required"))
		return
	}

	var chunks []rag.Chunk
	for _, doc := range req.Documents {
		docChunks, err := s.processor.Process(doc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		chunks = append(chunks, docChunks...)
	}
	if err := s.bot.IndexDocuments(r.Context(), chunks); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rag.ErrNotInitialized) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{Documents: len(req.Documents), Chunks: len(chunks)})
}
