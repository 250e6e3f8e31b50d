package api

import (
	"github.com/docuvault/ragcore/internal/ingest"
	"github.com/docuvault/ragcore/internal/retriever"
)

type chatRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"thread_id"`
}

type chatResponse struct {
	Answer   string             `json:"answer"`
	Sources  []retriever.Source `json:"sources"`
	ThreadID string             `json:"thread_id"`
}

type indexRequest struct {
	Documents []ingest.Document `json:"documents"`
}

type indexResponse struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}
