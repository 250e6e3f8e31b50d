package ingest

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/docuvault/ragcore/internal/common"
	"github.com/docuvault/ragcore/internal/config"
	"github.com/docuvault/ragcore/internal/rag"
)

// Page is one extracted page of a source document. Tables arrive as
// rendered rows, image captions as free text; both are wrapped in markers so
// render-time formatting can tell them apart from prose.
type Page struct {
	Number        int      `json:"number"`
	Text          string   `json:"text"`
	Tables        []string `json:"tables,omitempty"`
	ImageCaptions []string `json:"image_captions,omitempty"`
}

// Document is extracted source content ready for chunking.
type Document struct {
	Name  string `json:"name"`
	Pages []Page `json:"pages"`
}

// Processor splits extracted documents into indexable chunks.
type Processor struct {
	splitter textsplitter.RecursiveCharacter
	cfg      config.Config
}

func NewProcessor(cfg config.Config) *Processor {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSeparators(cfg.TextSeparators),
	)
	return &Processor{splitter: splitter, cfg: cfg}
}

// Process chunks a document page by page. Prose is split recursively; each
// table and image caption becomes its own marker-wrapped chunk so it is
// never bisected mid-structure. Chunk indexes are assigned sequentially per
// document, which makes re-processing the same document an overwrite in the
// index.
func (p *Processor) Process(doc Document) ([]rag.Chunk, error) {
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		return nil, fmt.Errorf("ingest: document name required")
	}
	logger := common.Logger()
	var chunks []rag.Chunk
	index := 0
	add := func(text string, page int, ctype rag.ChunkType, hasTables, hasImages bool) {
		chunk := rag.Chunk{
			Text:      strings.TrimSpace(text),
			Source:    name,
			Page:      page,
			Type:      ctype,
			Index:     index,
			HasTables: hasTables,
			HasImages: hasImages,
		}
		if chunk.Validate() != nil {
			return
		}
		chunks = append(chunks, chunk)
		index++
	}

	for _, page := range doc.Pages {
		if text := strings.TrimSpace(page.Text); text != "" {
			pieces, err := p.splitter.SplitText(text)
			if err != nil {
				return nil, fmt.Errorf("ingest: split page %d of %s: %w", page.Number, name, err)
			}
			for _, piece := range pieces {
				add(piece, page.Number, rag.ChunkText, false, false)
			}
		}
		for _, table := range page.Tables {
			if strings.TrimSpace(table) == "" {
				continue
			}
			wrapped := rag.TableOpenMarker + "\n" + strings.TrimSpace(table) + "\n" + rag.TableCloseMarker
			add(wrapped, page.Number, rag.ChunkTable, true, false)
		}
		for _, caption := range page.ImageCaptions {
			if strings.TrimSpace(caption) == "" {
				continue
			}
			wrapped := rag.ImageMarker + " " + strings.TrimSpace(caption) + "]"
			add(wrapped, page.Number, rag.ChunkImageDescription, false, true)
		}
	}
	logger.Info("ingest: document processed", "source", name, "pages", len(doc.Pages), "chunks", len(chunks))
	return chunks, nil
}
