package rag

import (
	"errors"
	"fmt"
	"strings"
)

// ChunkType classifies what a chunk's text was extracted from.
type ChunkType string

const (
	ChunkText             ChunkType = "text"
	ChunkTable            ChunkType = "table"
	ChunkImageDescription ChunkType = "image_description"
)

// Markers embedded in chunk text by the extraction stage. They travel with
// the text through the index and are stripped only at render time.
const (
	TableOpenMarker  = "[TABLE]"
	TableCloseMarker = "[/TABLE]"
	ImageMarker      = "[IMAGE DESCRIPTION:"
)

// Chunk is one unit of indexed content. Chunks are immutable once indexed;
// re-indexing the same ID replaces the stored record.
type Chunk struct {
	Text   string    `json:"text"`
	Source string    `json:"source"`
	Page   int       `json:"page"`
	Type   ChunkType `json:"chunk_type"`
	Index  int       `json:"chunk_index"`

	NeedsOCR  bool `json:"needs_ocr,omitempty"`
	HasTables bool `json:"has_tables,omitempty"`
	HasImages bool `json:"has_images,omitempty"`
}

// ID returns the stable identifier used in the vector index. Two chunks
// from the same source with the same index collide on purpose: re-adding
// is an overwrite.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s#%d", c.Source, c.Index)
}

// Validate rejects chunks that cannot be indexed.
func (c Chunk) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return errors.New("chunk text empty")
	}
	if strings.TrimSpace(c.Source) == "" {
		return errors.New("chunk source empty")
	}
	if c.Page < 0 {
		return fmt.Errorf("chunk page negative: %d", c.Page)
	}
	return nil
}

// Metadata returns the chunk attributes stored alongside its embedding.
// Text is excluded; the index stores it as the document body.
func (c Chunk) Metadata() map[string]interface{} {
	meta := map[string]interface{}{
		"source":      c.Source,
		"page":        c.Page,
		"chunk_type":  string(c.EffectiveType()),
		"chunk_index": c.Index,
	}
	if c.NeedsOCR {
		meta["needs_ocr"] = true
	}
	if c.HasTables {
		meta["has_tables"] = true
	}
	if c.HasImages {
		meta["has_images"] = true
	}
	return meta
}

// EffectiveType returns the declared chunk type, falling back to marker
// detection when the extraction stage left it unset.
func (c Chunk) EffectiveType() ChunkType {
	if c.Type != "" {
		return c.Type
	}
	return DetectType(c.Text)
}

// DetectType inspects text for structural markers.
func DetectType(text string) ChunkType {
	switch {
	case strings.Contains(text, TableOpenMarker):
		return ChunkTable
	case strings.Contains(text, ImageMarker):
		return ChunkImageDescription
	default:
		return ChunkText
	}
}

// StripMarkers removes structural markers from chunk text for rendering.
func StripMarkers(text string) string {
	cleaned := strings.ReplaceAll(text, TableOpenMarker, "")
	cleaned = strings.ReplaceAll(cleaned, TableCloseMarker, "")
	if idx := strings.Index(cleaned, ImageMarker); idx >= 0 {
		cleaned = strings.Replace(cleaned, ImageMarker, "", 1)
		if end := strings.LastIndex(cleaned, "]"); end >= 0 {
			cleaned = cleaned[:end] + cleaned[end+1:]
		}
	}
	return strings.TrimSpace(cleaned)
}
