// Package ingest registers credit report files as documents, deduplicated by
// content hash.
package ingest

import (
	"context"

	"github.com/google/uuid"
)

// Result is the per-file ingest outcome.
type Result struct {
	SourcePath   string    `json:"source_path"`
	DocumentID   uuid.UUID `json:"document_id"`
	Deduplicated bool      `json:"deduplicated"`
	HashHex      string    `json:"hash"`
	MediaType    string    `json:"media_type,omitempty"`
	Pages        int       `json:"pages,omitempty"`
	Err          string    `json:"error,omitempty"`
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32 `json:"scanned"`
	Matched      uint32 `json:"matched"`
	Succeeded    uint32 `json:"succeeded"`
	Deduplicated uint32 `json:"deduplicated"`
	Failed       uint32 `json:"failed"`
}

// Ingestor is the behavior the servers and CLI depend on.
type Ingestor interface {
	IngestPath(ctx context.Context, path string) (Result, error)
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]Result, DirStats, error)
	IngestUpload(ctx context.Context, filename string, content []byte) (Result, error)
}
