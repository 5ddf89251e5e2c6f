package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
)

// Document is an uploaded credit report and its processing status.
type Document struct {
	ID           uuid.UUID                `json:"id"`
	SourcePath   string                   `json:"source_path,omitempty"`
	MediaType    string                   `json:"media_type"`
	ContentHash  string                   `json:"content_hash"`
	SizeBytes    int64                    `json:"size_bytes"`
	PageCount    *int                     `json:"page_count,omitempty"`
	Status       constants.DocumentStatus `json:"status"`
	ErrorMessage *string                  `json:"error_message,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}
