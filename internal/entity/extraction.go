package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
)

// ExtractionAttempt is the immutable record of one method run against one document.
type ExtractionAttempt struct {
	ID                uuid.UUID                  `json:"id"`
	DocumentID        uuid.UUID                  `json:"document_id"`
	RunID             uuid.UUID                  `json:"run_id"`
	Method            constants.Method           `json:"method"`
	Text              string                     `json:"text,omitempty"`
	CharacterCount    int                        `json:"character_count"`
	WordCount         int                        `json:"word_count"`
	Confidence        float64                    `json:"confidence"`
	HasStructuredData bool                       `json:"has_structured_data"`
	Error             string                     `json:"error,omitempty"`
	ErrorKind         constants.AttemptErrorKind `json:"error_kind,omitempty"`
	IsValid           bool                       `json:"is_valid"`
	ValidationRule    string                     `json:"validation_rule,omitempty"`
	ValidationReason  string                     `json:"validation_reason,omitempty"`
	Tries             int                        `json:"tries"`
	ElapsedMs         int64                      `json:"elapsed_ms"`
	CreatedAt         time.Time                  `json:"created_at"`
}

// Failed reports whether the method errored.
func (a ExtractionAttempt) Failed() bool { return a.Error != "" }

// ConsolidationDecision records which attempt was chosen as authoritative for a run.
type ConsolidationDecision struct {
	ID                  uuid.UUID          `json:"id"`
	DocumentID          uuid.UUID          `json:"document_id"`
	RunID               uuid.UUID          `json:"run_id"`
	PrimaryMethod       constants.Method   `json:"primary_method"`
	ConsolidatedText    string             `json:"consolidated_text"`
	OverallConfidence   float64            `json:"overall_confidence"`
	MethodsConsidered   []constants.Method `json:"methods_considered"`
	ConflictCount       int                `json:"conflict_count"`
	RequiresHumanReview bool               `json:"requires_human_review"`
	CreatedAt           time.Time          `json:"created_at"`
}
