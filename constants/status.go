package constants

// DocumentStatus is the processing status stored on the documents table.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether the status ends an extraction run.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// AttemptErrorKind classifies why a single extraction attempt failed.
type AttemptErrorKind string

const (
	ErrorKindTimeout     AttemptErrorKind = "timeout"
	ErrorKindRateLimited AttemptErrorKind = "rate_limited"
	ErrorKindAuth        AttemptErrorKind = "auth"
	ErrorKindBadResponse AttemptErrorKind = "bad_response"
	ErrorKindNetwork     AttemptErrorKind = "network"
	ErrorKindUnsupported AttemptErrorKind = "unsupported"
	ErrorKindInternal    AttemptErrorKind = "internal"
)
