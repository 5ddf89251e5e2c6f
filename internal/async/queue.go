package async

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/creditreport-extractor/internal/pipeline"
)

// Job asks for one extraction run of a registered document.
type Job struct {
	DocumentID  uuid.UUID
	Content     []byte
	Reextract   bool
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Runner is the part of the pipeline the workers drive.
type Runner interface {
	Process(ctx context.Context, documentID uuid.UUID, content []byte) (pipeline.Outcome, error)
	Reextract(ctx context.Context, documentID uuid.UUID, content []byte) (pipeline.Outcome, error)
}
