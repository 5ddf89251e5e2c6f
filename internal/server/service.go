package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/async"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
	"github.com/joseph-ayodele/creditreport-extractor/internal/export"
	"github.com/joseph-ayodele/creditreport-extractor/internal/ingest"
	"github.com/joseph-ayodele/creditreport-extractor/internal/pipeline"
	"github.com/joseph-ayodele/creditreport-extractor/internal/repository"
)

// ExtractionService is the transport-neutral API behind the HTTP and gRPC servers.
type ExtractionService struct {
	docs     repository.DocumentRepository
	ledger   repository.LedgerRepository
	entities repository.EntityRepository
	runner   async.Runner
	ingestor ingest.Ingestor
	queue    async.Queue
	exporter *export.Service
	logger   *slog.Logger
}

// Deps lists the collaborators. Queue may be nil, which disables async requests.
type Deps struct {
	Documents repository.DocumentRepository
	Ledger    repository.LedgerRepository
	Entities  repository.EntityRepository
	Runner    async.Runner
	Ingestor  ingest.Ingestor
	Queue     async.Queue
	Exporter  *export.Service
}

func NewExtractionService(d Deps, logger *slog.Logger) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{
		docs:     d.Documents,
		ledger:   d.Ledger,
		entities: d.Entities,
		runner:   d.Runner,
		ingestor: d.Ingestor,
		queue:    d.Queue,
		exporter: d.Exporter,
		logger:   logger,
	}
}

// SubmitResult answers an upload or an extract request.
type SubmitResult struct {
	Document *entity.Document  `json:"document"`
	Ingest   ingest.Result     `json:"ingest"`
	Queued   bool              `json:"queued"`
	Outcome  *pipeline.Outcome `json:"outcome,omitempty"`
}

// SubmitUpload registers content and runs or queues its extraction. A
// duplicate of an already processed document is returned without a new run.
func (s *ExtractionService) SubmitUpload(ctx context.Context, filename string, content []byte, queue bool) (SubmitResult, error) {
	res, err := s.ingestor.IngestUpload(ctx, filename, content)
	if err != nil {
		return SubmitResult{Ingest: res}, err
	}
	return s.submit(ctx, res, content, queue)
}

// SubmitPath registers a file already on disk and runs or queues its extraction.
func (s *ExtractionService) SubmitPath(ctx context.Context, path string, queue bool) (SubmitResult, error) {
	res, err := s.ingestor.IngestPath(ctx, path)
	if err != nil {
		return SubmitResult{Ingest: res}, err
	}
	doc, err := s.docs.Get(ctx, res.DocumentID)
	if err != nil {
		return SubmitResult{Ingest: res}, err
	}
	content, err := ingest.Load(doc)
	if err != nil {
		return SubmitResult{Ingest: res}, err
	}
	return s.submit(ctx, res, content, queue)
}

// SubmitDocument runs or queues extraction of a registered document.
func (s *ExtractionService) SubmitDocument(ctx context.Context, id uuid.UUID, queue bool) (SubmitResult, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return SubmitResult{}, err
	}
	content, err := ingest.Load(doc)
	if err != nil {
		return SubmitResult{}, err
	}
	res := ingest.Result{SourcePath: doc.SourcePath, DocumentID: doc.ID, HashHex: doc.ContentHash, MediaType: doc.MediaType, Deduplicated: true}
	return s.submit(ctx, res, content, queue)
}

func (s *ExtractionService) submit(ctx context.Context, res ingest.Result, content []byte, queue bool) (SubmitResult, error) {
	out := SubmitResult{Ingest: res}
	doc, err := s.docs.Get(ctx, res.DocumentID)
	if err != nil {
		return out, err
	}
	out.Document = doc
	if doc.Status != constants.DocumentStatusPending {
		s.logger.Info("server.submit.already_processed", "document_id", doc.ID, "status", doc.Status)
		return out, nil
	}

	if queue {
		if err := s.enqueue(ctx, async.Job{DocumentID: doc.ID, Content: content}); err != nil {
			return out, err
		}
		out.Queued = true
		return out, nil
	}

	outcome, err := s.runner.Process(ctx, doc.ID, content)
	if err != nil {
		return out, err
	}
	out.Outcome = &outcome
	return s.refresh(ctx, out)
}

// Reextract resets a finished document and runs it again.
func (s *ExtractionService) Reextract(ctx context.Context, id uuid.UUID, queue bool) (SubmitResult, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return SubmitResult{}, err
	}
	out := SubmitResult{Document: doc, Ingest: ingest.Result{SourcePath: doc.SourcePath, DocumentID: doc.ID, HashHex: doc.ContentHash}}
	content, err := ingest.Load(doc)
	if err != nil {
		return out, err
	}
	if queue {
		if err := s.enqueue(ctx, async.Job{DocumentID: id, Content: content, Reextract: true}); err != nil {
			return out, err
		}
		out.Queued = true
		return out, nil
	}
	outcome, err := s.runner.Reextract(ctx, id, content)
	if err != nil {
		return out, err
	}
	out.Outcome = &outcome
	return s.refresh(ctx, out)
}

func (s *ExtractionService) enqueue(ctx context.Context, job async.Job) error {
	if s.queue == nil {
		return common.NewAppError("QUEUE_DISABLED", "async processing is not enabled", common.ErrInvalidInput)
	}
	if job.TraceID == "" {
		job.TraceID = common.RequestIDFromContext(ctx)
	}
	return s.queue.Enqueue(ctx, job)
}

func (s *ExtractionService) refresh(ctx context.Context, out SubmitResult) (SubmitResult, error) {
	doc, err := s.docs.Get(ctx, out.Ingest.DocumentID)
	if err != nil {
		return out, err
	}
	out.Document = doc
	return out, nil
}

func (s *ExtractionService) Document(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	return s.docs.Get(ctx, id)
}

func (s *ExtractionService) Documents(ctx context.Context, limit int) ([]entity.Document, error) {
	return s.docs.List(ctx, limit)
}

// Attempts lists every attempt of a document, or of one run when runID is set.
func (s *ExtractionService) Attempts(ctx context.Context, id uuid.UUID, runID *uuid.UUID) ([]entity.ExtractionAttempt, error) {
	if _, err := s.docs.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.ListAttempts(ctx, id, runID)
}

func (s *ExtractionService) Decision(ctx context.Context, id uuid.UUID) (*entity.ConsolidationDecision, error) {
	return s.ledger.LatestDecision(ctx, id)
}

func (s *ExtractionService) Entities(ctx context.Context, id uuid.UUID) (entity.ReportEntities, error) {
	if _, err := s.docs.Get(ctx, id); err != nil {
		return entity.ReportEntities{}, err
	}
	return s.entities.Load(ctx, id)
}

func (s *ExtractionService) ExportXLSX(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if s.exporter == nil {
		return nil, errors.New("export is not configured")
	}
	return s.exporter.ExportEntitiesXLSX(ctx, id)
}
