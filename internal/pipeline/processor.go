package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
	"github.com/joseph-ayodele/creditreport-extractor/internal/lock"
	"github.com/joseph-ayodele/creditreport-extractor/internal/metrics"
	"github.com/joseph-ayodele/creditreport-extractor/internal/ocr"
	"github.com/joseph-ayodele/creditreport-extractor/internal/parser"
	"github.com/joseph-ayodele/creditreport-extractor/internal/quality"
	"github.com/joseph-ayodele/creditreport-extractor/internal/repository"
	"github.com/joseph-ayodele/creditreport-extractor/constants"
)

// Short failure reasons shown to users.
const (
	ReasonNoValidText  = "no valid OCR text found; try a different file"
	ReasonMetadataOnly = "file contains only PDF metadata; try a regular PDF export instead of print-to-PDF"
	ReasonTooLarge     = "file exceeds the maximum size"
	reasonInternal     = "internal error while saving results"
)

// Outcome is the result of one extraction run.
type Outcome struct {
	DocumentID          uuid.UUID                  `json:"document_id"`
	RunID               uuid.UUID                  `json:"run_id"`
	Success             bool                       `json:"success"`
	ConsolidatedText    string                     `json:"consolidated_text,omitempty"`
	PrimaryMethod       constants.Method           `json:"primary_method,omitempty"`
	OverallConfidence   float64                    `json:"overall_confidence"`
	RequiresHumanReview bool                       `json:"requires_human_review"`
	Entities            entity.ReportEntities      `json:"entities"`
	Reason              string                     `json:"reason,omitempty"`
	Attempts            []entity.ExtractionAttempt `json:"attempts"`
}

// Deps are the collaborators a Processor drives.
type Deps struct {
	Documents    repository.DocumentRepository
	Ledger       repository.LedgerRepository
	Entities     repository.EntityRepository
	Orchestrator *Orchestrator
	Consolidator *Consolidator
	Parser       *parser.Parser
	Methods      *ocr.MethodSet
}

// Processor runs extraction end to end: orchestrate, consolidate, parse, persist.
type Processor struct {
	deps    Deps
	locker  lock.Locker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type ProcessorOption func(*Processor)

// WithLocker serializes runs per document across processes.
func WithLocker(l lock.Locker) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.locker = l
		}
	}
}

func WithRunMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(deps Deps, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Parser == nil {
		deps.Parser = parser.New(parser.WithLogger(logger))
	}
	if deps.Consolidator == nil {
		deps.Consolidator = NewConsolidator(DefaultConsolidatorConfig())
	}
	if deps.Methods == nil {
		deps.Methods = ocr.NewStaticSet()
	}
	p := &Processor{deps: deps, locker: lock.NewLocal(), logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one extraction of content for a pending document. A run in
// which every method failed is not an error: it returns Success false with a
// reason and leaves the document failed.
func (p *Processor) Process(ctx context.Context, documentID uuid.UUID, content []byte) (Outcome, error) {
	out := Outcome{DocumentID: documentID, Entities: emptyEntities()}

	doc, err := p.deps.Documents.Get(ctx, documentID)
	if err != nil {
		return out, err
	}

	limit := p.deps.Orchestrator.Config().MaxDocumentBytes
	if int64(len(content)) > limit {
		out.Reason = ReasonTooLarge
		p.fail(ctx, documentID, ReasonTooLarge)
		p.metrics.IncrementRun("rejected")
		return out, common.NewAppError("DOCUMENT_TOO_LARGE", ReasonTooLarge, common.ErrDocumentTooLarge)
	}

	release, err := p.locker.Acquire(ctx, documentID.String())
	if err != nil {
		return out, err
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			p.logger.Warn("pipeline.process.unlock_failed", "document_id", documentID, "error", rerr)
		}
	}()

	if err := p.deps.Documents.BeginRun(ctx, documentID); err != nil {
		return out, err
	}

	out.RunID = uuid.New()
	start := time.Now()
	p.logger.Info("pipeline.process.start", "document_id", documentID, "run_id", out.RunID, "bytes", len(content))

	in := ocr.Document{ID: documentID, Content: content, MediaType: doc.MediaType}
	attempts, err := p.deps.Orchestrator.Extract(ctx, in, out.RunID, p.deps.Methods.Methods())
	if err != nil {
		p.fail(ctx, documentID, ReasonTooLarge)
		return out, err
	}
	out.Attempts = attempts

	decision, err := p.deps.Consolidator.Consolidate(attempts)
	if err != nil {
		if !errors.Is(err, common.ErrAllMethodsFailed) {
			p.fail(ctx, documentID, reasonInternal)
			return out, err
		}
		out.Reason = failureReason(attempts)
		p.fail(ctx, documentID, out.Reason)
		p.metrics.IncrementRun("failed")
		p.logger.Warn("pipeline.process.no_valid_text",
			"document_id", documentID, "run_id", out.RunID, "reason", out.Reason,
			"detail", err, "elapsed_ms", time.Since(start).Milliseconds())
		return out, nil
	}

	if err := p.deps.Ledger.RecordDecision(ctx, decision); err != nil {
		p.fail(ctx, documentID, reasonInternal)
		return out, err
	}

	entities := p.deps.Parser.Parse(decision.ConsolidatedText)
	if err := p.deps.Entities.Replace(ctx, documentID, entities); err != nil {
		p.fail(ctx, documentID, reasonInternal)
		return out, err
	}
	if err := p.deps.Documents.MarkCompleted(ctx, documentID); err != nil {
		return out, err
	}

	out.Success = true
	out.ConsolidatedText = decision.ConsolidatedText
	out.PrimaryMethod = decision.PrimaryMethod
	out.OverallConfidence = decision.OverallConfidence
	out.RequiresHumanReview = decision.RequiresHumanReview
	out.Entities = entities

	p.metrics.IncrementRun("completed")
	p.metrics.ObserveDecision(decision.OverallConfidence, decision.RequiresHumanReview)
	p.logger.Info("pipeline.process.done",
		"document_id", documentID, "run_id", out.RunID,
		"primary", decision.PrimaryMethod, "confidence", decision.OverallConfidence,
		"review", decision.RequiresHumanReview, "conflicts", decision.ConflictCount,
		"accounts", len(entities.Accounts), "inquiries", len(entities.Inquiries),
		"negative_items", len(entities.NegativeItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Reextract moves a finished document back to pending and runs it again.
// Earlier attempts and decisions stay in the ledger under their own run.
func (p *Processor) Reextract(ctx context.Context, documentID uuid.UUID, content []byte) (Outcome, error) {
	if err := p.deps.Documents.ResetForRetry(ctx, documentID); err != nil {
		return Outcome{DocumentID: documentID, Entities: emptyEntities()}, err
	}
	p.logger.Info("pipeline.reextract", "document_id", documentID)
	return p.Process(ctx, documentID, content)
}

// fail clears entities left by an earlier run so a failed document never
// serves stale results, then records the reason.
func (p *Processor) fail(ctx context.Context, documentID uuid.UUID, reason string) {
	ctx = context.WithoutCancel(ctx)
	if err := p.deps.Entities.Replace(ctx, documentID, emptyEntities()); err != nil {
		p.logger.Error("pipeline.process.clear_entities", "document_id", documentID, "error", err)
	}
	if err := p.deps.Documents.MarkFailed(ctx, documentID, reason); err != nil {
		p.logger.Error("pipeline.process.mark_failed", "document_id", documentID, "reason", reason, "error", err)
	}
}

// failureReason picks the metadata hint only when every method that returned
// text was rejected as metadata.
func failureReason(attempts []entity.ExtractionAttempt) string {
	metadata := 0
	for _, a := range attempts {
		if a.Failed() {
			continue
		}
		if a.ValidationRule != quality.RuleMetadataOnly {
			return ReasonNoValidText
		}
		metadata++
	}
	if metadata > 0 {
		return ReasonMetadataOnly
	}
	return ReasonNoValidText
}

func emptyEntities() entity.ReportEntities {
	return entity.ReportEntities{
		Accounts:      []entity.CreditAccount{},
		Inquiries:     []entity.CreditInquiry{},
		NegativeItems: []entity.NegativeItem{},
	}
}
