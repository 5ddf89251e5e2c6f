package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
)

// LedgerRepository is the append-only audit trail of attempts and decisions.
// Rows are never updated; every run adds rows under its own run_id.
type LedgerRepository interface {
	RecordAttempt(ctx context.Context, a entity.ExtractionAttempt) error
	RecordDecision(ctx context.Context, d entity.ConsolidationDecision) error
	ListAttempts(ctx context.Context, documentID uuid.UUID, runID *uuid.UUID) ([]entity.ExtractionAttempt, error)
	LatestDecision(ctx context.Context, documentID uuid.UUID) (*entity.ConsolidationDecision, error)
}

type ledgerRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewLedgerRepository(db *DB, logger *slog.Logger) LedgerRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ledgerRepo{db: db, logger: logger}
}

var attemptColumns = []string{
	"id", "document_id", "run_id", "method", "text", "character_count", "word_count",
	"confidence", "has_structured_data", "error", "error_kind", "is_valid",
	"validation_rule", "validation_reason", "tries", "elapsed_ms", "created_at",
}

var decisionColumns = []string{
	"id", "document_id", "run_id", "primary_method", "consolidated_text", "overall_confidence",
	"methods_considered", "conflict_count", "requires_human_review", "created_at",
}

// RecordAttempt is one independent insert; a failure affects only this attempt.
func (r *ledgerRepo) RecordAttempt(ctx context.Context, a entity.ExtractionAttempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	q, args := r.db.builder().Insert("extraction_attempts").
		Columns(attemptColumns...).
		Values(a.ID.String(), a.DocumentID.String(), a.RunID.String(), string(a.Method), optionalString(a.Text),
			a.CharacterCount, a.WordCount, a.Confidence, a.HasStructuredData, optionalString(a.Error),
			string(a.ErrorKind), a.IsValid, a.ValidationRule, a.ValidationReason, a.Tries,
			a.ElapsedMs, a.CreatedAt).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to record attempt", "document_id", a.DocumentID, "run_id", a.RunID, "method", a.Method, "error", err)
		return dbError("record attempt", err)
	}
	r.logger.Debug("repository.ledger.attempt", "document_id", a.DocumentID, "run_id", a.RunID, "method", a.Method)
	return nil
}

func (r *ledgerRepo) RecordDecision(ctx context.Context, d entity.ConsolidationDecision) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	q, args := r.db.builder().Insert("consolidation_decisions").
		Columns(decisionColumns...).
		Values(d.ID.String(), d.DocumentID.String(), d.RunID.String(), string(d.PrimaryMethod),
			d.ConsolidatedText, d.OverallConfidence, joinMethods(d.MethodsConsidered),
			d.ConflictCount, d.RequiresHumanReview, d.CreatedAt).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to record decision", "document_id", d.DocumentID, "run_id", d.RunID, "error", err)
		return dbError("record decision", err)
	}
	r.logger.Info("repository.ledger.decision",
		"document_id", d.DocumentID, "run_id", d.RunID,
		"primary_method", d.PrimaryMethod, "overall_confidence", d.OverallConfidence)
	return nil
}

// ListAttempts returns attempts oldest first, optionally for one run only.
func (r *ledgerRepo) ListAttempts(ctx context.Context, documentID uuid.UUID, runID *uuid.UUID) ([]entity.ExtractionAttempt, error) {
	where := entsql.EQ("document_id", documentID.String())
	if runID != nil {
		where = entsql.And(where, entsql.EQ("run_id", runID.String()))
	}
	q, args := r.db.builder().Select(attemptColumns...).
		From(entsql.Table("extraction_attempts")).
		Where(where).
		OrderBy("created_at", "method").
		Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, dbError("query attempts", err)
	}
	defer rows.Close()

	var out []entity.ExtractionAttempt
	for rows.Next() {
		var (
			a                         entity.ExtractionAttempt
			id, docID, run, method, k string
			text, errText             sql.NullString
		)
		if err := rows.Scan(&id, &docID, &run, &method, &text, &a.CharacterCount, &a.WordCount,
			&a.Confidence, &a.HasStructuredData, &errText, &k, &a.IsValid,
			&a.ValidationRule, &a.ValidationReason, &a.Tries, &a.ElapsedMs, &a.CreatedAt); err != nil {
			return nil, dbError("scan attempt", err)
		}
		if err := parseIDs([]string{id, docID, run}, &a.ID, &a.DocumentID, &a.RunID); err != nil {
			return nil, err
		}
		a.Text, a.Error = text.String, errText.String
		a.Method = constants.Method(method)
		a.ErrorKind = constants.AttemptErrorKind(k)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate attempts", err)
	}
	return out, nil
}

func (r *ledgerRepo) LatestDecision(ctx context.Context, documentID uuid.UUID) (*entity.ConsolidationDecision, error) {
	q, args := r.db.builder().Select(decisionColumns...).
		From(entsql.Table("consolidation_decisions")).
		Where(entsql.EQ("document_id", documentID.String())).
		OrderBy(entsql.Desc("created_at")).
		Limit(1).
		Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, dbError("query decision", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, dbError("query decision", err)
		}
		return nil, notFound("decision for document", documentID)
	}
	var (
		d                       entity.ConsolidationDecision
		id, docID, run, primary string
		methods                 string
	)
	if err := rows.Scan(&id, &docID, &run, &primary, &d.ConsolidatedText, &d.OverallConfidence,
		&methods, &d.ConflictCount, &d.RequiresHumanReview, &d.CreatedAt); err != nil {
		return nil, dbError("scan decision", err)
	}
	if err := parseIDs([]string{id, docID, run}, &d.ID, &d.DocumentID, &d.RunID); err != nil {
		return nil, err
	}
	d.PrimaryMethod = constants.Method(primary)
	d.MethodsConsidered = splitMethods(methods)
	return &d, nil
}

func parseIDs(raw []string, dst ...*uuid.UUID) error {
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return dbError("parse id", err)
		}
		*dst[i] = id
	}
	return nil
}

func joinMethods(ms []constants.Method) string {
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		parts = append(parts, string(m))
	}
	return strings.Join(parts, ",")
}

func splitMethods(s string) []constants.Method {
	if s == "" {
		return []constants.Method{}
	}
	parts := strings.Split(s, ",")
	out := make([]constants.Method, 0, len(parts))
	for _, p := range parts {
		out = append(out, constants.Method(p))
	}
	return out
}

// optionalString stores an empty attempt text or error as NULL.
func optionalString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
