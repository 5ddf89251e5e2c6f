package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
)

// DocumentRepository owns the document lifecycle. Status changes are
// compare-and-set so two runs can never process one document at once.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	GetByHash(ctx context.Context, hash string) (*entity.Document, error)
	List(ctx context.Context, limit int) ([]entity.Document, error)
	SetPageCount(ctx context.Context, id uuid.UUID, pages int) error
	BeginRun(ctx context.Context, id uuid.UUID) error
	ResetForRetry(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type documentRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepo{db: db, logger: logger}
}

var documentColumns = []string{
	"id", "source_path", "media_type", "content_hash", "size_bytes", "page_count",
	"status", "error_message", "created_at", "updated_at",
}

// Create inserts a pending document, filling ID and timestamps when unset.
func (r *documentRepo) Create(ctx context.Context, doc *entity.Document) error {
	now := time.Now().UTC()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = constants.DocumentStatusPending
	}

	q, args := r.db.builder().Insert("documents").
		Columns(documentColumns...).
		Values(doc.ID.String(), doc.SourcePath, doc.MediaType, doc.ContentHash, doc.SizeBytes,
			nullInt(doc.PageCount), string(doc.Status), nullString(doc.ErrorMessage), doc.CreatedAt, doc.UpdatedAt).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to create document", "source_path", doc.SourcePath, "error", err)
		return dbError("create document", err)
	}
	r.logger.Debug("repository.document.created", "document_id", doc.ID, "hash", doc.ContentHash)
	return nil
}

func (r *documentRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	docs, err := r.query(ctx, entsql.EQ("id", id.String()), 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, notFound("document", id)
	}
	return &docs[0], nil
}

func (r *documentRepo) GetByHash(ctx context.Context, hash string) (*entity.Document, error) {
	docs, err := r.query(ctx, entsql.EQ("content_hash", hash), 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, notFound("document with hash", hash)
	}
	return &docs[0], nil
}

func (r *documentRepo) List(ctx context.Context, limit int) ([]entity.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx, nil, limit)
}

func (r *documentRepo) query(ctx context.Context, where *entsql.Predicate, limit int) ([]entity.Document, error) {
	sel := r.db.builder().Select(documentColumns...).From(entsql.Table("documents"))
	if where != nil {
		sel = sel.Where(where)
	}
	q, args := sel.OrderBy(entsql.Desc("created_at")).Limit(limit).Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, dbError("query documents", err)
	}
	defer rows.Close()

	var out []entity.Document
	for rows.Next() {
		var (
			d          entity.Document
			id, status string
			pages      sql.NullInt64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&id, &d.SourcePath, &d.MediaType, &d.ContentHash, &d.SizeBytes,
			&pages, &status, &errMsg, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, dbError("scan document", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, dbError("parse document id", err)
		}
		d.ID = parsed
		d.Status = constants.DocumentStatus(status)
		if pages.Valid {
			n := int(pages.Int64)
			d.PageCount = &n
		}
		if errMsg.Valid {
			s := errMsg.String
			d.ErrorMessage = &s
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate documents", err)
	}
	return out, nil
}

func (r *documentRepo) SetPageCount(ctx context.Context, id uuid.UUID, pages int) error {
	q, args := r.db.builder().Update("documents").
		Set("page_count", pages).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id.String())).
		Query()
	n, err := r.exec(ctx, q, args)
	if err != nil {
		return dbError("set page count", err)
	}
	if n == 0 {
		return notFound("document", id)
	}
	return nil
}

// BeginRun moves pending to processing.
func (r *documentRepo) BeginRun(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, "begin_run", constants.DocumentStatusProcessing, nil, constants.DocumentStatusPending)
}

// ResetForRetry moves a finished document back to pending. A pending document
// is left as is.
func (r *documentRepo) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	err := r.transition(ctx, id, "reset", constants.DocumentStatusPending, nil, constants.DocumentStatusCompleted, constants.DocumentStatusFailed)
	if err == nil {
		return nil
	}
	if cur, gerr := r.Get(ctx, id); gerr == nil && cur.Status == constants.DocumentStatusPending {
		return nil
	}
	return err
}

func (r *documentRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, "complete", constants.DocumentStatusCompleted, nil, constants.DocumentStatusProcessing)
}

// MarkFailed is allowed from pending so intake rejections are recorded too.
func (r *documentRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.transition(ctx, id, "fail", constants.DocumentStatusFailed, &reason, constants.DocumentStatusProcessing, constants.DocumentStatusPending)
}

func (r *documentRepo) transition(ctx context.Context, id uuid.UUID, op string, to constants.DocumentStatus, reason *string, from ...constants.DocumentStatus) error {
	fromArgs := make([]any, 0, len(from))
	for _, s := range from {
		fromArgs = append(fromArgs, string(s))
	}
	q, args := r.db.builder().Update("documents").
		Set("status", string(to)).
		Set("error_message", nullString(reason)).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(entsql.EQ("id", id.String()), entsql.In("status", fromArgs...))).
		Query()
	n, err := r.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("document transition failed", "document_id", id, "op", op, "error", err)
		return dbError("document "+op, err)
	}
	if n == 1 {
		r.logger.Info("repository.document."+op, "document_id", id, "status", to)
		return nil
	}

	cur, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == constants.DocumentStatusProcessing {
		return common.NewAppError("EXTRACTION_IN_PROGRESS",
			fmt.Sprintf("document %s is already processing", id), common.ErrExtractionInProgress)
	}
	return common.NewAppError("INVALID_TRANSITION",
		fmt.Sprintf("document %s: cannot move from %s to %s", id, cur.Status, to), common.ErrInvalidTransition)
}

func (r *documentRepo) exec(ctx context.Context, q string, args []any) (int64, error) {
	var res sql.Result
	if err := r.db.drv.Exec(ctx, q, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
