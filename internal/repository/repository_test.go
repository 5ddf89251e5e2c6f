package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
)

// LedgerSuite runs the repositories against in-memory SQLite.
type LedgerSuite struct {
	suite.Suite
	db       *DB
	docs     DocumentRepository
	ledger   LedgerRepository
	entities EntityRepository
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := OpenSQLite(ctx, dsn, logger)
	s.Require().NoError(err)
	s.Require().NoError(db.Migrate(ctx))
	s.Require().NoError(db.Migrate(ctx), "migrate must be idempotent")

	s.db = db
	s.docs = NewDocumentRepository(db, logger)
	s.ledger = NewLedgerRepository(db, logger)
	s.entities = NewEntityRepository(db, logger)
}

func (s *LedgerSuite) TearDownTest() {
	s.db.Close()
}

func (s *LedgerSuite) newDocument(hash string) *entity.Document {
	doc := &entity.Document{
		SourcePath:  "/tmp/" + hash + ".pdf",
		MediaType:   constants.MediaTypePDF,
		ContentHash: hash,
		SizeBytes:   1024,
	}
	s.Require().NoError(s.docs.Create(context.Background(), doc))
	return doc
}

func (s *LedgerSuite) TestCreateAndGet() {
	ctx := context.Background()
	doc := s.newDocument("abc")

	got, err := s.docs.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(doc.ID, got.ID)
	s.Equal(constants.DocumentStatusPending, got.Status)
	s.Nil(got.PageCount)
	s.Nil(got.ErrorMessage)

	byHash, err := s.docs.GetByHash(ctx, "abc")
	s.Require().NoError(err)
	s.Equal(doc.ID, byHash.ID)

	s.Require().NoError(s.docs.SetPageCount(ctx, doc.ID, 3))
	got, err = s.docs.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.PageCount)
	s.Equal(3, *got.PageCount)

	_, err = s.docs.Get(ctx, uuid.New())
	s.True(errors.Is(err, common.ErrNotFound))

	list, err := s.docs.List(ctx, 10)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *LedgerSuite) TestDuplicateHashRejected() {
	s.newDocument("dup")
	err := s.docs.Create(context.Background(), &entity.Document{
		SourcePath: "/tmp/other.pdf", MediaType: constants.MediaTypePDF, ContentHash: "dup",
	})
	s.Require().Error(err)
	s.True(errors.Is(err, common.ErrDatabase))
}

func (s *LedgerSuite) TestStatusLifecycle() {
	ctx := context.Background()
	doc := s.newDocument("life")

	s.Require().Error(s.docs.MarkCompleted(ctx, doc.ID), "pending cannot complete")

	s.Require().NoError(s.docs.BeginRun(ctx, doc.ID))
	err := s.docs.BeginRun(ctx, doc.ID)
	s.True(errors.Is(err, common.ErrExtractionInProgress))
	err = s.docs.ResetForRetry(ctx, doc.ID)
	s.True(errors.Is(err, common.ErrExtractionInProgress))

	s.Require().NoError(s.docs.MarkCompleted(ctx, doc.ID))
	err = s.docs.MarkCompleted(ctx, doc.ID)
	s.True(errors.Is(err, common.ErrInvalidTransition), "final status is set once per run")

	err = s.docs.BeginRun(ctx, doc.ID)
	s.True(errors.Is(err, common.ErrInvalidTransition))

	s.Require().NoError(s.docs.ResetForRetry(ctx, doc.ID))
	s.Require().NoError(s.docs.ResetForRetry(ctx, doc.ID), "pending stays pending")
	s.Require().NoError(s.docs.BeginRun(ctx, doc.ID))
	s.Require().NoError(s.docs.MarkFailed(ctx, doc.ID, "no valid OCR text found"))

	got, err := s.docs.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(constants.DocumentStatusFailed, got.Status)
	s.Require().NotNil(got.ErrorMessage)
	s.Equal("no valid OCR text found", *got.ErrorMessage)
}

func (s *LedgerSuite) TestAttemptsAreAppendOnlyPerRun() {
	ctx := context.Background()
	doc := s.newDocument("runs")
	run1, run2 := uuid.New(), uuid.New()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, run := range []uuid.UUID{run1, run2} {
		s.Require().NoError(s.ledger.RecordAttempt(ctx, entity.ExtractionAttempt{
			ID: uuid.New(), DocumentID: doc.ID, RunID: run, Method: constants.MethodLocal,
			Text: "Credit report text", CharacterCount: 18, WordCount: 3, Confidence: 0.61,
			IsValid: true, ValidationRule: "keywords", Tries: 1, ElapsedMs: 12,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
		s.Require().NoError(s.ledger.RecordAttempt(ctx, entity.ExtractionAttempt{
			ID: uuid.New(), DocumentID: doc.ID, RunID: run, Method: constants.MethodVision,
			Error: "vision timeout: deadline", ErrorKind: constants.ErrorKindTimeout, Tries: 2,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := s.ledger.ListAttempts(ctx, doc.ID, nil)
	s.Require().NoError(err)
	s.Len(all, 4)

	first, err := s.ledger.ListAttempts(ctx, doc.ID, &run1)
	s.Require().NoError(err)
	s.Require().Len(first, 2)
	s.Equal(constants.MethodLocal, first[0].Method)
	s.True(first[0].IsValid)
	s.InDelta(0.61, first[0].Confidence, 1e-9)
	s.Equal(constants.MethodVision, first[1].Method)
	s.True(first[1].Failed())
	s.Equal(constants.ErrorKindTimeout, first[1].ErrorKind)
	s.Equal(2, first[1].Tries)
	s.Empty(first[1].Text)
	s.Empty(first[0].Error)

	var nullText, nullErr int
	row := s.db.drv.DB().QueryRowContext(ctx,
		`SELECT SUM(CASE WHEN text IS NULL THEN 1 ELSE 0 END), SUM(CASE WHEN error IS NULL THEN 1 ELSE 0 END)
		 FROM extraction_attempts WHERE document_id = ?`, doc.ID.String())
	s.Require().NoError(row.Scan(&nullText, &nullErr))
	s.Equal(2, nullText, "failed attempts store no text")
	s.Equal(2, nullErr, "successful attempts store no error")
}

func (s *LedgerSuite) TestLatestDecision() {
	ctx := context.Background()
	doc := s.newDocument("decision")

	_, err := s.ledger.LatestDecision(ctx, doc.ID)
	s.True(errors.Is(err, common.ErrNotFound))

	base := time.Now().UTC().Truncate(time.Millisecond)
	older := entity.ConsolidationDecision{
		DocumentID: doc.ID, RunID: uuid.New(), PrimaryMethod: constants.MethodLocal,
		ConsolidatedText: "old", OverallConfidence: 0.6, RequiresHumanReview: true,
		MethodsConsidered: []constants.Method{constants.MethodLocal}, CreatedAt: base,
	}
	newer := entity.ConsolidationDecision{
		DocumentID: doc.ID, RunID: uuid.New(), PrimaryMethod: constants.MethodDocumentAI,
		ConsolidatedText: "new", OverallConfidence: 0.93, ConflictCount: 1,
		MethodsConsidered: []constants.Method{constants.MethodDocumentAI, constants.MethodLocal},
		CreatedAt:         base.Add(time.Minute),
	}
	s.Require().NoError(s.ledger.RecordDecision(ctx, older))
	s.Require().NoError(s.ledger.RecordDecision(ctx, newer))

	got, err := s.ledger.LatestDecision(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(newer.RunID, got.RunID)
	s.Equal(constants.MethodDocumentAI, got.PrimaryMethod)
	s.Equal("new", got.ConsolidatedText)
	s.Equal(newer.MethodsConsidered, got.MethodsConsidered)
	s.Equal(1, got.ConflictCount)
	s.False(got.RequiresHumanReview)
}

func (s *LedgerSuite) TestEntitiesReplaceAndLoad() {
	ctx := context.Background()
	doc := s.newDocument("entities")
	balance, amount := 1250.0, 450.0

	first := entity.ReportEntities{
		PersonalInfo: &entity.PersonalInfo{FullName: "Jane Q Public", SSNPartial: "XXX-XX-6789"},
		Accounts: []entity.CreditAccount{
			{Creditor: "Chase Bank", AccountNumber: "****1234", Status: "open", Balance: &balance},
			{Creditor: "Wells Fargo", AccountNumber: "9876XXXX", Status: "closed"},
		},
		Inquiries: []entity.CreditInquiry{{Inquirer: "Ally Bank", InquiryDate: "2024-02-20"}},
		NegativeItems: []entity.NegativeItem{
			{ItemType: "collection", Creditor: "Midland Funding", Description: "collection", Amount: &amount, Severity: 7},
		},
	}
	s.Require().NoError(s.entities.Replace(ctx, doc.ID, first))

	got, err := s.entities.Load(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(first, got)

	second := entity.ReportEntities{
		Accounts:      []entity.CreditAccount{{Creditor: "Citi", AccountNumber: "12345678"}},
		Inquiries:     []entity.CreditInquiry{},
		NegativeItems: []entity.NegativeItem{},
	}
	s.Require().NoError(s.entities.Replace(ctx, doc.ID, second))
	got, err = s.entities.Load(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(second, got, "a new run replaces the previous entities")
}

func (s *LedgerSuite) TestEntitiesDuplicateKeyRollsBack() {
	ctx := context.Background()
	doc := s.newDocument("rollback")
	keep := entity.ReportEntities{
		Accounts:      []entity.CreditAccount{{Creditor: "Citi", AccountNumber: "1111"}},
		Inquiries:     []entity.CreditInquiry{},
		NegativeItems: []entity.NegativeItem{},
	}
	s.Require().NoError(s.entities.Replace(ctx, doc.ID, keep))

	dup := entity.ReportEntities{Accounts: []entity.CreditAccount{
		{Creditor: "Chase", AccountNumber: "2222"},
		{Creditor: "chase", AccountNumber: "2222"},
	}}
	s.Require().Error(s.entities.Replace(ctx, doc.ID, dup))

	got, err := s.entities.Load(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(keep, got)
}

func (s *LedgerSuite) TestHealthCheck() {
	s.NoError(s.db.HealthCheck(context.Background(), time.Second))
}
