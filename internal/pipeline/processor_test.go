package pipeline

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
	"github.com/joseph-ayodele/creditreport-extractor/internal/lock"
	"github.com/joseph-ayodele/creditreport-extractor/internal/metrics"
	"github.com/joseph-ayodele/creditreport-extractor/internal/ocr"
	"github.com/joseph-ayodele/creditreport-extractor/internal/repository"
)

type ProcessorSuite struct {
	suite.Suite
	db       *repository.DB
	docs     repository.DocumentRepository
	ledger   repository.LedgerRepository
	entities repository.EntityRepository
	locker   *lock.Local
	metrics  *metrics.Metrics
}

func TestProcessorSuite(t *testing.T) {
	suite.Run(t, new(ProcessorSuite))
}

func (s *ProcessorSuite) SetupTest() {
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repository.OpenSQLite(ctx, dsn, discardLogger())
	s.Require().NoError(err)
	s.Require().NoError(db.Migrate(ctx))
	s.db = db
	s.docs = repository.NewDocumentRepository(db, discardLogger())
	s.ledger = repository.NewLedgerRepository(db, discardLogger())
	s.entities = repository.NewEntityRepository(db, discardLogger())
	s.locker = lock.NewLocal()
	s.metrics = metrics.New(prometheus.NewRegistry())
}

func (s *ProcessorSuite) TearDownTest() {
	s.db.Close()
}

func (s *ProcessorSuite) processor(cfg OrchestratorConfig, methods *ocr.MethodSet) *Processor {
	orch := newTestOrchestrator(cfg, WithAttemptSink(s.ledger), WithMetrics(s.metrics))
	return NewProcessor(Deps{
		Documents:    s.docs,
		Ledger:       s.ledger,
		Entities:     s.entities,
		Orchestrator: orch,
		Methods:      methods,
	}, discardLogger(), WithLocker(s.locker), WithRunMetrics(s.metrics))
}

func (s *ProcessorSuite) newDocument(content []byte) *entity.Document {
	doc := &entity.Document{
		MediaType:   constants.MediaTypePDF,
		ContentHash: uuid.NewString(),
		SizeBytes:   int64(len(content)),
	}
	s.Require().NoError(s.docs.Create(context.Background(), doc))
	return doc
}

// contentStreamPDF wraps a single deflated content stream in a minimal PDF.
func contentStreamPDF(content string) []byte {
	var z bytes.Buffer
	w := zlib.NewWriter(&z)
	_, _ = w.Write([]byte(content))
	_ = w.Close()

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	fmt.Fprintf(&b, "4 0 obj\n<< /Length %d /Filter /FlateDecode >>\nstream\n", z.Len())
	b.Write(z.Bytes())
	b.WriteString("\nendstream\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	return b.Bytes()
}

func (s *ProcessorSuite) TestNoCredentialsFallsBackToLocal() {
	ctx := context.Background()
	set := ocr.NewMethodSet(ctx, ocr.Config{}, discardLogger())
	s.Require().Len(set.Methods(), 1)

	content := contentStreamPDF("BT (Experian Credit Report) Tj T* (Chase Bank Account ****1234 Balance $1,250.00 Status Open) Tj ET")
	doc := s.newDocument(content)

	out, err := s.processor(OrchestratorConfig{}, set).Process(ctx, doc.ID, content)
	s.Require().NoError(err)
	s.True(out.Success, out.Reason)
	s.Equal(constants.MethodLocal, out.PrimaryMethod)
	s.Contains(out.ConsolidatedText, "Chase Bank Account ****1234")
	s.Require().Len(out.Entities.Accounts, 1)
	s.Equal("Chase Bank", out.Entities.Accounts[0].Creditor)

	got, err := s.docs.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(constants.DocumentStatusCompleted, got.Status)

	attempts, err := s.ledger.ListAttempts(ctx, doc.ID, &out.RunID)
	s.Require().NoError(err)
	s.Len(attempts, 1)

	decision, err := s.ledger.LatestDecision(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(out.RunID, decision.RunID)
	s.Equal(out.ConsolidatedText, decision.ConsolidatedText)

	loaded, err := s.entities.Load(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(out.Entities.Accounts, loaded.Accounts)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Runs.WithLabelValues("completed")))
}

func (s *ProcessorSuite) TestMetadataOnlyFailsWithHint() {
	ctx := context.Background()
	content := []byte("%PDF-1.4 metadata only")
	doc := s.newDocument(content)
	set := ocr.NewStaticSet(
		&fakeMethod{name: constants.MethodLocal, text: "endobj stream endstream /Filter /FlateDecode"},
		&fakeMethod{name: constants.MethodVision, remote: true, err: &ocr.MethodError{Kind: constants.ErrorKindAuth, Err: errors.New("denied")}},
	)

	out, err := s.processor(OrchestratorConfig{}, set).Process(ctx, doc.ID, content)
	s.Require().NoError(err)
	s.False(out.Success)
	s.Equal(ReasonMetadataOnly, out.Reason)
	s.Len(out.Attempts, 2)
	s.NotNil(out.Entities.Accounts)

	got, err := s.docs.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(constants.DocumentStatusFailed, got.Status)
	s.Require().NotNil(got.ErrorMessage)
	s.Equal(ReasonMetadataOnly, *got.ErrorMessage)

	_, err = s.ledger.LatestDecision(ctx, doc.ID)
	s.True(errors.Is(err, common.ErrNotFound))

	attempts, err := s.ledger.ListAttempts(ctx, doc.ID, nil)
	s.Require().NoError(err)
	s.Len(attempts, 2)
}

func (s *ProcessorSuite) TestAllMethodsErroredFails() {
	ctx := context.Background()
	content := []byte("%PDF-1.4")
	doc := s.newDocument(content)
	set := ocr.NewStaticSet(&fakeMethod{name: constants.MethodLocal, err: errors.New("boom")})

	out, err := s.processor(OrchestratorConfig{}, set).Process(ctx, doc.ID, content)
	s.Require().NoError(err)
	s.False(out.Success)
	s.Equal(ReasonNoValidText, out.Reason)
}

func (s *ProcessorSuite) TestOversizedDocumentIsRejected() {
	ctx := context.Background()
	content := bytes.Repeat([]byte("x"), 64)
	doc := s.newDocument(content)
	m := &fakeMethod{name: constants.MethodLocal, text: reportText}

	out, err := s.processor(OrchestratorConfig{MaxDocumentBytes: 32}, ocr.NewStaticSet(m)).Process(ctx, doc.ID, content)
	s.Require().Error(err)
	s.True(errors.Is(err, common.ErrDocumentTooLarge))
	s.Equal(ReasonTooLarge, out.Reason)
	s.Zero(m.calls.Load())

	got, err := s.docs.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(constants.DocumentStatusFailed, got.Status)
	s.Equal(ReasonTooLarge, *got.ErrorMessage)
}

func (s *ProcessorSuite) TestReextractKeepsEarlierRuns() {
	ctx := context.Background()
	content := []byte("%PDF-1.4")
	doc := s.newDocument(content)
	p := s.processor(OrchestratorConfig{}, ocr.NewStaticSet(&fakeMethod{name: constants.MethodLocal, text: reportText}))

	first, err := p.Process(ctx, doc.ID, content)
	s.Require().NoError(err)
	s.Require().True(first.Success)

	_, err = p.Process(ctx, doc.ID, content)
	s.True(errors.Is(err, common.ErrInvalidTransition), "a completed document needs an explicit re-extract")

	second, err := p.Reextract(ctx, doc.ID, content)
	s.Require().NoError(err)
	s.True(second.Success)
	s.NotEqual(first.RunID, second.RunID)

	attempts, err := s.ledger.ListAttempts(ctx, doc.ID, nil)
	s.Require().NoError(err)
	s.Len(attempts, 2)

	decision, err := s.ledger.LatestDecision(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(second.RunID, decision.RunID)

	loaded, err := s.entities.Load(ctx, doc.ID)
	s.Require().NoError(err)
	s.Len(loaded.Accounts, 1, "entities are replaced, not appended")
}

func (s *ProcessorSuite) TestFailedReextractClearsEntities() {
	ctx := context.Background()
	content := []byte("%PDF-1.4")
	doc := s.newDocument(content)

	good := s.processor(OrchestratorConfig{}, ocr.NewStaticSet(&fakeMethod{name: constants.MethodLocal, text: reportText}))
	first, err := good.Process(ctx, doc.ID, content)
	s.Require().NoError(err)
	s.Require().True(first.Success)

	loaded, err := s.entities.Load(ctx, doc.ID)
	s.Require().NoError(err)
	s.Require().Len(loaded.Accounts, 1)
	s.Require().Len(loaded.Inquiries, 1)
	s.Require().NotNil(loaded.PersonalInfo)

	bad := s.processor(OrchestratorConfig{}, ocr.NewStaticSet(
		&fakeMethod{name: constants.MethodLocal, text: "endobj stream endstream /Filter /FlateDecode"},
	))
	second, err := bad.Reextract(ctx, doc.ID, content)
	s.Require().NoError(err)
	s.False(second.Success)

	got, err := s.docs.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(constants.DocumentStatusFailed, got.Status)

	loaded, err = s.entities.Load(ctx, doc.ID)
	s.Require().NoError(err)
	s.Empty(loaded.Accounts, "entities of the earlier run are not served for a failed document")
	s.Empty(loaded.Inquiries)
	s.Empty(loaded.NegativeItems)
	s.Nil(loaded.PersonalInfo)
}

func (s *ProcessorSuite) TestLockedDocumentIsNotProcessed() {
	ctx := context.Background()
	content := []byte("%PDF-1.4")
	doc := s.newDocument(content)
	release, err := s.locker.Acquire(ctx, doc.ID.String())
	s.Require().NoError(err)
	defer func() { _ = release(ctx) }()

	m := &fakeMethod{name: constants.MethodLocal, text: reportText}
	_, err = s.processor(OrchestratorConfig{}, ocr.NewStaticSet(m)).Process(ctx, doc.ID, content)
	s.True(errors.Is(err, common.ErrExtractionInProgress))
	s.Zero(m.calls.Load())

	got, err := s.docs.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(constants.DocumentStatusPending, got.Status)
}

func (s *ProcessorSuite) TestUnknownDocument() {
	_, err := s.processor(OrchestratorConfig{}, ocr.NewStaticSet()).Process(context.Background(), uuid.New(), nil)
	s.True(errors.Is(err, common.ErrNotFound))
}
