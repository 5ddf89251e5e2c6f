package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
	"github.com/joseph-ayodele/creditreport-extractor/internal/ocr"
	"github.com/joseph-ayodele/creditreport-extractor/internal/quality"
)

const reportText = `Experian Credit Report
Personal Information
Name: Jane Q Public
Chase Bank Account ****1234 Balance $1,250.00 Status Open
Inquiries: Capital One 01/15/2024`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMethod returns canned output. The first len(errs) calls fail with those
// errors. A non-nil hang blocks the call until the channel closes, ignoring ctx.
type fakeMethod struct {
	name       constants.Method
	remote     bool
	text       string
	structured bool
	errs       []error
	err        error
	delay      time.Duration
	hang       chan struct{}
	calls      atomic.Int32
}

func (f *fakeMethod) Name() constants.Method { return f.name }
func (f *fakeMethod) Remote() bool           { return f.remote }

func (f *fakeMethod) Extract(ctx context.Context, _ ocr.Document) (ocr.Output, error) {
	n := int(f.calls.Add(1))
	if f.hang != nil {
		<-f.hang
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ocr.Output{}, ctx.Err()
		}
	}
	if n <= len(f.errs) {
		return ocr.Output{}, f.errs[n-1]
	}
	if f.err != nil {
		return ocr.Output{}, f.err
	}
	return ocr.Output{Text: f.text, StructuredData: f.structured}, nil
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) RecordAttempt(ctx context.Context, a entity.ExtractionAttempt) error {
	return m.Called(ctx, a).Error(0)
}

func methodIs(name constants.Method) any {
	return mock.MatchedBy(func(a entity.ExtractionAttempt) bool { return a.Method == name })
}

func newTestOrchestrator(cfg OrchestratorConfig, opts ...OrchestratorOption) *Orchestrator {
	qc := quality.DefaultConfig()
	return NewOrchestrator(cfg, quality.NewScorer(qc), quality.NewValidator(qc, discardLogger()), discardLogger(), opts...)
}

func retryable(kind constants.AttemptErrorKind) error {
	return &ocr.MethodError{Kind: kind, Retryable: true, Err: io.ErrUnexpectedEOF}
}

func longReport(lines int) string {
	return strings.TrimSpace(strings.Repeat("Chase Bank account ****1234 balance $950\n", lines))
}
