package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
	"github.com/joseph-ayodele/creditreport-extractor/internal/metrics"
	"github.com/joseph-ayodele/creditreport-extractor/internal/ocr"
	"github.com/joseph-ayodele/creditreport-extractor/internal/quality"
)

// AttemptSink receives each attempt as soon as its method finishes.
type AttemptSink interface {
	RecordAttempt(ctx context.Context, a entity.ExtractionAttempt) error
}

// OrchestratorConfig bounds one extraction run.
type OrchestratorConfig struct {
	MaxDocumentBytes int64         `yaml:"max_document_bytes"`
	Deadline         time.Duration `yaml:"deadline"`
	MethodTimeout    time.Duration `yaml:"method_timeout"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseBackoff      time.Duration `yaml:"base_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxDocumentBytes: 10 << 20,
		Deadline:         2 * time.Minute,
		MethodTimeout:    60 * time.Second,
		MaxAttempts:      3,
		BaseBackoff:      500 * time.Millisecond,
		MaxBackoff:       8 * time.Second,
	}
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	d := DefaultOrchestratorConfig()
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = d.MaxDocumentBytes
	}
	if c.Deadline <= 0 {
		c.Deadline = d.Deadline
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = max(d.MaxBackoff, c.BaseBackoff)
	}
	return c
}

// Orchestrator fans a document out to every enabled method concurrently and
// turns each outcome into a scored, validated attempt.
type Orchestrator struct {
	cfg       OrchestratorConfig
	scorer    *quality.Scorer
	validator *quality.Validator
	fallback  ocr.Method
	sink      AttemptSink
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type OrchestratorOption func(*Orchestrator)

func WithAttemptSink(s AttemptSink) OrchestratorOption {
	return func(o *Orchestrator) { o.sink = s }
}

func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithFallback replaces the method used when the caller passes none.
func WithFallback(m ocr.Method) OrchestratorOption {
	return func(o *Orchestrator) {
		if m != nil {
			o.fallback = m
		}
	}
}

func NewOrchestrator(cfg OrchestratorConfig, scorer *quality.Scorer, validator *quality.Validator, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:       cfg.withDefaults(),
		scorer:    scorer,
		validator: validator,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fallback == nil {
		o.fallback = ocr.NewLocalMethod(ocr.LocalConfig{}, logger)
	}
	return o
}

// Config returns the effective limits.
func (o *Orchestrator) Config() OrchestratorConfig { return o.cfg }

// Extract runs methods against doc and returns one attempt per method, in the
// order given. It never fails because a method failed; the only errors are
// input rejections.
func (o *Orchestrator) Extract(ctx context.Context, doc ocr.Document, runID uuid.UUID, methods []ocr.Method) ([]entity.ExtractionAttempt, error) {
	if int64(len(doc.Content)) > o.cfg.MaxDocumentBytes {
		return nil, common.NewAppError("DOCUMENT_TOO_LARGE",
			fmt.Sprintf("document is %d bytes, limit is %d", len(doc.Content), o.cfg.MaxDocumentBytes),
			common.ErrDocumentTooLarge)
	}
	if len(methods) == 0 {
		methods = []ocr.Method{o.fallback}
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	o.logger.Info("pipeline.extract.start",
		"document_id", doc.ID, "run_id", runID,
		"methods", methodNames(methods), "bytes", len(doc.Content),
	)
	start := time.Now()

	attempts := make([]entity.ExtractionAttempt, len(methods))
	// Plain Group: one method failing must not cancel the others.
	var g errgroup.Group
	for i, m := range methods {
		g.Go(func() error {
			attempts[i] = o.runMethod(runCtx, doc, runID, m)
			return nil
		})
	}
	_ = g.Wait()

	o.logger.Info("pipeline.extract.done",
		"document_id", doc.ID, "run_id", runID,
		"attempts", len(attempts), "elapsed_ms", time.Since(start).Milliseconds(),
	)
	return attempts, nil
}

type methodResult struct {
	out ocr.Output
	err error
}

// runMethod waits for the method or the run deadline, whichever comes first.
// A method still running at the deadline is abandoned and recorded as a timeout.
func (o *Orchestrator) runMethod(ctx context.Context, doc ocr.Document, runID uuid.UUID, m ocr.Method) entity.ExtractionAttempt {
	start := time.Now()
	var tries atomic.Int32
	ch := make(chan methodResult, 1)
	go func() {
		out, err := o.callWithRetry(ctx, doc, m, &tries)
		ch <- methodResult{out: out, err: err}
	}()

	var res methodResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		select {
		case res = <-ch:
		default:
			res.err = &ocr.MethodError{
				Method: m.Name(),
				Kind:   constants.ErrorKindTimeout,
				Err:    fmt.Errorf("run deadline exceeded after %s", time.Since(start).Round(time.Millisecond)),
			}
		}
	}

	att := o.buildAttempt(doc, runID, m.Name(), res, int(tries.Load()), time.Since(start))
	o.record(ctx, att)
	return att
}

// callWithRetry retries remote methods on retryable errors with capped
// exponential backoff, and only while the run deadline leaves room for
// another try of similar length.
func (o *Orchestrator) callWithRetry(ctx context.Context, doc ocr.Document, m ocr.Method, tries *atomic.Int32) (ocr.Output, error) {
	maxTries := 1
	if m.Remote() {
		maxTries = o.cfg.MaxAttempts
	}
	var lastErr error
	for n := 0; n < maxTries; n++ {
		tries.Add(1)
		callStart := time.Now()
		out, err := o.call(ctx, doc, m)
		if err == nil {
			return out, nil
		}
		lastErr = err
		kind, retryable := ocr.Classify(err)
		if !retryable || n+1 >= maxTries || ctx.Err() != nil {
			break
		}
		backoff := o.backoff(n)
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < backoff+time.Since(callStart) {
			o.logger.Warn("pipeline.method.retry_skipped",
				"method", m.Name(), "document_id", doc.ID, "try", n+1,
				"reason", "insufficient time before deadline", "error", err)
			break
		}
		o.logger.Warn("pipeline.method.retry",
			"method", m.Name(), "document_id", doc.ID, "try", n+1,
			"kind", kind, "backoff_ms", backoff.Milliseconds(), "error", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ocr.Output{}, lastErr
		case <-timer.C:
		}
	}
	return ocr.Output{}, lastErr
}

func (o *Orchestrator) call(ctx context.Context, doc ocr.Document, m ocr.Method) (ocr.Output, error) {
	if o.cfg.MethodTimeout <= 0 {
		return m.Extract(ctx, doc)
	}
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.MethodTimeout)
	defer cancel()
	return m.Extract(callCtx, doc)
}

func (o *Orchestrator) backoff(n int) time.Duration {
	d := o.cfg.BaseBackoff << n
	if d <= 0 || d > o.cfg.MaxBackoff {
		return o.cfg.MaxBackoff
	}
	return d
}

func (o *Orchestrator) buildAttempt(doc ocr.Document, runID uuid.UUID, method constants.Method, res methodResult, tries int, elapsed time.Duration) entity.ExtractionAttempt {
	att := entity.ExtractionAttempt{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		RunID:      runID,
		Method:     method,
		Tries:      max(tries, 1),
		ElapsedMs:  elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if res.err != nil {
		kind, _ := ocr.Classify(res.err)
		att.Error = res.err.Error()
		att.ErrorKind = kind
		return att
	}

	text := ocr.Normalize(res.out.Text)
	verdict := o.validator.Validate(text)
	att.Text = text
	att.CharacterCount = utf8.RuneCountInString(text)
	att.WordCount = quality.WordCount(text)
	att.HasStructuredData = res.out.StructuredData
	att.IsValid = verdict.IsValid
	att.ValidationRule = verdict.Rule
	att.ValidationReason = verdict.Reason
	att.Confidence = o.scorer.Score(text, method)
	return att
}

// record hands the attempt to the sink. Persistence outlives the run deadline
// so a timed-out attempt is still written.
func (o *Orchestrator) record(ctx context.Context, att entity.ExtractionAttempt) {
	outcome := attemptOutcome(att)
	o.metrics.ObserveAttempt(string(att.Method), outcome, time.Duration(att.ElapsedMs)*time.Millisecond)

	level := slog.LevelInfo
	if att.Failed() {
		level = slog.LevelWarn
	}
	o.logger.Log(ctx, level, "pipeline.attempt.done",
		"document_id", att.DocumentID, "run_id", att.RunID, "method", att.Method,
		"outcome", outcome, "confidence", att.Confidence, "chars", att.CharacterCount,
		"rule", att.ValidationRule, "tries", att.Tries, "elapsed_ms", att.ElapsedMs,
		"error", att.Error,
	)

	if o.sink == nil {
		return
	}
	if err := o.sink.RecordAttempt(context.WithoutCancel(ctx), att); err != nil {
		o.logger.Error("pipeline.attempt.persist_failed",
			"document_id", att.DocumentID, "run_id", att.RunID, "method", att.Method, "error", err)
	}
}

func attemptOutcome(a entity.ExtractionAttempt) string {
	switch {
	case a.ErrorKind == constants.ErrorKindTimeout:
		return "timeout"
	case a.Failed():
		return "error"
	case !a.IsValid:
		return "invalid"
	}
	return "ok"
}

func methodNames(methods []ocr.Method) []string {
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, string(m.Name()))
	}
	return out
}
