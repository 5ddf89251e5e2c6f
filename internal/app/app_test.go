package app

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	return &common.Config{
		Database: common.DatabaseConfig{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		},
		OCR: common.OCRConfig{ArtifactDir: t.TempDir()},
		Orchestration: common.OrchestrationConfig{
			MaxDocumentBytes: 1 << 20,
			Deadline:         30 * time.Second,
			MethodTimeout:    10 * time.Second,
			MaxAttempts:      2,
			BaseBackoff:      time.Millisecond,
			MaxBackoff:       10 * time.Millisecond,
		},
		Queue: common.QueueConfig{Workers: 1, Size: 4, Timeout: time.Minute},
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLoadThresholds_OverlaysFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.ThresholdsFile = filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(cfg.ThresholdsFile, []byte(`
orchestrator:
  max_attempts: 5
  method_timeout: 3s
consolidator:
  review_threshold: 0.8
quality:
  min_text_length: 64
`), 0o600))

	th, err := LoadThresholds(cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, th.Orchestrator.MaxAttempts)
	assert.Equal(t, 3*time.Second, th.Orchestrator.MethodTimeout)
	assert.Equal(t, int64(1<<20), th.Orchestrator.MaxDocumentBytes, "env value survives")
	assert.InDelta(t, 0.8, th.Consolidator.ReviewThreshold, 1e-9)
	assert.Equal(t, 64, th.Quality.MinTextLength)
	assert.InDelta(t, 0.90, th.Quality.Priors[constants.MethodDocumentAI], 1e-9)
}

func TestLoadThresholds_MissingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.ThresholdsFile = filepath.Join(t.TempDir(), "absent.yaml")
	_, err := LoadThresholds(cfg)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.DSN = ""
	a, err := New(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestNew_WithoutCredentialsProcessesLocally(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(ctx) })

	require.NoError(t, a.Health(ctx))
	require.Len(t, a.Methods.Methods(), 1)
	assert.Equal(t, constants.MethodLocal, a.Methods.Methods()[0].Name())
	assert.Len(t, a.Methods.Unavailable(), 3)

	pdf := deflatedPDF("BT (TransUnion Credit Report) Tj T* (Capital One Account ****9876 Balance $300.00 Status Open) Tj ET")
	res, err := a.Service.SubmitUpload(ctx, "report.pdf", pdf, false)
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.True(t, res.Outcome.Success, res.Outcome.Reason)
	assert.Equal(t, constants.DocumentStatusCompleted, res.Document.Status)

	decision, err := a.Service.Decision(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.MethodLocal, decision.PrimaryMethod)

	_, err = a.Service.SubmitUpload(ctx, "other.pdf", deflatedPDF("BT (Equifax Credit Report) Tj ET"), true)
	assert.ErrorIs(t, err, common.ErrInvalidInput, "queue is off unless requested")
}

func TestNew_WithQueue(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), quietLogger(), WithQueue())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(ctx) })

	res, err := a.Service.SubmitUpload(ctx, "queued.pdf", deflatedPDF("BT (Equifax Credit Report) Tj ET"), true)
	require.NoError(t, err)
	assert.True(t, res.Queued)
	require.Eventually(t, func() bool {
		doc, err := a.Documents.Get(ctx, res.Document.ID)
		return err == nil && doc.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)
}

func deflatedPDF(content string) []byte {
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
