package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
)

// LocalConfig tunes the offline method. Pdftotext is optional; empty skips it.
type LocalConfig struct {
	Pdftotext string
}

// LocalMethod recovers text without any network call: the PDF text layer first,
// then pdftotext when configured, then a raw byte scan of content streams.
type LocalMethod struct {
	cfg    LocalConfig
	runner Runner
	logger *slog.Logger
}

func NewLocalMethod(cfg LocalConfig, logger *slog.Logger) *LocalMethod {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalMethod{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner (tests).
func (m *LocalMethod) WithRunner(r Runner) *LocalMethod {
	m.runner = r
	return m
}

func (m *LocalMethod) Name() constants.Method { return constants.MethodLocal }
func (m *LocalMethod) Remote() bool           { return false }

func (m *LocalMethod) Extract(ctx context.Context, doc Document) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, newMethodError(constants.MethodLocal, constants.ErrorKindTimeout, err)
	}
	if doc.MediaType != constants.MediaTypePDF {
		return Output{}, newMethodError(constants.MethodLocal, constants.ErrorKindUnsupported,
			fmt.Errorf("media type %q has no local text layer", doc.MediaType))
	}
	start := time.Now()

	text, pages, err := textLayer(doc.Content)
	if err != nil {
		m.logger.Debug("ocr.local.text_layer_failed", "document_id", doc.ID, "error", err)
	}
	source := "text_layer"

	if strings.TrimSpace(text) == "" && m.cfg.Pdftotext != "" {
		out, _, rerr := m.runner.Run(ctx, doc.Content, m.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", "-", "-")
		if rerr == nil {
			text = string(out)
			source = "pdftotext"
			if pages == 0 {
				pages = 1 + strings.Count(strings.TrimRight(text, "\f"), "\f")
			}
		}
	}

	if strings.TrimSpace(text) == "" {
		var found bool
		text, found = scanPDF(doc.Content)
		source = "byte_scan"
		if !found {
			source = "printable_runs"
		}
	}

	m.logger.Info("ocr.local.done",
		"document_id", doc.ID,
		"source", source,
		"pages", pages,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Output{Text: text, Pages: pages}, nil
}

// textLayer reads embedded text with ledongthuc/pdf. The reader panics on some
// malformed files, so panics are turned into errors.
func textLayer(content []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("pdf reader panic: %v", r)
		}
	}()
	if len(content) == 0 {
		return "", 0, errors.New("empty PDF content")
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	pages = r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pt, perr := page.GetPlainText(nil)
		if perr != nil {
			continue
		}
		pt = strings.TrimSpace(pt)
		if pt == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pt)
	}
	return b.String(), pages, nil
}
