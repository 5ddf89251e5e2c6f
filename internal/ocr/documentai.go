package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
)

// DocumentAIConfig points at one Document AI processor.
type DocumentAIConfig struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string
}

// Enabled reports whether the processor is fully configured.
func (c DocumentAIConfig) Enabled() bool {
	return c.ProjectID != "" && c.Location != "" && c.ProcessorID != ""
}

func (c DocumentAIConfig) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
}

type documentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error)
	Close() error
}

type gcpProcessor struct {
	client *documentai.DocumentProcessorClient
}

func (p gcpProcessor) ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
	return p.client.ProcessDocument(ctx, req)
}

func (p gcpProcessor) Close() error { return p.client.Close() }

// DocumentAIMethod extracts text and form structure with Google Document AI.
type DocumentAIMethod struct {
	cfg    DocumentAIConfig
	proc   documentProcessor
	logger *slog.Logger
}

// NewDocumentAIMethod dials the regional Document AI endpoint once; the client is reused across runs.
func NewDocumentAIMethod(ctx context.Context, cfg DocumentAIConfig, logger *slog.Logger) (*DocumentAIMethod, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create document ai client: %w", err)
	}
	return &DocumentAIMethod{cfg: cfg, proc: gcpProcessor{client: client}, logger: logger}, nil
}

func (m *DocumentAIMethod) Name() constants.Method { return constants.MethodDocumentAI }
func (m *DocumentAIMethod) Remote() bool           { return true }

// Close releases the underlying gRPC connection.
func (m *DocumentAIMethod) Close() error { return m.proc.Close() }

func (m *DocumentAIMethod) Extract(ctx context.Context, doc Document) (Output, error) {
	start := time.Now()
	req := &documentaipb.ProcessRequest{
		Name: m.cfg.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  doc.Content,
				MimeType: doc.MediaType,
			},
		},
		SkipHumanReview: true,
	}

	m.logger.Info("ocr.documentai.request", "document_id", doc.ID, "bytes", len(doc.Content))
	resp, err := m.proc.ProcessDocument(ctx, req)
	if err != nil {
		m.logger.Warn("ocr.documentai.error", "document_id", doc.ID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return Output{}, classifyGRPC(constants.MethodDocumentAI, err)
	}
	d := resp.GetDocument()
	if d == nil {
		return Output{}, newMethodError(constants.MethodDocumentAI, constants.ErrorKindBadResponse, errors.New("response has no document"))
	}

	out := Output{
		Text:           d.GetText(),
		Pages:          len(d.GetPages()),
		StructuredData: hasDocumentStructure(d),
	}
	m.logger.Info("ocr.documentai.response",
		"document_id", doc.ID,
		"pages", out.Pages,
		"chars", len(out.Text),
		"structured", out.StructuredData,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// hasDocumentStructure reports whether the processor found form fields, tables or entities.
func hasDocumentStructure(d *documentaipb.Document) bool {
	if len(d.GetEntities()) > 0 {
		return true
	}
	for _, p := range d.GetPages() {
		if len(p.GetFormFields()) > 0 || len(p.GetTables()) > 0 {
			return true
		}
	}
	return false
}

// classifyGRPC maps Google API status codes onto attempt error kinds.
func classifyGRPC(m constants.Method, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newMethodError(m, constants.ErrorKindTimeout, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return newMethodError(m, constants.ErrorKindNetwork, err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return newMethodError(m, constants.ErrorKindTimeout, err)
	case codes.ResourceExhausted:
		return newMethodError(m, constants.ErrorKindRateLimited, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return newMethodError(m, constants.ErrorKindAuth, err)
	case codes.Unavailable, codes.Aborted, codes.Internal:
		return newMethodError(m, constants.ErrorKindNetwork, err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return newMethodError(m, constants.ErrorKindBadResponse, err)
	case codes.Canceled:
		return newMethodError(m, constants.ErrorKindTimeout, err)
	default:
		return newMethodError(m, constants.ErrorKindInternal, err)
	}
}
