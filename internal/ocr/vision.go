package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
)

const visionSystemPrompt = `You are a document transcription engine. Transcribe every visible character of the supplied credit report verbatim as plain text, page by page, preserving line breaks and reading order. Do not summarize, interpret, redact, or add commentary.`

const visionUserPrompt = `Transcribe this document.`

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"i can't help with",
	"as a large language model",
}

// VisionConfig selects the Vertex AI project and model used for multimodal transcription.
type VisionConfig struct {
	ProjectID string
	Region    string
	Model     string
}

func (c VisionConfig) Enabled() bool { return c.ProjectID != "" && c.Region != "" }

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VisionMethod transcribes documents with a Gemini model on Vertex AI.
type VisionMethod struct {
	model  contentGenerator
	client *genai.Client
	logger *slog.Logger
}

func NewVisionMethod(ctx context.Context, cfg VisionConfig, logger *slog.Logger) (*VisionMethod, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro"
	}
	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(visionSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0),
	}
	return &VisionMethod{model: model, client: client, logger: logger}, nil
}

func (m *VisionMethod) Name() constants.Method { return constants.MethodVision }
func (m *VisionMethod) Remote() bool           { return true }

func (m *VisionMethod) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

func (m *VisionMethod) Extract(ctx context.Context, doc Document) (Output, error) {
	start := time.Now()
	m.logger.Info("ocr.vision.request", "document_id", doc.ID, "bytes", len(doc.Content))

	resp, err := m.model.GenerateContent(ctx,
		genai.Blob{MIMEType: doc.MediaType, Data: doc.Content},
		genai.Text(visionUserPrompt),
	)
	if err != nil {
		m.logger.Warn("ocr.vision.error", "document_id", doc.ID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return Output{}, classifyGRPC(constants.MethodVision, err)
	}

	text := transcriptText(resp)
	if phrase := refusal(text); phrase != "" {
		m.logger.Warn("ocr.vision.refusal", "document_id", doc.ID, "phrase", phrase)
		return Output{}, newMethodError(constants.MethodVision, constants.ErrorKindBadResponse, errors.New("model refused to transcribe"))
	}

	m.logger.Info("ocr.vision.response",
		"document_id", doc.ID,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Output{Text: text, Pages: strings.Count(text, "\f") + 1}, nil
}

// refusalWindow bounds the refusal check to the opening of a transcript; a
// consumer statement deep in a report may legitimately contain these phrases.
const refusalWindow = 300

func refusal(text string) string {
	head := strings.TrimSpace(text)
	if len(head) > refusalWindow {
		head = head[:refusalWindow]
	}
	head = strings.ToLower(head)
	for _, phrase := range refusalPhrases {
		if strings.Contains(head, phrase) {
			return phrase
		}
	}
	return ""
}

// transcriptText concatenates the text parts of the first candidate and strips code fences.
func transcriptText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	s := strings.TrimSpace(b.String())
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```markdown")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
