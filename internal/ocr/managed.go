package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
)

// ManagedOCRConfig addresses a hosted OCR API that returns per-page markdown.
type ManagedOCRConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func (c ManagedOCRConfig) Enabled() bool { return c.APIKey != "" && c.BaseURL != "" }

type managedOCRRequest struct {
	Model              string           `json:"model"`
	Document           managedOCRSource `json:"document"`
	IncludeImageBase64 bool             `json:"include_image_base64"`
}

type managedOCRSource struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type managedOCRResponse struct {
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
	Model string `json:"model"`
}

var (
	reMarkdownTableSep = regexp.MustCompile(`(?m)^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)
	reKeyValueLine     = regexp.MustCompile(`(?m)^\s*[A-Za-z][A-Za-z /#&.'-]{1,40}:\s+\S`)
)

// ManagedOCRMethod calls a table and form aware OCR service over HTTPS.
type ManagedOCRMethod struct {
	cfg    ManagedOCRConfig
	client *http.Client
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewManagedOCRMethod(cfg ManagedOCRConfig, client *http.Client, logger *slog.Logger) (*ManagedOCRMethod, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "mistral-ocr-latest"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	schema, err := compileSchema("managed_ocr_response.json", managedOCRResponseSchema)
	if err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ManagedOCRMethod{cfg: cfg, client: client, schema: schema, logger: logger}, nil
}

func (m *ManagedOCRMethod) Name() constants.Method { return constants.MethodManagedOCR }
func (m *ManagedOCRMethod) Remote() bool           { return true }

func (m *ManagedOCRMethod) Extract(ctx context.Context, doc Document) (Output, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", doc.MediaType, base64.StdEncoding.EncodeToString(doc.Content))
	src := managedOCRSource{Type: "document_url", DocumentURL: dataURL}
	if doc.MediaType != constants.MediaTypePDF {
		src = managedOCRSource{Type: "image_url", ImageURL: dataURL}
	}
	body := managedOCRRequest{Model: m.cfg.Model, Document: src}
	headers := map[string]string{"Authorization": "Bearer " + m.cfg.APIKey}

	raw, status, err := SendJSON(ctx, m.client, m.cfg.BaseURL+"/v1/ocr", body, headers, m.logger)
	if err != nil {
		return Output{}, classifyHTTP(status, err)
	}
	if err := validateAgainst(m.schema, raw); err != nil {
		m.logger.Warn("ocr.managed.schema_mismatch", "document_id", doc.ID, "error", err)
		return Output{}, newMethodError(constants.MethodManagedOCR, constants.ErrorKindBadResponse, err)
	}

	var resp managedOCRResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Output{}, newMethodError(constants.MethodManagedOCR, constants.ErrorKindBadResponse, err)
	}
	sort.SliceStable(resp.Pages, func(i, j int) bool { return resp.Pages[i].Index < resp.Pages[j].Index })

	parts := make([]string, 0, len(resp.Pages))
	for _, p := range resp.Pages {
		parts = append(parts, strings.TrimSpace(p.Markdown))
	}
	text := strings.Join(parts, "\n\n")
	return Output{
		Text:           text,
		Pages:          len(resp.Pages),
		StructuredData: hasMarkdownStructure(text),
	}, nil
}

// hasMarkdownStructure reports a markdown table or at least three key: value lines.
func hasMarkdownStructure(s string) bool {
	if reMarkdownTableSep.MatchString(s) {
		return true
	}
	return len(reKeyValueLine.FindAllStringIndex(s, 3)) >= 3
}

func classifyHTTP(status int, err error) error {
	m := constants.MethodManagedOCR
	switch {
	case status == 0:
		if errors.Is(err, context.DeadlineExceeded) {
			return newMethodError(m, constants.ErrorKindTimeout, err)
		}
		return newMethodError(m, constants.ErrorKindNetwork, err)
	case status == http.StatusTooManyRequests:
		return newMethodError(m, constants.ErrorKindRateLimited, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newMethodError(m, constants.ErrorKindAuth, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return newMethodError(m, constants.ErrorKindTimeout, err)
	case status >= 500:
		return newMethodError(m, constants.ErrorKindNetwork, err)
	default:
		return newMethodError(m, constants.ErrorKindBadResponse, err)
	}
}
