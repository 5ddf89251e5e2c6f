package quality

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Detected content types.
const (
	TypeEmpty         = "empty"
	TypeMetadata      = "metadata"
	TypeCreditReport  = "credit_report"
	TypeLargeDocument = "large_document"
	TypeUnknown       = "unknown"
)

// Names of the validation rules, in evaluation order.
const (
	RuleMinLength     = "min_length"
	RuleMetadataOnly  = "metadata_only"
	RuleKeywords      = "keywords"
	RuleLargeDocument = "large_document"
	RuleNoContent     = "no_content"
)

// User-facing reasons for rejected text.
const (
	ReasonEmpty        = "empty/unreadable"
	ReasonMetadataOnly = "metadata only, no content"
	ReasonNoContent    = "no recognizable content"
)

// Verdict is the outcome of Validate with the measurements that produced it.
type Verdict struct {
	IsValid         bool    `json:"is_valid"`
	DetectedType    string  `json:"detected_type"`
	Reason          string  `json:"reason,omitempty"`
	Rule            string  `json:"rule"`
	KeywordHits     int     `json:"keyword_hits"`
	AlnumRatio      float64 `json:"alnum_ratio"`
	MetadataMarkers int     `json:"metadata_markers"`
}

// Validator decides whether text is plausibly a credit report.
type Validator struct {
	cfg    Config
	logger *slog.Logger
}

func NewValidator(cfg Config, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{cfg: cfg.withDefaults(), logger: logger}
}

// Validate applies the ordered rules; the first match wins.
func (v *Validator) Validate(text string) Verdict {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)

	out := Verdict{
		KeywordHits:     contentKeywordHits(trimmed),
		AlnumRatio:      round4(AlnumRatio(trimmed)),
		MetadataMarkers: countMatches(containerMarkers, trimmed),
	}

	tokens := WordCount(trimmed)
	dominance := 0.0
	if tokens > 0 {
		dominance = float64(out.MetadataMarkers) / float64(tokens)
	}

	switch {
	case n < v.cfg.MinTextLength:
		out.Rule, out.DetectedType, out.Reason = RuleMinLength, TypeEmpty, ReasonEmpty
	case dominance >= v.cfg.MetadataDominance && out.KeywordHits <= v.cfg.MetadataMaxKeywordHits:
		out.Rule, out.DetectedType, out.Reason = RuleMetadataOnly, TypeMetadata, ReasonMetadataOnly
	case out.KeywordHits >= v.cfg.MinKeywordHits && out.AlnumRatio >= v.cfg.MinAlnumRatio:
		out.Rule, out.DetectedType, out.IsValid = RuleKeywords, TypeCreditReport, true
	case n >= v.cfg.LargeTextLength && out.AlnumRatio >= v.cfg.LargeTextMinAlnumRatio:
		out.Rule, out.DetectedType, out.IsValid = RuleLargeDocument, TypeLargeDocument, true
	default:
		out.Rule, out.DetectedType, out.Reason = RuleNoContent, TypeUnknown, ReasonNoContent
	}

	v.logger.Debug("quality.validate",
		"rule", out.Rule,
		"valid", out.IsValid,
		"chars", n,
		"keyword_hits", out.KeywordHits,
		"alnum_ratio", out.AlnumRatio,
		"metadata_markers", out.MetadataMarkers,
	)
	return out
}
