package pipeline

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
)

// ConsolidatorConfig holds the selection and review thresholds.
type ConsolidatorConfig struct {
	StructuredMargin    float64 `yaml:"structured_margin"`
	AgreementSimilarity float64 `yaml:"agreement_similarity"`
	AgreementBonus      float64 `yaml:"agreement_bonus"`
	MaxAgreementBonus   float64 `yaml:"max_agreement_bonus"`
	StructuredBonus     float64 `yaml:"structured_bonus"`
	MaxConfidence       float64 `yaml:"max_confidence"`
	ReviewThreshold     float64 `yaml:"review_threshold"`
}

// confidenceEpsilon absorbs float error so a gap of exactly the margin counts as within it.
const confidenceEpsilon = 1e-9

func DefaultConsolidatorConfig() ConsolidatorConfig {
	return ConsolidatorConfig{
		StructuredMargin:    0.1,
		AgreementSimilarity: 0.5,
		AgreementBonus:      0.05,
		MaxAgreementBonus:   0.1,
		StructuredBonus:     0.05,
		MaxConfidence:       0.99,
		ReviewThreshold:     0.70,
	}
}

func (c ConsolidatorConfig) withDefaults() ConsolidatorConfig {
	d := DefaultConsolidatorConfig()
	if c.StructuredMargin <= 0 {
		c.StructuredMargin = d.StructuredMargin
	}
	if c.AgreementSimilarity <= 0 || c.AgreementSimilarity > 1 {
		c.AgreementSimilarity = d.AgreementSimilarity
	}
	if c.AgreementBonus < 0 {
		c.AgreementBonus = d.AgreementBonus
	}
	if c.MaxAgreementBonus < 0 {
		c.MaxAgreementBonus = d.MaxAgreementBonus
	}
	if c.StructuredBonus < 0 {
		c.StructuredBonus = d.StructuredBonus
	}
	if c.MaxConfidence <= 0 || c.MaxConfidence > 1 {
		c.MaxConfidence = d.MaxConfidence
	}
	if c.ReviewThreshold <= 0 || c.ReviewThreshold > 1 {
		c.ReviewThreshold = d.ReviewThreshold
	}
	return c
}

// Consolidator picks one attempt's text as authoritative. It never merges or
// rewrites text.
type Consolidator struct {
	cfg ConsolidatorConfig
}

func NewConsolidator(cfg ConsolidatorConfig) *Consolidator {
	return &Consolidator{cfg: cfg.withDefaults()}
}

// RequiresHumanReview is the single review threshold check.
func (c *Consolidator) RequiresHumanReview(overall float64) bool {
	return overall < c.cfg.ReviewThreshold
}

// Consolidate selects a primary among successful, valid attempts. With no
// such attempt it returns ErrAllMethodsFailed and no decision.
func (c *Consolidator) Consolidate(attempts []entity.ExtractionAttempt) (entity.ConsolidationDecision, error) {
	candidates := make([]entity.ExtractionAttempt, 0, len(attempts))
	for _, a := range attempts {
		if !a.Failed() && a.IsValid {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return entity.ConsolidationDecision{}, common.NewAppError("ALL_METHODS_FAILED",
			allFailedMessage(attempts), common.ErrAllMethodsFailed)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Method.Priority() < candidates[j].Method.Priority()
	})

	pi := 0
	if !candidates[0].HasStructuredData {
		for i, cand := range candidates[1:] {
			if cand.HasStructuredData && candidates[0].Confidence-cand.Confidence <= c.cfg.StructuredMargin+confidenceEpsilon {
				pi = i + 1
				break
			}
		}
	}
	primary := candidates[pi]

	primaryWords := wordSet(primary.Text)
	agreeing, conflicts := 0, 0
	considered := make([]constants.Method, 0, len(candidates))
	for i, cand := range candidates {
		considered = append(considered, cand.Method)
		if i == pi {
			continue
		}
		if jaccard(primaryWords, wordSet(cand.Text)) >= c.cfg.AgreementSimilarity {
			agreeing++
		} else {
			conflicts++
		}
	}

	overall := primary.Confidence + math.Min(float64(agreeing)*c.cfg.AgreementBonus, c.cfg.MaxAgreementBonus)
	if primary.HasStructuredData {
		overall += c.cfg.StructuredBonus
	}
	overall = math.Min(overall, c.cfg.MaxConfidence)
	overall = math.Round(overall*1e4) / 1e4

	return entity.ConsolidationDecision{
		ID:                  uuid.New(),
		DocumentID:          primary.DocumentID,
		RunID:               primary.RunID,
		PrimaryMethod:       primary.Method,
		ConsolidatedText:    primary.Text,
		OverallConfidence:   overall,
		MethodsConsidered:   considered,
		ConflictCount:       conflicts,
		RequiresHumanReview: c.RequiresHumanReview(overall),
		CreatedAt:           time.Now().UTC(),
	}, nil
}

// allFailedMessage summarizes why each attempt was rejected.
func allFailedMessage(attempts []entity.ExtractionAttempt) string {
	if len(attempts) == 0 {
		return "no extraction attempts"
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		switch {
		case a.Failed():
			parts = append(parts, string(a.Method)+": "+string(a.ErrorKind))
		default:
			parts = append(parts, string(a.Method)+": "+a.ValidationReason)
		}
	}
	return "no valid extraction (" + strings.Join(parts, "; ") + ")"
}

func wordSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[w] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
