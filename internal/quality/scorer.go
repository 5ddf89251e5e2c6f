package quality

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
)

// Scorer computes a 0..1 confidence for one method's text.
// It holds no state besides its thresholds and is safe for concurrent use.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg.withDefaults()}
}

// Score blends the method prior with length, alphanumeric density and keyword credit.
// Near-empty text scores 0 regardless of method.
func (s *Scorer) Score(text string, method constants.Method) float64 {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	if n < s.cfg.MinScoredChars {
		return 0
	}

	score := s.cfg.Priors[method] * s.cfg.PriorWeight
	score += math.Min(float64(n)/float64(s.cfg.LengthCap), 1) * s.cfg.LengthWeight
	score += AlnumRatio(trimmed) * s.cfg.AlnumWeight
	score += math.Min(float64(countMatches(scoreKeywords, trimmed))*s.cfg.PerKeyword, s.cfg.KeywordCap)

	if score > s.cfg.MaxScore {
		score = s.cfg.MaxScore
	}
	return round4(score)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
