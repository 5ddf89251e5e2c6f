package quality

import "github.com/joseph-ayodele/creditreport-extractor/constants"

// Config holds every tunable threshold used by the scorer and the validator.
// Values are loaded from the thresholds YAML file over DefaultConfig.
type Config struct {
	// Scoring
	MinScoredChars int                          `yaml:"min_scored_chars"`
	Priors         map[constants.Method]float64 `yaml:"priors"`
	PriorWeight    float64                      `yaml:"prior_weight"`
	LengthCap      int                          `yaml:"length_cap"`
	LengthWeight   float64                      `yaml:"length_weight"`
	AlnumWeight    float64                      `yaml:"alnum_weight"`
	PerKeyword     float64                      `yaml:"per_keyword"`
	KeywordCap     float64                      `yaml:"keyword_cap"`
	MaxScore       float64                      `yaml:"max_score"`

	// Validation
	MinTextLength          int     `yaml:"min_text_length"`
	MetadataDominance      float64 `yaml:"metadata_dominance"`
	MetadataMaxKeywordHits int     `yaml:"metadata_max_keyword_hits"`
	MinKeywordHits         int     `yaml:"min_keyword_hits"`
	MinAlnumRatio          float64 `yaml:"min_alnum_ratio"`
	LargeTextLength        int     `yaml:"large_text_length"`
	LargeTextMinAlnumRatio float64 `yaml:"large_text_min_alnum_ratio"`
}

// DefaultConfig returns the shipped thresholds.
func DefaultConfig() Config {
	return Config{
		MinScoredChars: 10,
		Priors: map[constants.Method]float64{
			constants.MethodDocumentAI: 0.90,
			constants.MethodVision:     0.85,
			constants.MethodManagedOCR: 0.80,
			constants.MethodLocal:      0.60,
		},
		PriorWeight:  0.5,
		LengthCap:    2000,
		LengthWeight: 0.25,
		AlnumWeight:  0.15,
		PerKeyword:   0.02,
		KeywordCap:   0.10,
		MaxScore:     0.99,

		MinTextLength:          32,
		MetadataDominance:      0.2,
		MetadataMaxKeywordHits: 1,
		MinKeywordHits:         1,
		MinAlnumRatio:          0.3,
		LargeTextLength:        5000,
		LargeTextMinAlnumRatio: 0.4,
	}
}

// withDefaults fills zero fields so a partial YAML file cannot disable a rule by omission.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinScoredChars <= 0 {
		c.MinScoredChars = d.MinScoredChars
	}
	if c.Priors == nil {
		c.Priors = d.Priors
	} else {
		merged := make(map[constants.Method]float64, len(d.Priors))
		for k, v := range d.Priors {
			merged[k] = v
		}
		for k, v := range c.Priors {
			merged[k] = v
		}
		c.Priors = merged
	}
	if c.PriorWeight <= 0 {
		c.PriorWeight = d.PriorWeight
	}
	if c.LengthCap <= 0 {
		c.LengthCap = d.LengthCap
	}
	if c.LengthWeight <= 0 {
		c.LengthWeight = d.LengthWeight
	}
	if c.AlnumWeight <= 0 {
		c.AlnumWeight = d.AlnumWeight
	}
	if c.PerKeyword <= 0 {
		c.PerKeyword = d.PerKeyword
	}
	if c.KeywordCap <= 0 {
		c.KeywordCap = d.KeywordCap
	}
	if c.MaxScore <= 0 || c.MaxScore > 1 {
		c.MaxScore = d.MaxScore
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = d.MinTextLength
	}
	if c.MetadataDominance <= 0 {
		c.MetadataDominance = d.MetadataDominance
	}
	if c.MetadataMaxKeywordHits < 0 {
		c.MetadataMaxKeywordHits = d.MetadataMaxKeywordHits
	}
	if c.MinKeywordHits <= 0 {
		c.MinKeywordHits = d.MinKeywordHits
	}
	if c.MinAlnumRatio <= 0 {
		c.MinAlnumRatio = d.MinAlnumRatio
	}
	if c.LargeTextLength <= 0 {
		c.LargeTextLength = d.LargeTextLength
	}
	if c.LargeTextMinAlnumRatio <= 0 {
		c.LargeTextMinAlnumRatio = d.LargeTextMinAlnumRatio
	}
	return c
}
