package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
	"github.com/joseph-ayodele/creditreport-extractor/internal/ocr"
)

func valid(m constants.Method, conf float64, text string) entity.ExtractionAttempt {
	return entity.ExtractionAttempt{Method: m, Confidence: conf, Text: text, IsValid: true}
}

func TestConsolidate_LongerTextWins(t *testing.T) {
	short := "Credit report: account balance $1,250.00"
	require.Len(t, short, 40)
	long := longReport(100)

	o := newTestOrchestrator(OrchestratorConfig{})
	methods := []ocr.Method{
		&fakeMethod{name: constants.MethodDocumentAI, remote: true, text: short},
		&fakeMethod{name: constants.MethodVision, remote: true, text: long},
	}
	attempts, err := o.Extract(context.Background(), testDoc(), uuid.New(), methods)
	require.NoError(t, err)
	require.True(t, attempts[0].IsValid)
	require.True(t, attempts[1].IsValid)
	assert.Greater(t, attempts[1].CharacterCount, 3900)
	assert.Greater(t, attempts[1].Confidence, attempts[0].Confidence)

	d, err := NewConsolidator(DefaultConsolidatorConfig()).Consolidate(attempts)
	require.NoError(t, err)
	assert.Equal(t, constants.MethodVision, d.PrimaryMethod)
	assert.Equal(t, attempts[1].Text, d.ConsolidatedText)
	assert.Equal(t, []constants.Method{constants.MethodVision, constants.MethodDocumentAI}, d.MethodsConsidered)
	assert.Equal(t, 1, d.ConflictCount)
}

func TestConsolidate_StructuredWithinMargin(t *testing.T) {
	c := NewConsolidator(DefaultConsolidatorConfig())
	structured := valid(constants.MethodDocumentAI, 0.75, "form fields chase bank")
	structured.HasStructuredData = true

	d, err := c.Consolidate([]entity.ExtractionAttempt{
		valid(constants.MethodLocal, 0.80, "plain text only here"),
		structured,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.MethodDocumentAI, d.PrimaryMethod)
	assert.InDelta(t, 0.80, d.OverallConfidence, 1e-9)
	assert.Equal(t, 1, d.ConflictCount)
}

func TestConsolidate_StructuredAtExactMargin(t *testing.T) {
	c := NewConsolidator(DefaultConsolidatorConfig())
	structured := valid(constants.MethodDocumentAI, 0.70, "form fields chase bank")
	structured.HasStructuredData = true

	d, err := c.Consolidate([]entity.ExtractionAttempt{
		valid(constants.MethodLocal, 0.80, "plain text only here"),
		structured,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.MethodDocumentAI, d.PrimaryMethod, "0.80-0.70 is within a 0.10 margin")
}

func TestConsolidate_StructuredOutsideMargin(t *testing.T) {
	c := NewConsolidator(DefaultConsolidatorConfig())
	structured := valid(constants.MethodDocumentAI, 0.65, "form fields")
	structured.HasStructuredData = true

	d, err := c.Consolidate([]entity.ExtractionAttempt{
		valid(constants.MethodLocal, 0.80, "plain text"),
		structured,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.MethodLocal, d.PrimaryMethod)
}

func TestConsolidate_AgreementBonus(t *testing.T) {
	c := NewConsolidator(DefaultConsolidatorConfig())
	text := "chase bank account balance open"
	d, err := c.Consolidate([]entity.ExtractionAttempt{
		valid(constants.MethodVision, 0.80, text),
		valid(constants.MethodLocal, 0.60, text),
		valid(constants.MethodManagedOCR, 0.70, text+" extra"),
	})
	require.NoError(t, err)
	assert.Equal(t, constants.MethodVision, d.PrimaryMethod)
	assert.InDelta(t, 0.90, d.OverallConfidence, 1e-9)
	assert.Zero(t, d.ConflictCount)
}

func TestConsolidate_TieBrokenByMethodPriority(t *testing.T) {
	c := NewConsolidator(DefaultConsolidatorConfig())
	d, err := c.Consolidate([]entity.ExtractionAttempt{
		valid(constants.MethodLocal, 0.8, "local text"),
		valid(constants.MethodDocumentAI, 0.8, "documentai text"),
	})
	require.NoError(t, err)
	assert.Equal(t, constants.MethodDocumentAI, d.PrimaryMethod)
}

func TestConsolidate_ReviewThresholdBoundary(t *testing.T) {
	c := NewConsolidator(DefaultConsolidatorConfig())

	below, err := c.Consolidate([]entity.ExtractionAttempt{valid(constants.MethodLocal, 0.69, "text")})
	require.NoError(t, err)
	assert.True(t, below.RequiresHumanReview)

	at, err := c.Consolidate([]entity.ExtractionAttempt{valid(constants.MethodLocal, 0.70, "text")})
	require.NoError(t, err)
	assert.False(t, at.RequiresHumanReview)
}

func TestConsolidate_ConfidenceCapped(t *testing.T) {
	c := NewConsolidator(DefaultConsolidatorConfig())
	top := valid(constants.MethodDocumentAI, 0.97, "same words")
	top.HasStructuredData = true
	d, err := c.Consolidate([]entity.ExtractionAttempt{top, valid(constants.MethodLocal, 0.9, "same words")})
	require.NoError(t, err)
	assert.Equal(t, 0.99, d.OverallConfidence)
}

func TestConsolidate_AllFailedYieldsNoDecision(t *testing.T) {
	c := NewConsolidator(DefaultConsolidatorConfig())
	d, err := c.Consolidate([]entity.ExtractionAttempt{
		{Method: constants.MethodVision, Error: "deadline", ErrorKind: constants.ErrorKindTimeout},
		{Method: constants.MethodLocal, Text: "endobj", ValidationReason: "empty/unreadable"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrAllMethodsFailed))
	assert.Contains(t, err.Error(), "vision: timeout")
	assert.Equal(t, uuid.Nil, d.ID)
	assert.Empty(t, d.ConsolidatedText)

	_, err = c.Consolidate(nil)
	assert.True(t, errors.Is(err, common.ErrAllMethodsFailed))
}

func TestConsolidate_TextIsNeverSynthesized(t *testing.T) {
	c := NewConsolidator(DefaultConsolidatorConfig())
	attempts := []entity.ExtractionAttempt{
		valid(constants.MethodVision, 0.7, "alpha beta gamma"),
		valid(constants.MethodLocal, 0.6, "delta epsilon"),
		{Method: constants.MethodManagedOCR, Text: "invalid zeta", IsValid: false, Confidence: 0.95},
	}
	d, err := c.Consolidate(attempts)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta gamma", d.ConsolidatedText)
	assert.NotContains(t, d.MethodsConsidered, constants.MethodManagedOCR)
}
