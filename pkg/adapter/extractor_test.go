package adapter_test

import (
	"testing"

	"github.com/m-mizutani/cony/pkg/adapter"
	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestParseExtraction(t *testing.T) {
	text := `{
		"people": [{"name": "John", "kind": "person", "confidence": 0.9}],
		"items": [{"name": "screws", "kind": "item", "confidence": 0.8}],
		"amounts": [{"value": 45, "currency": "USD", "raw": "$45"}],
		"intent_indicators": ["bought"],
		"context_clues": {"John's": "possessive_reference"},
		"confidence": 0.85
	}`

	x, err := adapter.ParseExtraction(text)
	gt.NoError(t, err)
	gt.A(t, x.People).Length(1)
	gt.Equal(t, x.People[0].Name, "John")
	gt.A(t, x.Amounts).Length(1)
	gt.Equal(t, x.Amounts[0].Value, 45.0)
	gt.Equal(t, x.Confidence, 0.85)
	gt.Equal(t, x.ContextClues["John's"], "possessive_reference")
}

func TestParseExtractionRepairsMalformedJSON(t *testing.T) {
	// Trailing commas and fenced output are typical model mistakes.
	text := "```json\n" + `{
		"people": [{"name": "John", "kind": "person", "confidence": 0.9},],
		"confidence": 0.7,
	}` + "\n```"

	x, err := adapter.ParseExtraction(text)
	gt.NoError(t, err)
	gt.A(t, x.People).Length(1)
	gt.Equal(t, x.Confidence, 0.7)
}

func TestParseExtractionClampsConfidence(t *testing.T) {
	low, err := adapter.ParseExtraction(`{"confidence": 0.01}`)
	gt.NoError(t, err)
	gt.Equal(t, low.Confidence, model.FallbackConfidence)

	high, err := adapter.ParseExtraction(`{"confidence": 3.5}`)
	gt.NoError(t, err)
	gt.Equal(t, high.Confidence, 1.0)
}

func TestParseExtractionInitializesContextClues(t *testing.T) {
	x, err := adapter.ParseExtraction(`{"confidence": 0.9}`)
	gt.NoError(t, err)
	gt.V(t, x.ContextClues).NotNil()
}
