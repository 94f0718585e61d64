package adapter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Extractor is the natural-language extraction collaborator. Output is
// treated as unreliable: implementations degrade malformed responses to
// an empty, low-confidence extraction instead of failing.
type Extractor interface {
	Extract(ctx context.Context, query, domain string) (*model.Extraction, error)
}

// GeminiExtractor implements Extractor using the genai structured output API
type GeminiExtractor struct {
	client          *genai.Client
	generativeModel string
}

type GeminiExtractorOption func(*GeminiExtractor)

func WithExtractorModel(model string) GeminiExtractorOption {
	return func(g *GeminiExtractor) {
		g.generativeModel = model
	}
}

func NewGeminiExtractor(ctx context.Context, projectID, location string, opts ...GeminiExtractorOption) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiExtractor{
		client:          client,
		generativeModel: "gemini-2.5-flash",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

const extractPrompt = `You extract project-management entities from a user query.
Categorize every entity you find into people, projects, locations and items.
Record dollar amounts under amounts. Record verbs hinting at the user's intent
(buy, spend, check, assign, ...) under intent_indicators. Record references that
need conversational context (pronouns, possessives, "current project") under
context_clues as reference -> reason. Set confidence to your overall certainty
between 0 and 1.`

func (g *GeminiExtractor) Extract(ctx context.Context, query, domain string) (*model.Extraction, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       ptrFloat32(0.0),
		SystemInstruction: genai.NewContentFromText(extractPrompt, ""),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    extractionSchema(),
	}

	contents := []*genai.Content{
		genai.NewContentFromText("Domain: "+domain+"\nQuery: "+query, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate extraction")
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		logging.From(ctx).Warn("empty extraction response, degrading", "query", query)
		return model.NewFallbackExtraction(), nil
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	extraction, err := ParseExtraction(text)
	if err != nil {
		logging.From(ctx).Warn("unusable extraction response, degrading", "error", err, "query", query)
		return model.NewFallbackExtraction(), nil
	}
	return extraction, nil
}

// ParseExtraction decodes an extraction JSON document, repairing malformed
// output before giving up.
func ParseExtraction(text string) (*model.Extraction, error) {
	text = strings.TrimSpace(text)

	var x model.Extraction
	if err := json.Unmarshal([]byte(text), &x); err == nil {
		return finishExtraction(&x), nil
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to repair extraction JSON")
	}
	if err := json.Unmarshal([]byte(repaired), &x); err != nil {
		return nil, goerr.Wrap(err, "repaired extraction JSON still invalid")
	}
	return finishExtraction(&x), nil
}

func finishExtraction(x *model.Extraction) *model.Extraction {
	if x.ContextClues == nil {
		x.ContextClues = map[string]string{}
	}
	if x.Confidence < model.FallbackConfidence {
		x.Confidence = model.FallbackConfidence
	}
	if x.Confidence > 1 {
		x.Confidence = 1
	}
	return x
}

func extractionSchema() *genai.Schema {
	entitySchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":       {Type: genai.TypeString},
			"kind":       {Type: genai.TypeString},
			"confidence": {Type: genai.TypeNumber},
		},
		Required: []string{"name", "kind"},
	}
	entityList := &genai.Schema{Type: genai.TypeArray, Items: entitySchema}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"people":    entityList,
			"projects":  entityList,
			"locations": entityList,
			"items":     entityList,
			"amounts": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"value":    {Type: genai.TypeNumber},
						"currency": {Type: genai.TypeString},
						"raw":      {Type: genai.TypeString},
					},
					Required: []string{"value"},
				},
			},
			"intent_indicators": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"context_clues": {
				Type:        genai.TypeObject,
				Description: "reference -> reason (ambiguous_reference, implicit_reference, possessive_reference)",
			},
			"confidence": {Type: genai.TypeNumber},
		},
		Required: []string{"confidence"},
	}
}

func ptrFloat32(f float32) *float32 {
	return &f
}
