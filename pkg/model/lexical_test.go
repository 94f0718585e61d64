package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestParseAmounts(t *testing.T) {
	testCases := []struct {
		input  string
		values []float64
	}{
		{"I spent $45 on screws", []float64{45}},
		{"it was $1,250.50", []float64{1250.50}},
		{"paid 30 dollars for paint", []float64{30}},
		{"costs 12.5 usd", []float64{12.5}},
		{"no amounts here", nil},
		{"$10 and then $20 more", []float64{10, 20}},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			amounts := model.ParseAmounts(tc.input)
			gt.A(t, amounts).Length(len(tc.values))
			for i, v := range tc.values {
				gt.Equal(t, amounts[i].Value, v)
				gt.Equal(t, amounts[i].Currency, "USD")
			}
		})
	}
}

func TestParseMentions(t *testing.T) {
	mentions := model.ParseMentions("What is the status of John and the Deck Project?")
	gt.V(t, contains(mentions, "John")).Equal(true)
	gt.V(t, contains(mentions, "Deck Project")).Equal(true)

	// Sentence-leading function words are dropped.
	gt.V(t, contains(mentions, "What")).Equal(false)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func TestParseMentionsDedup(t *testing.T) {
	mentions := model.ParseMentions("John asked John about John")
	gt.A(t, mentions).Length(1)
}

func TestParsePossessives(t *testing.T) {
	possessives := model.ParsePossessives("Where is John's toolbox?")
	gt.A(t, possessives).Length(1)
	gt.Equal(t, possessives[0], "John")
	gt.A(t, model.ParsePossessives("no possessive here")).Length(0)
}

func TestStripPossessive(t *testing.T) {
	gt.Equal(t, model.StripPossessive("John's"), "John")
	gt.Equal(t, model.StripPossessive("workers'"), "workers")
	gt.Equal(t, model.StripPossessive("John"), "John")
}

func TestNormalizeQuery(t *testing.T) {
	gt.Equal(t, model.NormalizeQuery("  What   is THE Status? "), "what is the status?")
}

func TestExtractionMerge(t *testing.T) {
	a := &model.Extraction{
		People: []*model.Entity{{Name: "John", Kind: model.EntityKindPerson, Confidence: 0.9}},
	}
	b := &model.Extraction{
		People:  []*model.Entity{{Name: "john", Kind: model.EntityKindPerson, Confidence: 0.8}},
		Amounts: []*model.Amount{{Value: 45, Currency: "USD"}},
	}

	a.Merge(b)
	gt.A(t, a.People).Length(1)
	gt.A(t, a.Amounts).Length(1)
}

func TestEntityValidate(t *testing.T) {
	valid := &model.Entity{Name: "John", Kind: model.EntityKindPerson, Confidence: 0.9}
	gt.NoError(t, valid.Validate())

	noName := &model.Entity{Kind: model.EntityKindPerson, Confidence: 0.9}
	gt.Error(t, noName.Validate())

	blankName := &model.Entity{Name: "   ", Kind: model.EntityKindPerson, Confidence: 0.9}
	gt.Error(t, blankName.Validate())

	badKind := &model.Entity{Name: "x", Kind: "alien", Confidence: 0.9}
	gt.Error(t, badKind.Validate())

	badConfidence := &model.Entity{Name: "x", Kind: model.EntityKindItem, Confidence: 1.5}
	gt.Error(t, badConfidence.Validate())
}

func TestPendingCompleteTwice(t *testing.T) {
	req := &model.PendingRequest{
		ID:     model.NewPendingID(),
		Status: model.PendingStatusPending,
	}

	gt.NoError(t, req.Complete(&model.Completion{Query: "it was $10"}))
	gt.Equal(t, req.Status, model.PendingStatusCompleted)

	err := req.Complete(&model.Completion{Query: "again"})
	gt.Error(t, err)
}

func TestGraphEdgeRequiresNodes(t *testing.T) {
	g := model.NewGraph(time.Now())
	g.AddNode("John", model.EntityKindPerson)

	gt.V(t, g.AddEdge("John", "Deck Project", model.RelationWorksOn, 0.9)).Equal(false)
	gt.A(t, g.Edges).Length(0)

	g.AddNode("Deck Project", model.EntityKindProject)
	gt.V(t, g.AddEdge("John", "Deck Project", model.RelationWorksOn, 0.9)).Equal(true)
	gt.A(t, g.Edges).Length(1)
}
