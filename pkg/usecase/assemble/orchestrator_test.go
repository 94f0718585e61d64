package assemble_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/cony/pkg/adapter"
	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/repository"
	"github.com/m-mizutani/cony/pkg/usecase/assemble"
	"github.com/m-mizutani/cony/pkg/usecase/graph"
	"github.com/m-mizutani/cony/pkg/usecase/pending"
	"github.com/m-mizutani/cony/pkg/usecase/resolve"
	"github.com/m-mizutani/cony/pkg/usecase/route"
	"github.com/m-mizutani/cony/pkg/usecase/session"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

const testDomain = "default"

type fakeExtractor struct {
	fn func(query string) (*model.Extraction, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, query, domain string) (*model.Extraction, error) {
	return f.fn(query)
}

func newOrchestrator(repo *repository.Memory, extractor adapter.Extractor) *assemble.Orchestrator {
	graphs := graph.NewBuilder(repo)
	router := route.New(repo, graphs)
	opts := []assemble.Option{}
	if extractor != nil {
		opts = append(opts, assemble.WithExtractor(extractor))
	}
	return assemble.New(repo,
		session.NewStore(repo),
		pending.NewManager(repo),
		resolve.New(graphs),
		router,
		opts...)
}

func TestHandleQueryRejectsEmpty(t *testing.T) {
	uc := newOrchestrator(repository.NewMemory(), nil)
	_, err := uc.HandleQuery(context.Background(), assemble.QueryInput{
		SessionID: "session-1",
		Query:     "   ",
	})
	gt.Error(t, err)
}

func TestPurchaseWithoutAmountOpensPending(t *testing.T) {
	repo := repository.NewMemory()
	extractor := &fakeExtractor{fn: func(query string) (*model.Extraction, error) {
		return &model.Extraction{
			Items:            []*model.Entity{{Name: "screws", Kind: model.EntityKindItem, Confidence: 0.9}},
			IntentIndicators: []string{"bought"},
			ContextClues:     map[string]string{},
			Confidence:       0.9,
		}, nil
	}}
	uc := newOrchestrator(repo, extractor)

	answer, err := uc.HandleQuery(context.Background(), assemble.QueryInput{
		SessionID: "session-1",
		Domain:    testDomain,
		Query:     "I bought screws",
	})
	gt.NoError(t, err)
	gt.Equal(t, answer.PendingQuestion, "How much did it cost?")

	reqs, err := repo.ListPending(context.Background())
	gt.NoError(t, err)
	gt.A(t, reqs).Length(1)
	gt.Equal(t, reqs[0].Missing.Type, model.MissingAmount)
	gt.Equal(t, reqs[0].Intent, "record_purchase")
}

func TestFollowUpCompletesPending(t *testing.T) {
	repo := repository.NewMemory()
	extractor := &fakeExtractor{fn: func(query string) (*model.Extraction, error) {
		if query == "I bought screws" {
			return &model.Extraction{
				Items:            []*model.Entity{{Name: "screws", Kind: model.EntityKindItem, Confidence: 0.9}},
				IntentIndicators: []string{"bought"},
				ContextClues:     map[string]string{},
				Confidence:       0.9,
			}, nil
		}
		// The NLU finds nothing in the follow-up; the lexical amount
		// pass must still complete the pending request.
		return &model.Extraction{ContextClues: map[string]string{}, Confidence: 0.5}, nil
	}}
	uc := newOrchestrator(repo, extractor)
	ctx := context.Background()

	_, err := uc.HandleQuery(ctx, assemble.QueryInput{
		SessionID: "session-1",
		Domain:    testDomain,
		Query:     "I bought screws",
	})
	gt.NoError(t, err)

	answer, err := uc.HandleQuery(ctx, assemble.QueryInput{
		SessionID: "session-1",
		Domain:    testDomain,
		Query:     "it was $45",
	})
	gt.NoError(t, err)

	var completion *model.Insight
	for _, insight := range answer.Insights {
		if insight.Kind == model.InsightCompletion {
			completion = insight
		}
	}
	gt.V(t, completion).NotNil()
	gt.S(t, completion.Text).Contains("I bought screws")

	reqs, err := repo.ListPending(ctx)
	gt.NoError(t, err)
	completed := 0
	for _, req := range reqs {
		if req.Status == model.PendingStatusCompleted {
			completed++
			gt.Equal(t, req.Completion.Amount.Value, 45.0)
		}
	}
	gt.Equal(t, completed, 1)
}

func TestAmountWithoutProjectAsksForContext(t *testing.T) {
	repo := repository.NewMemory()
	uc := newOrchestrator(repo, nil)

	// No extractor: the lexical fallback still finds the amount.
	answer, err := uc.HandleQuery(context.Background(), assemble.QueryInput{
		SessionID: "session-1",
		Domain:    testDomain,
		Query:     "I spent $50 at the hardware store",
	})
	gt.NoError(t, err)
	gt.Equal(t, answer.PendingQuestion, "Which project was that for?")
}

func TestExtractorFailureDegrades(t *testing.T) {
	repo := repository.NewMemory()
	extractor := &fakeExtractor{fn: func(query string) (*model.Extraction, error) {
		return nil, goerr.New("model unavailable")
	}}
	uc := newOrchestrator(repo, extractor)

	answer, err := uc.HandleQuery(context.Background(), assemble.QueryInput{
		SessionID: "session-1",
		Domain:    testDomain,
		Query:     "Where is the warehouse?",
	})
	gt.NoError(t, err)
	gt.V(t, answer).NotNil()

	degraded := false
	for _, w := range answer.Warnings {
		if w == "entity extraction degraded" {
			degraded = true
		}
	}
	gt.V(t, degraded).Equal(true)
}

func TestPossessiveReferenceResolvedInAnswer(t *testing.T) {
	repo := repository.NewMemory()
	rec := &model.EntityRecord{
		ID:     model.NewRecordID(),
		Domain: testDomain,
		Extraction: &model.Extraction{
			People: []*model.Entity{
				{Name: "John", Kind: model.EntityKindPerson, Confidence: 0.9,
					Relation: &model.Relation{Type: model.RelationOwns, Target: "toolbox", Confidence: 0.8}},
			},
			ContextClues: map[string]string{},
			Confidence:   0.9,
		},
	}
	gt.NoError(t, repo.PutEntityRecord(context.Background(), rec))

	uc := newOrchestrator(repo, nil)
	answer, err := uc.HandleQuery(context.Background(), assemble.QueryInput{
		SessionID: "session-1",
		Domain:    testDomain,
		Query:     "Where is John's toolbox?",
	})
	gt.NoError(t, err)

	resolved := false
	for _, insight := range answer.Insights {
		if insight.Kind == model.InsightResolution {
			resolved = true
			gt.S(t, insight.Text).Contains("John")
		}
	}
	gt.V(t, resolved).Equal(true)
	gt.S(t, answer.Text).Contains("John")
}

func TestSessionContextCarriesAcrossQueries(t *testing.T) {
	repo := repository.NewMemory()
	extractor := &fakeExtractor{fn: func(query string) (*model.Extraction, error) {
		if query == "I'm working on the deck project" {
			return &model.Extraction{
				Projects:     []*model.Entity{{Name: "Deck Project", Kind: model.EntityKindProject, Confidence: 0.9}},
				ContextClues: map[string]string{},
				Confidence:   0.9,
			}, nil
		}
		return &model.Extraction{
			ContextClues: map[string]string{"current_project": "needs_current_project"},
			Confidence:   0.8,
		}, nil
	}}
	uc := newOrchestrator(repo, extractor)
	ctx := context.Background()

	_, err := uc.HandleQuery(ctx, assemble.QueryInput{
		SessionID: "session-1",
		Domain:    testDomain,
		Query:     "I'm working on the deck project",
	})
	gt.NoError(t, err)

	conv, err := repo.GetConversationBySession(ctx, "session-1")
	gt.NoError(t, err)
	gt.Equal(t, conv.CurrentProject, "Deck Project")
	gt.A(t, conv.QueryHistory).Length(1)
}

func TestAnswerConfidenceAveragesEntityAndInsightSignals(t *testing.T) {
	repo := repository.NewMemory()
	rec := &model.EntityRecord{
		ID:     model.NewRecordID(),
		Domain: testDomain,
		Extraction: &model.Extraction{
			People:       []*model.Entity{{Name: "John", Kind: model.EntityKindPerson, Confidence: 0.9}},
			ContextClues: map[string]string{},
			Confidence:   0.9,
		},
	}
	gt.NoError(t, repo.PutEntityRecord(context.Background(), rec))

	extractor := &fakeExtractor{fn: func(query string) (*model.Extraction, error) {
		return &model.Extraction{
			People:       []*model.Entity{{Name: "John", Kind: model.EntityKindPerson, Confidence: 0.9}},
			ContextClues: map[string]string{},
			Confidence:   0.9,
		}, nil
	}}
	uc := newOrchestrator(repo, extractor)

	answer, err := uc.HandleQuery(context.Background(), assemble.QueryInput{
		SessionID: "session-1",
		Domain:    testDomain,
		Query:     "Where is John?",
	})
	gt.NoError(t, err)

	// One extracted entity at 0.9 and no insights: the answer confidence
	// is the plain mean of those signals, not skewed by the route score.
	gt.Equal(t, answer.Confidence, 0.9)
}

func TestBasicIntelligenceForColdSession(t *testing.T) {
	uc := newOrchestrator(repository.NewMemory(), nil)
	answer, err := uc.HandleQuery(context.Background(), assemble.QueryInput{
		SessionID: "session-1",
		Domain:    testDomain,
		Query:     "hello there",
	})
	gt.NoError(t, err)
	gt.Equal(t, answer.Intelligence, model.IntelligenceBasic)
}
