package resolve_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/repository"
	"github.com/m-mizutani/cony/pkg/usecase/graph"
	"github.com/m-mizutani/cony/pkg/usecase/resolve"
	"github.com/m-mizutani/gt"
)

const testDomain = "default"

func seedRecord(t *testing.T, repo *repository.Memory, entities ...*model.Entity) {
	t.Helper()
	rec := &model.EntityRecord{
		ID:        model.NewRecordID(),
		Domain:    testDomain,
		CreatedAt: time.Now(),
		Extraction: &model.Extraction{
			Items:        entities,
			ContextClues: map[string]string{},
			Confidence:   0.9,
		},
	}
	gt.NoError(t, repo.PutEntityRecord(context.Background(), rec))
}

func TestResolvePossessiveExactMatch(t *testing.T) {
	repo := repository.NewMemory()
	seedRecord(t, repo,
		&model.Entity{Name: "John", Kind: model.EntityKindPerson, Confidence: 0.9,
			Relation: &model.Relation{Type: model.RelationOwns, Target: "toolbox", Confidence: 0.8}},
	)

	r := resolve.New(graph.NewBuilder(repo))
	req := model.Requirement{Type: "entity", Value: "John's", Reason: model.ReasonPossessive}

	res := r.Resolve(context.Background(), testDomain, req, model.ResolutionContext{})
	gt.V(t, res).NotNil()
	gt.V(t, res.Resolved).Equal(true)
	gt.Equal(t, res.Entity.Name, "John")
	gt.Equal(t, res.Confidence, 1.0)

	// One-hop expansion along the owns relation.
	gt.A(t, res.Related).Length(1)
	gt.Equal(t, res.Related[0].Entity.Name, "toolbox")
	gt.Equal(t, res.Related[0].Relation, model.RelationOwns)
}

func TestResolvePossessiveFirstTokenMatch(t *testing.T) {
	repo := repository.NewMemory()
	seedRecord(t, repo,
		&model.Entity{Name: "John Smith", Kind: model.EntityKindPerson, Confidence: 0.9},
	)

	r := resolve.New(graph.NewBuilder(repo))
	req := model.Requirement{Type: "entity", Value: "John's", Reason: model.ReasonPossessive}

	res := r.Resolve(context.Background(), testDomain, req, model.ResolutionContext{})
	gt.V(t, res).NotNil()
	gt.V(t, res.Resolved).Equal(true)
	gt.Equal(t, res.Entity.Name, "John Smith")
	gt.Equal(t, res.Confidence, 0.9)
}

func TestResolvePossessivePrefersCoReferenced(t *testing.T) {
	repo := repository.NewMemory()
	// John Smith would lose the alphabetical tie-break; the shared edge
	// with the current project must win instead.
	seedRecord(t, repo,
		&model.Entity{Name: "John Doe", Kind: model.EntityKindPerson, Confidence: 0.9},
		&model.Entity{Name: "John Smith", Kind: model.EntityKindPerson, Confidence: 0.9,
			Relation: &model.Relation{Type: model.RelationWorksOn, Target: "Deck Project", Confidence: 0.8}},
	)

	r := resolve.New(graph.NewBuilder(repo))
	req := model.Requirement{Type: "entity", Value: "John's", Reason: model.ReasonPossessive}
	rctx := model.ResolutionContext{CurrentProject: "Deck Project"}

	res := r.Resolve(context.Background(), testDomain, req, rctx)
	gt.V(t, res).NotNil()
	gt.V(t, res.Resolved).Equal(true)
	gt.Equal(t, res.Entity.Name, "John Smith")
}

func TestResolvePossessiveToleratesBlankNames(t *testing.T) {
	repo := repository.NewMemory()
	// The NLU collaborator is unreliable; a whitespace-only name must not
	// crash resolution of the valid entities next to it.
	seedRecord(t, repo,
		&model.Entity{Name: " ", Kind: model.EntityKindPerson, Confidence: 0.9},
		&model.Entity{Name: "John", Kind: model.EntityKindPerson, Confidence: 0.9},
	)

	r := resolve.New(graph.NewBuilder(repo))
	req := model.Requirement{Type: "entity", Value: "John's", Reason: model.ReasonPossessive}

	res := r.Resolve(context.Background(), testDomain, req, model.ResolutionContext{})
	gt.V(t, res).NotNil()
	gt.V(t, res.Resolved).Equal(true)
	gt.Equal(t, res.Entity.Name, "John")
}

func TestResolvePossessiveNoCandidate(t *testing.T) {
	repo := repository.NewMemory()
	seedRecord(t, repo,
		&model.Entity{Name: "Alice", Kind: model.EntityKindPerson, Confidence: 0.9},
	)

	r := resolve.New(graph.NewBuilder(repo))
	req := model.Requirement{Type: "entity", Value: "Bob's", Reason: model.ReasonPossessive}

	res := r.Resolve(context.Background(), testDomain, req, model.ResolutionContext{})
	gt.V(t, res).Nil()
}

func TestResolveImplicitCurrentLocation(t *testing.T) {
	r := resolve.New(graph.NewBuilder(repository.NewMemory()))
	req := model.Requirement{Type: "location", Value: "current_location", Reason: model.ReasonImplicit}
	rctx := model.ResolutionContext{CurrentLocation: "warehouse"}

	res := r.Resolve(context.Background(), testDomain, req, rctx)
	gt.V(t, res).NotNil()
	gt.V(t, res.Resolved).Equal(true)
	gt.Equal(t, res.Entity.Name, "warehouse")
	gt.Equal(t, res.Entity.Kind, model.EntityKindLocation)
	gt.Equal(t, res.Confidence, 0.9)
}

func TestResolveImplicitWithoutContext(t *testing.T) {
	r := resolve.New(graph.NewBuilder(repository.NewMemory()))
	req := model.Requirement{Type: "project", Value: "current_project", Reason: model.ReasonImplicit}

	res := r.Resolve(context.Background(), testDomain, req, model.ResolutionContext{})
	gt.V(t, res).NotNil()
	gt.V(t, res.Resolved).Equal(false)
	gt.Equal(t, res.Confidence, 0.0)
}

func TestResolvePronounReportsUnsupported(t *testing.T) {
	r := resolve.New(graph.NewBuilder(repository.NewMemory()))
	req := model.Requirement{Type: "entity", Value: "it", Reason: model.ReasonAmbiguous}

	res := r.Resolve(context.Background(), testDomain, req, model.ResolutionContext{})
	gt.V(t, res).NotNil()
	gt.V(t, res.Resolved).Equal(false)
	gt.Equal(t, res.Method, "unsupported_reference")
	gt.S(t, res.Note).Contains("conversation history")
}
