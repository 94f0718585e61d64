package graph_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/repository"
	"github.com/m-mizutani/cony/pkg/usecase/graph"
	"github.com/m-mizutani/gt"
)

const testDomain = "default"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func putRecord(t *testing.T, repo *repository.Memory, x *model.Extraction) {
	t.Helper()
	rec := &model.EntityRecord{
		ID:         model.NewRecordID(),
		Domain:     testDomain,
		CreatedAt:  time.Now(),
		Extraction: x,
	}
	gt.NoError(t, repo.PutEntityRecord(context.Background(), rec))
}

func TestGraphBuildsNodesAndEdges(t *testing.T) {
	repo := repository.NewMemory()
	putRecord(t, repo, &model.Extraction{
		People: []*model.Entity{
			{Name: "John", Kind: model.EntityKindPerson, Confidence: 0.9,
				Relation: &model.Relation{Type: model.RelationWorksOn, Target: "Deck Project", Confidence: 0.8}},
		},
		ContextClues: map[string]string{},
		Confidence:   0.9,
	})

	b := graph.NewBuilder(repo)
	g, err := b.Graph(context.Background(), testDomain)
	gt.NoError(t, err)

	gt.V(t, g.Lookup("John")).NotNil()
	// The relation target is materialized so no edge dangles.
	gt.V(t, g.Lookup("Deck Project")).NotNil()
	gt.A(t, g.Edges).Length(1)
	gt.Equal(t, g.Edges[0].Type, model.RelationWorksOn)
}

func TestGraphSkipsCorruptRecords(t *testing.T) {
	repo := repository.NewMemory()
	gt.NoError(t, repo.PutEntityRecord(context.Background(), &model.EntityRecord{
		ID:     model.NewRecordID(),
		Domain: testDomain,
	}))
	putRecord(t, repo, &model.Extraction{
		People: []*model.Entity{
			{Name: "", Kind: model.EntityKindPerson, Confidence: 0.9},
			{Name: "Alice", Kind: model.EntityKindPerson, Confidence: 0.9},
		},
		ContextClues: map[string]string{},
		Confidence:   0.9,
	})

	b := graph.NewBuilder(repo)
	g, err := b.Graph(context.Background(), testDomain)
	gt.NoError(t, err)

	// The corrupt record and the invalid entity are skipped, not fatal.
	gt.Equal(t, len(g.Nodes), 1)
	gt.V(t, g.Lookup("Alice")).NotNil()
}

func TestGraphCachedUntilTTL(t *testing.T) {
	repo := repository.NewMemory()
	putRecord(t, repo, &model.Extraction{
		People:       []*model.Entity{{Name: "John", Kind: model.EntityKindPerson, Confidence: 0.9}},
		ContextClues: map[string]string{},
		Confidence:   0.9,
	})

	clock := &fakeClock{now: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)}
	b := graph.NewBuilder(repo, graph.WithClock(clock))
	ctx := context.Background()

	g1, err := b.Graph(ctx, testDomain)
	gt.NoError(t, err)

	// New data within the TTL is not yet visible.
	putRecord(t, repo, &model.Extraction{
		People:       []*model.Entity{{Name: "Alice", Kind: model.EntityKindPerson, Confidence: 0.9}},
		ContextClues: map[string]string{},
		Confidence:   0.9,
	})
	clock.now = clock.now.Add(4 * time.Minute)
	g2, err := b.Graph(ctx, testDomain)
	gt.NoError(t, err)
	gt.Equal(t, len(g2.Nodes), len(g1.Nodes))

	clock.now = clock.now.Add(2 * time.Minute)
	g3, err := b.Graph(ctx, testDomain)
	gt.NoError(t, err)
	gt.Equal(t, len(g3.Nodes), 2)
}

func TestInvalidateForcesRebuild(t *testing.T) {
	repo := repository.NewMemory()
	putRecord(t, repo, &model.Extraction{
		People:       []*model.Entity{{Name: "John", Kind: model.EntityKindPerson, Confidence: 0.9}},
		ContextClues: map[string]string{},
		Confidence:   0.9,
	})

	b := graph.NewBuilder(repo)
	ctx := context.Background()

	_, err := b.Graph(ctx, testDomain)
	gt.NoError(t, err)

	putRecord(t, repo, &model.Extraction{
		People:       []*model.Entity{{Name: "Alice", Kind: model.EntityKindPerson, Confidence: 0.9}},
		ContextClues: map[string]string{},
		Confidence:   0.9,
	})
	b.Invalidate(testDomain)

	g, err := b.Graph(ctx, testDomain)
	gt.NoError(t, err)
	gt.Equal(t, len(g.Nodes), 2)
}

func TestLearnAppendsConnections(t *testing.T) {
	repo := repository.NewMemory()
	b := graph.NewBuilder(repo)
	ctx := context.Background()

	err := b.Learn(ctx, testDomain, model.NewConversationID(), []*model.Connection{
		{Type: model.ConnectionEntityProject, From: "John", To: "Deck Project", Confidence: 0.8},
	})
	gt.NoError(t, err)

	g, err := b.Graph(ctx, testDomain)
	gt.NoError(t, err)
	gt.V(t, g.Lookup("John")).NotNil()
	gt.V(t, g.Lookup("Deck Project")).NotNil()
	gt.A(t, g.Edges).Length(1)
	gt.Equal(t, g.Edges[0].Type, model.RelationWorksOn)

	// Learning with nothing to record is a no-op.
	gt.NoError(t, b.Learn(ctx, testDomain, model.NewConversationID(), nil))
}
