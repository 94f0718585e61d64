package graph

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/cony/pkg/adapter"
	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/repository"
	"github.com/m-mizutani/cony/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultTTL is how long a built graph stays cached before a rebuild.
const DefaultTTL = 5 * time.Minute

// Builder builds the in-memory relationship graph from persisted entity
// records, cached per domain with a TTL.
type Builder struct {
	repo  repository.Repository
	clock adapter.Clock
	ttl   time.Duration

	mu     sync.Mutex
	cached map[string]*model.Graph
}

type BuilderOption func(*Builder)

func WithTTL(ttl time.Duration) BuilderOption {
	return func(b *Builder) { b.ttl = ttl }
}

func WithClock(clock adapter.Clock) BuilderOption {
	return func(b *Builder) { b.clock = clock }
}

// NewBuilder creates a new graph builder
func NewBuilder(repo repository.Repository, opts ...BuilderOption) *Builder {
	b := &Builder{
		repo:   repo,
		clock:  adapter.RealClock{},
		ttl:    DefaultTTL,
		cached: make(map[string]*model.Graph),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Graph returns the relationship graph for a domain, rebuilding when the
// cached copy is older than the TTL.
func (b *Builder) Graph(ctx context.Context, domain string) (*model.Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if g, ok := b.cached[domain]; ok && now.Sub(g.BuiltAt) < b.ttl {
		return g, nil
	}

	g, err := b.build(ctx, domain, now)
	if err != nil {
		return nil, err
	}
	b.cached[domain] = g
	return g, nil
}

// Invalidate drops the cached graph for a domain
func (b *Builder) Invalidate(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cached, domain)
}

// build scans all entity records of the domain. Corrupt records are
// skipped with a warning; the build never aborts.
func (b *Builder) build(ctx context.Context, domain string, now time.Time) (*model.Graph, error) {
	records, err := b.repo.ListEntityRecords(ctx, domain)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list entity records", goerr.V("domain", domain))
	}

	logger := logging.From(ctx)
	g := model.NewGraph(now)

	type pendingEdge struct {
		source   string
		relation *model.Relation
	}
	var edges []pendingEdge

	for _, rec := range records {
		if rec == nil || rec.Extraction == nil {
			logger.Warn("skipping corrupt entity record", "domain", domain)
			continue
		}
		for _, e := range rec.Extraction.Entities() {
			if err := e.Validate(); err != nil {
				logger.Warn("skipping invalid entity", "error", err, "domain", domain)
				continue
			}
			g.AddNode(e.Name, e.Kind)
			// No inferred pairwise edges at build time. Only explicit
			// relation fields become edges.
			if e.Relation != nil && e.Relation.Target != "" {
				edges = append(edges, pendingEdge{source: e.Name, relation: e.Relation})
			}
		}
	}

	// A relation target is itself a referenced entity: materialize its
	// node in the same build pass so no edge dangles.
	for _, pe := range edges {
		if g.Lookup(pe.relation.Target) == nil {
			g.AddNode(pe.relation.Target, model.EntityKindItem)
		}
		g.AddEdge(pe.source, pe.relation.Target, pe.relation.Type, pe.relation.Confidence)
	}

	return g, nil
}

// Learn persists newly discovered connections as an append-only entity
// record and invalidates the cached graph, so future local-knowledge
// checks see them without an external query.
func (b *Builder) Learn(ctx context.Context, domain string, convID model.ConversationID, connections []*model.Connection) error {
	if len(connections) == 0 {
		return nil
	}

	x := &model.Extraction{
		ContextClues: map[string]string{},
		Confidence:   1.0,
	}
	for _, c := range connections {
		x.Items = append(x.Items, &model.Entity{
			Name:       c.From,
			Kind:       model.EntityKindItem,
			Confidence: c.Confidence,
			Relation: &model.Relation{
				Type:       relationForConnection(c.Type),
				Target:     c.To,
				Confidence: c.Confidence,
			},
		})
	}

	rec := &model.EntityRecord{
		ID:             model.NewRecordID(),
		ConversationID: convID,
		Domain:         domain,
		CreatedAt:      b.clock.Now(),
		Extraction:     x,
	}
	if err := b.repo.PutEntityRecord(ctx, rec); err != nil {
		return goerr.Wrap(err, "failed to persist learned connections", goerr.V("domain", domain))
	}

	b.Invalidate(domain)
	return nil
}

func relationForConnection(t model.ConnectionType) model.RelationType {
	switch t {
	case model.ConnectionEntityProject:
		return model.RelationWorksOn
	case model.ConnectionSpatial:
		return model.RelationLocatedAt
	default:
		return model.RelationRelatedTo
	}
}
