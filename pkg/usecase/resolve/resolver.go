package resolve

import (
	"context"
	"sort"
	"strings"

	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/usecase/graph"
	"github.com/m-mizutani/cony/pkg/utils/logging"
)

// oneHopRelations is the whitelist of relation types expanded from a
// resolved entity.
var oneHopRelations = []model.RelationType{
	model.RelationOwns,
	model.RelationManages,
	model.RelationLocatedAt,
	model.RelationWorksOn,
}

// Resolver disambiguates linguistic references against the relationship
// graph.
type Resolver struct {
	graphs *graph.Builder
}

// New creates a new reference resolver
func New(graphs *graph.Builder) *Resolver {
	return &Resolver{graphs: graphs}
}

// Resolve resolves a single reference requirement. An unresolvable
// reference is returned as an explicit unresolved Resolution, never as an
// error; a nil result means no candidate existed at all.
func (r *Resolver) Resolve(ctx context.Context, domain string, req model.Requirement, rctx model.ResolutionContext) *model.Resolution {
	switch req.Reason {
	case model.ReasonPossessive:
		return r.resolvePossessive(ctx, domain, req, rctx)
	case model.ReasonImplicit:
		return resolveImplicit(req, rctx)
	default:
		// Pronoun and demonstrative resolution needs conversation-history
		// tracking that is not implemented yet; report that honestly
		// instead of guessing.
		return &model.Resolution{
			Requirement: req,
			Resolved:    false,
			Confidence:  0.3,
			Method:      "unsupported_reference",
			Note:        "pronoun/demonstrative resolution requires conversation history tracking",
		}
	}
}

func (r *Resolver) resolvePossessive(ctx context.Context, domain string, req model.Requirement, rctx model.ResolutionContext) *model.Resolution {
	base := model.StripPossessive(req.Value)

	g, err := r.graphs.Graph(ctx, domain)
	if err != nil {
		// Unreadable entity store: degrade, do not abort.
		logging.From(ctx).Warn("graph unavailable, degrading resolution", "error", err, "domain", domain)
		return &model.Resolution{
			Requirement: req,
			Resolved:    false,
			Confidence:  0.2,
			Method:      "fuzzy_name_match",
			Note:        "entity store unreadable",
		}
	}

	candidates := matchNames(base, g)
	if len(candidates) == 0 {
		return nil
	}

	chosen := candidates[0]
	if len(candidates) > 1 {
		chosen = preferCoReferenced(g, candidates, rctx.CurrentProject)
	}

	node := g.Lookup(chosen.name)
	res := &model.Resolution{
		Requirement: req,
		Resolved:    true,
		Entity: &model.Entity{
			Name:       node.Name,
			Kind:       node.Kind,
			Confidence: chosen.score,
		},
		Confidence: chosen.score,
		Method:     "fuzzy_name_match",
	}

	// Expand one hop along the whitelisted relation types.
	for _, e := range g.EdgesFrom(node.ID, oneHopRelations...) {
		target := g.Nodes[e.Target]
		if target == nil {
			continue
		}
		res.Related = append(res.Related, &model.RelatedEntity{
			Entity: &model.Entity{
				Name:       target.Name,
				Kind:       target.Kind,
				Confidence: e.Confidence,
			},
			Relation: e.Type,
		})
	}

	return res
}

// resolveImplicit handles the fixed current_location / current_project
// tokens directly from the conversation context.
func resolveImplicit(req model.Requirement, rctx model.ResolutionContext) *model.Resolution {
	var name string
	var kind model.EntityKind
	switch req.Value {
	case "current_location":
		name, kind = rctx.CurrentLocation, model.EntityKindLocation
	case "current_project":
		name, kind = rctx.CurrentProject, model.EntityKindProject
	default:
		return nil
	}

	if name == "" {
		return &model.Resolution{
			Requirement: req,
			Resolved:    false,
			Confidence:  0,
			Method:      "context_lookup",
			Note:        "no " + req.Value + " in conversation context",
		}
	}

	return &model.Resolution{
		Requirement: req,
		Resolved:    true,
		Entity: &model.Entity{
			Name:       name,
			Kind:       kind,
			Confidence: 0.9,
		},
		Confidence: 0.9,
		Method:     "context_lookup",
	}
}

type candidate struct {
	name  string
	score float64
}

// matchNames fuzzy-matches a base name against all known entity names.
// Precedence: exact > first-token > substring. Candidates are returned
// sorted by name so the final tie-break is deterministic.
func matchNames(base string, g *model.Graph) []candidate {
	lowBase := strings.ToLower(strings.TrimSpace(base))
	if lowBase == "" {
		return nil
	}

	var exact, firstToken, substring []candidate
	for _, name := range g.Names() {
		low := strings.ToLower(name)
		fields := strings.Fields(low)
		if len(fields) == 0 {
			continue
		}
		switch {
		case low == lowBase:
			exact = append(exact, candidate{name: name, score: 1.0})
		case fields[0] == lowBase:
			firstToken = append(firstToken, candidate{name: name, score: 0.9})
		case strings.Contains(low, lowBase):
			substring = append(substring, candidate{name: name, score: 0.8})
		}
	}

	var out []candidate
	switch {
	case len(exact) > 0:
		out = exact
	case len(firstToken) > 0:
		out = firstToken
	default:
		out = substring
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// preferCoReferenced picks the candidate sharing an edge with the current
// project; otherwise the first candidate wins. A weak tie-break, kept
// deliberately simple.
func preferCoReferenced(g *model.Graph, candidates []candidate, currentProject string) candidate {
	if currentProject != "" {
		if proj := g.Lookup(currentProject); proj != nil {
			for _, c := range candidates {
				if n := g.Lookup(c.name); n != nil && g.Connected(n.ID, proj.ID) {
					return c
				}
			}
		}
	}
	return candidates[0]
}
