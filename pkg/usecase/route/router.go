package route

import (
	"context"
	"sort"

	"github.com/m-mizutani/cony/pkg/adapter"
	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/repository"
	"github.com/m-mizutani/cony/pkg/usecase/graph"
	"github.com/m-mizutani/cony/pkg/utils/logging"
	"github.com/m-mizutani/cony/pkg/workflow"
	"github.com/m-mizutani/goerr/v2"
)

// learnThreshold is the overall confidence above which a route result is
// cached and its connections written back into the local graph.
const learnThreshold = 0.7

// Router is the five-stage smart source router deciding local vs external
// lookup. The external project system and the policy gate are optional;
// without them the router runs in local-only mode.
type Router struct {
	repo     repository.Repository
	graphs   *graph.Builder
	projects adapter.ProjectSystem
	store    adapter.Storage
	policy   *workflow.Engine
	clock    adapter.Clock
	syncer   *Syncer
}

type RouterOption func(*Router)

func WithProjectSystem(p adapter.ProjectSystem) RouterOption {
	return func(r *Router) { r.projects = p }
}

func WithStorage(s adapter.Storage) RouterOption {
	return func(r *Router) { r.store = s }
}

func WithPolicy(e *workflow.Engine) RouterOption {
	return func(r *Router) { r.policy = e }
}

func WithClock(c adapter.Clock) RouterOption {
	return func(r *Router) { r.clock = c }
}

// New creates a new smart source router
func New(repo repository.Repository, graphs *graph.Builder, opts ...RouterOption) *Router {
	r := &Router{
		repo:   repo,
		graphs: graphs,
		clock:  adapter.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.syncer = NewSyncer(r.repo, r.projects, r.store, r.clock)
	return r
}

// Syncer exposes the cache-sync protocol for standalone runs.
func (r *Router) Syncer() *Syncer {
	return r.syncer
}

// Input carries one query through the routing pipeline.
type Input struct {
	Query        string
	Domain       string
	Conversation *model.Conversation
	Extraction   *model.Extraction
}

// Route runs the five stages and merges them into one result. External
// failures degrade to empty stages with a warning; nothing here is fatal.
func (r *Router) Route(ctx context.Context, input Input) (*model.RouteResult, error) {
	if input.Query == "" {
		return nil, goerr.New("query is required")
	}

	logger := logging.From(ctx)
	norm := model.NormalizeQuery(input.Query)

	// A learned result short-circuits the whole pipeline.
	if cached, err := r.repo.GetCachedRoute(ctx, norm); err == nil {
		logger.Debug("route cache hit", "query", norm)
		cached.FromCache = true
		return cached, nil
	}

	result := &model.RouteResult{Query: input.Query}

	// Stage 1: local knowledge check.
	mentions := r.stageLocal(ctx, input, result)

	// Stages 2+3: external discovery and progressive drill-down.
	if r.externalAllowed(ctx, input, result, mentions) {
		r.stageDiscovery(ctx, input, result, mentions)
		r.stageDrillDown(ctx, input.Domain, result)
	}

	// Stage 4: connection synthesis.
	conns := synthesizeConnections(result.LocalEntities, result.Matches, result.DrillDowns)
	result.Connections = conns
	if len(conns) > 0 {
		sum := 0.0
		for _, c := range conns {
			sum += c.Confidence
		}
		result.Stages = append(result.Stages, model.StageResult{
			Name:        "connections",
			Confidence:  sum / float64(len(conns)),
			Contributed: true,
		})
	}

	result.Confidence = overallConfidence(result.Stages)

	// Stage 5: learning. Corroborated results are cached and their
	// connections fed back into the graph.
	if result.Confidence > learnThreshold {
		if err := r.repo.PutCachedRoute(ctx, norm, result); err != nil {
			logger.Warn("failed to cache route result", "error", err, "query", norm)
		}
		convID := model.ConversationID("")
		if input.Conversation != nil {
			convID = input.Conversation.ID
		}
		if err := r.graphs.Learn(ctx, input.Domain, convID, conns); err != nil {
			logger.Warn("failed to learn connections", "error", err, "domain", input.Domain)
		}
	}

	return result, nil
}

// stageLocal extracts candidate mentions lexically, looks each up in the
// graph and records unmatched mentions as knowledge gaps.
func (r *Router) stageLocal(ctx context.Context, input Input, result *model.RouteResult) []string {
	mentions := model.ParseMentions(input.Query)
	if input.Extraction != nil {
		for _, e := range input.Extraction.Entities() {
			mentions = appendUnique(mentions, e.Name)
		}
	}

	g, err := r.graphs.Graph(ctx, input.Domain)
	if err != nil {
		logging.From(ctx).Warn("graph unavailable for local check", "error", err, "domain", input.Domain)
		result.Warnings = append(result.Warnings, "local knowledge unavailable")
		result.KnowledgeGaps = mentions
		return mentions
	}

	matched := 0
	for _, m := range mentions {
		node := g.Lookup(m)
		if node == nil {
			result.KnowledgeGaps = append(result.KnowledgeGaps, m)
			continue
		}
		matched++
		result.LocalEntities = append(result.LocalEntities, &model.Entity{
			Name:       node.Name,
			Kind:       node.Kind,
			Confidence: 0.9,
		})
	}

	if matched > 0 {
		result.Stages = append(result.Stages, model.StageResult{
			Name:        "local_knowledge",
			Confidence:  float64(matched) / float64(len(mentions)),
			Contributed: true,
		})
	}
	return mentions
}

// externalAllowed decides whether stages 2-3 run: the query must mention
// candidate names, the client must exist, and the policy gate (when
// configured) must not veto.
func (r *Router) externalAllowed(ctx context.Context, input Input, result *model.RouteResult, mentions []string) bool {
	if len(mentions) == 0 {
		return false
	}
	if r.projects == nil {
		return false
	}
	if r.policy != nil {
		allowed, err := r.policy.AllowExternal(ctx, map[string]any{
			"query":    input.Query,
			"domain":   input.Domain,
			"mentions": mentions,
		})
		if err != nil {
			logging.From(ctx).Warn("route policy evaluation failed, defaulting to allow", "error", err)
			return true
		}
		if !allowed {
			result.Warnings = append(result.Warnings, "external lookup denied by policy")
			return false
		}
	}
	return true
}

// stageDiscovery syncs the hash cache, lists external projects and keeps
// mentions matching with similarity >= MatchThreshold, sorted descending.
func (r *Router) stageDiscovery(ctx context.Context, input Input, result *model.RouteResult, mentions []string) {
	logger := logging.From(ctx)

	if _, err := r.syncer.Sync(ctx); err != nil {
		logger.Warn("cache sync failed", "error", err)
		result.Warnings = append(result.Warnings, "cache sync failed")
	}

	projects, err := r.projects.ListProjects(ctx)
	if err != nil {
		logger.Warn("external discovery failed, continuing local-only", "error", err)
		result.Warnings = append(result.Warnings, "external system unavailable")
		return
	}
	result.UsedExternal = true

	for _, mention := range mentions {
		for _, p := range projects {
			sim := Similarity(mention, p.Name)
			if sim < MatchThreshold {
				continue
			}
			result.Matches = append(result.Matches, &model.ProjectMatch{
				Mention:    mention,
				Project:    p,
				Similarity: sim,
			})
		}
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Similarity > result.Matches[j].Similarity
	})

	if len(result.Matches) > 0 {
		sum := 0.0
		for _, m := range result.Matches {
			sum += m.Similarity
		}
		result.Stages = append(result.Stages, model.StageResult{
			Name:        "discovery",
			Confidence:  sum / float64(len(result.Matches)),
			Contributed: true,
		})
	}
}

// stageDrillDown fetches exactly one further level of detail per matched
// project, escalating broad -> detail -> granular only when the prior
// step was insufficient. Without matches it expands locally resolved
// entities one hop instead.
func (r *Router) stageDrillDown(ctx context.Context, domain string, result *model.RouteResult) {
	logger := logging.From(ctx)

	if len(result.Matches) == 0 {
		r.drillLocal(ctx, domain, result)
		return
	}

	contributed := false
	for _, m := range result.Matches {
		d := &model.DrillDownResult{
			Subject: m.Project.Name,
			Level:   model.DetailBroad,
			Summary: m.Project.Description,
		}

		// Broad knowledge from the listing is the cheapest step; fetch
		// structured detail only when it is insufficient.
		if m.Project.Description == "" || m.Project.Status == "" {
			detail, err := r.projects.GetProject(ctx, m.Project.ID)
			if err != nil {
				logger.Warn("drill-down fetch failed", "error", err, "project", m.Project.ID)
				result.Warnings = append(result.Warnings, "drill-down failed for "+m.Project.Name)
				continue
			}
			d.Level = model.DetailDetail
			d.Detail = detail
			d.Summary = detail.Project.Description

			// Granular content only when the structured detail still
			// answers nothing.
			if d.Summary == "" && len(detail.Records) > 0 {
				d.Level = model.DetailGranular
				d.Summary = detail.Records[0].Content
			}
		}

		contributed = true
		result.DrillDowns = append(result.DrillDowns, d)
	}

	if contributed {
		result.Stages = append(result.Stages, model.StageResult{
			Name:        "drilldown",
			Confidence:  0.7,
			Contributed: true,
		})
	}
}

// drillLocal expands locally resolved entities one hop in the graph.
func (r *Router) drillLocal(ctx context.Context, domain string, result *model.RouteResult) {
	if len(result.LocalEntities) == 0 {
		return
	}
	g, err := r.graphs.Graph(ctx, domain)
	if err != nil || g == nil {
		return
	}

	contributed := false
	for _, e := range result.LocalEntities {
		node := g.Lookup(e.Name)
		if node == nil {
			continue
		}
		edges := g.EdgesFrom(node.ID)
		if len(edges) == 0 {
			continue
		}
		names := make([]string, 0, len(edges))
		for _, edge := range edges {
			if t := g.Nodes[edge.Target]; t != nil {
				names = append(names, t.Name)
			}
		}
		contributed = true
		result.DrillDowns = append(result.DrillDowns, &model.DrillDownResult{
			Subject: e.Name,
			Level:   model.DetailBroad,
			Summary: "related: " + joinNames(names),
		})
	}

	if contributed {
		result.Stages = append(result.Stages, model.StageResult{
			Name:        "drilldown",
			Confidence:  0.5,
			Contributed: true,
		})
	}
}

// overallConfidence is the mean of contributing stage confidences plus a
// corroboration bonus of 0.1 per additional stage, capped at 1.0.
func overallConfidence(stages []model.StageResult) float64 {
	sum := 0.0
	n := 0
	for _, s := range stages {
		if !s.Contributed {
			continue
		}
		sum += s.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	conf := sum/float64(n) + 0.1*float64(n-1)
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
