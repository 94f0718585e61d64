package assemble

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/cony/pkg/adapter"
	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/repository"
	"github.com/m-mizutani/cony/pkg/usecase/pending"
	"github.com/m-mizutani/cony/pkg/usecase/resolve"
	"github.com/m-mizutani/cony/pkg/usecase/route"
	"github.com/m-mizutani/cony/pkg/usecase/session"
	"github.com/m-mizutani/cony/pkg/utils/logging"
	"github.com/m-mizutani/cony/pkg/workflow"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultRouteTimeout bounds the routing pipeline per query so a stalled
// external system cannot hang the whole answer.
const DefaultRouteTimeout = 15 * time.Second

// purchaseIndicators are the intent words that mark a query as a spend
// event needing an amount.
var purchaseIndicators = map[string]bool{
	"buy": true, "bought": true, "purchase": true, "purchased": true,
	"spend": true, "spent": true, "pay": true, "paid": true,
}

// Orchestrator coordinates one query through extraction, pending-request
// completion, reference resolution, routing and response synthesis.
type Orchestrator struct {
	repo      repository.Repository
	sessions  *session.Store
	pendings  *pending.Manager
	resolver  *resolve.Resolver
	router    *route.Router
	extractor adapter.Extractor
	policy    *workflow.Engine
	clock     adapter.Clock

	routeTimeout time.Duration
}

type Option func(*Orchestrator)

func WithExtractor(x adapter.Extractor) Option {
	return func(o *Orchestrator) { o.extractor = x }
}

func WithPolicy(e *workflow.Engine) Option {
	return func(o *Orchestrator) { o.policy = e }
}

func WithClock(c adapter.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithRouteTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.routeTimeout = d }
}

// New creates a new assembly orchestrator
func New(repo repository.Repository, sessions *session.Store, pendings *pending.Manager, resolver *resolve.Resolver, router *route.Router, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:         repo,
		sessions:     sessions,
		pendings:     pendings,
		resolver:     resolver,
		router:       router,
		clock:        adapter.RealClock{},
		routeTimeout: DefaultRouteTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// QueryInput identifies one user query and its session.
type QueryInput struct {
	SessionID string
	UserID    string
	Domain    string
	Query     string
}

// HandleQuery runs the full query lifecycle and synthesizes an answer.
// Collaborator failures degrade the answer; only caller errors (empty
// query, missing session) are returned as errors.
func (o *Orchestrator) HandleQuery(ctx context.Context, input QueryInput) (*model.Answer, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, goerr.New("query is required")
	}

	logger := logging.From(ctx)

	conv, err := o.sessions.GetOrCreate(ctx, input.SessionID, input.UserID)
	if err != nil {
		return nil, err
	}

	var warnings []string

	extraction, extractWarn := o.extract(ctx, input.Query, input.Domain)
	if extractWarn != "" {
		warnings = append(warnings, extractWarn)
	}

	rec := &model.EntityRecord{
		ID:             model.NewRecordID(),
		ConversationID: conv.ID,
		Domain:         input.Domain,
		CreatedAt:      o.clock.Now(),
		Extraction:     extraction,
	}
	if err := o.repo.PutEntityRecord(ctx, rec); err != nil {
		logger.Warn("failed to persist entity record", "error", err)
		warnings = append(warnings, "entity record not persisted")
	}

	completed, err := o.pendings.OnNewQuery(ctx, conv, input.Query, extraction)
	if err != nil {
		logger.Warn("pending request check failed", "error", err)
		warnings = append(warnings, "pending request check failed")
	}

	resolutions := o.resolveReferences(ctx, input.Domain, input.Query, extraction, conv)

	routeCtx, cancel := context.WithTimeout(ctx, o.routeTimeout)
	routeResult, err := o.router.Route(routeCtx, route.Input{
		Query:        input.Query,
		Domain:       input.Domain,
		Conversation: conv,
		Extraction:   extraction,
	})
	cancel()
	if err != nil {
		logger.Warn("routing failed, answering from extraction only", "error", err)
		warnings = append(warnings, "source routing unavailable")
		routeResult = &model.RouteResult{Query: input.Query}
	}

	pendingReq, pendWarn := o.detectMissing(ctx, conv, input.Query, extraction)
	if pendWarn != "" {
		warnings = append(warnings, pendWarn)
	}

	answer := o.synthesize(conv, input.Query, extraction, resolutions, routeResult, completed, pendingReq)
	answer.Warnings = append(answer.Warnings, warnings...)

	o.writeback(ctx, conv, input.Query, extraction)

	return answer, nil
}

// extract runs the NLU collaborator, degrading to cheap lexical parsing
// when it is absent or fails.
func (o *Orchestrator) extract(ctx context.Context, query, domain string) (*model.Extraction, string) {
	if o.extractor == nil {
		x := model.NewFallbackExtraction()
		x.Amounts = model.ParseAmounts(query)
		return x, ""
	}

	x, err := o.extractor.Extract(ctx, query, domain)
	if err != nil || x == nil {
		logging.From(ctx).Warn("extraction failed, using lexical fallback", "error", err)
		x = model.NewFallbackExtraction()
		x.Amounts = model.ParseAmounts(query)
		return x, "entity extraction degraded"
	}

	// The lexical amount pass backstops the NLU; a missed dollar figure
	// breaks pending-request completion downstream.
	if len(x.Amounts) == 0 {
		x.Amounts = model.ParseAmounts(query)
	}
	return x, ""
}

// resolveReferences derives reference requirements from context clues and
// possessive syntax, then resolves each against the graph.
func (o *Orchestrator) resolveReferences(ctx context.Context, domain, query string, x *model.Extraction, conv *model.Conversation) []*model.Resolution {
	reqs := deriveRequirements(query, x)
	if len(reqs) == 0 {
		return nil
	}

	rctx := model.ResolutionContext{
		CurrentProject:  conv.CurrentProject,
		CurrentLocation: conv.CurrentLocation,
		Conversation:    conv,
	}

	var out []*model.Resolution
	for _, req := range reqs {
		if res := o.resolver.Resolve(ctx, domain, req, rctx); res != nil {
			out = append(out, res)
		}
	}
	return out
}

// deriveRequirements turns extraction context clues and possessive
// mentions into resolution requirements, deduplicated by value.
func deriveRequirements(query string, x *model.Extraction) []model.Requirement {
	var out []model.Requirement
	seen := make(map[string]bool)

	add := func(req model.Requirement) {
		key := string(req.Reason) + "|" + strings.ToLower(req.Value)
		if !seen[key] {
			seen[key] = true
			out = append(out, req)
		}
	}

	for clue, value := range x.ContextClues {
		switch clue {
		case "needs_current_location":
			add(model.Requirement{Type: "location", Value: "current_location", Reason: model.ReasonImplicit})
		case "needs_current_project":
			add(model.Requirement{Type: "project", Value: "current_project", Reason: model.ReasonImplicit})
		case "possessive_reference":
			add(model.Requirement{Type: "entity", Value: value, Reason: model.ReasonPossessive})
		case "ambiguous_reference":
			add(model.Requirement{Type: "entity", Value: value, Reason: model.ReasonAmbiguous})
		}
	}

	for _, base := range model.ParsePossessives(query) {
		add(model.Requirement{Type: "entity", Value: base, Reason: model.ReasonPossessive})
	}

	return out
}

// detectMissing checks whether the query's intent lacks a required datum
// and opens a pending request when it does.
func (o *Orchestrator) detectMissing(ctx context.Context, conv *model.Conversation, query string, x *model.Extraction) (*model.PendingRequest, string) {
	intent := deriveIntent(x)

	missing, ok := missingFor(conv, x)
	if !ok {
		return nil, ""
	}

	// Policy may override the built-in readiness rule.
	if o.policy != nil {
		ready, decided, err := o.policy.ReadyOverride(ctx, map[string]any{
			"intent":   intent,
			"query":    query,
			"amounts":  len(x.Amounts),
			"projects": len(x.Projects),
			"items":    len(x.Items),
		})
		if err != nil {
			logging.From(ctx).Warn("ready policy evaluation failed", "error", err)
		} else if decided && ready {
			return nil, ""
		}
	}

	req, err := o.pendings.Create(ctx, conv, query, intent, x, missing)
	if err != nil {
		logging.From(ctx).Warn("failed to create pending request", "error", err)
		return nil, "pending request not recorded"
	}
	return req, ""
}

// missingFor applies the built-in completeness rules: a purchase intent
// needs an amount, and an amount needs a project context.
func missingFor(conv *model.Conversation, x *model.Extraction) (model.MissingInfo, bool) {
	if hasPurchaseIntent(x) && len(x.Amounts) == 0 {
		return model.MissingInfo{
			Type:           model.MissingAmount,
			RequiredEntity: "amount",
			Question:       "How much did it cost?",
		}, true
	}

	if len(x.Amounts) > 0 && len(x.Projects) == 0 && conv.CurrentProject == "" {
		return model.MissingInfo{
			Type:           model.MissingProjectContext,
			RequiredEntity: "project",
			Question:       "Which project was that for?",
		}, true
	}

	return model.MissingInfo{}, false
}

func hasPurchaseIntent(x *model.Extraction) bool {
	for _, ind := range x.IntentIndicators {
		if purchaseIndicators[strings.ToLower(ind)] {
			return true
		}
	}
	return false
}

// deriveIntent names the query's intent from its strongest indicator.
func deriveIntent(x *model.Extraction) string {
	if hasPurchaseIntent(x) {
		return "record_purchase"
	}
	if len(x.IntentIndicators) > 0 {
		return strings.ToLower(x.IntentIndicators[0])
	}
	return "general_query"
}

// writeback folds the turn's outcome into the conversation context.
func (o *Orchestrator) writeback(ctx context.Context, conv *model.Conversation, query string, x *model.Extraction) {
	input := session.UpdateInput{
		Query:    query,
		Intent:   deriveIntent(x),
		Entities: x,
	}
	if len(x.Locations) > 0 {
		input.Location = x.Locations[0].Name
	}
	if len(x.Projects) > 0 {
		input.Project = x.Projects[0].Name
	}
	if err := o.sessions.Update(ctx, conv, input); err != nil {
		logging.From(ctx).Warn("failed to update conversation", "error", err, "id", conv.ID)
	}
}
