package assemble

import (
	"fmt"
	"strings"

	"github.com/m-mizutani/cony/pkg/model"
)

// synthesize merges the turn's resolutions, route result and pending
// activity into one answer.
func (o *Orchestrator) synthesize(conv *model.Conversation, query string, x *model.Extraction, resolutions []*model.Resolution, routeResult *model.RouteResult, completed, opened *model.PendingRequest) *model.Answer {
	insights := buildInsights(resolutions, routeResult, completed)

	answer := &model.Answer{
		Query:        query,
		Insights:     insights,
		Recommends:   buildRecommendations(routeResult, resolutions),
		UsedExternal: routeResult.UsedExternal,
		CreatedAt:    o.clock.Now(),
	}

	if opened != nil {
		answer.PendingQuestion = opened.Missing.Question
	}

	answer.Intelligence = scoreIntelligence(conv, x, resolutions, routeResult, insights)
	answer.Confidence = answerConfidence(x, insights)
	answer.Text = buildText(query, x, resolutions, routeResult, completed, opened)

	return answer
}

// buildInsights converts each contributing signal into a typed insight.
func buildInsights(resolutions []*model.Resolution, routeResult *model.RouteResult, completed *model.PendingRequest) []*model.Insight {
	var out []*model.Insight

	for _, r := range resolutions {
		if !r.Resolved || r.Entity == nil {
			continue
		}
		text := fmt.Sprintf("%q refers to %s (%s)", r.Requirement.Value, r.Entity.Name, r.Entity.Kind)
		out = append(out, &model.Insight{
			Kind:       model.InsightResolution,
			Text:       text,
			Confidence: r.Confidence,
		})
		for _, rel := range r.Related {
			out = append(out, &model.Insight{
				Kind:       model.InsightConnection,
				Text:       fmt.Sprintf("%s %s %s", r.Entity.Name, rel.Relation, rel.Entity.Name),
				Confidence: rel.Entity.Confidence,
			})
		}
	}

	for _, c := range routeResult.Connections {
		out = append(out, &model.Insight{
			Kind:       model.InsightConnection,
			Text:       c.Label,
			Confidence: c.Confidence,
		})
	}

	if completed != nil && completed.Completion != nil {
		text := "completed earlier request: " + completed.OriginalQuery
		if completed.Completion.Amount != nil {
			text = fmt.Sprintf("%s (%s)", text, completed.Completion.Amount.Raw)
		}
		out = append(out, &model.Insight{
			Kind:       model.InsightCompletion,
			Text:       text,
			Confidence: 0.9,
		})
	}

	for _, gap := range routeResult.KnowledgeGaps {
		out = append(out, &model.Insight{
			Kind:       model.InsightGap,
			Text:       "no local knowledge about " + gap,
			Confidence: 0.5,
		})
	}

	return out
}

// buildRecommendations suggests follow-ups from matched projects and
// unresolved references.
func buildRecommendations(routeResult *model.RouteResult, resolutions []*model.Resolution) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, m := range routeResult.Matches {
		add("review project " + m.Project.Name)
	}
	for _, r := range resolutions {
		if !r.Resolved && r.Note != "" {
			add("clarify " + r.Requirement.Value)
		}
	}
	return out
}

// answerConfidence is the mean of contributing entity and insight
// confidences.
func answerConfidence(x *model.Extraction, insights []*model.Insight) float64 {
	sum := 0.0
	n := 0

	for _, e := range x.Entities() {
		sum += e.Confidence
		n++
	}
	for _, i := range insights {
		sum += i.Confidence
		n++
	}

	if n == 0 {
		return model.FallbackConfidence
	}
	return sum / float64(n)
}

// buildText composes the human-readable answer body.
func buildText(query string, x *model.Extraction, resolutions []*model.Resolution, routeResult *model.RouteResult, completed, opened *model.PendingRequest) string {
	var parts []string

	if completed != nil && completed.Completion != nil {
		if completed.Completion.Amount != nil {
			parts = append(parts, fmt.Sprintf("Recorded %s for your earlier request %q.",
				completed.Completion.Amount.Raw, completed.OriginalQuery))
		} else if completed.Completion.Project != "" {
			parts = append(parts, fmt.Sprintf("Linked your earlier request %q to project %s.",
				completed.OriginalQuery, completed.Completion.Project))
		}
	}

	for _, r := range resolutions {
		if r.Resolved && r.Entity != nil {
			parts = append(parts, fmt.Sprintf("I understood %q as %s.", r.Requirement.Value, r.Entity.Name))
		}
	}

	switch {
	case len(routeResult.DrillDowns) > 0:
		d := routeResult.DrillDowns[0]
		if d.Summary != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", d.Subject, d.Summary))
		} else {
			parts = append(parts, "Found "+d.Subject+".")
		}
	case len(routeResult.Matches) > 0:
		names := make([]string, 0, len(routeResult.Matches))
		for _, m := range routeResult.Matches {
			names = append(names, m.Project.Name)
		}
		parts = append(parts, "Found matching projects: "+strings.Join(names, ", ")+".")
	case len(routeResult.LocalEntities) > 0:
		names := make([]string, 0, len(routeResult.LocalEntities))
		for _, e := range routeResult.LocalEntities {
			names = append(names, e.Name)
		}
		parts = append(parts, "I know about "+strings.Join(names, ", ")+" from our conversations.")
	}

	if opened != nil {
		parts = append(parts, opened.Missing.Question)
	}

	if len(parts) == 0 {
		if x.IsEmpty() {
			return "I could not find anything relevant to that yet."
		}
		return "Noted."
	}
	return strings.Join(parts, " ")
}
