package assemble

import "github.com/m-mizutani/cony/pkg/model"

// Intelligence level thresholds over the additive context score.
const (
	relationalScore = 2
	contextualScore = 4
	advancedScore   = 6
)

// scoreIntelligence grades how much cross-referenced context contributed
// to an answer. Each signal adds to the score; inferred relationships
// weigh double.
func scoreIntelligence(conv *model.Conversation, x *model.Extraction, resolutions []*model.Resolution, routeResult *model.RouteResult, insights []*model.Insight) model.IntelligenceLevel {
	score := 0

	if len(conv.Entities) > 0 {
		score++
	}
	if hasInferredRelationship(resolutions, routeResult) {
		score += 2
	}
	if conv.CurrentLocation != "" {
		score++
	}
	if len(x.Amounts) > 0 {
		score++
	}
	if conv.CurrentProject != "" {
		score++
	}
	if len(insights) > 2 {
		score++
	}

	switch {
	case score >= advancedScore:
		return model.IntelligenceAdvanced
	case score >= contextualScore:
		return model.IntelligenceContextual
	case score >= relationalScore:
		return model.IntelligenceRelational
	default:
		return model.IntelligenceBasic
	}
}

func hasInferredRelationship(resolutions []*model.Resolution, routeResult *model.RouteResult) bool {
	for _, r := range resolutions {
		if r.Resolved && len(r.Related) > 0 {
			return true
		}
	}
	return routeResult != nil && len(routeResult.Connections) > 0
}
