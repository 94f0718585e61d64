package route

import (
	"strings"
	"time"

	"github.com/m-mizutani/cony/pkg/model"
)

// synthesizeConnections pairwise-compares gathered entities and emits
// typed connections on heuristic match.
func synthesizeConnections(locals []*model.Entity, matches []*model.ProjectMatch, drills []*model.DrillDownResult) []*model.Connection {
	var out []*model.Connection

	// Local entity <-> external project: shared name token.
	for _, e := range locals {
		for _, m := range matches {
			if !sharesToken(e.Name, m.Project.Name) {
				continue
			}
			out = append(out, &model.Connection{
				Type:       model.ConnectionEntityProject,
				From:       e.Name,
				To:         m.Project.Name,
				Label:      e.Name + " appears in project " + m.Project.Name,
				Confidence: 0.75,
			})
		}
	}

	// Spatial: location entity named in a project's location.
	for _, e := range locals {
		if e.Kind != model.EntityKindLocation {
			continue
		}
		for _, m := range matches {
			if m.Project.Location == "" {
				continue
			}
			if !strings.Contains(strings.ToLower(m.Project.Location), strings.ToLower(e.Name)) {
				continue
			}
			out = append(out, &model.Connection{
				Type:       model.ConnectionSpatial,
				From:       e.Name,
				To:         m.Project.Name,
				Label:      m.Project.Name + " is located at " + e.Name,
				Confidence: 0.7,
			})
		}
	}

	// Temporal: matched projects updated close together.
	const temporalWindow = 72 * time.Hour
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			a, b := matches[i].Project, matches[j].Project
			if a.UpdatedAt.IsZero() || b.UpdatedAt.IsZero() {
				continue
			}
			gap := a.UpdatedAt.Sub(b.UpdatedAt)
			if gap < 0 {
				gap = -gap
			}
			if gap > temporalWindow {
				continue
			}
			out = append(out, &model.Connection{
				Type:       model.ConnectionTemporal,
				From:       a.Name,
				To:         b.Name,
				Label:      a.Name + " and " + b.Name + " were active around the same time",
				Confidence: 0.6,
			})
		}
	}

	// Drill-down people <-> local person entities.
	for _, d := range drills {
		if d.Detail == nil {
			continue
		}
		for _, person := range d.Detail.People {
			for _, e := range locals {
				if e.Kind != model.EntityKindPerson {
					continue
				}
				if !strings.EqualFold(person, e.Name) && !sharesToken(person, e.Name) {
					continue
				}
				out = append(out, &model.Connection{
					Type:       model.ConnectionEntityProject,
					From:       e.Name,
					To:         d.Subject,
					Label:      e.Name + " works on " + d.Subject,
					Confidence: 0.8,
				})
			}
		}
	}

	return dedupConnections(out)
}

func sharesToken(a, b string) bool {
	as := tokenSet(strings.ToLower(a))
	for t := range tokenSet(strings.ToLower(b)) {
		if as[t] {
			return true
		}
	}
	return false
}

func dedupConnections(conns []*model.Connection) []*model.Connection {
	seen := make(map[string]bool)
	out := conns[:0]
	for _, c := range conns {
		key := string(c.Type) + "|" + c.From + "|" + c.To
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
