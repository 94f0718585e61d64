package model

import "time"

// ExternalProject is a project listed by the authoritative external system.
type ExternalProject struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectRecord is one granular record under a project.
type ProjectRecord struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
}

// ProjectDetail is the structured detail of a single external project.
type ProjectDetail struct {
	Project ExternalProject  `json:"project"`
	People  []string         `json:"people"`
	Records []*ProjectRecord `json:"records"`
}

// ProjectMatch pairs a query mention with a similar external project.
type ProjectMatch struct {
	Mention    string
	Project    *ExternalProject
	Similarity float64
}

// DetailLevel is the drill-down depth fetched for a matched project,
// following the least-expensive-step policy.
type DetailLevel string

const (
	DetailBroad    DetailLevel = "broad"
	DetailDetail   DetailLevel = "detail"
	DetailGranular DetailLevel = "granular"
)

// DrillDownResult is one level of detail gathered for a project or a
// locally resolved entity.
type DrillDownResult struct {
	Subject string
	Level   DetailLevel
	Summary string
	Detail  *ProjectDetail
}

type ConnectionType string

const (
	ConnectionEntityProject ConnectionType = "entity_project"
	ConnectionTemporal      ConnectionType = "temporal"
	ConnectionSpatial       ConnectionType = "spatial"
)

// Connection is a typed link synthesized between two gathered entities.
type Connection struct {
	Type       ConnectionType `json:"type"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Label      string         `json:"label"`
	Confidence float64        `json:"confidence"`
}

// StageResult describes one router stage's contribution.
type StageResult struct {
	Name       string
	Confidence float64
	// Contributed is true when the stage produced a non-empty result.
	Contributed bool
}

// RouteResult is the merged outcome of the five routing stages.
type RouteResult struct {
	Query      string
	Stages     []StageResult
	Confidence float64

	LocalEntities []*Entity
	KnowledgeGaps []string
	Matches       []*ProjectMatch
	DrillDowns    []*DrillDownResult
	Connections   []*Connection

	UsedExternal bool
	FromCache    bool
	Warnings     []string
}
