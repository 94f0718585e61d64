package model

import "time"

// IntelligenceLevel classifies how much cross-referenced context
// contributed to an answer.
type IntelligenceLevel string

const (
	IntelligenceBasic      IntelligenceLevel = "basic"
	IntelligenceRelational IntelligenceLevel = "relational"
	IntelligenceContextual IntelligenceLevel = "contextual"
	IntelligenceAdvanced   IntelligenceLevel = "advanced"
)

type InsightKind string

const (
	InsightConnection InsightKind = "connection"
	InsightResolution InsightKind = "resolution"
	InsightCompletion InsightKind = "completion"
	InsightGap        InsightKind = "gap"
)

// Insight is one cross-referenced observation backing an answer.
type Insight struct {
	Kind       InsightKind `json:"kind" firestore:"kind"`
	Text       string      `json:"text" firestore:"text"`
	Confidence float64     `json:"confidence" firestore:"confidence"`
}

// Answer is the synthesized response to one query.
type Answer struct {
	Query        string            `json:"query" firestore:"query"`
	Text         string            `json:"text" firestore:"text"`
	Insights     []*Insight        `json:"insights" firestore:"insights"`
	Recommends   []string          `json:"recommends" firestore:"recommends"`
	Intelligence IntelligenceLevel `json:"intelligence" firestore:"intelligence"`

	// Confidence is the mean of contributing entity and insight
	// confidences. Heuristic, not a calibrated probability.
	Confidence float64 `json:"confidence" firestore:"confidence"`

	PendingQuestion string    `json:"pending_question,omitempty" firestore:"pending_question"`
	UsedExternal    bool      `json:"used_external" firestore:"used_external"`
	Warnings        []string  `json:"warnings,omitempty" firestore:"warnings"`
	CreatedAt       time.Time `json:"created_at" firestore:"created_at"`
}
