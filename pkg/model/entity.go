package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidEntity = goerr.New("invalid entity")
)

type RecordID string

// NewRecordID generates a new unique RecordID
func NewRecordID() RecordID {
	return RecordID(uuid.New().String())
}

type EntityKind string

const (
	EntityKindPerson   EntityKind = "person"
	EntityKindProject  EntityKind = "project"
	EntityKindLocation EntityKind = "location"
	EntityKindItem     EntityKind = "item"
	EntityKindDate     EntityKind = "date"
)

type RelationType string

const (
	RelationOwns      RelationType = "owns"
	RelationManages   RelationType = "manages"
	RelationLocatedAt RelationType = "located_at"
	RelationWorksOn   RelationType = "works_on"
	RelationRelatedTo RelationType = "related_to"
)

// Entity is a single categorized entity extracted from a conversational turn.
type Entity struct {
	Name       string     `json:"name" firestore:"name"`
	Kind       EntityKind `json:"kind" firestore:"kind"`
	Confidence float64    `json:"confidence" firestore:"confidence"`

	// Relation is set only when the extraction carries an explicit
	// relation to another entity. The graph builder adds edges only
	// from this field.
	Relation *Relation `json:"relation,omitempty" firestore:"relation"`
}

// Validate checks if the entity is valid
func (e *Entity) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return goerr.Wrap(ErrInvalidEntity, "entity name is empty")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return goerr.Wrap(ErrInvalidEntity, "confidence out of range", goerr.V("confidence", e.Confidence))
	}
	switch e.Kind {
	case EntityKindPerson, EntityKindProject, EntityKindLocation, EntityKindItem, EntityKindDate:
		return nil
	default:
		return goerr.Wrap(ErrInvalidEntity, "invalid entity kind", goerr.V("kind", e.Kind))
	}
}

// Key identifies an entity for deduplication (name + kind)
func (e *Entity) Key() string {
	return strings.ToLower(e.Name) + "|" + string(e.Kind)
}

// Relation is a typed, confidence-scored link to another entity by name.
type Relation struct {
	Type       RelationType `json:"type" firestore:"type"`
	Target     string       `json:"target" firestore:"target"`
	Confidence float64      `json:"confidence" firestore:"confidence"`
}

// Amount is a financial amount mentioned in a query.
type Amount struct {
	Value      float64 `json:"value" firestore:"value"`
	Currency   string  `json:"currency" firestore:"currency"`
	Raw        string  `json:"raw" firestore:"raw"`
	Confidence float64 `json:"confidence" firestore:"confidence"`
}

// Extraction is the categorized output of one extraction pass over a query.
type Extraction struct {
	People    []*Entity `json:"people" firestore:"people"`
	Projects  []*Entity `json:"projects" firestore:"projects"`
	Locations []*Entity `json:"locations" firestore:"locations"`
	Items     []*Entity `json:"items" firestore:"items"`
	Amounts   []*Amount `json:"amounts" firestore:"amounts"`

	IntentIndicators []string          `json:"intent_indicators" firestore:"intent_indicators"`
	ContextClues     map[string]string `json:"context_clues" firestore:"context_clues"`
	Confidence       float64           `json:"confidence" firestore:"confidence"`
}

// FallbackConfidence is the confidence floor assigned to extractions
// degraded by an unusable NLU response.
const FallbackConfidence = 0.3

// NewFallbackExtraction returns the empty, low-confidence extraction used
// when the NLU collaborator output is unusable.
func NewFallbackExtraction() *Extraction {
	return &Extraction{
		ContextClues: map[string]string{},
		Confidence:   FallbackConfidence,
	}
}

// Entities returns all categorized entities as a flat list.
func (x *Extraction) Entities() []*Entity {
	out := make([]*Entity, 0, len(x.People)+len(x.Projects)+len(x.Locations)+len(x.Items))
	out = append(out, x.People...)
	out = append(out, x.Projects...)
	out = append(out, x.Locations...)
	out = append(out, x.Items...)
	return out
}

// IsEmpty reports whether the extraction carries no entities at all.
func (x *Extraction) IsEmpty() bool {
	return len(x.People) == 0 && len(x.Projects) == 0 && len(x.Locations) == 0 &&
		len(x.Items) == 0 && len(x.Amounts) == 0
}

// Merge adds entities from other, deduplicating by name+kind.
func (x *Extraction) Merge(other *Extraction) {
	if other == nil {
		return
	}
	seen := make(map[string]bool)
	for _, e := range x.Entities() {
		seen[e.Key()] = true
	}
	appendNew := func(dst []*Entity, src []*Entity) []*Entity {
		for _, e := range src {
			if !seen[e.Key()] {
				seen[e.Key()] = true
				dst = append(dst, e)
			}
		}
		return dst
	}
	x.People = appendNew(x.People, other.People)
	x.Projects = appendNew(x.Projects, other.Projects)
	x.Locations = appendNew(x.Locations, other.Locations)
	x.Items = appendNew(x.Items, other.Items)
	x.Amounts = append(x.Amounts, other.Amounts...)
}

// EntityRecord is the append-only persisted form of one extraction pass.
type EntityRecord struct {
	ID             RecordID       `json:"id" firestore:"id"`
	ConversationID ConversationID `json:"conversation_id" firestore:"conversation_id"`
	Domain         string         `json:"domain" firestore:"domain"`
	CreatedAt      time.Time      `json:"created_at" firestore:"created_at"`
	Extraction     *Extraction    `json:"extraction" firestore:"extraction"`
}
