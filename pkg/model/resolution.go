package model

// ReferenceReason classifies why a linguistic reference needs resolution.
type ReferenceReason string

const (
	ReasonAmbiguous  ReferenceReason = "ambiguous_reference"
	ReasonImplicit   ReferenceReason = "implicit_reference"
	ReasonPossessive ReferenceReason = "possessive_reference"
)

// Requirement is one unresolved reference found in a query.
type Requirement struct {
	Type   string          `json:"type"`
	Value  string          `json:"value"`
	Reason ReferenceReason `json:"reason"`
}

// ResolutionContext carries the conversational state a resolver may use.
type ResolutionContext struct {
	CurrentProject  string
	CurrentLocation string
	Conversation    *Conversation
}

// RelatedEntity is a one-hop neighbor of a resolved entity.
type RelatedEntity struct {
	Entity   *Entity      `json:"entity"`
	Relation RelationType `json:"relation"`
}

// Resolution is the outcome of resolving a single reference. An
// unresolved reference is returned with Resolved=false and an explanatory
// note, never as an error.
type Resolution struct {
	Requirement Requirement      `json:"requirement"`
	Resolved    bool             `json:"resolved"`
	Entity      *Entity          `json:"entity,omitempty"`
	Related     []*RelatedEntity `json:"related,omitempty"`
	Confidence  float64          `json:"confidence"`
	Method      string           `json:"method"`
	Note        string           `json:"note,omitempty"`
}
