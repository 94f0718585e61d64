package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrAlreadyCompleted = goerr.New("pending request already completed")
)

type PendingID string

// NewPendingID generates a new unique PendingID
func NewPendingID() PendingID {
	return PendingID(uuid.New().String())
}

type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "pending"
	PendingStatusCompleted PendingStatus = "completed"
)

type MissingInfoType string

const (
	MissingAmount         MissingInfoType = "amount"
	MissingProjectContext MissingInfoType = "project_context"
)

// MissingInfo describes the datum a query lacks before its intent can be
// handed downstream.
type MissingInfo struct {
	Type           MissingInfoType `json:"type" firestore:"type"`
	RequiredEntity string          `json:"required_entity" firestore:"required_entity"`
	Question       string          `json:"question" firestore:"question"`
}

// Completion records how a pending request was satisfied.
type Completion struct {
	Amount      *Amount   `json:"amount,omitempty" firestore:"amount"`
	Project     string    `json:"project,omitempty" firestore:"project"`
	Query       string    `json:"query" firestore:"query"`
	CompletedAt time.Time `json:"completed_at" firestore:"completed_at"`
}

// PendingRequest is a query whose intent is known but which awaits a
// missing datum from a later query. The only status transition is
// pending -> completed; a pending request is never expired to failure.
type PendingRequest struct {
	ID             PendingID      `json:"id" firestore:"id"`
	ConversationID ConversationID `json:"conversation_id" firestore:"conversation_id"`
	OriginalQuery  string         `json:"original_query" firestore:"original_query"`
	Intent         string         `json:"intent" firestore:"intent"`
	Entities       *Extraction    `json:"entities" firestore:"entities"`
	Missing        MissingInfo    `json:"missing" firestore:"missing"`
	Status         PendingStatus  `json:"status" firestore:"status"`
	Attempts       int            `json:"attempts" firestore:"attempts"`
	CreatedAt      time.Time      `json:"created_at" firestore:"created_at"`
	Completion     *Completion    `json:"completion,omitempty" firestore:"completion"`
}

// Complete transitions the request to its terminal state.
func (p *PendingRequest) Complete(c *Completion) error {
	if p.Status == PendingStatusCompleted {
		return goerr.Wrap(ErrAlreadyCompleted, "cannot complete twice", goerr.V("id", p.ID))
	}
	p.Status = PendingStatusCompleted
	p.Completion = c
	return nil
}
