package model

import (
	"time"

	"github.com/google/uuid"
)

type ConversationID string

// NewConversationID generates a new unique ConversationID
func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

const (
	// MaxRecentItems caps the most-recent-first lists of a conversation.
	MaxRecentItems = 10
	// MaxQueryHistory caps the bounded query history of a conversation.
	MaxQueryHistory = 50
)

// QueryLogEntry is one remembered query of a conversation.
type QueryLogEntry struct {
	Query   string    `json:"query" firestore:"query"`
	Intent  string    `json:"intent" firestore:"intent"`
	AskedAt time.Time `json:"asked_at" firestore:"asked_at"`
}

// Conversation is the per-session context. It is discarded wholesale once
// the inactivity timeout elapses.
type Conversation struct {
	ID           ConversationID `json:"id" firestore:"id"`
	SessionID    string         `json:"session_id" firestore:"session_id"`
	UserID       string         `json:"user_id" firestore:"user_id"`
	StartedAt    time.Time      `json:"started_at" firestore:"started_at"`
	LastActivity time.Time      `json:"last_activity" firestore:"last_activity"`

	CurrentLocation string `json:"current_location" firestore:"current_location"`
	CurrentProject  string `json:"current_project" firestore:"current_project"`

	// Entities keyed by name+kind (Entity.Key)
	Entities map[string]*Entity `json:"entities" firestore:"entities"`

	RecentLocations []string `json:"recent_locations" firestore:"recent_locations"`
	RecentProjects  []string `json:"recent_projects" firestore:"recent_projects"`
	RecentPeople    []string `json:"recent_people" firestore:"recent_people"`

	QueryHistory []QueryLogEntry `json:"query_history" firestore:"query_history"`

	PendingRequestIDs []PendingID `json:"pending_request_ids" firestore:"pending_request_ids"`
}

func NewConversation(sessionID, userID string, now time.Time) *Conversation {
	return &Conversation{
		ID:           NewConversationID(),
		SessionID:    sessionID,
		UserID:       userID,
		StartedAt:    now,
		LastActivity: now,
		Entities:     make(map[string]*Entity),
	}
}

// Expired reports whether the conversation passed its inactivity window.
func (c *Conversation) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(c.LastActivity) >= timeout
}

// RemovePending drops a pending request id from the open list.
func (c *Conversation) RemovePending(id PendingID) {
	out := c.PendingRequestIDs[:0]
	for _, p := range c.PendingRequestIDs {
		if p != id {
			out = append(out, p)
		}
	}
	c.PendingRequestIDs = out
}
