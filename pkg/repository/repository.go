package repository

import (
	"context"

	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrNotFound = goerr.New("not found")
)

// Repository defines the persisted surfaces of the core: entity records,
// conversations, pending requests, the hash cache and the answer cache.
// All implementations must tolerate concurrent readers; writers are
// serialized per conversation by the callers (single-writer discipline).
type Repository interface {
	// PutEntityRecord appends an entity record. Records are never mutated.
	PutEntityRecord(ctx context.Context, rec *model.EntityRecord) error

	// ListEntityRecords retrieves all entity records for a domain
	ListEntityRecords(ctx context.Context, domain string) ([]*model.EntityRecord, error)

	// PutConversation saves a conversation context
	PutConversation(ctx context.Context, conv *model.Conversation) error

	// GetConversationBySession retrieves the conversation owning a session
	GetConversationBySession(ctx context.Context, sessionID string) (*model.Conversation, error)

	// ListConversations retrieves all conversations
	ListConversations(ctx context.Context) ([]*model.Conversation, error)

	// DeleteConversation removes a conversation wholesale
	DeleteConversation(ctx context.Context, id model.ConversationID) error

	// PutPending saves a pending request
	PutPending(ctx context.Context, req *model.PendingRequest) error

	// GetPending retrieves a pending request by ID
	GetPending(ctx context.Context, id model.PendingID) (*model.PendingRequest, error)

	// ListPendingByConversation retrieves a conversation's pending requests
	ListPendingByConversation(ctx context.Context, id model.ConversationID) ([]*model.PendingRequest, error)

	// ListPending retrieves all pending requests
	ListPending(ctx context.Context) ([]*model.PendingRequest, error)

	// DeletePending removes a pending request
	DeletePending(ctx context.Context, id model.PendingID) error

	// GetHashCache retrieves the cached hash for a resource path
	GetHashCache(ctx context.Context, path string) (*model.HashCacheEntry, error)

	// PutHashCache writes the hash for a resource path
	PutHashCache(ctx context.Context, entry *model.HashCacheEntry) error

	// GetCachedRoute retrieves a learned route result by normalized query
	GetCachedRoute(ctx context.Context, normQuery string) (*model.RouteResult, error)

	// PutCachedRoute stores a learned route result by normalized query
	PutCachedRoute(ctx context.Context, normQuery string, result *model.RouteResult) error
}
