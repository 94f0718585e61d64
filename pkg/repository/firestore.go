package repository

import (
	"context"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionEntityRecords = "entity_records"
	collectionConversations = "conversations"
	collectionPending       = "pending_requests"
	collectionHashCache     = "hash_cache"
	collectionRouteCache    = "route_cache"
)

// Firestore implements Repository using Cloud Firestore
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}
	return &Firestore{client: client}, nil
}

// Close closes the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) PutEntityRecord(ctx context.Context, rec *model.EntityRecord) error {
	if rec.ID == "" {
		rec.ID = model.NewRecordID()
	}
	_, err := r.client.Collection(collectionEntityRecords).Doc(string(rec.ID)).Set(ctx, rec)
	if err != nil {
		return goerr.Wrap(err, "failed to put entity record", goerr.V("id", rec.ID))
	}
	return nil
}

func (r *Firestore) ListEntityRecords(ctx context.Context, domain string) ([]*model.EntityRecord, error) {
	iter := r.client.Collection(collectionEntityRecords).
		Where("domain", "==", domain).
		Documents(ctx)
	defer iter.Stop()

	var out []*model.EntityRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate entity records")
		}
		var rec model.EntityRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, goerr.Wrap(err, "failed to decode entity record", goerr.V("doc", doc.Ref.ID))
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (r *Firestore) PutConversation(ctx context.Context, conv *model.Conversation) error {
	_, err := r.client.Collection(collectionConversations).Doc(string(conv.ID)).Set(ctx, conv)
	if err != nil {
		return goerr.Wrap(err, "failed to put conversation", goerr.V("id", conv.ID))
	}
	return nil
}

func (r *Firestore) GetConversationBySession(ctx context.Context, sessionID string) (*model.Conversation, error) {
	iter := r.client.Collection(collectionConversations).
		Where("session_id", "==", sessionID).
		OrderBy("last_activity", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("session_id", sessionID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query conversation", goerr.V("session_id", sessionID))
	}

	var conv model.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("doc", doc.Ref.ID))
	}
	return &conv, nil
}

func (r *Firestore) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	iter := r.client.Collection(collectionConversations).Documents(ctx)
	defer iter.Stop()

	var out []*model.Conversation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate conversations")
		}
		var conv model.Conversation
		if err := doc.DataTo(&conv); err != nil {
			return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("doc", doc.Ref.ID))
		}
		out = append(out, &conv)
	}
	return out, nil
}

func (r *Firestore) DeleteConversation(ctx context.Context, id model.ConversationID) error {
	_, err := r.client.Collection(collectionConversations).Doc(string(id)).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return goerr.Wrap(err, "failed to delete conversation", goerr.V("id", id))
	}
	return nil
}

func (r *Firestore) PutPending(ctx context.Context, req *model.PendingRequest) error {
	_, err := r.client.Collection(collectionPending).Doc(string(req.ID)).Set(ctx, req)
	if err != nil {
		return goerr.Wrap(err, "failed to put pending request", goerr.V("id", req.ID))
	}
	return nil
}

func (r *Firestore) GetPending(ctx context.Context, id model.PendingID) (*model.PendingRequest, error) {
	doc, err := r.client.Collection(collectionPending).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "pending request not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get pending request", goerr.V("id", id))
	}
	var req model.PendingRequest
	if err := doc.DataTo(&req); err != nil {
		return nil, goerr.Wrap(err, "failed to decode pending request", goerr.V("id", id))
	}
	return &req, nil
}

func (r *Firestore) ListPendingByConversation(ctx context.Context, id model.ConversationID) ([]*model.PendingRequest, error) {
	iter := r.client.Collection(collectionPending).
		Where("conversation_id", "==", string(id)).
		Documents(ctx)
	defer iter.Stop()
	return collectPending(iter)
}

func (r *Firestore) ListPending(ctx context.Context) ([]*model.PendingRequest, error) {
	iter := r.client.Collection(collectionPending).Documents(ctx)
	defer iter.Stop()
	return collectPending(iter)
}

func collectPending(iter *firestore.DocumentIterator) ([]*model.PendingRequest, error) {
	var out []*model.PendingRequest
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate pending requests")
		}
		var req model.PendingRequest
		if err := doc.DataTo(&req); err != nil {
			return nil, goerr.Wrap(err, "failed to decode pending request", goerr.V("doc", doc.Ref.ID))
		}
		out = append(out, &req)
	}
	return out, nil
}

func (r *Firestore) DeletePending(ctx context.Context, id model.PendingID) error {
	_, err := r.client.Collection(collectionPending).Doc(string(id)).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return goerr.Wrap(err, "failed to delete pending request", goerr.V("id", id))
	}
	return nil
}

func (r *Firestore) GetHashCache(ctx context.Context, path string) (*model.HashCacheEntry, error) {
	doc, err := r.client.Collection(collectionHashCache).Doc(docKey(path)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "hash cache miss", goerr.V("path", path))
		}
		return nil, goerr.Wrap(err, "failed to get hash cache", goerr.V("path", path))
	}
	var entry model.HashCacheEntry
	if err := doc.DataTo(&entry); err != nil {
		return nil, goerr.Wrap(err, "failed to decode hash cache entry", goerr.V("path", path))
	}
	return &entry, nil
}

func (r *Firestore) PutHashCache(ctx context.Context, entry *model.HashCacheEntry) error {
	_, err := r.client.Collection(collectionHashCache).Doc(docKey(entry.Path)).Set(ctx, entry)
	if err != nil {
		return goerr.Wrap(err, "failed to put hash cache entry", goerr.V("path", entry.Path))
	}
	return nil
}

func (r *Firestore) GetCachedRoute(ctx context.Context, normQuery string) (*model.RouteResult, error) {
	doc, err := r.client.Collection(collectionRouteCache).Doc(docKey(normQuery)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "route cache miss", goerr.V("query", normQuery))
		}
		return nil, goerr.Wrap(err, "failed to get cached route", goerr.V("query", normQuery))
	}
	var result model.RouteResult
	if err := doc.DataTo(&result); err != nil {
		return nil, goerr.Wrap(err, "failed to decode cached route", goerr.V("query", normQuery))
	}
	return &result, nil
}

func (r *Firestore) PutCachedRoute(ctx context.Context, normQuery string, result *model.RouteResult) error {
	_, err := r.client.Collection(collectionRouteCache).Doc(docKey(normQuery)).Set(ctx, result)
	if err != nil {
		return goerr.Wrap(err, "failed to put cached route", goerr.V("query", normQuery))
	}
	return nil
}

// docKey escapes arbitrary strings (resource paths, normalized queries)
// into valid Firestore document IDs.
func docKey(s string) string {
	return url.PathEscape(s)
}
