package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Memory implements Repository with in-process maps. Default for local
// runs and tests.
type Memory struct {
	mu            sync.RWMutex
	records       []*model.EntityRecord
	conversations map[model.ConversationID]*model.Conversation
	pending       map[model.PendingID]*model.PendingRequest
	hashes        map[string]*model.HashCacheEntry
	routes        map[string]*model.RouteResult
}

// NewMemory creates a new in-memory repository
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[model.ConversationID]*model.Conversation),
		pending:       make(map[model.PendingID]*model.PendingRequest),
		hashes:        make(map[string]*model.HashCacheEntry),
		routes:        make(map[string]*model.RouteResult),
	}
}

func (m *Memory) PutEntityRecord(ctx context.Context, rec *model.EntityRecord) error {
	if rec.ID == "" {
		return goerr.New("entity record id is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) ListEntityRecords(ctx context.Context, domain string) ([]*model.EntityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.EntityRecord
	for _, r := range m.records {
		if r.Domain == domain {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) PutConversation(ctx context.Context, conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = conv
	return nil
}

func (m *Memory) GetConversationBySession(ctx context.Context, sessionID string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *model.Conversation
	for _, c := range m.conversations {
		if c.SessionID != sessionID {
			continue
		}
		if latest == nil || c.LastActivity.After(latest.LastActivity) {
			latest = c
		}
	}
	if latest == nil {
		return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("session_id", sessionID))
	}
	return latest, nil
}

func (m *Memory) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) DeleteConversation(ctx context.Context, id model.ConversationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, id)
	return nil
}

func (m *Memory) PutPending(ctx context.Context, req *model.PendingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[req.ID] = req
	return nil
}

func (m *Memory) GetPending(ctx context.Context, id model.PendingID) (*model.PendingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.pending[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "pending request not found", goerr.V("id", id))
	}
	return req, nil
}

func (m *Memory) ListPendingByConversation(ctx context.Context, id model.ConversationID) ([]*model.PendingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PendingRequest
	for _, r := range m.pending {
		if r.ConversationID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) ListPending(ctx context.Context) ([]*model.PendingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.PendingRequest, 0, len(m.pending))
	for _, r := range m.pending {
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) DeletePending(ctx context.Context, id model.PendingID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, id)
	return nil
}

func (m *Memory) GetHashCache(ctx context.Context, path string) (*model.HashCacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.hashes[path]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "hash cache miss", goerr.V("path", path))
	}
	return e, nil
}

func (m *Memory) PutHashCache(ctx context.Context, entry *model.HashCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[entry.Path] = entry
	return nil
}

func (m *Memory) GetCachedRoute(ctx context.Context, normQuery string) (*model.RouteResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[normQuery]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "route cache miss", goerr.V("query", normQuery))
	}
	return r, nil
}

func (m *Memory) PutCachedRoute(ctx context.Context, normQuery string, result *model.RouteResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[normQuery] = result
	return nil
}
