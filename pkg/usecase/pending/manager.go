package pending

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/cony/pkg/adapter"
	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/repository"
	"github.com/m-mizutani/cony/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Manager is the state machine for queries awaiting missing information.
// The only transition is pending -> completed; a pending request is never
// expired into a failed state. Mutation is serialized through the
// manager's lock so concurrent turns cannot lose a registered request.
type Manager struct {
	repo  repository.Repository
	clock adapter.Clock
	mu    sync.Mutex
}

type ManagerOption func(*Manager)

func WithClock(clock adapter.Clock) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

// NewManager creates a new pending request manager
func NewManager(repo repository.Repository, opts ...ManagerOption) *Manager {
	m := &Manager{
		repo:  repo,
		clock: adapter.RealClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores a new pending request and registers it on the owning
// conversation. Both writes happen synchronously.
func (m *Manager) Create(ctx context.Context, conv *model.Conversation, originalQuery, intent string, entities *model.Extraction, missing model.MissingInfo) (*model.PendingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req := &model.PendingRequest{
		ID:             model.NewPendingID(),
		ConversationID: conv.ID,
		OriginalQuery:  originalQuery,
		Intent:         intent,
		Entities:       entities,
		Missing:        missing,
		Status:         model.PendingStatusPending,
		CreatedAt:      m.clock.Now(),
	}

	if err := m.repo.PutPending(ctx, req); err != nil {
		return nil, goerr.Wrap(err, "failed to persist pending request", goerr.V("id", req.ID))
	}

	conv.PendingRequestIDs = append(conv.PendingRequestIDs, req.ID)
	if err := m.repo.PutConversation(ctx, conv); err != nil {
		return nil, goerr.Wrap(err, "failed to register pending request on conversation",
			goerr.V("request_id", req.ID), goerr.V("conversation_id", conv.ID))
	}

	return req, nil
}

// OnNewQuery checks each still-pending request of the conversation against
// a new query. At most the first satisfying request is completed; the
// rest stay pending for later turns.
func (m *Manager) OnNewQuery(ctx context.Context, conv *model.Conversation, newQuery string, newResult *model.Extraction) (*model.PendingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	open, err := m.repo.ListPendingByConversation(ctx, conv.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pending requests", goerr.V("conversation_id", conv.ID))
	}

	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })

	var completed *model.PendingRequest
	for _, req := range open {
		if req.Status != model.PendingStatusPending {
			continue
		}

		completion := m.satisfy(req, newQuery, newResult)
		if completion == nil {
			req.Attempts++
			if err := m.repo.PutPending(ctx, req); err != nil {
				logging.From(ctx).Warn("failed to persist attempt count", "error", err, "id", req.ID)
			}
			continue
		}

		if req.Entities == nil {
			req.Entities = &model.Extraction{ContextClues: map[string]string{}}
		}
		req.Entities.Merge(newResult)
		req.Attempts++
		if err := req.Complete(completion); err != nil {
			return nil, err
		}
		if err := m.repo.PutPending(ctx, req); err != nil {
			return nil, goerr.Wrap(err, "failed to persist completed request", goerr.V("id", req.ID))
		}

		conv.RemovePending(req.ID)
		if err := m.repo.PutConversation(ctx, conv); err != nil {
			return nil, goerr.Wrap(err, "failed to update conversation open list", goerr.V("id", conv.ID))
		}

		completed = req
		break
	}

	return completed, nil
}

// satisfy checks whether the new query supplies the missing datum.
func (m *Manager) satisfy(req *model.PendingRequest, newQuery string, newResult *model.Extraction) *model.Completion {
	now := m.clock.Now()

	switch req.Missing.Type {
	case model.MissingAmount:
		amounts := newResult.Amounts
		if len(amounts) == 0 {
			// The NLU may have missed a plain dollar figure; the cheap
			// lexical pass catches it.
			amounts = model.ParseAmounts(newQuery)
		}
		if len(amounts) == 0 {
			return nil
		}
		return &model.Completion{
			Amount:      amounts[0],
			Query:       newQuery,
			CompletedAt: now,
		}

	case model.MissingProjectContext:
		if len(newResult.Projects) == 0 {
			return nil
		}
		return &model.Completion{
			Project:     newResult.Projects[0].Name,
			Query:       newQuery,
			CompletedAt: now,
		}

	default:
		return nil
	}
}

// IsReadyForDownstream is an advisory check that combined data carries
// enough to hand off: at least one amount, one item, and one project or
// location.
func IsReadyForDownstream(data *model.Extraction) bool {
	if data == nil {
		return false
	}
	return len(data.Amounts) >= 1 &&
		len(data.Items) >= 1 &&
		(len(data.Projects) >= 1 || len(data.Locations) >= 1)
}

// Cleanup deletes completed requests and stale conversations older than
// the cutoff. Pending requests are never removed. Idempotent; returns the
// number of records removed.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-maxAge)
	removed := 0

	reqs, err := m.repo.ListPending(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list pending requests")
	}
	for _, req := range reqs {
		if req.Status != model.PendingStatusCompleted {
			continue
		}
		if req.Completion == nil || req.Completion.CompletedAt.After(cutoff) {
			continue
		}
		if err := m.repo.DeletePending(ctx, req.ID); err != nil {
			logging.From(ctx).Warn("failed to delete completed request", "error", err, "id", req.ID)
			continue
		}
		removed++
	}

	convs, err := m.repo.ListConversations(ctx)
	if err != nil {
		return removed, goerr.Wrap(err, "failed to list conversations")
	}
	for _, c := range convs {
		if c.LastActivity.After(cutoff) {
			continue
		}
		if err := m.repo.DeleteConversation(ctx, c.ID); err != nil {
			logging.From(ctx).Warn("failed to delete stale conversation", "error", err, "id", c.ID)
			continue
		}
		removed++
	}

	return removed, nil
}
