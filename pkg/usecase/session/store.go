package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/cony/pkg/adapter"
	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/repository"
	"github.com/m-mizutani/cony/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultTimeout is the inactivity window after which a conversation
// context is discarded wholesale.
const DefaultTimeout = 30 * time.Minute

// Store manages per-session conversation contexts with bounded memory and
// timeout-based expiry. All mutation per session goes through the store's
// lock (single-writer discipline).
type Store struct {
	repo    repository.Repository
	clock   adapter.Clock
	timeout time.Duration

	mu sync.Mutex
}

type StoreOption func(*Store)

func WithTimeout(timeout time.Duration) StoreOption {
	return func(s *Store) { s.timeout = timeout }
}

func WithClock(clock adapter.Clock) StoreOption {
	return func(s *Store) { s.clock = clock }
}

// NewStore creates a new conversation state store
func NewStore(repo repository.Repository, opts ...StoreOption) *Store {
	s := &Store{
		repo:    repo,
		clock:   adapter.RealClock{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the session's conversation if it is still within the
// inactivity window, else silently discards it and creates a fresh one.
// Expiry is not an error.
func (s *Store) GetOrCreate(ctx context.Context, sessionID, userID string) (*model.Conversation, error) {
	if sessionID == "" {
		return nil, goerr.New("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	conv, err := s.repo.GetConversationBySession(ctx, sessionID)
	switch {
	case err == nil && !conv.Expired(now, s.timeout):
		return conv, nil
	case err == nil:
		// Timed out: discard wholesale, no partial carry-over.
		if derr := s.repo.DeleteConversation(ctx, conv.ID); derr != nil {
			logging.From(ctx).Warn("failed to delete expired conversation", "error", derr, "id", conv.ID)
		}
	case !errors.Is(err, repository.ErrNotFound):
		// Read failures fall through to a fresh context; logged, not
		// propagated.
		logging.From(ctx).Warn("failed to read conversation, creating fresh", "error", err, "session_id", sessionID)
	}

	fresh := model.NewConversation(sessionID, userID, now)
	if perr := s.repo.PutConversation(ctx, fresh); perr != nil {
		logging.From(ctx).Warn("failed to persist conversation, continuing in-memory", "error", perr)
	}
	return fresh, nil
}

// UpdateInput carries the per-query writeback into a conversation.
type UpdateInput struct {
	Query    string
	Intent   string
	Entities *model.Extraction
	Location string
	Project  string
}

// Update appends to the bounded query history, merges newly seen entities
// (dedup by name+kind) and pushes recent locations/projects/people to the
// bounded most-recent-first lists.
func (s *Store) Update(ctx context.Context, conv *model.Conversation, input UpdateInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	conv.LastActivity = now

	if input.Query != "" {
		conv.QueryHistory = append(conv.QueryHistory, model.QueryLogEntry{
			Query:   input.Query,
			Intent:  input.Intent,
			AskedAt: now,
		})
		if len(conv.QueryHistory) > model.MaxQueryHistory {
			conv.QueryHistory = conv.QueryHistory[len(conv.QueryHistory)-model.MaxQueryHistory:]
		}
	}

	if input.Entities != nil {
		for _, e := range input.Entities.Entities() {
			if _, ok := conv.Entities[e.Key()]; !ok {
				conv.Entities[e.Key()] = e
			}
		}
		for _, p := range input.Entities.People {
			conv.RecentPeople = pushRecent(conv.RecentPeople, p.Name)
		}
		for _, p := range input.Entities.Projects {
			conv.RecentProjects = pushRecent(conv.RecentProjects, p.Name)
		}
		for _, l := range input.Entities.Locations {
			conv.RecentLocations = pushRecent(conv.RecentLocations, l.Name)
		}
	}

	if input.Location != "" {
		conv.CurrentLocation = input.Location
		conv.RecentLocations = pushRecent(conv.RecentLocations, input.Location)
	}
	if input.Project != "" {
		conv.CurrentProject = input.Project
		conv.RecentProjects = pushRecent(conv.RecentProjects, input.Project)
	}

	if err := s.repo.PutConversation(ctx, conv); err != nil {
		logging.From(ctx).Warn("failed to persist conversation update, continuing in-memory", "error", err, "id", conv.ID)
	}
	return nil
}

// CleanupExpired sweeps timed-out conversations. Idempotent; invoked by an
// external periodic trigger.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs, err := s.repo.ListConversations(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list conversations")
	}

	now := s.clock.Now()
	removed := 0
	for _, c := range convs {
		if !c.Expired(now, s.timeout) {
			continue
		}
		if err := s.repo.DeleteConversation(ctx, c.ID); err != nil {
			logging.From(ctx).Warn("failed to delete expired conversation", "error", err, "id", c.ID)
			continue
		}
		removed++
	}
	return removed, nil
}

// pushRecent prepends a value to a most-recent-first list, deduplicating
// and capping at MaxRecentItems.
func pushRecent(list []string, value string) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, value)
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	if len(out) > model.MaxRecentItems {
		out = out[:model.MaxRecentItems]
	}
	return out
}
