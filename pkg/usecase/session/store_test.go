package session_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/repository"
	"github.com/m-mizutani/cony/pkg/usecase/session"
	"github.com/m-mizutani/gt"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newStore(t *testing.T) (*session.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)}
	store := session.NewStore(repository.NewMemory(), session.WithClock(clock))
	return store, clock
}

func TestGetOrCreateRequiresSessionID(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.GetOrCreate(context.Background(), "", "user-1")
	gt.Error(t, err)
}

func TestGetOrCreateStableWithinWindow(t *testing.T) {
	store, clock := newStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, "session-1", "user-1")
	gt.NoError(t, err)
	gt.V(t, first).NotNil()

	clock.advance(29 * time.Minute)
	second, err := store.GetOrCreate(ctx, "session-1", "user-1")
	gt.NoError(t, err)
	gt.Equal(t, second.ID, first.ID)
}

func TestGetOrCreateDiscardsExpired(t *testing.T) {
	store, clock := newStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, "session-1", "user-1")
	gt.NoError(t, err)

	clock.advance(31 * time.Minute)
	second, err := store.GetOrCreate(ctx, "session-1", "user-1")
	gt.NoError(t, err)
	gt.V(t, second.ID != first.ID).Equal(true)

	// The expired context is gone wholesale.
	gt.A(t, second.QueryHistory).Length(0)
	gt.A(t, second.RecentLocations).Length(0)
}

func TestUpdateBoundsQueryHistory(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	conv, err := store.GetOrCreate(ctx, "session-1", "user-1")
	gt.NoError(t, err)

	for i := 0; i < model.MaxQueryHistory+10; i++ {
		err := store.Update(ctx, conv, session.UpdateInput{
			Query:  fmt.Sprintf("query %d", i),
			Intent: "general_query",
		})
		gt.NoError(t, err)
	}

	gt.A(t, conv.QueryHistory).Length(model.MaxQueryHistory)
	// Oldest entries are evicted first.
	gt.Equal(t, conv.QueryHistory[0].Query, "query 10")
}

func TestUpdateBoundsRecentLists(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	conv, err := store.GetOrCreate(ctx, "session-1", "user-1")
	gt.NoError(t, err)

	for i := 0; i < model.MaxRecentItems+5; i++ {
		err := store.Update(ctx, conv, session.UpdateInput{
			Location: fmt.Sprintf("site %d", i),
		})
		gt.NoError(t, err)
	}

	gt.A(t, conv.RecentLocations).Length(model.MaxRecentItems)
	// Most recent first.
	gt.Equal(t, conv.RecentLocations[0], "site 14")
	gt.Equal(t, conv.CurrentLocation, "site 14")
}

func TestUpdateDedupsRecent(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	conv, err := store.GetOrCreate(ctx, "session-1", "user-1")
	gt.NoError(t, err)

	for _, loc := range []string{"warehouse", "office", "warehouse"} {
		gt.NoError(t, store.Update(ctx, conv, session.UpdateInput{Location: loc}))
	}

	gt.A(t, conv.RecentLocations).Length(2)
	gt.Equal(t, conv.RecentLocations[0], "warehouse")
	gt.Equal(t, conv.RecentLocations[1], "office")
}

func TestUpdateMergesEntities(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	conv, err := store.GetOrCreate(ctx, "session-1", "user-1")
	gt.NoError(t, err)

	x := &model.Extraction{
		People: []*model.Entity{{Name: "John", Kind: model.EntityKindPerson, Confidence: 0.9}},
	}
	gt.NoError(t, store.Update(ctx, conv, session.UpdateInput{Query: "q1", Entities: x}))
	gt.NoError(t, store.Update(ctx, conv, session.UpdateInput{Query: "q2", Entities: x}))

	gt.Equal(t, len(conv.Entities), 1)
	gt.A(t, conv.RecentPeople).Length(1)
}

func TestCleanupExpiredIdempotent(t *testing.T) {
	store, clock := newStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "session-1", "user-1")
	gt.NoError(t, err)
	_, err = store.GetOrCreate(ctx, "session-2", "user-2")
	gt.NoError(t, err)

	clock.advance(31 * time.Minute)

	removed, err := store.CleanupExpired(ctx)
	gt.NoError(t, err)
	gt.Equal(t, removed, 2)

	removed, err = store.CleanupExpired(ctx)
	gt.NoError(t, err)
	gt.Equal(t, removed, 0)
}
