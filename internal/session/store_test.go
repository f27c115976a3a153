// ABOUTME: Behavioral tests shared by every Store backend
// ABOUTME: Runs the same cases against Redis (miniredis), SQLite and memory

package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-concierge/internal/store"
)

// harness wraps a backend with a way to move its expiry clock.
type harness struct {
	store   Store
	advance func(time.Duration)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func newRedisHarness(t *testing.T) harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return harness{
		store:   NewRedisStore(client, Options{}, nil),
		advance: mr.FastForward,
	}
}

func newSQLiteHarness(t *testing.T) harness {
	t.Helper()
	catalog, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "concierge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	s, err := NewSQLiteStore(catalog.DB(), Options{}, nil)
	require.NoError(t, err)

	clock := newFakeClock()
	s.now = clock.Now
	return harness{store: s, advance: clock.Advance}
}

func newMemoryHarness(t *testing.T) harness {
	t.Helper()
	s := NewMemoryStore(Options{})
	clock := newFakeClock()
	s.Now = clock.Now
	return harness{store: s, advance: clock.Advance}
}

var backends = map[string]func(t *testing.T) harness{
	"redis":  newRedisHarness,
	"sqlite": newSQLiteHarness,
	"memory": newMemoryHarness,
}

func forEachBackend(t *testing.T, fn func(t *testing.T, h harness)) {
	for name, newHarness := range backends {
		t.Run(name, func(t *testing.T) {
			fn(t, newHarness(t))
		})
	}
}

func TestStore_GetAbsent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		sess, err := h.store.Get(context.Background(), "+1555")
		require.NoError(t, err)
		assert.Nil(t, sess)
		assert.Equal(t, Idle{}, sess.Current())
	})
}

func TestStore_PutGetEveryState(t *testing.T) {
	products := []store.Product{
		{ID: "rec1", Name: "Red Shoes", Price: 20},
		{ID: "rec9", Name: "Red Hat", Price: 12.5, Description: "wide brim"},
	}
	states := []State{
		Idle{},
		AwaitingSearchInput{},
		NewShowingResults(products),
		CollectingFeedback{ProductID: "rec1", ProductName: "Red Shoes"},
		BrowsingFAQ{},
	}

	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		for _, st := range states {
			require.NoError(t, h.store.Put(ctx, "u", &Session{State: st}))

			got, err := h.store.Get(ctx, "u")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, st.Name(), got.Current().Name())
			assert.False(t, got.UpdatedAt.IsZero())

			if results, ok := got.State.(ShowingResults); ok {
				assert.Equal(t, products, results.Products())
				p, found := results.Find("rec9")
				assert.True(t, found)
				assert.Equal(t, "Red Hat", p.Name)
			}
			if fb, ok := got.State.(CollectingFeedback); ok {
				assert.Equal(t, "rec1", fb.ProductID)
			}
		}
	})
}

func TestStore_PutOverwrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		require.NoError(t, h.store.Put(ctx, "u", &Session{State: NewShowingResults([]store.Product{{ID: "a"}})}))
		require.NoError(t, h.store.Put(ctx, "u", &Session{State: BrowsingFAQ{}}))

		got, err := h.store.Get(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, BrowsingFAQ{}, got.State)
	})
}

func TestStore_HistoryBoundedNewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		for i := 0; i < 60; i++ {
			require.NoError(t, h.store.AppendHistory(ctx, "u", Entry{
				Direction: store.DirectionReceived,
				Content:   fmt.Sprintf("msg-%d", i),
			}))
		}

		all, err := h.store.GetHistory(ctx, "u", 0)
		require.NoError(t, err)
		require.Len(t, all, DefaultHistoryLimit)
		assert.Equal(t, "msg-59", all[0].Content)
		assert.Equal(t, "msg-10", all[len(all)-1].Content)
		assert.Equal(t, store.DirectionReceived, all[0].Direction)
		assert.False(t, all[0].Timestamp.IsZero())

		some, err := h.store.GetHistory(ctx, "u", 3)
		require.NoError(t, err)
		require.Len(t, some, 3)
		assert.Equal(t, "msg-57", some[2].Content)

		capped, err := h.store.GetHistory(ctx, "u", 500)
		require.NoError(t, err)
		assert.Len(t, capped, DefaultHistoryLimit)
	})
}

func TestStore_HistoryDoesNotCreateSession(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		require.NoError(t, h.store.AppendHistory(ctx, "u", Entry{Direction: store.DirectionReceived, Content: "hi"}))

		sess, err := h.store.Get(ctx, "u")
		require.NoError(t, err)
		assert.Nil(t, sess)

		n, err := h.store.CountActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		require.NoError(t, h.store.Put(ctx, "u", &Session{State: AwaitingSearchInput{}}))
		require.NoError(t, h.store.AppendHistory(ctx, "u", Entry{Direction: store.DirectionReceived, Content: "x"}))

		require.NoError(t, h.store.Clear(ctx, "u"))
		require.NoError(t, h.store.Clear(ctx, "u"))
		require.NoError(t, h.store.Clear(ctx, "never-seen"))

		sess, err := h.store.Get(ctx, "u")
		require.NoError(t, err)
		assert.Nil(t, sess)

		hist, err := h.store.GetHistory(ctx, "u", 0)
		require.NoError(t, err)
		assert.Empty(t, hist)
	})
}

func TestStore_ClearLeavesOtherUsers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		require.NoError(t, h.store.Put(ctx, "a", &Session{State: BrowsingFAQ{}}))
		require.NoError(t, h.store.Put(ctx, "b", &Session{State: BrowsingFAQ{}}))
		require.NoError(t, h.store.Clear(ctx, "a"))

		got, err := h.store.Get(ctx, "b")
		require.NoError(t, err)
		require.NotNil(t, got)
	})
}

func TestStore_ExpiresTogether(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		require.NoError(t, h.store.AppendHistory(ctx, "u", Entry{Direction: store.DirectionReceived, Content: "old"}))
		require.NoError(t, h.store.Put(ctx, "u", &Session{State: AwaitingSearchInput{}}))

		h.advance(DefaultTTL + time.Second)

		sess, err := h.store.Get(ctx, "u")
		require.NoError(t, err)
		assert.Nil(t, sess)

		hist, err := h.store.GetHistory(ctx, "u", 0)
		require.NoError(t, err)
		assert.Empty(t, hist)

		// A returning user starts with a clean history
		require.NoError(t, h.store.AppendHistory(ctx, "u", Entry{Direction: store.DirectionReceived, Content: "new"}))
		hist, err = h.store.GetHistory(ctx, "u", 0)
		require.NoError(t, err)
		require.Len(t, hist, 1)
		assert.Equal(t, "new", hist[0].Content)
	})
}

func TestStore_PutRefreshesHistoryClock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		require.NoError(t, h.store.AppendHistory(ctx, "u", Entry{Direction: store.DirectionReceived, Content: "hi"}))

		h.advance(20 * time.Hour)
		require.NoError(t, h.store.Put(ctx, "u", &Session{State: Idle{}}))
		h.advance(20 * time.Hour)

		hist, err := h.store.GetHistory(ctx, "u", 0)
		require.NoError(t, err)
		assert.Len(t, hist, 1)

		sess, err := h.store.Get(ctx, "u")
		require.NoError(t, err)
		assert.NotNil(t, sess)
	})
}

func TestStore_CountActive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, h.store.Put(ctx, id, &Session{State: Idle{}}))
		}
		require.NoError(t, h.store.Clear(ctx, "b"))

		n, err := h.store.CountActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NoError(t, h.store.Ping(ctx))
	})
}

func TestStore_ConcurrentUsers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		const users, rounds = 50, 10

		errs := make(chan error, users*rounds*2)
		var wg sync.WaitGroup
		for i := 0; i < users; i++ {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()
				for j := 0; j < rounds; j++ {
					errs <- h.store.AppendHistory(ctx, user, Entry{
						Direction: store.DirectionReceived,
						Content:   fmt.Sprintf("msg %d", j),
					})
					errs <- h.store.Put(ctx, user, &Session{State: AwaitingSearchInput{}})
				}
			}(fmt.Sprintf("user-%d", i))
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		n, err := h.store.CountActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, users, n)

		hist, err := h.store.GetHistory(ctx, "user-7", 0)
		require.NoError(t, err)
		require.Len(t, hist, rounds)
		assert.Equal(t, fmt.Sprintf("msg %d", rounds-1), hist[0].Content)
	})
}
