// ABOUTME: Tests for the dispatch engine state machine
// ABOUTME: Drives every state through commands, transitions and failure paths

package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-concierge/internal/reply"
	"github.com/2389/coven-concierge/internal/session"
	"github.com/2389/coven-concierge/internal/store"
)

type fixture struct {
	engine   *Engine
	sessions *session.MemoryStore
	catalog  *store.MockStore
	observer *recordingObserver
}

type recordingObserver struct {
	mu       sync.Mutex
	routes   []string
	outcomes []string
	failures []string
}

func (r *recordingObserver) ObserveDispatch(route, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingObserver) ObserveFailure(kind, op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, kind+":"+op)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	catalog := store.NewMockStore()
	for _, p := range []store.Product{
		{ID: "rec1", Name: "Red Shoes", Price: 20, Description: "Bright running shoes", Category: "footwear"},
		{ID: "rec2", Name: "Blue Socks", Price: 4.5, Description: "Cotton", Category: "socks"},
		{ID: "rec3", Name: "Green Shoes", Price: 35, Description: "Trail shoes", Category: "footwear"},
	} {
		p := p
		require.NoError(t, catalog.UpsertProduct(ctx, &p))
	}
	for _, f := range []store.FAQ{
		{ID: "faq1", Question: "When are you open?", Answer: "Monday to Friday."},
		{ID: "faq2", Question: "Do you ship abroad?", Answer: "Yes, worldwide."},
	} {
		f := f
		require.NoError(t, catalog.UpsertFAQ(ctx, &f))
	}

	sessions := session.NewMemoryStore(session.Options{})
	observer := &recordingObserver{}
	engine := New(sessions, catalog, Options{Observer: observer}, nil)

	return &fixture{engine: engine, sessions: sessions, catalog: catalog, observer: observer}
}

func (f *fixture) send(t *testing.T, user, text string) reply.Reply {
	t.Helper()
	out := f.engine.Handle(context.Background(), user, text)
	require.NotNil(t, out)
	return out
}

func (f *fixture) state(t *testing.T, user string) session.State {
	t.Helper()
	sess, err := f.sessions.Get(context.Background(), user)
	require.NoError(t, err)
	return sess.Current()
}

func (f *fixture) stored(t *testing.T, user string) *session.Session {
	t.Helper()
	sess, err := f.sessions.Get(context.Background(), user)
	require.NoError(t, err)
	return sess
}

func TestHandle_FirstMessageShowsRootMenu(t *testing.T) {
	f := newFixture(t)

	out := f.send(t, "+1999", "hello there")

	menu, ok := out.(reply.ButtonSet)
	require.True(t, ok, "expected ButtonSet, got %T", out)
	assert.Equal(t, msgIdleMenu, menu.Content)
	assert.Equal(t, []string{"products", "faq", "support"}, reply.OptionIDs(menu))

	// The idle branch creates the session lazily
	require.NotNil(t, f.stored(t, "+1999"))
	assert.Equal(t, session.Idle{}, f.state(t, "+1999"))
}

func TestHandle_ProductSearchScenario(t *testing.T) {
	f := newFixture(t)
	// Narrow the catalog to the single expected match
	f.catalog = store.NewMockStore()
	require.NoError(t, f.catalog.UpsertProduct(context.Background(), &store.Product{ID: "rec1", Name: "Red Shoes", Price: 20}))
	f.engine = New(f.sessions, f.catalog, Options{}, nil)

	out := f.send(t, "+1555", "products")
	assert.Equal(t, reply.Text{Content: msgSearchPrompt}, out)
	assert.Equal(t, session.AwaitingSearchInput{}, f.state(t, "+1555"))

	out = f.send(t, "+1555", "red shoes")
	list, ok := out.(reply.SelectableList)
	require.True(t, ok, "expected SelectableList, got %T", out)
	require.Len(t, list.Sections, 1)
	require.Len(t, list.Sections[0].Rows, 1)
	assert.Equal(t, "rec1", list.Sections[0].Rows[0].ID)
	assert.Equal(t, "Red Shoes - $20", list.Sections[0].Rows[0].Label)

	results, ok := f.state(t, "+1555").(session.ShowingResults)
	require.True(t, ok)
	assert.Equal(t, []store.Product{{ID: "rec1", Name: "Red Shoes", Price: 20}}, results.Products())
	_, found := results.Find("rec1")
	assert.True(t, found)
}

func TestHandle_SearchWithoutResultsKeepsState(t *testing.T) {
	f := newFixture(t)
	f.send(t, "u", "products")

	out := f.send(t, "u", "umbrella")

	assert.Equal(t, reply.Text{Content: msgNoResults}, out)
	assert.Equal(t, session.AwaitingSearchInput{}, f.state(t, "u"))
}

func TestHandle_SearchResultsPreserveCatalogOrder(t *testing.T) {
	f := newFixture(t)
	f.send(t, "u", "products")

	out := f.send(t, "u", "shoes")

	list := out.(reply.SelectableList)
	assert.Equal(t, []string{"rec3", "rec1"}, reply.OptionIDs(list))

	results := f.state(t, "u").(session.ShowingResults)
	require.Len(t, results.Products(), 2)
	assert.Equal(t, "rec3", results.Products()[0].ID)
}

func TestHandle_SelectResultThenLeaveFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "u", "products")
	f.send(t, "u", "shoes")

	out := f.send(t, "u", "rec1")
	detail, ok := out.(reply.ButtonSet)
	require.True(t, ok)
	assert.Contains(t, detail.Content, "Product: Red Shoes")
	assert.Contains(t, detail.Content, "Price: $20")
	assert.Equal(t, []string{"yes", "no"}, reply.OptionIDs(detail))
	assert.Equal(t, session.CollectingFeedback{ProductID: "rec1", ProductName: "Red Shoes"}, f.state(t, "u"))

	out = f.send(t, "u", "Love the colour")
	assert.Equal(t, reply.Text{Content: msgFeedbackThank}, out)
	assert.Equal(t, session.Idle{}, f.state(t, "u"))

	fb, err := f.catalog.ListFeedback(ctx, store.FeedbackFilter{})
	require.NoError(t, err)
	require.Len(t, fb, 1)
	assert.Equal(t, "u", fb[0].UserID)
	assert.Equal(t, "rec1", fb[0].ProductID)
	assert.Equal(t, "Love the colour", fb[0].Text)
	assert.Equal(t, store.FeedbackStatusNew, fb[0].Status)
}

func TestHandle_SelectionOutsideResultsFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.send(t, "u", "products")
	f.send(t, "u", "shoes")
	before := f.stored(t, "u")

	// rec2 exists in the catalog but was not in this result set
	out := f.send(t, "u", "rec2")

	assert.Equal(t, reply.Text{Content: msgUnknown}, out)
	after := f.stored(t, "u")
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt, "fall-through must not persist")
	results, ok := after.State.(session.ShowingResults)
	require.True(t, ok)
	assert.Len(t, results.Products(), 2)
}

func TestHandle_FAQFlow(t *testing.T) {
	f := newFixture(t)

	out := f.send(t, "u", "faq")
	list, ok := out.(reply.SelectableList)
	require.True(t, ok)
	assert.Equal(t, "Frequently Asked Questions", list.Sections[0].Title)
	assert.Equal(t, []string{"faq2", "faq1"}, reply.OptionIDs(list))
	assert.Equal(t, session.BrowsingFAQ{}, f.state(t, "u"))

	out = f.send(t, "u", "nope")
	assert.Equal(t, reply.Text{Content: msgUnknown}, out)
	assert.Equal(t, session.BrowsingFAQ{}, f.state(t, "u"))

	out = f.send(t, "u", "faq1")
	assert.Equal(t, reply.Text{Content: "Q: When are you open?\n\nA: Monday to Friday."}, out)
	assert.Equal(t, session.Idle{}, f.state(t, "u"))
}

func TestHandle_FAQWithEmptyCatalog(t *testing.T) {
	sessions := session.NewMemoryStore(session.Options{})
	e := New(sessions, store.NewMockStore(), Options{}, nil)

	out := e.Handle(context.Background(), "u", "faq")

	list, ok := out.(reply.SelectableList)
	require.True(t, ok, "got %T", out)
	require.Len(t, list.Sections, 1)
	assert.Equal(t, "Frequently Asked Questions", list.Sections[0].Title)
	assert.Empty(t, list.Sections[0].Rows)

	sess, err := sessions.Get(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, session.BrowsingFAQ{}, sess.Current())

	// nothing to select, so any answer falls through and keeps the state
	out = e.Handle(context.Background(), "u", "faq1")
	assert.Equal(t, reply.Text{Content: msgUnknown}, out)
	sess, err = sessions.Get(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, session.BrowsingFAQ{}, sess.Current())
}

func TestHandle_SupportLeavesStateAlone(t *testing.T) {
	f := newFixture(t)
	f.send(t, "u", "products")

	out := f.send(t, "u", "support")

	assert.Equal(t, reply.Text{Content: DefaultSupportMessage}, out)
	assert.Equal(t, session.AwaitingSearchInput{}, f.state(t, "u"))
}

func TestHandle_ConfiguredSupportMessage(t *testing.T) {
	e := New(session.NewMemoryStore(session.Options{}), store.NewMockStore(), Options{SupportMessage: "Call us."}, nil)
	assert.Equal(t, reply.Text{Content: "Call us."}, e.Handle(context.Background(), "u", "support"))
}

func TestHandle_CommandsPreemptState(t *testing.T) {
	f := newFixture(t)
	f.send(t, "u", "products")

	// "faq" is a command, not a search query
	out := f.send(t, "u", "  FAQ ")

	assert.IsType(t, reply.SelectableList{}, out)
	assert.Equal(t, session.BrowsingFAQ{}, f.state(t, "u"))
}

func TestHandle_StartResetsFromEveryState(t *testing.T) {
	drivers := map[string][]string{
		"idle":                {"hi"},
		"awaiting_search":     {"products"},
		"showing_results":     {"products", "shoes"},
		"collecting_feedback": {"products", "shoes", "rec1"},
		"browsing_faq":        {"faq"},
	}

	for name, msgs := range drivers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			for _, m := range msgs {
				f.send(t, "u", m)
			}
			require.NotNil(t, f.stored(t, "u"))

			out := f.send(t, "u", "Start")

			menu, ok := out.(reply.ButtonSet)
			require.True(t, ok)
			assert.Equal(t, msgWelcome, menu.Content)
			assert.Equal(t, session.Idle{}, f.state(t, "u"))

			hist, err := f.sessions.GetHistory(context.Background(), "u", 0)
			require.NoError(t, err)
			assert.Empty(t, hist)
		})
	}
}

func TestHandle_RecordsBothSidesInHistory(t *testing.T) {
	f := newFixture(t)
	f.send(t, "u", "products")
	results := f.send(t, "u", "red shoes")

	hist, err := f.sessions.GetHistory(context.Background(), "u", 0)
	require.NoError(t, err)
	require.Len(t, hist, 4)

	assert.Equal(t, store.DirectionSent, hist[0].Direction)
	assert.Equal(t, results.Body(), hist[0].Content)
	assert.Equal(t, store.DirectionReceived, hist[1].Direction)
	assert.Equal(t, "red shoes", hist[1].Content)
	assert.Equal(t, store.DirectionSent, hist[2].Direction)
	assert.Equal(t, msgSearchPrompt, hist[2].Content)
	assert.Equal(t, store.DirectionReceived, hist[3].Direction)
	assert.Equal(t, "products", hist[3].Content)
}

func TestHandle_FailedDispatchRecordsOnlyInbound(t *testing.T) {
	f := newFixture(t)
	f.send(t, "u", "products")
	f.catalog.SetErr(errors.New("connection reset"))

	f.send(t, "u", "shoes")

	hist, err := f.sessions.GetHistory(context.Background(), "u", 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, store.DirectionReceived, hist[0].Direction)
	assert.Equal(t, "shoes", hist[0].Content)
}

func TestHandle_MalformedSessionTreatedAsIdle(t *testing.T) {
	f := newFixture(t)
	f.sessions.PutRaw("u", []byte(`{"state":"showing_results","context":{"product_id":"x"}}`))

	out := f.send(t, "u", "rec1")

	menu, ok := out.(reply.ButtonSet)
	require.True(t, ok)
	assert.Equal(t, msgIdleMenu, menu.Content)
	assert.Equal(t, session.Idle{}, f.state(t, "u"))
}

func TestHandle_UpstreamFailureLeavesState(t *testing.T) {
	f := newFixture(t)
	f.send(t, "u", "products")
	f.catalog.SetErr(errors.New("connection reset"))

	out := f.send(t, "u", "shoes")

	assert.Equal(t, reply.Text{Content: msgError}, out)
	assert.Equal(t, session.AwaitingSearchInput{}, f.state(t, "u"))
	assert.Contains(t, f.observer.failures, "upstream:state:awaiting_search_input")
}

func TestHandle_FeedbackSaveFailureLeavesState(t *testing.T) {
	f := newFixture(t)
	f.send(t, "u", "products")
	f.send(t, "u", "shoes")
	f.send(t, "u", "rec1")
	f.catalog.SetErr(errors.New("timeout"))

	out := f.send(t, "u", "great")

	assert.Equal(t, reply.Text{Content: msgError}, out)
	assert.IsType(t, session.CollectingFeedback{}, f.state(t, "u"))
}

func TestHandle_FAQListFailure(t *testing.T) {
	f := newFixture(t)
	f.catalog.SetErr(errors.New("down"))

	out := f.send(t, "u", "faq")

	assert.Equal(t, reply.Text{Content: msgError}, out)
	assert.Nil(t, f.stored(t, "u"))
}

func TestHandle_SessionStoreDown(t *testing.T) {
	f := newFixture(t)
	f.sessions.SetErr(errors.New("connection refused"))

	out := f.send(t, "u", "products")

	assert.Equal(t, reply.Text{Content: msgError}, out)
	assert.Contains(t, f.observer.failures, "session:load")
	assert.Equal(t, []string{"error"}, f.observer.outcomes)
}

// flakyStore fails selected operations of an otherwise working store.
type flakyStore struct {
	session.Store
	appendErr error
	putErr    error
}

func (s *flakyStore) AppendHistory(ctx context.Context, userID string, e session.Entry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.Store.AppendHistory(ctx, userID, e)
}

func (s *flakyStore) Put(ctx context.Context, userID string, sess *session.Session) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.Store.Put(ctx, userID, sess)
}

func TestHandle_HistoryFailureIsNotFatal(t *testing.T) {
	mem := session.NewMemoryStore(session.Options{})
	flaky := &flakyStore{Store: mem, appendErr: fmt.Errorf("%w: boom", session.ErrStorageUnavailable)}
	e := New(flaky, store.NewMockStore(), Options{}, nil)

	out := e.Handle(context.Background(), "u", "products")

	assert.Equal(t, reply.Text{Content: msgSearchPrompt}, out)
	sess, err := mem.Get(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, session.AwaitingSearchInput{}, sess.Current())
}

func TestHandle_PutFailureApologizes(t *testing.T) {
	mem := session.NewMemoryStore(session.Options{})
	flaky := &flakyStore{Store: mem, putErr: fmt.Errorf("%w: boom", session.ErrStorageUnavailable)}
	e := New(flaky, store.NewMockStore(), Options{}, nil)

	out := e.Handle(context.Background(), "u", "products")

	assert.Equal(t, reply.Text{Content: msgError}, out)
	sess, err := mem.Get(context.Background(), "u")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestHandle_ObserverRoutes(t *testing.T) {
	f := newFixture(t)
	f.send(t, "u", "hi")
	f.send(t, "u", "products")
	f.send(t, "u", "shoes")

	assert.Equal(t, []string{"state:idle", "command:products", "state:awaiting_search_input"}, f.observer.routes)
	assert.Equal(t, []string{"ok", "ok", "ok"}, f.observer.outcomes)
}

func TestHandle_ConcurrentUsersAreIndependent(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("+1555%04d", i)
			f.engine.Handle(context.Background(), user, "products")
			f.engine.Handle(context.Background(), user, "shoes")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 25; i++ {
		user := fmt.Sprintf("+1555%04d", i)
		assert.IsType(t, session.ShowingResults{}, f.state(t, user), user)
	}
}
