package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeSearcher records pool interactions without touching a browser.
type fakeSearcher struct {
	mu           sync.Mutex
	id           string
	closed       bool
	lastActivity time.Time
	createdAt    time.Time
	searchCount  int
	result       SearchResult
	block        chan struct{}

	// closeBlock, when set, makes Close wait until the channel is closed,
	// the way a real session blocks behind an in-flight browser operation.
	// closeEntered is closed once Close has been called.
	closeBlock   chan struct{}
	closeEntered chan struct{}
}

func newFakeSearcher(id string) *fakeSearcher {
	now := time.Now()
	return &fakeSearcher{
		id:           id,
		lastActivity: now,
		createdAt:    now,
		result:       SuccessResult("q", "answer", nil),
	}
}

func (f *fakeSearcher) ID() string { return f.id }

func (f *fakeSearcher) Search(ctx context.Context, query, language string) SearchResult {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.searchCount++
	f.lastActivity = time.Now()
	f.mu.Unlock()
	r := f.result
	r.Query = query
	return r
}

func (f *fakeSearcher) ContinueConversation(ctx context.Context, query string) SearchResult {
	return f.Search(ctx, query, "")
}

func (f *fakeSearcher) HasActiveSession() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeSearcher) CreatedAt() time.Time { return f.createdAt }

func (f *fakeSearcher) LastActivity() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActivity
}

func (f *fakeSearcher) SearchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCount
}

func (f *fakeSearcher) Close() error {
	f.mu.Lock()
	entered := f.closeEntered
	blocked := f.closeBlock
	f.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if blocked != nil {
		<-blocked
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSearcher) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newFakePool(opts PoolOptions) (*SessionPool, map[string]*fakeSearcher) {
	created := map[string]*fakeSearcher{}
	pool := NewSessionPoolWithFactory(opts, func(id string) Searcher {
		f := newFakeSearcher(id)
		created[id] = f
		return f
	}, zerolog.Nop())
	return pool, created
}

func TestPoolGetOrCreateNewSession(t *testing.T) {
	pool, _ := newFakePool(DefaultPoolOptions())

	s, id := pool.GetOrCreate("")
	if id == "" {
		t.Fatal("expected a generated session id")
	}
	if s.ID() != id {
		t.Errorf("session id mismatch: %s vs %s", s.ID(), id)
	}
	if pool.Len() != 1 {
		t.Errorf("pool size = %d, want 1", pool.Len())
	}
}

func TestPoolGetOrCreateReusesById(t *testing.T) {
	pool, _ := newFakePool(DefaultPoolOptions())

	s1, id := pool.GetOrCreate("")
	s2, id2 := pool.GetOrCreate(id)

	if id2 != id {
		t.Errorf("id changed: %s vs %s", id2, id)
	}
	if s1 != s2 {
		t.Error("expected the same session instance")
	}
	if pool.Len() != 1 {
		t.Errorf("pool size = %d, want 1", pool.Len())
	}
}

func TestPoolUnknownIdCreatesFresh(t *testing.T) {
	pool, _ := newFakePool(DefaultPoolOptions())

	_, id := pool.GetOrCreate("no-such-session")
	if id != "no-such-session" {
		t.Errorf("requested id must be honored, got %s", id)
	}
	if pool.Len() != 1 {
		t.Errorf("pool size = %d, want 1", pool.Len())
	}
}

func TestPoolEvictsLeastRecentlyUsed(t *testing.T) {
	opts := DefaultPoolOptions()
	opts.MaxSessions = 2
	pool, created := newFakePool(opts)

	_, oldID := pool.GetOrCreate("")
	time.Sleep(5 * time.Millisecond)
	_, newID := pool.GetOrCreate("")

	// Touch the newer session so the older one is the LRU.
	pool.Get(newID).Search(context.Background(), "touch", "")

	_, thirdID := pool.GetOrCreate("")

	if pool.Len() != 2 {
		t.Fatalf("pool size = %d, want 2", pool.Len())
	}
	if pool.Get(oldID) != nil {
		t.Error("LRU session was not evicted")
	}
	if !created[oldID].isClosed() {
		t.Error("evicted session was not closed")
	}
	if pool.Get(newID) == nil || pool.Get(thirdID) == nil {
		t.Error("survivors missing from pool")
	}
}

func TestPoolEvictionDoesNotBlockPool(t *testing.T) {
	opts := DefaultPoolOptions()
	opts.MaxSessions = 1
	pool, created := newFakePool(opts)

	_, victimID := pool.GetOrCreate("")
	victim := created[victimID]
	victim.mu.Lock()
	victim.closeBlock = make(chan struct{})
	victim.closeEntered = make(chan struct{})
	victim.mu.Unlock()

	admitted := make(chan string)
	go func() {
		_, id := pool.GetOrCreate("")
		admitted <- id
	}()

	select {
	case <-victim.closeEntered:
	case <-time.After(time.Second):
		t.Fatal("eviction never reached Close")
	}

	// With the victim's Close still in flight, other pool operations
	// must not be stuck behind it.
	lenDone := make(chan int)
	go func() { lenDone <- pool.Len() }()
	select {
	case n := <-lenDone:
		if n != 0 {
			t.Errorf("pool size during eviction = %d, want 0", n)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Len blocked behind a pending eviction")
	}

	// The replacement is only admitted once the victim is closed.
	select {
	case id := <-admitted:
		t.Fatalf("session %s admitted before the evicted one closed", id)
	case <-time.After(50 * time.Millisecond):
	}

	close(victim.closeBlock)

	select {
	case id := <-admitted:
		if pool.Get(id) == nil {
			t.Error("new session missing from pool")
		}
	case <-time.After(time.Second):
		t.Fatal("GetOrCreate never returned after the victim closed")
	}
	if !victim.isClosed() {
		t.Error("evicted session was not closed")
	}
	if pool.Len() != 1 {
		t.Errorf("pool size = %d, want 1", pool.Len())
	}
}

func TestPoolClose(t *testing.T) {
	pool, created := newFakePool(DefaultPoolOptions())
	_, id := pool.GetOrCreate("")

	if !pool.Close(id) {
		t.Error("Close reported false for a live session")
	}
	if !created[id].isClosed() {
		t.Error("session was not closed")
	}
	if pool.Close(id) {
		t.Error("second Close must report false")
	}
	if pool.Close("unknown") {
		t.Error("Close of unknown id must report false")
	}
}

func TestPoolSweepIdleSessions(t *testing.T) {
	opts := DefaultPoolOptions()
	opts.IdleTimeout = 10 * time.Millisecond
	pool, created := newFakePool(opts)

	_, staleID := pool.GetOrCreate("")
	time.Sleep(20 * time.Millisecond)
	_, freshID := pool.GetOrCreate("")

	swept := pool.Sweep()

	if len(swept) != 1 || swept[0] != staleID {
		t.Errorf("swept = %v, want [%s]", swept, staleID)
	}
	if !created[staleID].isClosed() {
		t.Error("idle session was not closed")
	}
	if pool.Get(freshID) == nil {
		t.Error("fresh session must survive the sweep")
	}
}

func TestPoolSweepSearchBudget(t *testing.T) {
	opts := DefaultPoolOptions()
	opts.MaxSearchesPerSession = 2
	pool, created := newFakePool(opts)

	s, id := pool.GetOrCreate("")
	s.Search(context.Background(), "one", "")
	s.Search(context.Background(), "two", "")

	swept := pool.Sweep()
	if len(swept) != 1 || swept[0] != id {
		t.Errorf("swept = %v, want [%s]", swept, id)
	}
	if !created[id].isClosed() {
		t.Error("spent session was not closed")
	}
}

func TestPoolCloseAll(t *testing.T) {
	pool, created := newFakePool(DefaultPoolOptions())
	for i := 0; i < 3; i++ {
		pool.GetOrCreate("")
	}

	pool.CloseAll()

	if pool.Len() != 0 {
		t.Errorf("pool size after CloseAll = %d", pool.Len())
	}
	for id, f := range created {
		if !f.isClosed() {
			t.Errorf("session %s left open", id)
		}
	}
}
