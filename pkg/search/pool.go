package search

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Searcher is what the pool manages. SessionManager is the production
// implementation.
type Searcher interface {
	ID() string
	Search(ctx context.Context, query, language string) SearchResult
	ContinueConversation(ctx context.Context, query string) SearchResult
	HasActiveSession() bool
	CreatedAt() time.Time
	LastActivity() time.Time
	SearchCount() int
	Close() error
}

// PoolOptions tunes the session pool.
type PoolOptions struct {
	// MaxSessions caps concurrent sessions; the least recently used one is
	// evicted to make room.
	MaxSessions int

	// IdleTimeout closes sessions with no activity for this long.
	IdleTimeout time.Duration

	// MaxSearchesPerSession retires a session after this many searches, so
	// long-lived browser state does not accumulate. Zero disables the cap.
	MaxSearchesPerSession int

	// SweepInterval is how often Run checks for expired sessions.
	SweepInterval time.Duration
}

// DefaultPoolOptions returns the pool defaults.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxSessions:           3,
		IdleTimeout:           10 * time.Minute,
		MaxSearchesPerSession: 50,
		SweepInterval:         time.Minute,
	}
}

// SessionPool owns every live session, keyed by id. It hands out sessions,
// evicts the least recently used one at capacity, and retires sessions that
// idle out or exceed their search budget.
type SessionPool struct {
	mu       sync.Mutex
	sessions map[string]Searcher
	opts     PoolOptions
	factory  func(id string) Searcher
	log      zerolog.Logger
}

// NewSessionPool creates a pool that builds SessionManagers with the given
// manager options.
func NewSessionPool(opts PoolOptions, mgrOpts ManagerOptions, patterns *PatternTable, log zerolog.Logger) *SessionPool {
	p := &SessionPool{
		sessions: make(map[string]Searcher),
		opts:     opts,
		log:      log,
	}
	p.factory = func(id string) Searcher {
		return NewSessionManager(id, mgrOpts, patterns, log)
	}
	return p
}

// NewSessionPoolWithFactory creates a pool with a custom session factory.
func NewSessionPoolWithFactory(opts PoolOptions, factory func(id string) Searcher, log zerolog.Logger) *SessionPool {
	return &SessionPool{
		sessions: make(map[string]Searcher),
		opts:     opts,
		factory:  factory,
		log:      log,
	}
}

// GetOrCreate returns the session with the given id, creating it if needed.
// An empty id allocates a new session under a fresh id. At capacity the
// least recently used session is closed before the new one is admitted; the
// close runs outside the pool lock so a slow teardown of one session cannot
// stall operations on the others.
func (p *SessionPool) GetOrCreate(id string) (Searcher, string) {
	p.mu.Lock()

	if id != "" {
		if s, ok := p.sessions[id]; ok {
			p.mu.Unlock()
			return s, id
		}
	} else {
		id = uuid.NewString()
	}

	for p.opts.MaxSessions > 0 && len(p.sessions) >= p.opts.MaxSessions {
		victimID, victim := p.leastRecentlyUsedLocked()
		if victim == nil {
			break
		}
		delete(p.sessions, victimID)
		p.mu.Unlock()

		if err := victim.Close(); err != nil {
			p.log.Warn().Err(err).Str("session", victimID).Msg("evicted session close failed")
		} else {
			p.log.Info().Str("session", victimID).Msg("evicted least recently used session")
		}

		p.mu.Lock()
	}

	s := p.factory(id)
	p.sessions[id] = s
	size := len(p.sessions)
	p.mu.Unlock()

	p.log.Info().Str("session", id).Int("pool_size", size).Msg("session created")
	return s, id
}

// Get returns the session with the given id, or nil.
func (p *SessionPool) Get(id string) Searcher {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[id]
}

// Close shuts down and removes one session. The session is closed before it
// leaves the map, so its resources are released by the time removal is
// observable. Closing an unknown id is a no-op and reports false.
func (p *SessionPool) Close(id string) bool {
	p.mu.Lock()
	s, ok := p.sessions[id]
	p.mu.Unlock()

	if !ok {
		return false
	}
	if err := s.Close(); err != nil {
		p.log.Warn().Err(err).Str("session", id).Msg("session close failed")
	}

	p.mu.Lock()
	delete(p.sessions, id)
	p.mu.Unlock()
	return true
}

// Len returns the number of live sessions.
func (p *SessionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Sweep retires sessions that idled out or exhausted their search budget.
// It returns the ids it closed.
func (p *SessionPool) Sweep() []string {
	now := time.Now()

	p.mu.Lock()
	var expired []Searcher
	var ids []string
	for id, s := range p.sessions {
		idle := now.Sub(s.LastActivity()) > p.opts.IdleTimeout
		spent := p.opts.MaxSearchesPerSession > 0 && s.SearchCount() >= p.opts.MaxSearchesPerSession
		if idle || spent {
			expired = append(expired, s)
			ids = append(ids, id)
			delete(p.sessions, id)
		}
	}
	p.mu.Unlock()

	for i, s := range expired {
		if err := s.Close(); err != nil {
			p.log.Warn().Err(err).Str("session", ids[i]).Msg("session close failed")
		} else {
			p.log.Info().Str("session", ids[i]).Msg("session retired")
		}
	}
	return ids
}

// CloseAll shuts down every session. Used at server shutdown.
func (p *SessionPool) CloseAll() {
	p.mu.Lock()
	all := make([]Searcher, 0, len(p.sessions))
	for _, s := range p.sessions {
		all = append(all, s)
	}
	p.sessions = make(map[string]Searcher)
	p.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}

// Run sweeps on a ticker until the context ends, then closes everything.
func (p *SessionPool) Run(ctx context.Context) {
	interval := p.opts.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.CloseAll()
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// leastRecentlyUsedLocked picks the eviction victim.
func (p *SessionPool) leastRecentlyUsedLocked() (string, Searcher) {
	var oldestID string
	var oldest time.Time
	for id, s := range p.sessions {
		if oldestID == "" || s.LastActivity().Before(oldest) {
			oldestID = id
			oldest = s.LastActivity()
		}
	}
	if oldestID == "" {
		return "", nil
	}
	return oldestID, p.sessions[oldestID]
}
