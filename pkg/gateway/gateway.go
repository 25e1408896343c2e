// Package gateway fronts the session pool for MCP clients. It serializes
// access to the browser, enforces a per-request deadline, and backs off
// after verification failures.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/entrhq/scout/pkg/search"
)

// Options tunes the gateway.
type Options struct {
	// RequestTimeout bounds one search end to end. A request that overruns
	// is abandoned; its session finishes in the background.
	RequestTimeout time.Duration

	// CooldownWindow is how long new searches are refused after a
	// verification timeout.
	CooldownWindow time.Duration
}

// DefaultOptions returns the gateway defaults.
func DefaultOptions() Options {
	return Options{
		RequestTimeout: 3 * time.Minute,
		CooldownWindow: 5 * time.Minute,
	}
}

// SearchRequest is one incoming search call.
type SearchRequest struct {
	Query     string
	Language  string
	FollowUp  bool
	SessionID string
}

// SearchResponse is the gateway's answer, already formatted for the client.
type SearchResponse struct {
	// Markdown is the rendered result or error text.
	Markdown string

	// SessionID identifies the session that served the request, when one
	// was involved.
	SessionID string

	// OK reports whether the search produced an answer.
	OK bool
}

// Gateway coordinates search requests against the pool. One search runs at
// a time; concurrent callers are rejected immediately rather than queued, so
// clients see backpressure instead of silent latency.
type Gateway struct {
	pool *search.SessionPool
	opts Options
	log  zerolog.Logger

	mu            sync.Mutex
	busy          bool
	cooldownUntil time.Time

	now func() time.Time
}

// New creates a gateway over the given pool.
func New(pool *search.SessionPool, opts Options, log zerolog.Logger) *Gateway {
	return &Gateway{
		pool: pool,
		opts: opts,
		log:  log,
		now:  time.Now,
	}
}

// Search runs one search request. Every outcome, including rejections, comes
// back as a SearchResponse; the error return is reserved for context
// cancellation.
func (g *Gateway) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return SearchResponse{Markdown: "Error: query must not be empty"}, nil
	}

	if resp, rejected := g.admit(); rejected {
		return resp, nil
	}
	defer g.release()

	session, id := g.pool.GetOrCreate(req.SessionID)
	g.log.Info().Str("session", id).Str("query", req.Query).Bool("follow_up", req.FollowUp).Msg("search request")

	result, err := g.runWithTimeout(ctx, session, req)
	if err != nil {
		return SearchResponse{}, err
	}

	if !result.Success && isVerificationTimeout(result.Error) {
		g.armCooldown()
	}

	if !result.Success {
		return SearchResponse{
			Markdown:  FormatError(result),
			SessionID: id,
		}, nil
	}
	return SearchResponse{
		Markdown:  FormatResult(result, id),
		SessionID: id,
		OK:        true,
	}, nil
}

// CloseSession shuts down one session. Reports whether it existed.
func (g *Gateway) CloseSession(id string) bool {
	return g.pool.Close(id)
}

// admit checks the busy flag and the cooldown window, claiming the gateway
// when neither applies.
func (g *Gateway) admit() (SearchResponse, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if remaining := g.cooldownUntil.Sub(g.now()); remaining > 0 {
		return SearchResponse{
			Markdown: fmt.Sprintf(
				"Error: search is cooling down after a failed verification challenge. Retry in %s.",
				remaining.Round(time.Second)),
		}, true
	}
	if g.busy {
		return SearchResponse{
			Markdown: "Error: another search is already in progress. Retry when it completes.",
		}, true
	}
	g.busy = true
	return SearchResponse{}, false
}

func (g *Gateway) release() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
}

func (g *Gateway) armCooldown() {
	g.mu.Lock()
	g.cooldownUntil = g.now().Add(g.opts.CooldownWindow)
	g.mu.Unlock()
	g.log.Warn().Dur("cooldown", g.opts.CooldownWindow).Msg("verification timed out, cooling down")
}

// runWithTimeout executes the session call under the request deadline. On
// timeout the call keeps running in the background so the session is not
// left in a torn state; only this request gives up on it.
func (g *Gateway) runWithTimeout(ctx context.Context, session search.Searcher, req SearchRequest) (search.SearchResult, error) {
	done := make(chan search.SearchResult, 1)
	go func() {
		if req.FollowUp {
			done <- session.ContinueConversation(ctx, req.Query)
		} else {
			done <- session.Search(ctx, req.Query, req.Language)
		}
	}()

	timer := time.NewTimer(g.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case result := <-done:
		return result, nil
	case <-ctx.Done():
		return search.SearchResult{}, ctx.Err()
	case <-timer.C:
		g.log.Warn().Str("query", req.Query).Dur("timeout", g.opts.RequestTimeout).Msg("request timed out")
		return search.FailureResult(req.Query,
			fmt.Sprintf("request timed out after %s; the session keeps working in the background, retry shortly", g.opts.RequestTimeout)), nil
	}
}

// isVerificationTimeout classifies failures that should arm the cooldown:
// the user was shown a verification challenge and did not complete it.
func isVerificationTimeout(errMsg string) bool {
	return strings.Contains(strings.ToLower(errMsg), "verification timeout")
}
