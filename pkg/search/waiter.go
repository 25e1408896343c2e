package search

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// WaitState is the terminal or intermediate condition reached while waiting
// for streamed answer content.
type WaitState int

const (
	// WaitNavigating is the initial state before DOM-ready.
	WaitNavigating WaitState = iota

	// WaitLoading means the page is ready but no answer container has
	// appeared yet.
	WaitLoading

	// WaitStreaming means answer content has appeared and is still growing.
	WaitStreaming

	// WaitStable means the answer stopped growing for a full observation
	// window and can be extracted. Terminal success.
	WaitStable

	// WaitCaptcha means a verification interstitial was detected. Terminal;
	// the session must hand control to the user.
	WaitCaptcha

	// WaitTimedOut means the ceiling elapsed before the answer stabilized.
	WaitTimedOut
)

func (s WaitState) String() string {
	switch s {
	case WaitNavigating:
		return "navigating"
	case WaitLoading:
		return "loading"
	case WaitStreaming:
		return "streaming"
	case WaitStable:
		return "stable"
	case WaitCaptcha:
		return "captcha"
	case WaitTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// ContentWaiter polls a page until streamed answer content stabilizes.
// Streamed answers grow incrementally, so a single presence check would
// capture a partial answer; content counts as final only after the stability
// threshold of consecutive unchanged snapshots, one poll interval apart.
type ContentWaiter struct {
	Patterns *PatternTable

	// PollInterval is the snapshot sampling period.
	PollInterval time.Duration

	// StableThreshold is the number of consecutive unchanged snapshots
	// required before the content counts as stable.
	StableThreshold int

	// MinContentLength guards against declaring a "thinking" placeholder
	// stable before the answer starts streaming.
	MinContentLength int

	// MaxWait is the overall ceiling for one wait call.
	MaxWait time.Duration

	Log zerolog.Logger
}

// NewContentWaiter returns a waiter with the given pattern table and the
// defaults used by the session manager.
func NewContentWaiter(patterns *PatternTable, log zerolog.Logger) *ContentWaiter {
	return &ContentWaiter{
		Patterns:         patterns,
		PollInterval:     500 * time.Millisecond,
		StableThreshold:  3,
		MinContentLength: 500,
		MaxWait:          30 * time.Second,
		Log:              log,
	}
}

// AwaitAnswerRegion waits for the AI answer container to first appear after
// navigation, the Navigating → Loading → Streaming leg of the wait. It
// returns WaitCaptcha as soon as a verification page is detected, and
// WaitStreaming once the answer label or container shows up. A page that
// never shows either within a few polls is reported as WaitLoading; the
// caller decides whether that is fatal.
func (w *ContentWaiter) AwaitAnswerRegion(ctx context.Context, page Page) WaitState {
	for attempt := 0; attempt < 4; attempt++ {
		content, err := pageText(page)
		if err == nil {
			if w.Patterns.IsCaptchaText(content) {
				return WaitCaptcha
			}
			if w.Patterns.HasAnswerLabel(content) {
				return WaitStreaming
			}
		}
		if anySelectorVisible(page, w.Patterns.AnswerSelectors) {
			return WaitStreaming
		}
		if !w.sleep(ctx, 2*w.PollInterval) {
			return WaitTimedOut
		}
	}
	return WaitLoading
}

// AwaitStable blocks until the answer content reaches a terminal state:
// WaitStable, WaitCaptcha, or WaitTimedOut.
func (w *ContentWaiter) AwaitStable(ctx context.Context, page Page) WaitState {
	deadline := time.Now().Add(w.MaxWait)
	lastLength := -1
	stableCount := 0

	for time.Now().Before(deadline) {
		content, err := pageText(page)
		if err != nil {
			w.Log.Warn().Err(err).Msg("content snapshot failed")
			if !w.sleep(ctx, w.PollInterval) {
				return WaitTimedOut
			}
			continue
		}

		// Captcha wins over every other signal and is re-checked on each poll.
		if w.Patterns.IsCaptchaText(content) {
			return WaitCaptcha
		}

		length := len(content)

		// A visible follow-up input means generation finished even if the
		// text happens to still be settling.
		if length >= w.MinContentLength && anySelectorVisible(page, w.Patterns.FollowUpSelectors) {
			w.Log.Debug().Int("length", length).Msg("follow-up input visible, content stable")
			return WaitStable
		}

		switch {
		case anySelectorVisible(page, w.Patterns.LoadingSelectors) || w.Patterns.IsLoadingText(content):
			stableCount = 0
		case length == lastLength && length >= w.MinContentLength:
			stableCount++
			if stableCount >= w.StableThreshold {
				w.Log.Debug().Int("length", length).Msg("content stable")
				return WaitStable
			}
		case length == lastLength:
			// Unchanged but too short: keep waiting without counting.
		default:
			stableCount = 0
		}

		lastLength = length
		if !w.sleep(ctx, w.PollInterval) {
			return WaitTimedOut
		}
	}

	w.Log.Warn().Dur("max_wait", w.MaxWait).Msg("content did not stabilize")
	return WaitTimedOut
}

// sleep waits for d or until ctx is done. Returns false on cancellation.
func (w *ContentWaiter) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
