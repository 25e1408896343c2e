package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// ManagerState tracks the session lifecycle.
type ManagerState int

const (
	// StateIdle means no browser is running; the next search starts one.
	StateIdle ManagerState = iota

	// StateStarting means the browser is launching.
	StateStarting

	// StateReady means a browser is up and a page is available.
	StateReady

	// StateSearching means a search or follow-up is in flight.
	StateSearching

	// StateVerifying means a visible browser is waiting for the user to
	// complete a verification challenge.
	StateVerifying

	// StateClosed is terminal; Close was called.
	StateClosed
)

// ErrProfileConflict is returned when the session's profile directory is
// already locked by another browser process. Concurrent processes must not
// share a profile directory.
var ErrProfileConflict = errors.New("browser profile directory is locked by another process")

const (
	// verificationTimeout bounds how long a visible browser waits for the
	// user to clear a CAPTCHA.
	verificationTimeout = 5 * time.Minute

	// verificationPollInterval is how often the verification page is
	// re-checked while the user works on it.
	verificationPollInterval = 2 * time.Second

	sessionUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0"
)

// antiDetectionArgs are passed to every browser launch.
var antiDetectionArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-infobars",
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
}

// blockedResourceTypes are aborted by the resource interceptor to cut page
// weight; the answer surface is text.
var blockedResourceTypes = map[string]bool{
	"image": true,
	"font":  true,
	"media": true,
}

// ManagerOptions configures one SessionManager.
type ManagerOptions struct {
	// Headless controls the regular search browser. Verification always
	// uses a visible browser regardless.
	Headless bool

	// BrowserPath overrides browser auto-detection when non-empty.
	BrowserPath string

	// NavigationTimeout bounds one page navigation.
	NavigationTimeout time.Duration

	// ProfileBaseDir is where per-session profile directories live.
	ProfileBaseDir string

	// DefaultLanguage is used when a request omits the language.
	DefaultLanguage string
}

// DefaultManagerOptions returns the options used when the caller provides
// none.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		Headless:          true,
		NavigationTimeout: 30 * time.Second,
		ProfileBaseDir:    filepath.Join(os.TempDir(), "scout-profiles"),
		DefaultLanguage:   "zh-CN",
	}
}

// SessionManager owns one browser plus one conversation page. Operations on
// a single manager are strictly sequential; the internal mutex enforces that
// even if the caller misbehaves. Distinct managers are fully independent.
type SessionManager struct {
	mu sync.Mutex

	id        string
	opts      ManagerOptions
	patterns  *PatternTable
	waiter    *ContentWaiter
	extractor *Extractor
	log       zerolog.Logger

	pw      *playwright.Playwright
	browser playwright.Browser
	brCtx   playwright.BrowserContext
	page    playwright.Page

	state           ManagerState
	createdAt       time.Time
	lastActivityAt  time.Time
	searchCount     int
	hasConversation bool
	language        string
	lastAnswer      string

	blockedGlobs []glob.Glob
}

var (
	installOnce sync.Once
	installErr  error
)

// driverRunOptions silences the driver. It must never write to stdout;
// stdout carries the MCP stream.
func driverRunOptions() *playwright.RunOptions {
	return &playwright.RunOptions{
		Verbose:             false,
		SkipInstallBrowsers: true,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}
}

// ensureDriver installs the driver once per process. Browser downloads are
// skipped; sessions launch a system-installed Chrome or Edge.
func ensureDriver() error {
	installOnce.Do(func() {
		installErr = playwright.Install(driverRunOptions())
	})
	return installErr
}

// NewSessionManager creates an idle manager for the given session id. No
// browser is started until the first search.
func NewSessionManager(id string, opts ManagerOptions, patterns *PatternTable, log zerolog.Logger) *SessionManager {
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	log = log.With().Str("session", id).Logger()

	blocked := make([]glob.Glob, 0, len(patterns.BlockedURLGlobs))
	for _, p := range patterns.BlockedURLGlobs {
		if g, err := glob.Compile(p); err == nil {
			blocked = append(blocked, g)
		}
	}

	now := time.Now()
	return &SessionManager{
		id:             id,
		opts:           opts,
		patterns:       patterns,
		waiter:         NewContentWaiter(patterns, log),
		extractor:      NewExtractor(patterns, log),
		log:            log,
		state:          StateIdle,
		createdAt:      now,
		lastActivityAt: now,
		language:       opts.DefaultLanguage,
		blockedGlobs:   blocked,
	}
}

// ID returns the session id.
func (s *SessionManager) ID() string { return s.id }

// CreatedAt returns the manager creation time.
func (s *SessionManager) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// LastActivity returns the time of the most recent search or follow-up.
func (s *SessionManager) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// SearchCount returns how many searches and follow-ups this session served.
func (s *SessionManager) SearchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchCount
}

// HasActiveSession reports whether a live conversation page exists, i.e. a
// running browser on which a first search has completed.
func (s *SessionManager) HasActiveSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateClosed && s.page != nil && s.hasConversation
}

// Search runs a fresh AI-mode search, starting a browser if needed. All
// failures come back as a failed SearchResult; the manager returns to Idle so
// a later call can retry.
func (s *SessionManager) Search(ctx context.Context, query, language string) SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchLocked(ctx, query, language)
}

func (s *SessionManager) searchLocked(ctx context.Context, query, language string) SearchResult {
	if s.state == StateClosed {
		return FailureResult(query, "session is closed")
	}
	if language == "" {
		language = s.language
	}

	s.lastActivityAt = time.Now()
	s.searchCount++
	s.log.Info().Str("query", query).Str("language", language).Msg("search")

	if err := s.ensureStartedLocked(language); err != nil {
		s.teardownLocked()
		s.state = StateIdle
		return FailureResult(query, userFacingStartError(err))
	}

	s.language = language
	url := BuildURL(query, language)
	s.state = StateSearching
	defer func() {
		if s.state == StateSearching {
			s.state = StateReady
		}
	}()

	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.opts.NavigationTimeout.Milliseconds())),
	}); err != nil {
		s.log.Warn().Err(err).Msg("navigation failed")
		s.teardownLocked()
		s.state = StateIdle
		return FailureResult(query, fmt.Sprintf("navigation timeout: %v (check your network or proxy)", err))
	}

	s.acceptCookieConsent()

	return s.awaitAndExtractLocked(ctx, s.page, query, url, false)
}

// ContinueConversation submits a follow-up question on the live conversation
// page and returns only the newly appended answer content. Without a live
// conversation it falls back to a fresh search in the session's language;
// that fallback is documented behavior, not an error.
func (s *SessionManager) ContinueConversation(ctx context.Context, query string) SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return FailureResult(query, "session is closed")
	}
	if s.page == nil || !s.hasConversation {
		s.log.Info().Msg("no active conversation, falling back to fresh search")
		return s.searchLocked(ctx, query, s.language)
	}

	s.lastActivityAt = time.Now()
	s.searchCount++
	s.log.Info().Str("query", query).Msg("follow-up")

	s.state = StateSearching
	defer func() {
		if s.state == StateSearching {
			s.state = StateReady
		}
	}()

	if !s.submitFollowUp(query) {
		// The page lost its follow-up input; navigate the same browser to a
		// fresh search instead of tearing the session down.
		s.log.Info().Msg("no follow-up input on page, navigating to a new search")
		return s.navigateToNewSearchLocked(ctx, query)
	}

	s.page.WaitForTimeout(1000)
	return s.awaitAndExtractLocked(ctx, s.page, query, "", true)
}

// Close terminates the browser and releases every resource. Idempotent and
// safe in any state.
func (s *SessionManager) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	s.teardownLocked()
	s.state = StateClosed
	s.log.Info().Msg("session closed")
	return nil
}

// ensureStartedLocked launches the browser stack when the manager is idle.
func (s *SessionManager) ensureStartedLocked(language string) error {
	if s.page != nil {
		return nil
	}

	s.state = StateStarting
	s.log.Info().Bool("headless", s.opts.Headless).Msg("starting browser")

	browserPath := s.opts.BrowserPath
	if browserPath == "" {
		var err error
		browserPath, err = FindBrowser()
		if err != nil {
			return err
		}
	}

	if err := s.checkProfileDir(); err != nil {
		return err
	}

	if err := ensureDriver(); err != nil {
		return fmt.Errorf("failed to install driver: %w", err)
	}
	pw, err := playwright.Run(driverRunOptions())
	if err != nil {
		return fmt.Errorf("failed to start driver: %w", err)
	}
	s.pw = pw

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless:       playwright.Bool(s.opts.Headless),
		ExecutablePath: playwright.String(browserPath),
		Args:           antiDetectionArgs,
	}
	if proxy := DetectProxy(); proxy != nil {
		s.log.Info().Str("proxy", proxy.Server()).Msg("using detected proxy")
		launchOpts.Proxy = &playwright.Proxy{Server: proxy.Server()}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	s.browser = browser

	brCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:  &playwright.Size{Width: 1920, Height: 1080},
		UserAgent: playwright.String(sessionUserAgent),
		Locale:    playwright.String(language),
	})
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}
	s.brCtx = brCtx

	page, err := brCtx.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	page.SetDefaultTimeout(float64(s.opts.NavigationTimeout.Milliseconds()))
	s.installResourceInterception(page)
	s.page = page

	s.state = StateReady
	s.log.Info().Msg("browser started")
	return nil
}

// checkProfileDir creates the per-session profile directory and rejects one
// that another live browser already holds.
func (s *SessionManager) checkProfileDir() error {
	dir := s.profileDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "SingletonLock")); err == nil {
		return ErrProfileConflict
	}
	return nil
}

func (s *SessionManager) profileDir() string {
	return filepath.Join(s.opts.ProfileBaseDir, s.id)
}

// installResourceInterception aborts heavyweight resource types and known
// ad/tracking URLs before they load.
func (s *SessionManager) installResourceInterception(page playwright.Page) {
	err := page.Route("**/*", func(route playwright.Route) {
		req := route.Request()
		if blockedResourceTypes[req.ResourceType()] {
			route.Abort()
			return
		}
		url := req.URL()
		for _, g := range s.blockedGlobs {
			if g.Match(url) {
				route.Abort()
				return
			}
		}
		route.Continue()
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to install resource interception")
	}
}

// acceptCookieConsent dismisses the provider's consent dialog when present.
// Best-effort: a missing dialog is the common case.
func (s *SessionManager) acceptCookieConsent() {
	for _, sel := range s.patterns.ConsentSelectors {
		el, err := s.page.QuerySelector(sel)
		if err != nil || el == nil {
			continue
		}
		if visible, err := el.IsVisible(); err != nil || !visible {
			continue
		}
		if err := el.Click(); err == nil {
			s.log.Debug().Str("selector", sel).Msg("accepted cookie consent")
			s.page.WaitForTimeout(1000)
			return
		}
	}
}

// awaitAndExtractLocked runs the wait state machine on the current page and
// extracts the result. followUpURL is the search URL for verification retry;
// empty for follow-ups, which cannot re-enter verification with a fresh
// navigation target.
func (s *SessionManager) awaitAndExtractLocked(ctx context.Context, page Page, query, searchURL string, incremental bool) SearchResult {
	if st := s.waiter.AwaitAnswerRegion(ctx, page); st == WaitCaptcha {
		if searchURL == "" {
			s.teardownLocked()
			s.state = StateIdle
			return FailureResult(query, "verification required; run a fresh search to retry")
		}
		return s.handleVerificationLocked(ctx, searchURL, query)
	}

	switch st := s.waiter.AwaitStable(ctx, page); st {
	case WaitStable:
		// extracted below
	case WaitCaptcha:
		if searchURL == "" {
			s.teardownLocked()
			s.state = StateIdle
			return FailureResult(query, "verification required; run a fresh search to retry")
		}
		return s.handleVerificationLocked(ctx, searchURL, query)
	case WaitTimedOut:
		return FailureResult(query, fmt.Sprintf("timeout waiting for answer content (%s)", s.waiter.MaxWait))
	default:
		return FailureResult(query, fmt.Sprintf("unexpected wait state %s", st))
	}

	return s.extractLocked(page, query, incremental)
}

// extractLocked scrapes the page and updates conversation bookkeeping.
func (s *SessionManager) extractLocked(page Page, query string, incremental bool) SearchResult {
	var (
		ext  *Extraction
		full string
		err  error
	)
	if incremental {
		ext, full, err = s.extractor.ExtractIncremental(page, s.lastAnswer, query)
	} else {
		ext, err = s.extractor.Extract(page)
		if ext != nil {
			full = ext.AIAnswer
		}
	}
	if err != nil {
		return FailureResult(query, fmt.Sprintf("failed to extract answer: %v", err))
	}

	if ext.AIAnswer == "" && len(ext.Sources) == 0 {
		// Extraction miss with nothing to show: surface as a failure.
		return FailureResult(query, "no AI answer found on the result page")
	}

	s.recordAnswerLocked(full)

	s.log.Info().Int("answer_len", len(ext.AIAnswer)).Int("sources", len(ext.Sources)).Msg("search complete")
	return SuccessResult(query, ext.AIAnswer, ext.Sources)
}

// recordAnswerLocked stores the conversation baseline after a successful
// extraction so follow-ups can diff against it.
func (s *SessionManager) recordAnswerLocked(full string) {
	s.lastAnswer = full
	s.hasConversation = true
	s.lastActivityAt = time.Now()
}

// navigateToNewSearchLocked points the existing page at a fresh search URL,
// resetting the incremental baseline.
func (s *SessionManager) navigateToNewSearchLocked(ctx context.Context, query string) SearchResult {
	url := BuildURL(query, s.language)
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.opts.NavigationTimeout.Milliseconds())),
	}); err != nil {
		s.teardownLocked()
		s.state = StateIdle
		return FailureResult(query, fmt.Sprintf("navigation timeout: %v", err))
	}
	s.lastAnswer = ""
	return s.awaitAndExtractLocked(ctx, s.page, query, url, false)
}

// submitFollowUp locates the follow-up input, fills it, and submits.
// Falls back to script-driven submission when no selector matches.
func (s *SessionManager) submitFollowUp(query string) bool {
	for _, sel := range s.patterns.FollowUpSelectors {
		el, err := s.page.QuerySelector(sel)
		if err != nil || el == nil {
			continue
		}
		if visible, err := el.IsVisible(); err != nil || !visible {
			continue
		}
		if err := el.Click(); err != nil {
			continue
		}
		s.page.WaitForTimeout(300)
		if err := el.Fill(query); err != nil {
			continue
		}
		s.page.WaitForTimeout(300)
		if err := el.Press("Enter"); err != nil {
			continue
		}
		s.log.Debug().Str("selector", sel).Msg("submitted follow-up")
		return true
	}
	return s.submitFollowUpViaScript(query)
}

const followUpSubmitScript = `(query) => {
	const textareas = document.querySelectorAll('textarea');
	for (const ta of textareas) {
		if (ta.name === 'q') continue;
		if (ta.offsetParent === null) continue;
		ta.value = query;
		ta.dispatchEvent(new Event('input', { bubbles: true }));
		const form = ta.closest('form');
		if (form) {
			const btn = form.querySelector('button[type="submit"], button:not([type])');
			if (btn) { btn.click(); return true; }
		}
		ta.dispatchEvent(new KeyboardEvent('keydown', { key: 'Enter', keyCode: 13, bubbles: true }));
		return true;
	}
	return false;
}`

func (s *SessionManager) submitFollowUpViaScript(query string) bool {
	v, err := s.page.Evaluate(followUpSubmitScript, query)
	if err != nil {
		return false
	}
	ok, _ := v.(bool)
	return ok
}

// handleVerificationLocked hands control to the user: the headless browser is
// replaced by a visible one on a persistent profile, and the page is polled
// until the verification clears or the ceiling elapses. On success the result
// is extracted from the visible page and that page becomes the session's live
// page, so the conversation continues in the context the user just verified.
// On failure the whole stack is torn down and the manager ends Idle.
func (s *SessionManager) handleVerificationLocked(ctx context.Context, searchURL, query string) SearchResult {
	s.log.Warn().Msg("verification page detected, opening visible browser")
	s.state = StateVerifying

	browserPath := s.opts.BrowserPath
	if browserPath == "" {
		var err error
		browserPath, err = FindBrowser()
		if err != nil {
			s.teardownLocked()
			s.state = StateIdle
			return FailureResult(query, userFacingStartError(err))
		}
	}

	proxy := DetectProxy()
	pw := s.pw
	s.teardownBrowserLocked() // keep the driver, drop the headless browser

	opts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:       playwright.Bool(false),
		ExecutablePath: playwright.String(browserPath),
		Args:           antiDetectionArgs[:3], // keep the window usable: no gpu/shm tweaks
		Viewport:       &playwright.Size{Width: 1280, Height: 800},
	}
	if proxy != nil {
		opts.Proxy = &playwright.Proxy{Server: proxy.Server()}
	}

	brCtx, err := pw.Chromium.LaunchPersistentContext(s.profileDir(), opts)
	if err != nil {
		s.teardownLocked()
		s.state = StateIdle
		return FailureResult(query, fmt.Sprintf("failed to open verification browser: %v", err))
	}
	adopted := false
	defer func() {
		if adopted {
			return
		}
		brCtx.Close()
		s.teardownLocked()
		s.state = StateIdle
	}()

	var page playwright.Page
	if pages := brCtx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = brCtx.NewPage()
		if err != nil {
			return FailureResult(query, fmt.Sprintf("failed to open verification page: %v", err))
		}
	}

	if _, err := page.Goto(searchURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(120000),
	}); err != nil {
		// The user can still drive the window manually; keep waiting.
		s.log.Warn().Err(err).Msg("verification navigation failed, waiting anyway")
	}

	deadline := time.Now().Add(verificationTimeout)
	for time.Now().Before(deadline) {
		if !s.waiter.sleep(ctx, verificationPollInterval) {
			return FailureResult(query, "verification cancelled")
		}

		content, err := pageText(page)
		if err != nil {
			continue
		}
		cleared := !s.patterns.IsCaptchaText(content) && !isBlockPage(page.URL())
		arrived := s.patterns.HasAnswerLabel(content) || len(content) > 1000
		if cleared && arrived {
			s.log.Info().Msg("verification complete, extracting result")
			page.WaitForTimeout(2000)
			ext, err := s.extractor.Extract(page)
			if err != nil {
				return FailureResult(query, fmt.Sprintf("failed to extract answer: %v", err))
			}
			if ext.AIAnswer == "" && len(ext.Sources) == 0 {
				return FailureResult(query, "no AI answer found on the result page")
			}

			// Keep working in the context the user just verified; a fresh
			// headless launch would only trip the challenge again.
			page.SetDefaultTimeout(float64(s.opts.NavigationTimeout.Milliseconds()))
			s.installResourceInterception(page)
			s.brCtx = brCtx
			s.page = page
			adopted = true
			s.recordAnswerLocked(ext.AIAnswer)
			s.state = StateReady

			return SuccessResult(query, ext.AIAnswer, ext.Sources)
		}
	}

	return FailureResult(query, "verification timeout: the challenge was not completed within 5 minutes; complete it once in a visible browser and retry")
}

// isBlockPage recognizes the provider's interstitial block URL.
func isBlockPage(url string) bool {
	return strings.Contains(strings.ToLower(url), "/sorry")
}

// teardownBrowserLocked closes the page/context/browser but leaves the
// driver running.
func (s *SessionManager) teardownBrowserLocked() {
	if s.page != nil {
		s.page.Close()
		s.page = nil
	}
	if s.brCtx != nil {
		s.brCtx.Close()
		s.brCtx = nil
	}
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
	s.hasConversation = false
	s.lastAnswer = ""
}

// teardownLocked releases the whole browser stack including the driver.
func (s *SessionManager) teardownLocked() {
	s.teardownBrowserLocked()
	if s.pw != nil {
		s.pw.Stop()
		s.pw = nil
	}
}

// userFacingStartError maps startup failures to actionable messages.
func userFacingStartError(err error) string {
	switch {
	case errors.Is(err, ErrBrowserNotFound):
		return ErrBrowserNotFound.Error()
	case errors.Is(err, ErrProfileConflict):
		return "browser profile is in use by another process; close it or configure a different profile directory"
	default:
		return fmt.Sprintf("failed to start browser session: %v", err)
	}
}
