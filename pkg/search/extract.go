package search

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const (
	// maxAnswerSpan caps the extracted answer when no results-section label
	// follows it on the page.
	maxAnswerSpan = 50000

	// maxSources caps the collected source list.
	maxSources = 10

	// minTitleLength is the shortest link text accepted as a source title.
	minTitleLength = 5
)

// Extraction is the scraped answer plus its supporting links.
type Extraction struct {
	AIAnswer string
	Sources  []SearchSource
}

// Extractor scrapes the AI answer and source links out of a rendered page.
// The answer surface has no structured API, so extraction works on rendered
// text between known section labels; that fragility is contained here and
// nothing outside this type depends on the DOM shape.
type Extractor struct {
	Patterns *PatternTable
	Log      zerolog.Logger
}

// NewExtractor returns an extractor using the given pattern table.
func NewExtractor(patterns *PatternTable, log zerolog.Logger) *Extractor {
	return &Extractor{Patterns: patterns, Log: log}
}

// Extract scrapes the current page state. A page without any answer label
// yields an empty answer, an extraction miss rather than an error; the
// caller decides whether that fails the request.
func (e *Extractor) Extract(page Page) (*Extraction, error) {
	content, err := pageText(page)
	if err != nil {
		return nil, fmt.Errorf("failed to read page text: %w", err)
	}

	answer := e.answerWindow(content)

	sources, err := e.collectSources(page)
	if err != nil {
		// Sources are best-effort; a miss does not lose the answer.
		e.Log.Warn().Err(err).Msg("source collection failed")
		sources = []SearchSource{}
	}

	return &Extraction{
		AIAnswer: e.Patterns.CleanAnswer(answer),
		Sources:  sources,
	}, nil
}

// ExtractIncremental scrapes a follow-up page state and returns only the
// content appended after prevAnswer, with the echo of the just-submitted
// query stripped from its head. The extraction's AIAnswer carries the delta;
// the full cleaned answer is returned separately so the caller can record it
// for the next diff.
func (e *Extractor) ExtractIncremental(page Page, prevAnswer, query string) (*Extraction, string, error) {
	ext, err := e.Extract(page)
	if err != nil {
		return nil, "", err
	}

	full := ext.AIAnswer
	if prevAnswer != "" {
		if idx := strings.Index(full, prevAnswer); idx >= 0 {
			delta := strings.TrimSpace(full[idx+len(prevAnswer):])
			if delta != "" {
				ext.AIAnswer = stripQueryEcho(delta, query)
			} else {
				e.Log.Debug().Msg("no appended content found, keeping full answer")
			}
		} else {
			e.Log.Debug().Msg("previous answer not present in page, keeping full answer")
		}
	}

	return ext, full, nil
}

// answerWindow cuts the answer text span out of the full page text using the
// section-label table: from the first answer label to the first results
// label after it, else to the nearest end marker, never more than
// maxAnswerSpan characters.
func (e *Extractor) answerWindow(content string) string {
	start := -1
	for _, label := range e.Patterns.AnswerLabels {
		if idx := strings.Index(content, label); idx >= 0 {
			start = idx
			break
		}
	}
	if start < 0 {
		// Extraction miss: no answer region on this page.
		return ""
	}

	end := -1
	for _, label := range e.Patterns.ResultsLabels {
		idx := strings.Index(content[start:], label)
		if idx <= 0 {
			continue
		}
		if end < 0 || start+idx < end {
			end = start + idx
		}
	}

	if end < 0 {
		end = start + maxAnswerSpan
		if end > len(content) {
			end = len(content)
		}
		// Cap at the nearest footer marker past the label itself.
		for _, marker := range e.Patterns.EndMarkers {
			idx := strings.Index(content[start+1:], marker)
			if idx >= 0 && start+1+idx < end {
				end = start + 1 + idx
			}
		}
	}

	return content[start:end]
}

// collectSources scans anchors for supporting links, scoped to the AI answer
// container when one exists, else the whole document. Self-domain links and
// duplicate URLs are excluded; at most maxSources are returned in document
// order.
func (e *Extractor) collectSources(page Page) ([]SearchSource, error) {
	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page HTML: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	scope := doc.Selection
	for _, sel := range e.Patterns.AnswerSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			scope = s.First()
			break
		}
	}

	sources := []SearchSource{}
	seen := map[string]bool{}

	scope.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, "http") {
			return true
		}
		if e.Patterns.IsSelfDomain(href) || seen[href] {
			return true
		}

		seen[href] = true
		sources = append(sources, SearchSource{
			Title: sourceTitle(a, href),
			URL:   href,
		})
		return len(sources) < maxSources
	})

	return sources, nil
}

// sourceTitle resolves a display title for an anchor: link text, then the
// nearest ancestor's text, then the accessible name, then the hostname.
func sourceTitle(a *goquery.Selection, href string) string {
	if text := collapseWhitespace(a.Text()); len([]rune(text)) >= minTitleLength {
		return truncateRunes(text, 200)
	}

	if parent := a.Parent(); parent.Length() > 0 {
		if text := collapseWhitespace(parent.Text()); len([]rune(text)) >= minTitleLength {
			return truncateRunes(text, 200)
		}
	}

	if label, ok := a.Attr("aria-label"); ok {
		if text := collapseWhitespace(label); text != "" {
			return truncateRunes(text, 200)
		}
	}

	if u, err := url.Parse(href); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return href
}

// stripQueryEcho removes the user's just-submitted question from the head of
// freshly appended content. The page renders the question between the old and
// new answers, so the delta usually starts with it.
func stripQueryEcho(content, query string) string {
	if content == "" || query == "" {
		return content
	}

	if strings.HasPrefix(content, query) {
		return strings.TrimSpace(content[len(query):])
	}

	// Tolerate minor chrome before the echoed question.
	q := strings.TrimSpace(query)
	head := content
	if len(head) > len(q)+50 {
		head = head[:len(q)+50]
	}
	if pos := strings.Index(head, q); pos >= 0 && pos < 20 {
		return strings.TrimSpace(content[pos+len(q):])
	}

	return content
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
