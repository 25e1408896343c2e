package search

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var embeddedPatterns []byte

// PatternTable maps locale-independent pattern sets to the semantic roles the
// engine needs: captcha detection, answer-region boundaries, boilerplate
// cleanup, loading indicators, and link filtering. Patterns for additional
// locales are added to the table, never to code.
type PatternTable struct {
	Version int `yaml:"version"`

	CaptchaKeywords   []string `yaml:"captcha_keywords"`
	AnswerLabels      []string `yaml:"answer_labels"`
	ResultsLabels     []string `yaml:"results_labels"`
	EndMarkers        []string `yaml:"end_markers"`
	Boilerplate       []string `yaml:"boilerplate"`
	LoadingKeywords   []string `yaml:"loading_keywords"`
	LoadingSelectors  []string `yaml:"loading_selectors"`
	AnswerSelectors   []string `yaml:"answer_selectors"`
	FollowUpSelectors []string `yaml:"follow_up_selectors"`
	ConsentSelectors  []string `yaml:"consent_selectors"`
	BlockedURLGlobs   []string `yaml:"blocked_url_globs"`
	SelfDomains       []string `yaml:"self_domains"`

	boilerplateRE []*regexp.Regexp
}

// LoadPatterns parses a pattern table document and compiles its boilerplate
// expressions.
func LoadPatterns(data []byte) (*PatternTable, error) {
	var t PatternTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse pattern table: %w", err)
	}

	t.boilerplateRE = make([]*regexp.Regexp, 0, len(t.Boilerplate))
	for _, p := range t.Boilerplate {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid boilerplate pattern %q: %w", p, err)
		}
		t.boilerplateRE = append(t.boilerplateRE, re)
	}

	return &t, nil
}

var (
	defaultPatterns     *PatternTable
	defaultPatternsOnce sync.Once
)

// DefaultPatterns returns the embedded pattern table, parsed once.
func DefaultPatterns() *PatternTable {
	defaultPatternsOnce.Do(func() {
		t, err := LoadPatterns(embeddedPatterns)
		if err != nil {
			// The embedded table is validated by tests; a parse failure
			// here is a build defect.
			panic(err)
		}
		defaultPatterns = t
	})
	return defaultPatterns
}

// IsCaptchaText reports whether page text matches any verification keyword.
func (t *PatternTable) IsCaptchaText(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range t.CaptchaKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// IsLoadingText reports whether page text still carries a generation-in-
// progress keyword.
func (t *PatternTable) IsLoadingText(content string) bool {
	for _, kw := range t.LoadingKeywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

// HasAnswerLabel reports whether page text contains any AI-answer label.
func (t *PatternTable) HasAnswerLabel(content string) bool {
	for _, label := range t.AnswerLabels {
		if strings.Contains(content, label) {
			return true
		}
	}
	return false
}

var (
	multiSpaceRE   = regexp.MustCompile(` +`)
	multiNewlineRE = regexp.MustCompile(`\n+`)
)

// CleanAnswer strips boilerplate and navigation chrome from answer text and
// collapses the leftover whitespace. Patterns are applied until the text
// stops changing, so the operation is idempotent.
func (t *PatternTable) CleanAnswer(text string) string {
	cleaned := text
	for i := 0; i < 8; i++ {
		prev := cleaned
		for _, re := range t.boilerplateRE {
			cleaned = re.ReplaceAllString(cleaned, "")
		}
		cleaned = multiSpaceRE.ReplaceAllString(cleaned, " ")
		cleaned = multiNewlineRE.ReplaceAllString(cleaned, "\n")
		cleaned = strings.TrimSpace(cleaned)
		if cleaned == prev {
			break
		}
	}
	return cleaned
}

// IsSelfDomain reports whether a URL points back at the search provider.
func (t *PatternTable) IsSelfDomain(rawURL string) bool {
	for _, d := range t.SelfDomains {
		if strings.Contains(rawURL, d) {
			return true
		}
	}
	return false
}
