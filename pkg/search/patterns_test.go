package search

import (
	"strings"
	"testing"
)

func TestDefaultPatternsLoads(t *testing.T) {
	p := DefaultPatterns()

	if p.Version < 1 {
		t.Errorf("pattern table version = %d", p.Version)
	}
	for name, list := range map[string][]string{
		"captcha_keywords": p.CaptchaKeywords,
		"answer_labels":    p.AnswerLabels,
		"results_labels":   p.ResultsLabels,
		"boilerplate":      p.Boilerplate,
		"answer_selectors": p.AnswerSelectors,
		"self_domains":     p.SelfDomains,
	} {
		if len(list) == 0 {
			t.Errorf("embedded table has empty %s", name)
		}
	}
}

func TestLoadPatternsRejectsBadRegexp(t *testing.T) {
	_, err := LoadPatterns([]byte("boilerplate:\n  - '['\n"))
	if err == nil {
		t.Fatal("expected error for invalid boilerplate pattern")
	}
}

func TestIsCaptchaText(t *testing.T) {
	p := DefaultPatterns()

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"english challenge", "Our systems have detected unusual traffic from your computer network.", true},
		{"case insensitive", "UNUSUAL TRAFFIC detected", true},
		{"chinese challenge", "我们的系统检测到您的计算机网络中存在异常流量", true},
		{"recaptcha widget", "please solve this reCAPTCHA to continue", true},
		{"normal answer page", "AI Mode\nGo is a statically typed language.", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsCaptchaText(tt.content); got != tt.want {
				t.Errorf("IsCaptchaText(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestHasAnswerLabel(t *testing.T) {
	p := DefaultPatterns()

	if !p.HasAnswerLabel("something\nAI Mode\nanswer text") {
		t.Error("english label not recognized")
	}
	if !p.HasAnswerLabel("页面\nAI 模式\n回答") {
		t.Error("chinese label not recognized")
	}
	if p.HasAnswerLabel("plain results page") {
		t.Error("false positive on plain page")
	}
}

func TestCleanAnswer(t *testing.T) {
	p := DefaultPatterns()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips label prefix and disclaimer",
			in:   "AI Mode\nGo is a language.\nAI responses may include mistakes. Learn more",
			want: "Go is a language.",
		},
		{
			name: "collapses whitespace",
			in:   "line   one\n\n\nline two",
			want: "line one\nline two",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
		{
			name: "plain text untouched",
			in:   "Nothing to strip here.",
			want: "Nothing to strip here.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.CleanAnswer(tt.in); got != tt.want {
				t.Errorf("CleanAnswer(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Cleaning twice must equal cleaning once, or follow-up diffing breaks.
func TestCleanAnswerIdempotent(t *testing.T) {
	p := DefaultPatterns()

	inputs := []string{
		"AI Mode\nGo is a language.\nSign in\nAI responses may include mistakes. Learn more",
		"全部  图片  视频  新闻  更多\n答案正文\n登录",
		"nested Sign Sign in in text",
		strings.Repeat("Show all ", 30) + "answer",
	}

	for _, in := range inputs {
		once := p.CleanAnswer(in)
		twice := p.CleanAnswer(once)
		if once != twice {
			t.Errorf("CleanAnswer not idempotent:\n once: %q\ntwice: %q", once, twice)
		}
	}
}

func TestIsSelfDomain(t *testing.T) {
	p := DefaultPatterns()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.google.com/search?q=x", true},
		{"https://accounts.google.com/signin", true},
		{"https://www.gstatic.com/images/x.png", true},
		{"https://example.com/article", false},
		{"https://golang.org/doc", false},
	}

	for _, tt := range tests {
		if got := p.IsSelfDomain(tt.url); got != tt.want {
			t.Errorf("IsSelfDomain(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
