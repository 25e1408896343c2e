package gateway

import (
	"fmt"
	"strings"
	"testing"

	"github.com/entrhq/scout/pkg/search"
)

func TestFormatResult(t *testing.T) {
	result := search.SuccessResult("what is go", "Go is a language.", []search.SearchSource{
		{Title: "Go Homepage", URL: "https://go.dev"},
		{Title: "Wikipedia", URL: "https://en.wikipedia.org/wiki/Go"},
	})

	md := FormatResult(result, "abc-123")

	for _, want := range []string{
		"# AI Search Result",
		"**Query:** what is go",
		"## AI Answer",
		"Go is a language.",
		"1. [Go Homepage](https://go.dev)",
		"2. [Wikipedia](https://en.wikipedia.org/wiki/Go)",
		"Session: abc-123",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestFormatResultCapsSources(t *testing.T) {
	var sources []search.SearchSource
	for i := 0; i < 9; i++ {
		sources = append(sources, search.SearchSource{
			Title: fmt.Sprintf("Source %d", i),
			URL:   fmt.Sprintf("https://example.com/%d", i),
		})
	}

	md := FormatResult(search.SuccessResult("q", "a", sources), "id")

	if !strings.Contains(md, "5. [Source 4]") {
		t.Error("fifth source missing")
	}
	if strings.Contains(md, "6. [Source 5]") {
		t.Error("sources not capped at five")
	}
}

func TestFormatResultEmptyAnswerWithSources(t *testing.T) {
	result := search.SuccessResult("q", "", []search.SearchSource{
		{Title: "Only Source", URL: "https://example.com"},
	})

	md := FormatResult(result, "id")
	if !strings.Contains(md, "see sources") {
		t.Errorf("empty answer placeholder missing:\n%s", md)
	}
	if !strings.Contains(md, "[Only Source]") {
		t.Errorf("sources missing:\n%s", md)
	}
}

func TestFormatError(t *testing.T) {
	md := FormatError(search.FailureResult("bad query", "something broke"))

	if !strings.Contains(md, "Error: something broke") {
		t.Errorf("error text missing:\n%s", md)
	}
	if !strings.Contains(md, "bad query") {
		t.Errorf("query missing:\n%s", md)
	}
}
