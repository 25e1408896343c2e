package gateway

import (
	"fmt"
	"strings"

	"github.com/entrhq/scout/pkg/search"
)

// maxRenderedSources caps how many sources the markdown shows.
const maxRenderedSources = 5

// FormatResult renders a successful search result as markdown.
func FormatResult(result search.SearchResult, sessionID string) string {
	var b strings.Builder

	b.WriteString("# AI Search Result\n\n")
	fmt.Fprintf(&b, "**Query:** %s\n\n", result.Query)

	b.WriteString("## AI Answer\n\n")
	if result.AIAnswer != "" {
		b.WriteString(result.AIAnswer)
		b.WriteString("\n")
	} else {
		b.WriteString("(no answer text, see sources)\n")
	}

	if len(result.Sources) > 0 {
		b.WriteString("\n## Sources\n\n")
		for i, src := range result.Sources {
			if i >= maxRenderedSources {
				break
			}
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, src.Title, src.URL)
		}
	}

	fmt.Fprintf(&b, "\n---\n*Session: %s. Pass session_id with follow_up=true to continue this conversation.*\n", sessionID)
	return b.String()
}

// FormatError renders a failed search result.
func FormatError(result search.SearchResult) string {
	return fmt.Sprintf("Error: %s\n\n**Query:** %s", result.Error, result.Query)
}
