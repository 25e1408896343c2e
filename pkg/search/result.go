package search

// SearchSource is a single supporting link collected from the answer page.
type SearchSource struct {
	// Title is the display title resolved for the link
	Title string `json:"title"`

	// URL is the absolute target URL
	URL string `json:"url"`

	// Snippet is an optional excerpt; empty when the page offers none
	Snippet string `json:"snippet"`
}

// SearchResult is the outcome of one search or follow-up call.
// Success and Error are mutually exclusive: Success is true exactly when
// Error is empty, and a failed result never carries an answer.
type SearchResult struct {
	Success  bool           `json:"success"`
	Query    string         `json:"query"`
	AIAnswer string         `json:"aiAnswer"`
	Sources  []SearchSource `json:"sources"`
	Error    string         `json:"error"`
}

// SuccessResult builds a successful result for query.
func SuccessResult(query, answer string, sources []SearchSource) SearchResult {
	if sources == nil {
		sources = []SearchSource{}
	}
	return SearchResult{
		Success:  true,
		Query:    query,
		AIAnswer: answer,
		Sources:  sources,
	}
}

// FailureResult builds a failed result for query. The answer is always
// dropped on failure, even when extraction produced partial content.
func FailureResult(query, errMsg string) SearchResult {
	return SearchResult{
		Success: false,
		Query:   query,
		Sources: []SearchSource{},
		Error:   errMsg,
	}
}
