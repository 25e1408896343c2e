package search

import (
	"net/url"
)

const (
	searchBaseURL = "https://www.google.com/search"

	// aiModeValue selects the AI-mode results surface (udm=50).
	aiModeValue = "50"
)

// BuildURL builds an AI-mode search URL for query. The query is encoded per
// standard query-encoding rules; language, when non-empty, is passed through
// verbatim as the hl parameter (the remote service validates locale codes).
func BuildURL(query, language string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("udm", aiModeValue)
	if language != "" {
		v.Set("hl", language)
	}
	return searchBaseURL + "?" + v.Encode()
}

// QueryFromURL extracts the q parameter from a search URL. Inverse of
// BuildURL with respect to the query.
func QueryFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return u.Query().Get("q"), nil
}
