package search

// Page is the minimal surface of a driver page that the waiter and extractor
// operate on. playwright.Page satisfies it; tests use in-memory fakes.
type Page interface {
	// Evaluate runs a JavaScript expression in the page and returns its result.
	Evaluate(expression string, arg ...interface{}) (interface{}, error)

	// Content returns the full HTML of the page.
	Content() (string, error)

	// URL returns the current page URL.
	URL() string
}

const bodyTextScript = `() => document.body.innerText`

// pageText returns the rendered text of the page body.
func pageText(p Page) (string, error) {
	v, err := p.Evaluate(bodyTextScript)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// anyVisibleScript checks whether any element matching one of the given CSS
// selectors is attached and visible. Selector probing goes through a single
// script evaluation so the Page surface stays narrow.
const anyVisibleScript = `(selectors) => {
	for (const sel of selectors) {
		let nodes;
		try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of nodes) {
			if (el.offsetParent !== null) return true;
		}
	}
	return false;
}`

// anySelectorVisible reports whether any of selectors matches a visible
// element. Evaluation errors count as "not visible".
func anySelectorVisible(p Page, selectors []string) bool {
	if len(selectors) == 0 {
		return false
	}
	v, err := p.Evaluate(anyVisibleScript, selectors)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}
