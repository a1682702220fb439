package selector

import "strings"

// Kind says how a selector expression is evaluated against the DOM.
type Kind string

const (
	KindCSS   Kind = "css"
	KindXPath Kind = "xpath"
)

// Origin records where a candidate came from. It never influences
// ranking; it is carried for diagnostics only.
type Origin string

const (
	OriginHeuristic Origin = "heuristic"
	OriginLLM       Origin = "llm"
	OriginUser      Origin = "user"
)

// Candidate is one loosely-specified way to find a target element.
// Selector must be non-empty and is never mutated after creation;
// synthesis always produces new candidates.
type Candidate struct {
	Selector string
	Kind     Kind
	Text     string
	Origin   Origin
	Attrs    map[string]string
}

// Scored pairs a candidate with its ranking score. Higher scores are
// tried first.
type Scored struct {
	Candidate
	Score int
}

// GuessKind infers the selector kind from its syntax. Playwright
// evaluates both, so this matters for diagnostics more than dispatch.
func GuessKind(sel string) Kind {
	s := strings.TrimSpace(sel)
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") {
		return KindXPath
	}
	return KindCSS
}
