package selector

import (
	"sort"
	"strings"
)

// Score estimates how reliable a selector is, from its string and
// metadata alone. It never touches the live DOM. Signals are additive;
// penalties push down over-fit expressions.
func Score(c Candidate) int {
	s := 0
	sel := c.Selector
	text := c.Text
	lower := strings.ToLower(sel)

	// Page-unique identifiers first.
	if strings.HasPrefix(strings.TrimSpace(sel), "#") {
		s += 100
	}

	// Attributes put there for automation.
	if strings.Contains(sel, "data-testid") || strings.Contains(sel, "data-test") || strings.Contains(sel, "data-qa") {
		s += 90
	}

	// Form identity.
	if strings.Contains(sel, "name=") || strings.Contains(sel, "for=") {
		s += 80
	}

	// Accessibility contract.
	if strings.Contains(sel, "aria-label") {
		s += 70
	}
	if strings.Contains(sel, "[role=") {
		s += 65
	}

	// Any explicit data marker.
	if strings.Contains(sel, "data-") {
		s += 60
	}

	// Text match anchored to a clickable tag.
	if text != "" && (strings.Contains(lower, "button") || strings.Contains(sel, "a[") || strings.Contains(lower, "link")) {
		s += 55
	}

	// Class selectors: a single class is moderately stable, stacked
	// classes less so.
	switch dots := strings.Count(sel, "."); {
	case dots == 1:
		s += 50
	case dots > 1:
		s += 40
	}

	// Index-dependent positions are fragile.
	if strings.Contains(sel, "nth-child") || strings.Contains(sel, "nth-of-type") {
		s += 30
	}

	// Text predicates: exact equality beats substring.
	if text != "" && strings.Contains(sel, `text()="`+text+`"`) {
		s += 45
	} else if text != "" && strings.Contains(sel, "contains(text()") {
		s += 35
	}

	// Penalties for over-fit expressions.
	if len(sel) > 150 {
		s -= 20
	}
	if strings.Count(sel, "/") > 5 {
		s -= 15
	}
	if strings.Count(sel, " > ") > 3 {
		s -= 15
	}
	return s
}

// Rank orders candidates by descending score. Equal scores keep their
// input order; the resolver relies on that stability so the winning
// strategy among ties is reproducible.
func Rank(cands []Candidate) []Scored {
	scored := make([]Scored, 0, len(cands))
	for _, c := range cands {
		scored = append(scored, Scored{Candidate: c, Score: Score(c)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}
