package selector

import (
	"fmt"
	"sort"
	"strings"
)

// Attribute classes the synthesizer knows how to turn into selectors.
var (
	testIDAttrs        = []string{"data-testid", "data-test", "data-qa"}
	accessibilityAttrs = []string{"aria-label", "role", "title"}
	formAttrs          = []string{"name", "for", "placeholder"}
)

// Expand turns one sparse candidate into every concrete selector
// strategy we know for locating the same conceptual element. The
// original selector, when present, comes first; text-keyed variants
// and attribute-keyed variants follow. Absent fields simply suppress
// the strategies that depend on them.
//
// Expand is pure: no DOM access, no network, identical input yields an
// identical output sequence.
func Expand(c Candidate) []Candidate {
	var out []Candidate
	seen := make(map[string]struct{})

	add := func(sel string, kind Kind, origin Origin) {
		if sel == "" {
			return
		}
		if _, dup := seen[sel]; dup {
			return
		}
		seen[sel] = struct{}{}
		out = append(out, Candidate{
			Selector: sel,
			Kind:     kind,
			Text:     c.Text,
			Origin:   origin,
			Attrs:    c.Attrs,
		})
	}

	if c.Selector != "" {
		kind := c.Kind
		if kind == "" {
			kind = GuessKind(c.Selector)
		}
		origin := c.Origin
		if origin == "" {
			origin = OriginUser
		}
		add(c.Selector, kind, origin)
	}

	if text := c.Text; text != "" {
		// XPath variants scoped to clickable tags.
		add(fmt.Sprintf(`//button[contains(text(),"%s")]`, text), KindXPath, OriginHeuristic)
		add(fmt.Sprintf(`//a[contains(text(),"%s")]`, text), KindXPath, OriginHeuristic)
		add(fmt.Sprintf(`//input[@value="%s"]`, text), KindXPath, OriginHeuristic)

		// Generic text-match XPath.
		add(fmt.Sprintf(`//*[text()="%s"]`, text), KindXPath, OriginHeuristic)
		add(fmt.Sprintf(`//*[contains(text(),"%s")]`, text), KindXPath, OriginHeuristic)
		add(fmt.Sprintf(`//*[normalize-space()="%s"]`, text), KindXPath, OriginHeuristic)

		// CSS has-text variants for common clickables.
		add(fmt.Sprintf(`a:has-text("%s")`, text), KindCSS, OriginHeuristic)
		add(fmt.Sprintf(`button:has-text("%s")`, text), KindCSS, OriginHeuristic)
		add(fmt.Sprintf(`[role="button"]:has-text("%s")`, text), KindCSS, OriginHeuristic)
		add(fmt.Sprintf(`[title="%s"]`, text), KindCSS, OriginHeuristic)
	}

	for _, attr := range testIDAttrs {
		if v, ok := c.Attrs[attr]; ok && v != "" {
			add(fmt.Sprintf(`[%s="%s"]`, attr, v), KindCSS, OriginHeuristic)
		}
	}
	for _, attr := range accessibilityAttrs {
		if v, ok := c.Attrs[attr]; ok && v != "" {
			add(fmt.Sprintf(`[%s="%s"]`, attr, v), KindCSS, OriginHeuristic)
		}
	}
	for _, attr := range formAttrs {
		if v, ok := c.Attrs[attr]; ok && v != "" {
			add(fmt.Sprintf(`[%s="%s"]`, attr, v), KindCSS, OriginHeuristic)
		}
	}

	// Any remaining data-* attribute. Keys are sorted so the output
	// order does not depend on map iteration.
	dataKeys := make([]string, 0, len(c.Attrs))
	for attr := range c.Attrs {
		if strings.HasPrefix(attr, "data-") {
			dataKeys = append(dataKeys, attr)
		}
	}
	sort.Strings(dataKeys)
	for _, attr := range dataKeys {
		if v := c.Attrs[attr]; v != "" {
			add(fmt.Sprintf(`[%s="%s"]`, attr, v), KindCSS, OriginHeuristic)
		}
	}

	// Compound: role plus exact text when both are known.
	if role, ok := c.Attrs["role"]; ok && role != "" && c.Text != "" {
		add(fmt.Sprintf(`//*[@role="%s"][text()="%s"]`, role, c.Text), KindXPath, OriginHeuristic)
	}

	return out
}
