package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectors(cands []Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Selector)
	}
	return out
}

func TestExpandTextOnly(t *testing.T) {
	got := Expand(Candidate{Text: "Apply Now"})
	sels := selectors(got)

	assert.Contains(t, sels, `//button[contains(text(),"Apply Now")]`)
	assert.Contains(t, sels, `//a[contains(text(),"Apply Now")]`)
	assert.Contains(t, sels, `//input[@value="Apply Now"]`)
	assert.Contains(t, sels, `//*[text()="Apply Now"]`)
	assert.Contains(t, sels, `//*[contains(text(),"Apply Now")]`)
	assert.Contains(t, sels, `//*[normalize-space()="Apply Now"]`)
	assert.Contains(t, sels, `a:has-text("Apply Now")`)
	assert.Contains(t, sels, `button:has-text("Apply Now")`)
	assert.Contains(t, sels, `[role="button"]:has-text("Apply Now")`)

	for _, c := range got {
		assert.Equal(t, "Apply Now", c.Text)
		assert.Equal(t, OriginHeuristic, c.Origin)
	}
}

func TestExpandKeepsOriginalFirst(t *testing.T) {
	got := Expand(Candidate{Selector: "#apply", Text: "Apply"})
	require.NotEmpty(t, got)
	assert.Equal(t, "#apply", got[0].Selector)
	assert.Equal(t, KindCSS, got[0].Kind)
	assert.Equal(t, OriginUser, got[0].Origin)
}

func TestExpandPreservesExplicitOrigin(t *testing.T) {
	got := Expand(Candidate{Selector: "#apply", Origin: OriginLLM})
	require.NotEmpty(t, got)
	assert.Equal(t, OriginLLM, got[0].Origin)
}

func TestExpandAttrs(t *testing.T) {
	got := Expand(Candidate{
		Text: "Apply Now",
		Attrs: map[string]string{
			"data-testid": "apply-btn",
			"aria-label":  "Apply for a loan",
			"name":        "apply",
			"role":        "button",
			"data-track":  "cta",
		},
	})
	sels := selectors(got)

	assert.Contains(t, sels, `[data-testid="apply-btn"]`)
	assert.Contains(t, sels, `[aria-label="Apply for a loan"]`)
	assert.Contains(t, sels, `[name="apply"]`)
	assert.Contains(t, sels, `[role="button"]`)
	assert.Contains(t, sels, `[data-track="cta"]`)
	assert.Contains(t, sels, `//*[@role="button"][text()="Apply Now"]`)
}

func TestExpandDeduplicates(t *testing.T) {
	// The original selector matches a strategy the synthesizer would
	// also generate; it must appear exactly once.
	got := Expand(Candidate{Selector: `a:has-text("Apply")`, Text: "Apply"})
	count := 0
	for _, c := range got {
		if c.Selector == `a:has-text("Apply")` {
			count++
		}
	}
	assert.Equal(t, 1, count)

	// data-testid is matched by both the attr-class pass and the
	// generic data-* pass.
	got = Expand(Candidate{Attrs: map[string]string{"data-testid": "x"}})
	assert.Equal(t, []string{`[data-testid="x"]`}, selectors(got))
}

func TestExpandIsPure(t *testing.T) {
	c := Candidate{
		Selector: "#apply",
		Text:     "Apply Now",
		Attrs:    map[string]string{"data-a": "1", "data-b": "2", "role": "button"},
	}
	a := Expand(c)
	b := Expand(c)
	require.Equal(t, a, b)
}

func TestExpandEmptyCandidate(t *testing.T) {
	assert.Empty(t, Expand(Candidate{}))
}

func TestExpandXPathKinds(t *testing.T) {
	got := Expand(Candidate{Text: "Go"})
	for _, c := range got {
		if c.Selector[0] == '/' {
			assert.Equal(t, KindXPath, c.Kind, "selector %q", c.Selector)
		} else {
			assert.Equal(t, KindCSS, c.Kind, "selector %q", c.Selector)
		}
	}
}

func TestGuessKind(t *testing.T) {
	assert.Equal(t, KindXPath, GuessKind(`//button[text()="Go"]`))
	assert.Equal(t, KindXPath, GuessKind(`(//a)[1]`))
	assert.Equal(t, KindCSS, GuessKind("#apply"))
	assert.Equal(t, KindCSS, GuessKind("button.cta"))
}
