package selector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreSignals(t *testing.T) {
	tests := []struct {
		name string
		cand Candidate
		want int
	}{
		{"id", Candidate{Selector: "#apply-now"}, 100},
		{"test id attr", Candidate{Selector: `[data-testid="apply"]`}, 90 + 60},
		{"form name", Candidate{Selector: `input[name="email"]`}, 80},
		{"aria label", Candidate{Selector: `[aria-label="Apply now"]`}, 70},
		{"role", Candidate{Selector: `[role="button"]`}, 65},
		{"data attr", Candidate{Selector: `button[data-action='apply']`}, 60},
		{"text on button", Candidate{Selector: `button:has-text("Apply")`, Text: "Apply"}, 55},
		{"single class", Candidate{Selector: ".cta"}, 50},
		{"stacked classes", Candidate{Selector: ".apply.cta.btn.primary.large"}, 40},
		{"nth child", Candidate{Selector: "ul li:nth-child(3)"}, 30},
		{"exact text xpath", Candidate{Selector: `//*[text()="Apply Now"]`, Text: "Apply Now"}, 45},
		{"contains text on button", Candidate{Selector: `//button[contains(text(),"Apply Now")]`, Text: "Apply Now"}, 55 + 35},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.cand), "selector %q", tt.cand.Selector)
		})
	}
}

func TestScoreTextSignalNeedsText(t *testing.T) {
	// The same expression without label text earns no text bonus.
	withText := Candidate{Selector: `//button[contains(text(),"Apply")]`, Text: "Apply"}
	without := Candidate{Selector: `//button[contains(text(),"Apply")]`}
	assert.Greater(t, Score(withText), Score(without))
	assert.Equal(t, 0, Score(without))
}

func TestScorePenalties(t *testing.T) {
	long := Candidate{Selector: "#" + strings.Repeat("a", 160)}
	assert.Equal(t, 100-20, Score(long))

	deepXPath := Candidate{Selector: "/html/body/div/div/div/main/section/a"}
	assert.Equal(t, -15, Score(deepXPath))

	deepCSS := Candidate{Selector: "body > div > div > main > section"}
	assert.Equal(t, -15, Score(deepCSS))
}

func TestScoreIDBeatsStackedClasses(t *testing.T) {
	id := Candidate{Selector: "#apply-now"}
	classes := Candidate{Selector: ".apply.cta.btn.primary.large"}
	assert.Greater(t, Score(id), Score(classes))
}

func TestRankOrdersApplicationCandidates(t *testing.T) {
	cands := []Candidate{
		{Selector: `button[data-action='apply']`},
		{Selector: "#apply-now"},
		{Selector: "a.apply-now-btn.some-long-class-names"},
	}
	ranked := Rank(cands)
	require.Len(t, ranked, 3)
	assert.Equal(t, "#apply-now", ranked[0].Selector)
	assert.Equal(t, `button[data-action='apply']`, ranked[1].Selector)
	assert.Equal(t, "a.apply-now-btn.some-long-class-names", ranked[2].Selector)
}

func TestRankIsDeterministic(t *testing.T) {
	cands := []Candidate{
		{Selector: ".first"},
		{Selector: "#id"},
		{Selector: ".second"},
		{Selector: `[role="button"]`},
		{Selector: ".third"},
	}
	a := Rank(cands)
	b := Rank(cands)
	require.Equal(t, a, b)
}

func TestRankStableOnTies(t *testing.T) {
	// All three score 50; input order must survive.
	cands := []Candidate{
		{Selector: ".alpha"},
		{Selector: ".beta"},
		{Selector: ".gamma"},
	}
	ranked := Rank(cands)
	require.Len(t, ranked, 3)
	assert.Equal(t, ".alpha", ranked[0].Selector)
	assert.Equal(t, ".beta", ranked[1].Selector)
	assert.Equal(t, ".gamma", ranked[2].Selector)
}

func TestRankDoesNotMutateInput(t *testing.T) {
	cands := []Candidate{
		{Selector: ".low"},
		{Selector: "#high"},
	}
	Rank(cands)
	assert.Equal(t, ".low", cands[0].Selector)
	assert.Equal(t, "#high", cands[1].Selector)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(nil))
}
