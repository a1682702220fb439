package flow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finagent/loanflow/internal/browser"
	"github.com/finagent/loanflow/internal/resolver"
	"github.com/finagent/loanflow/internal/selector"
	"github.com/finagent/loanflow/internal/session"
)

type stubPage struct {
	url     string
	content string
}

func (p *stubPage) Navigate(_ context.Context, url string, _ browser.WaitStrategy, _ time.Duration) error {
	p.url = url
	return nil
}

func (p *stubPage) URL() string              { return p.url }
func (p *stubPage) Content() (string, error) { return p.content, nil }

func (p *stubPage) Probe(context.Context, string, time.Duration) (browser.Element, error) {
	return nil, errors.New("not used")
}

func (p *stubPage) AwaitNetworkIdle(time.Duration) error { return nil }
func (p *stubPage) Close() error                         { return nil }

type stubOpener struct {
	content string
}

func (o *stubOpener) Open(context.Context) (browser.Page, error) {
	return &stubPage{content: o.content}, nil
}

// scriptedResolver replays outcomes in order; nil entries mean "nothing
// worked" for that call.
type scriptedResolver struct {
	outcomes []*resolver.NavigationOutcome
	calls    [][]selector.Candidate
}

func (r *scriptedResolver) Resolve(_ context.Context, _ string, cands []selector.Candidate, mem *session.Memory) (*resolver.NavigationOutcome, error) {
	r.calls = append(r.calls, cands)
	if len(r.outcomes) == 0 {
		return nil, nil
	}
	out := r.outcomes[0]
	r.outcomes = r.outcomes[1:]
	if out != nil {
		mem.MarkClicked(out.SelectorUsed)
		mem.MarkVisited(out.NewURL)
	}
	return out, nil
}

// scriptedAnalyst replays classifications in order; the other answers
// are fixed per test.
type scriptedAnalyst struct {
	nav             NavAnalysis
	classifications []Classification
	options         OptionsAnalysis
	forms           []FormAnalysis
	next            NextAnalysis

	optionCalls int
	nextCalls   int
}

func (a *scriptedAnalyst) FindLoanNav(context.Context, string) (NavAnalysis, error) {
	return a.nav, nil
}

func (a *scriptedAnalyst) ClassifyPage(context.Context, string, string) (Classification, error) {
	if len(a.classifications) == 0 {
		return Classification{}, errors.New("no classification scripted")
	}
	c := a.classifications[0]
	a.classifications = a.classifications[1:]
	return c, nil
}

func (a *scriptedAnalyst) AnalyzeOptions(context.Context, string) (OptionsAnalysis, error) {
	a.optionCalls++
	return a.options, nil
}

func (a *scriptedAnalyst) ExtractFormFields(context.Context, string) (FormAnalysis, error) {
	if len(a.forms) == 0 {
		return FormAnalysis{}, errors.New("no form analysis scripted")
	}
	f := a.forms[0]
	a.forms = a.forms[1:]
	return f, nil
}

func (a *scriptedAnalyst) FindNextButton(context.Context, string) (NextAnalysis, error) {
	a.nextCalls++
	return a.next, nil
}

func newTestNavigator(t *testing.T, cfg Config, analyst PageAnalyst, res Resolver, prompt PromptFunc) *Navigator {
	t.Helper()
	if cfg.OutDir == "" {
		cfg.OutDir = t.TempDir()
	}
	opener := &stubOpener{content: "<html><body><a href='/apply'>Apply Now</a></body></html>"}
	return NewNavigator(cfg, opener, analyst, res, prompt, zerolog.Nop())
}

func TestRunSingleStepForm(t *testing.T) {
	outDir := t.TempDir()
	analyst := &scriptedAnalyst{
		nav: NavAnalysis{Buttons: []NavButton{
			{Text: "Apply Now", Selector: "#apply-now"},
		}},
		classifications: []Classification{{PageType: "form", Confidence: 0.95}},
		forms: []FormAnalysis{{
			FormName:  "Personal Loan Application",
			MultiStep: false,
			Fields:    []FormFieldSpec{{Name: "First name", InputType: "text"}},
		}},
	}
	res := &scriptedResolver{outcomes: []*resolver.NavigationOutcome{
		{
			NewURL:       "https://bank.example/apply",
			NewHTML:      `<html><form><input name="first_name"></form></html>`,
			SelectorUsed: "#apply-now",
		},
	}}
	nav := newTestNavigator(t, Config{OutDir: outDir}, analyst, res, nil)

	result, err := nav.Run(context.Background(), "https://bank.example/")
	require.NoError(t, err)

	assert.Equal(t, "https://bank.example/", result.StartURL)
	assert.Equal(t, "https://bank.example/apply", result.FinalURL)
	assert.Equal(t, "form", result.Classification)
	require.Len(t, result.Forms, 1)
	assert.Equal(t, "Personal Loan Application", result.Forms[0].Analysis.FormName)
	require.Len(t, result.Forms[0].Parsed, 1)

	types := actionTypes(result.Actions)
	assert.Equal(t, []string{"entry_clicked", "form_extracted"}, types)

	// The entry candidates came from the nav analysis.
	require.Len(t, res.calls, 1)
	require.Len(t, res.calls[0], 1)
	assert.Equal(t, "#apply-now", res.calls[0][0].Selector)
	assert.Equal(t, selector.OriginLLM, res.calls[0][0].Origin)

	for _, name := range []string{"runtime_snapshot.json", "form_fields.csv"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
}

func TestRunEntryNotFoundAnalyzesLanding(t *testing.T) {
	analyst := &scriptedAnalyst{
		classifications: []Classification{{PageType: "form"}},
		forms:           []FormAnalysis{{FormName: "Inline form"}},
	}
	res := &scriptedResolver{outcomes: []*resolver.NavigationOutcome{nil}}
	nav := newTestNavigator(t, Config{}, analyst, res, nil)

	result, err := nav.Run(context.Background(), "https://bank.example/")
	require.NoError(t, err)
	assert.Equal(t, "https://bank.example/", result.FinalURL)
	assert.Equal(t, []string{"entry_not_found", "form_extracted"}, actionTypes(result.Actions))
}

func TestRunIntermediateHopCap(t *testing.T) {
	analyst := &scriptedAnalyst{
		classifications: []Classification{
			{PageType: "intermediate"},
			{PageType: "intermediate"},
			{PageType: "intermediate"},
		},
		options: OptionsAnalysis{Options: []OptionChoice{
			{Text: "Personal loan", Selector: ".personal"},
		}},
	}
	res := &scriptedResolver{outcomes: []*resolver.NavigationOutcome{
		{NewURL: "https://bank.example/step1", SelectorUsed: ".personal"},
		{NewURL: "https://bank.example/step2", SelectorUsed: ".personal2"},
		{NewURL: "https://bank.example/step3", SelectorUsed: ".personal3"},
	}}
	nav := newTestNavigator(t, Config{MaxIntermediateHops: 2}, analyst, res, nil)

	result, err := nav.Run(context.Background(), "https://bank.example/")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"entry_clicked",
		"option_selected",
		"option_selected",
		"hop_cap_reached",
	}, actionTypes(result.Actions))
	assert.Equal(t, 2, analyst.optionCalls)
}

func TestRunMultiStepForm(t *testing.T) {
	analyst := &scriptedAnalyst{
		classifications: []Classification{
			{PageType: "form"},
			{PageType: "form"},
		},
		forms: []FormAnalysis{
			{FormName: "Step 1", MultiStep: true, StepsCount: 2},
			{FormName: "Step 2", MultiStep: false},
		},
		next: NextAnalysis{
			ButtonType: "next",
			NextSelectors: []NextSelector{
				{Selector: "button.next-step", Type: "css", Label: "Next"},
			},
		},
	}
	res := &scriptedResolver{outcomes: []*resolver.NavigationOutcome{
		{NewURL: "https://bank.example/apply", SelectorUsed: "#apply-now"},
		{NewURL: "https://bank.example/apply/2", SelectorUsed: "button.next-step"},
	}}
	nav := newTestNavigator(t, Config{}, analyst, res, nil)

	result, err := nav.Run(context.Background(), "https://bank.example/")
	require.NoError(t, err)

	require.Len(t, result.Forms, 2)
	assert.Equal(t, "Step 1", result.Forms[0].Analysis.FormName)
	assert.Equal(t, "Step 2", result.Forms[1].Analysis.FormName)
	assert.Equal(t, []string{
		"entry_clicked",
		"form_extracted",
		"form_next_clicked",
		"form_extracted",
	}, actionTypes(result.Actions))

	// The next-step candidates carried the analyst's selector and kind.
	last := res.calls[len(res.calls)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "button.next-step", last[0].Selector)
	assert.Equal(t, selector.KindCSS, last[0].Kind)
	assert.Equal(t, "Next", last[0].Text)
}

func TestRunSubmitButtonNeverClicked(t *testing.T) {
	analyst := &scriptedAnalyst{
		classifications: []Classification{{PageType: "form"}},
		forms:           []FormAnalysis{{FormName: "Final step", MultiStep: true}},
		next:            NextAnalysis{ButtonType: "submit"},
	}
	res := &scriptedResolver{outcomes: []*resolver.NavigationOutcome{
		{NewURL: "https://bank.example/apply", SelectorUsed: "#apply-now"},
	}}
	nav := newTestNavigator(t, Config{}, analyst, res, nil)

	result, err := nav.Run(context.Background(), "https://bank.example/")
	require.NoError(t, err)

	assert.Contains(t, actionTypes(result.Actions), "submit_detected")
	// One resolve for the entry, none for the submit button.
	assert.Len(t, res.calls, 1)
}

func TestRunFormStepCap(t *testing.T) {
	analyst := &scriptedAnalyst{
		classifications: []Classification{
			{PageType: "form"}, {PageType: "form"}, {PageType: "form"},
		},
		forms: []FormAnalysis{
			{MultiStep: true}, {MultiStep: true}, {MultiStep: true},
		},
		next: NextAnalysis{ButtonType: "next", NextSelectors: []NextSelector{
			{Selector: "button.next", Type: "css"},
		}},
	}
	res := &scriptedResolver{outcomes: []*resolver.NavigationOutcome{
		{NewURL: "https://bank.example/apply", SelectorUsed: "#apply-now"},
		{NewURL: "https://bank.example/apply/2", SelectorUsed: "button.next"},
		{NewURL: "https://bank.example/apply/3", SelectorUsed: "button.next2"},
	}}
	nav := newTestNavigator(t, Config{MaxFormSteps: 2}, analyst, res, nil)

	result, err := nav.Run(context.Background(), "https://bank.example/")
	require.NoError(t, err)
	assert.Contains(t, actionTypes(result.Actions), "form_step_cap_reached")
	assert.Equal(t, 2, analyst.nextCalls)
}

func TestRunUnknownClassificationTreatedAsIntermediate(t *testing.T) {
	analyst := &scriptedAnalyst{
		classifications: []Classification{{PageType: "mystery"}},
		options:         OptionsAnalysis{},
	}
	res := &scriptedResolver{outcomes: []*resolver.NavigationOutcome{
		{NewURL: "https://bank.example/apply", SelectorUsed: "#apply-now"},
	}}
	nav := newTestNavigator(t, Config{}, analyst, res, nil)

	result, err := nav.Run(context.Background(), "https://bank.example/")
	require.NoError(t, err)
	assert.Equal(t, "intermediate", result.Classification)
	assert.Equal(t, 1, analyst.optionCalls)
	assert.Contains(t, actionTypes(result.Actions), "no_options_found")
}

func TestRunHumanPicksOption(t *testing.T) {
	analyst := &scriptedAnalyst{
		classifications: []Classification{{PageType: "intermediate"}},
		options: OptionsAnalysis{Options: []OptionChoice{
			{Text: "Personal loan", Selector: ".personal"},
			{Text: "Business loan", Selector: ".business"},
		}},
	}
	res := &scriptedResolver{outcomes: []*resolver.NavigationOutcome{
		{NewURL: "https://bank.example/apply", SelectorUsed: "#apply-now"},
		nil,
	}}
	answers := []string{"2"}
	prompt := func(context.Context, string) (string, error) {
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
	nav := newTestNavigator(t, Config{HumanInLoop: true}, analyst, res, prompt)

	_, err := nav.Run(context.Background(), "https://bank.example/")
	require.NoError(t, err)

	// The option resolve saw only the human's pick.
	require.Len(t, res.calls, 2)
	require.Len(t, res.calls[1], 1)
	assert.Equal(t, ".business", res.calls[1][0].Selector)
	assert.Equal(t, "Business loan", res.calls[1][0].Text)
}

func TestRunHumanCancels(t *testing.T) {
	analyst := &scriptedAnalyst{
		classifications: []Classification{{PageType: "intermediate"}},
		options: OptionsAnalysis{Options: []OptionChoice{
			{Text: "Personal loan", Selector: ".personal"},
		}},
	}
	res := &scriptedResolver{outcomes: []*resolver.NavigationOutcome{
		{NewURL: "https://bank.example/apply", SelectorUsed: "#apply-now"},
	}}
	prompt := func(context.Context, string) (string, error) { return "q", nil }
	nav := newTestNavigator(t, Config{HumanInLoop: true}, analyst, res, prompt)

	result, err := nav.Run(context.Background(), "https://bank.example/")
	require.NoError(t, err)
	assert.Contains(t, actionTypes(result.Actions), "human_cancelled")
	assert.Len(t, res.calls, 1, "no option resolve after cancellation")
}

func actionTypes(actions []Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Type)
	}
	return out
}
