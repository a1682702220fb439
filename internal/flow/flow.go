// Package flow drives a loan-application crawl: find the entry point
// on the landing page, walk intermediate choice pages, and extract the
// application form, possibly across several steps.
package flow

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/finagent/loanflow/internal/browser"
	"github.com/finagent/loanflow/internal/parse"
	"github.com/finagent/loanflow/internal/resolver"
	"github.com/finagent/loanflow/internal/selector"
	"github.com/finagent/loanflow/internal/session"
	"github.com/finagent/loanflow/internal/store"
)

const (
	defaultMaxIntermediateHops = 2
	defaultMaxFormSteps        = 8
	defaultSnippetLimit        = 4000

	landingNavTimeout = 60 * time.Second
)

// Resolver is the click engine the navigator delegates to.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string, cands []selector.Candidate, mem *session.Memory) (*resolver.NavigationOutcome, error)
}

// PromptFunc asks the human a question and returns their answer.
// Returning an error aborts the run.
type PromptFunc func(ctx context.Context, message string) (string, error)

// Config tunes a single navigator run.
type Config struct {
	OutDir              string
	HumanInLoop         bool
	MaxIntermediateHops int
	MaxFormSteps        int
	SnippetLimit        int
}

func (c Config) withDefaults() Config {
	if c.MaxIntermediateHops <= 0 {
		c.MaxIntermediateHops = defaultMaxIntermediateHops
	}
	if c.MaxFormSteps <= 0 {
		c.MaxFormSteps = defaultMaxFormSteps
	}
	if c.SnippetLimit <= 0 {
		c.SnippetLimit = defaultSnippetLimit
	}
	if c.OutDir == "" {
		c.OutDir = "data"
	}
	return c
}

// Action is one step the navigator took, recorded in run order.
type Action struct {
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
	URL      string `json:"url,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// FormRecord pairs the model's reading of a form page with the
// statically parsed markup of the same page.
type FormRecord struct {
	URL      string       `json:"url"`
	Analysis FormAnalysis `json:"analysis"`
	Parsed   []parse.Form `json:"parsed_forms"`
}

// Result is the full run artifact, persisted as JSON.
type Result struct {
	StartURL         string       `json:"start_url"`
	FinalURL         string       `json:"final_url"`
	Classification   string       `json:"classification,omitempty"`
	Actions          []Action     `json:"actions"`
	Forms            []FormRecord `json:"forms,omitempty"`
	ClickedSelectors []string     `json:"clicked_selectors"`
	VisitedURLs      []string     `json:"visited_urls"`
}

// Navigator owns one crawl from a landing page to an extracted form.
type Navigator struct {
	cfg      Config
	opener   browser.Opener
	analyst  PageAnalyst
	resolver Resolver
	prompt   PromptFunc
	logger   zerolog.Logger
}

func NewNavigator(cfg Config, opener browser.Opener, analyst PageAnalyst, res Resolver, prompt PromptFunc, logger zerolog.Logger) *Navigator {
	return &Navigator{
		cfg:      cfg.withDefaults(),
		opener:   opener,
		analyst:  analyst,
		resolver: res,
		prompt:   prompt,
		logger:   logger,
	}
}

// Run executes the crawl and always returns a Result describing how
// far it got, even when the flow dead-ends early.
func (n *Navigator) Run(ctx context.Context, startURL string) (*Result, error) {
	mem := session.NewMemory()
	res := &Result{StartURL: startURL}

	pageURL, html, err := n.openLanding(ctx, startURL)
	if err != nil {
		return nil, err
	}
	mem.MarkVisited(pageURL)

	pageURL, html = n.enterApplication(ctx, pageURL, html, mem, res)

	hops := 0
	formSteps := 0
loop:
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snippet := parse.Snippet(html, n.cfg.SnippetLimit)
		cls, err := n.analyst.ClassifyPage(ctx, snippet, pageURL)
		if err != nil {
			n.logger.Error().Err(err).Str("url", pageURL).Msg("page classification failed")
			res.Actions = append(res.Actions, Action{Type: "classification_failed", URL: pageURL})
			break
		}
		pageType := cls.PageType
		if pageType != "form" && pageType != "intermediate" {
			n.logger.Warn().Str("page_type", pageType).Msg("unknown page type, treating as intermediate")
			pageType = "intermediate"
		}
		res.Classification = pageType
		n.logger.Info().
			Str("page_type", pageType).
			Float64("confidence", cls.Confidence).
			Str("url", pageURL).
			Msg("page classified")

		switch pageType {
		case "intermediate":
			if hops >= n.cfg.MaxIntermediateHops {
				n.logger.Info().Int("hops", hops).Msg("intermediate hop cap reached")
				res.Actions = append(res.Actions, Action{Type: "hop_cap_reached", URL: pageURL})
				break loop
			}
			hops++
			next, stop, err := n.stepIntermediate(ctx, pageURL, snippet, mem, res)
			if err != nil {
				return nil, err
			}
			if stop {
				break loop
			}
			pageURL, html = next.NewURL, next.NewHTML

		case "form":
			done, next, err := n.stepForm(ctx, pageURL, html, snippet, &formSteps, mem, res)
			if err != nil {
				return nil, err
			}
			if done {
				break loop
			}
			pageURL, html = next.NewURL, next.NewHTML
		}
	}

	res.FinalURL = pageURL
	res.ClickedSelectors = mem.ClickedSelectors()
	res.VisitedURLs = mem.VisitedURLs()

	snapPath := filepath.Join(n.cfg.OutDir, "runtime_snapshot.json")
	if err := store.SaveJSONAtomic(snapPath, res); err != nil {
		n.logger.Error().Err(err).Str("path", snapPath).Msg("save runtime snapshot")
	}
	return res, nil
}

// openLanding loads the start URL in its own short-lived page session
// and captures the rendered markup.
func (n *Navigator) openLanding(ctx context.Context, startURL string) (string, string, error) {
	page, err := n.opener.Open(ctx)
	if err != nil {
		return "", "", fmt.Errorf("open landing page session: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.Navigate(ctx, startURL, browser.WaitDOMContentLoaded, landingNavTimeout); err != nil {
		return "", "", fmt.Errorf("load %s: %w", startURL, err)
	}
	html, err := page.Content()
	if err != nil {
		return "", "", fmt.Errorf("read landing page: %w", err)
	}
	return page.URL(), html, nil
}

// enterApplication asks the model for loan-application entry points on
// the landing page and clicks the best one. Failure to enter is not
// fatal; classification proceeds on the landing page itself.
func (n *Navigator) enterApplication(ctx context.Context, pageURL, html string, mem *session.Memory, res *Result) (string, string) {
	snippet := parse.Snippet(html, n.cfg.SnippetLimit)
	nav, err := n.analyst.FindLoanNav(ctx, snippet)
	if err != nil {
		n.logger.Warn().Err(err).Msg("loan navigation analysis failed")
	}

	cands := make([]selector.Candidate, 0, len(nav.Buttons))
	for _, b := range nav.Buttons {
		cands = append(cands, selector.Candidate{
			Selector: b.Selector,
			Kind:     selector.GuessKind(b.Selector),
			Text:     b.Text,
			Origin:   selector.OriginLLM,
		})
	}

	outcome, err := n.resolver.Resolve(ctx, pageURL, cands, mem)
	if err != nil {
		n.logger.Warn().Err(err).Msg("entry resolution failed")
		outcome = nil
	}
	if outcome == nil {
		n.logger.Warn().Str("url", pageURL).Msg("no loan application entry found, analyzing landing page directly")
		res.Actions = append(res.Actions, Action{Type: "entry_not_found", URL: pageURL})
		return pageURL, html
	}
	n.logger.Info().Str("selector", outcome.SelectorUsed).Str("url", outcome.NewURL).Msg("entered loan application flow")
	res.Actions = append(res.Actions, Action{
		Type:     "entry_clicked",
		Selector: outcome.SelectorUsed,
		URL:      outcome.NewURL,
	})
	return outcome.NewURL, outcome.NewHTML
}

// stepIntermediate picks one option on a choice page. stop=true means
// the flow dead-ended or the human bailed out.
func (n *Navigator) stepIntermediate(ctx context.Context, pageURL, snippet string, mem *session.Memory, res *Result) (*resolver.NavigationOutcome, bool, error) {
	opts, err := n.analyst.AnalyzeOptions(ctx, snippet)
	if err != nil {
		n.logger.Error().Err(err).Msg("option analysis failed")
		res.Actions = append(res.Actions, Action{Type: "options_analysis_failed", URL: pageURL})
		return nil, true, nil
	}
	if len(opts.Options) == 0 {
		n.logger.Info().Str("url", pageURL).Msg("no options found on intermediate page")
		res.Actions = append(res.Actions, Action{Type: "no_options_found", URL: pageURL})
		return nil, true, nil
	}

	chosen := opts.Options
	if n.cfg.HumanInLoop && n.prompt != nil {
		pick, cancelled, err := n.askHuman(ctx, opts)
		if err != nil {
			return nil, false, err
		}
		if cancelled {
			res.Actions = append(res.Actions, Action{Type: "human_cancelled", URL: pageURL})
			return nil, true, nil
		}
		chosen = []OptionChoice{pick}
	}

	cands := make([]selector.Candidate, 0, len(chosen))
	for _, o := range chosen {
		cands = append(cands, selector.Candidate{
			Selector: o.Selector,
			Kind:     selector.GuessKind(o.Selector),
			Text:     o.Text,
			Origin:   selector.OriginLLM,
		})
	}

	outcome, err := n.resolver.Resolve(ctx, pageURL, cands, mem)
	if err != nil {
		return nil, false, err
	}
	if outcome == nil {
		n.logger.Info().Str("url", pageURL).Msg("no option click produced a navigation")
		res.Actions = append(res.Actions, Action{Type: "option_click_failed", URL: pageURL})
		return nil, true, nil
	}
	res.Actions = append(res.Actions, Action{
		Type:     "option_selected",
		Selector: outcome.SelectorUsed,
		URL:      outcome.NewURL,
		Detail:   opts.DecisionContext,
	})
	return outcome, false, nil
}

// stepForm extracts the current form step and, for multi-step forms,
// advances to the next step. done=true ends the crawl.
func (n *Navigator) stepForm(ctx context.Context, pageURL, html, snippet string, formSteps *int, mem *session.Memory, res *Result) (bool, *resolver.NavigationOutcome, error) {
	analysis, err := n.analyst.ExtractFormFields(ctx, snippet)
	if err != nil {
		n.logger.Warn().Err(err).Msg("llm form extraction failed, keeping parsed markup only")
	}
	record := FormRecord{
		URL:      pageURL,
		Analysis: analysis,
		Parsed:   parse.ExtractForms(html),
	}
	res.Forms = append(res.Forms, record)
	res.Actions = append(res.Actions, Action{
		Type:   "form_extracted",
		URL:    pageURL,
		Detail: analysis.FormName,
	})
	if err := n.saveFormFields(res.Forms); err != nil {
		n.logger.Error().Err(err).Msg("save form fields csv")
	}

	if !analysis.MultiStep {
		return true, nil, nil
	}
	if *formSteps >= n.cfg.MaxFormSteps {
		n.logger.Warn().Int("steps", *formSteps).Msg("form step cap reached")
		res.Actions = append(res.Actions, Action{Type: "form_step_cap_reached", URL: pageURL})
		return true, nil, nil
	}
	*formSteps++

	next, err := n.analyst.FindNextButton(ctx, snippet)
	if err != nil {
		n.logger.Error().Err(err).Msg("next-button analysis failed")
		res.Actions = append(res.Actions, Action{Type: "next_button_analysis_failed", URL: pageURL})
		return true, nil, nil
	}
	if next.ButtonType == "submit" {
		n.logger.Info().Msg("submit button detected, not clicking")
		res.Actions = append(res.Actions, Action{Type: "submit_detected", URL: pageURL})
		return true, nil, nil
	}

	cands := make([]selector.Candidate, 0, len(next.NextSelectors))
	for _, s := range next.NextSelectors {
		kind := selector.Kind(s.Type)
		if kind != selector.KindCSS && kind != selector.KindXPath {
			kind = selector.GuessKind(s.Selector)
		}
		cands = append(cands, selector.Candidate{
			Selector: s.Selector,
			Kind:     kind,
			Text:     s.Label,
			Origin:   selector.OriginLLM,
		})
	}

	outcome, err := n.resolver.Resolve(ctx, pageURL, cands, mem)
	if err != nil {
		return false, nil, err
	}
	if outcome == nil {
		n.logger.Info().Str("url", pageURL).Msg("next button click produced no navigation")
		res.Actions = append(res.Actions, Action{Type: "form_next_failed", URL: pageURL})
		return true, nil, nil
	}
	res.Actions = append(res.Actions, Action{
		Type:     "form_next_clicked",
		Selector: outcome.SelectorUsed,
		URL:      outcome.NewURL,
	})
	return false, outcome, nil
}

// askHuman presents the option list and returns the pick. An answer of
// "q" cancels.
func (n *Navigator) askHuman(ctx context.Context, opts OptionsAnalysis) (OptionChoice, bool, error) {
	var b strings.Builder
	b.WriteString("Choose a loan option")
	if opts.DecisionContext != "" {
		b.WriteString(" (" + opts.DecisionContext + ")")
	}
	b.WriteString(":\n")
	for i, o := range opts.Options {
		fmt.Fprintf(&b, "  %d. %s", i+1, o.Text)
		if o.Description != "" {
			fmt.Fprintf(&b, " - %s", o.Description)
		}
		if o.Recommended {
			b.WriteString(" [recommended]")
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Enter 1-%d or q to quit: ", len(opts.Options))

	for {
		answer, err := n.prompt(ctx, b.String())
		if err != nil {
			return OptionChoice{}, false, fmt.Errorf("prompt for option: %w", err)
		}
		answer = strings.TrimSpace(answer)
		if strings.EqualFold(answer, "q") {
			return OptionChoice{}, true, nil
		}
		idx, err := strconv.Atoi(answer)
		if err == nil && idx >= 1 && idx <= len(opts.Options) {
			return opts.Options[idx-1], false, nil
		}
		n.logger.Warn().Str("answer", answer).Msg("invalid option choice")
	}
}

// saveFormFields rewrites the form-fields CSV from the statically
// parsed markup of every form page seen so far.
func (n *Navigator) saveFormFields(forms []FormRecord) error {
	var rows [][]string
	for _, rec := range forms {
		for _, form := range rec.Parsed {
			for _, f := range form.Fields {
				name := f.Name
				if name == "" {
					name = f.ID
				}
				if name == "" {
					name = "unknown"
				}
				options := "N/A"
				if len(f.Options) > 0 {
					options = strings.Join(f.Options, "; ")
				}
				rows = append(rows, []string{name, f.Type, options})
			}
		}
	}
	path := filepath.Join(n.cfg.OutDir, "form_fields.csv")
	return store.SaveCSV(path, []string{"field_name", "type", "options"}, rows)
}
