// Package resolver is the action core: it turns a URL plus a set of
// loosely-specified element descriptions into a single clicked
// navigation, or an explicit "nothing worked".
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/finagent/loanflow/internal/browser"
	"github.com/finagent/loanflow/internal/selector"
	"github.com/finagent/loanflow/internal/session"
	"github.com/finagent/loanflow/internal/suggest"
)

const (
	defaultNavTimeout    = 60 * time.Second
	defaultProbeTimeout  = 5 * time.Second
	defaultClickTimeout  = 5 * time.Second
	defaultSettleTimeout = 5 * time.Second
	fallbackSettleDelay  = 5 * time.Second
)

// NavigationOutcome is the sole success signal: a click that changed
// the page URL.
type NavigationOutcome struct {
	NewURL       string
	NewHTML      string
	SelectorUsed string
}

// attemptResult classifies one selector attempt so the loop advances
// explicitly instead of via a catch-all around DOM calls.
type attemptResult int

const (
	attemptNotFound attemptResult = iota
	attemptNotActionable
	attemptVisitedTarget
	attemptNoNavigation
	attemptNavigated
)

// Resolver tries ranked selector strategies against a live page,
// strictly sequentially: any click can navigate away and invalidate
// every other candidate.
type Resolver struct {
	opener    browser.Opener
	suggester suggest.Suggester // optional, best-effort
	logger    zerolog.Logger
}

func New(opener browser.Opener, suggester suggest.Suggester, logger zerolog.Logger) *Resolver {
	return &Resolver{opener: opener, suggester: suggester, logger: logger}
}

// Resolve loads pageURL, expands and ranks the candidates, and tries
// them in order until one click changes the page URL. It returns
// (nil, nil) when no candidate works; that is an expected outcome, not
// an error. The error return is reserved for context cancellation and
// failure to acquire a page session.
//
// mem is consulted before every click and updated only after a
// successful navigation, so a failed click never poisons a selector.
func (r *Resolver) Resolve(ctx context.Context, pageURL string, cands []selector.Candidate, mem *session.Memory) (*NavigationOutcome, error) {
	if pageURL == "" || len(cands) == 0 {
		return nil, nil
	}

	fresh := make([]selector.Candidate, 0, len(cands))
	for _, c := range cands {
		if mem.Clicked(c.Selector) {
			r.logger.Debug().Str("selector", c.Selector).Msg("candidate already clicked, dropped")
			continue
		}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		r.logger.Info().Str("url", pageURL).Msg("all candidates already clicked, skipping navigation")
		return nil, nil
	}

	page, err := r.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page session: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := r.loadPage(ctx, page, pageURL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn().Err(err).Str("url", pageURL).Msg("page load failed")
		return nil, nil
	}

	// Rendered markup is captured once; the suggestion helper keys its
	// cache by label text, so one snapshot per call is enough.
	html, err := page.Content()
	if err != nil {
		r.logger.Debug().Err(err).Msg("read page content")
		html = ""
	}

	// Two ranking passes: the outer pass orders which candidate gets
	// expanded first, the inner pass orders the expansions of one
	// candidate. The same scoring function drives both.
	for _, outer := range selector.Rank(fresh) {
		expanded := r.expand(ctx, outer.Candidate, html)
		for _, inner := range selector.Rank(expanded) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if mem.Clicked(inner.Selector) {
				r.logger.Debug().Str("selector", inner.Selector).Msg("selector already clicked")
				continue
			}
			res, outcome := r.tryOne(ctx, page, inner.Candidate, mem)
			if res == attemptNavigated {
				mem.MarkClicked(inner.Selector)
				mem.MarkVisited(outcome.NewURL)
				return outcome, nil
			}
		}
	}

	r.logger.Info().
		Str("url", pageURL).
		Int("candidates", len(fresh)).
		Msg("no candidate produced a navigation")
	return nil, nil
}

// loadPage tries a network-idle load first and falls back to
// DOM-content-loaded plus a fixed settle delay.
func (r *Resolver) loadPage(ctx context.Context, page browser.Page, pageURL string) error {
	err := page.Navigate(ctx, pageURL, browser.WaitNetworkIdle, defaultNavTimeout)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.logger.Warn().Err(err).Str("url", pageURL).Msg("network-idle load failed, falling back to dom-content-loaded")

	if err := page.Navigate(ctx, pageURL, browser.WaitDOMContentLoaded, defaultNavTimeout); err != nil {
		return err
	}
	// Dynamic content gets a moment to render after the weaker wait.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(fallbackSettleDelay):
	}
	return nil
}

// expand builds the full strategy set for one candidate: LLM-assisted
// variants first (matching the helper's own ordering bias), then the
// original selector and the fixed heuristics.
func (r *Resolver) expand(ctx context.Context, c selector.Candidate, html string) []selector.Candidate {
	var out []selector.Candidate
	if r.suggester != nil && c.Text != "" {
		suggestions, err := r.suggester.Suggest(ctx, c.Text, html)
		if err != nil {
			r.logger.Warn().Err(err).Str("text", c.Text).Msg("selector suggestion failed, continuing without")
		}
		for _, s := range suggestions {
			out = append(out, selector.Candidate{
				Selector: s.Selector,
				Kind:     s.Kind,
				Text:     c.Text,
				Origin:   selector.OriginLLM,
				Attrs:    c.Attrs,
			})
		}
	}
	return append(out, selector.Expand(c)...)
}

// tryOne probes, validates, and clicks a single concrete selector.
// Every failure mode maps to an attemptResult; nothing escapes as an
// error because most synthesized selectors are expected to miss.
func (r *Resolver) tryOne(ctx context.Context, page browser.Page, c selector.Candidate, mem *session.Memory) (attemptResult, *NavigationOutcome) {
	log := r.logger.With().Str("selector", c.Selector).Logger()

	el, err := page.Probe(ctx, c.Selector, defaultProbeTimeout)
	if err != nil {
		log.Debug().Err(err).Msg("probe failed")
		return attemptNotFound, nil
	}

	visible, err := el.Visible()
	if err != nil || !visible {
		log.Debug().AnErr("error", err).Msg("element not visible")
		return attemptNotActionable, nil
	}
	enabled, err := el.Enabled()
	if err != nil || !enabled {
		log.Debug().AnErr("error", err).Msg("element not enabled")
		return attemptNotActionable, nil
	}
	box, err := el.BoundingBox()
	if err != nil || box == nil || box.Width == 0 || box.Height == 0 {
		log.Debug().AnErr("error", err).Msg("element has no bounding box")
		return attemptNotActionable, nil
	}

	// A link into an already-visited page would only close a loop.
	if href, err := el.Attribute("href"); err == nil && href != "" {
		if target := resolveHref(page.URL(), href); target != "" && mem.Visited(target) {
			log.Debug().Str("target", target).Msg("href points at visited url, skipping")
			return attemptVisitedTarget, nil
		}
	}

	preClickURL := page.URL()
	if err := el.Click(defaultClickTimeout); err != nil {
		log.Debug().Err(err).Msg("click failed")
		return attemptNotActionable, nil
	}
	if err := page.AwaitNetworkIdle(defaultSettleTimeout); err != nil {
		// A missing idle signal after the click is not a failure.
		log.Debug().Err(err).Msg("no network idle after click")
	}

	postClickURL := page.URL()
	if postClickURL == preClickURL {
		log.Debug().Msg("click did not navigate")
		return attemptNoNavigation, nil
	}

	html, err := page.Content()
	if err != nil {
		log.Debug().Err(err).Msg("read content after navigation")
		html = ""
	}
	log.Info().Str("url", postClickURL).Msg("navigation detected")
	return attemptNavigated, &NavigationOutcome{
		NewURL:       postClickURL,
		NewHTML:      html,
		SelectorUsed: c.Selector,
	}
}

// resolveHref makes href absolute against the current page URL.
func resolveHref(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(h).String()
}
