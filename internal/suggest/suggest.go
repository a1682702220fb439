// Package suggest asks an LLM for selector ideas keyed by the visible
// text of a target element. It is strictly best-effort: an error or an
// empty answer contributes nothing and must never block resolution.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/finagent/loanflow/internal/llm"
	"github.com/finagent/loanflow/internal/selector"
)

// Suggestion is one LLM-proposed way to locate an element.
type Suggestion struct {
	Selector string
	Kind     selector.Kind
}

// Suggester proposes selectors for a visible element label.
type Suggester interface {
	Suggest(ctx context.Context, labelText, pageHTML string) ([]Suggestion, error)
}

// Cache stores suggestions per label text for the lifetime of a run.
// It is owned by whoever builds the suggester and injected, so tests
// can substitute a pre-filled one.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]Suggestion
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string][]Suggestion)}
}

func (c *Cache) get(label string) ([]Suggestion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[label]
	return s, ok
}

func (c *Cache) put(label string, s []Suggestion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[label] = s
}

const promptTemplate = `Given this button text: %q
Generate effective CSS and XPath selectors to find the button element. The selectors should be robust and consider different potential HTML structures.
Consider multiple approaches:
1. Text-based selectors (exact and partial matches)
2. Button/link specific selectors
3. Role-based selectors
4. Class/ID based selectors if consistent patterns are found

Format your response as a JSON array of objects with 'selector' and 'type' fields. Example:
[
    {"selector": "//button[contains(text(), 'Apply Now')]", "type": "xpath"},
    {"selector": "button:has-text('Apply Now')", "type": "css"}
]
ONLY output the JSON array.`

type llmSuggester struct {
	client llm.Client
	cache  *Cache
	logger zerolog.Logger
}

func New(client llm.Client, cache *Cache, logger zerolog.Logger) Suggester {
	if cache == nil {
		cache = NewCache()
	}
	return &llmSuggester{client: client, cache: cache, logger: logger}
}

func (s *llmSuggester) Suggest(ctx context.Context, labelText, pageHTML string) ([]Suggestion, error) {
	_ = pageHTML // the prompt is keyed by label text alone, like the cache
	if labelText == "" {
		return nil, nil
	}
	if cached, ok := s.cache.get(labelText); ok {
		s.logger.Debug().Str("label", labelText).Int("count", len(cached)).Msg("suggestion cache hit")
		return cached, nil
	}

	resp, err := s.client.Generate(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: fmt.Sprintf(promptTemplate, labelText)}},
		Temperature: 0,
		MaxTokens:   600,
	})
	if err != nil {
		return nil, fmt.Errorf("suggest selectors for %q: %w", labelText, err)
	}

	raw, err := llm.ExtractJSONArray(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("suggest selectors for %q: %w", labelText, err)
	}
	var parsed []struct {
		Selector string `json:"selector"`
		Type     string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("suggest selectors for %q: %w", labelText, err)
	}

	suggestions := make([]Suggestion, 0, len(parsed))
	for _, p := range parsed {
		if p.Selector == "" {
			continue
		}
		kind := selector.Kind(p.Type)
		if kind != selector.KindCSS && kind != selector.KindXPath {
			kind = selector.GuessKind(p.Selector)
		}
		suggestions = append(suggestions, Suggestion{Selector: p.Selector, Kind: kind})
	}

	// Only successful lookups are cached; a transient failure should
	// be retried on the next label occurrence.
	s.cache.put(labelText, suggestions)
	s.logger.Debug().Str("label", labelText).Int("count", len(suggestions)).Msg("cached llm selector suggestions")
	return suggestions, nil
}
