package flow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/finagent/loanflow/internal/llm"
)

// PageAnalyst answers the LLM-backed questions the navigator asks
// about a page. Implementations are best-effort text processors; the
// navigator treats their failures as dead ends, not crashes.
type PageAnalyst interface {
	FindLoanNav(ctx context.Context, snippet string) (NavAnalysis, error)
	ClassifyPage(ctx context.Context, snippet, url string) (Classification, error)
	AnalyzeOptions(ctx context.Context, snippet string) (OptionsAnalysis, error)
	ExtractFormFields(ctx context.Context, snippet string) (FormAnalysis, error)
	FindNextButton(ctx context.Context, snippet string) (NextAnalysis, error)
}

// NavButton is a navigation element the model believes leads to a
// loan application.
type NavButton struct {
	Text       string  `json:"text"`
	Selector   string  `json:"selector"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type NavAnalysis struct {
	Buttons      []NavButton `json:"loan_application_buttons"`
	NavAreaFound bool        `json:"nav_area_found"`
}

type Classification struct {
	PageType           string   `json:"page_type"`
	Confidence         float64  `json:"confidence"`
	Reason             string   `json:"reason"`
	FormFieldsFound    bool     `json:"form_fields_found"`
	ChoiceOptionsFound bool     `json:"choice_options_found"`
	InputFields        []string `json:"input_fields"`
	LoanOptions        []string `json:"loan_options"`
}

type OptionChoice struct {
	Text        string `json:"text"`
	Selector    string `json:"selector"`
	Description string `json:"description"`
	Recommended bool   `json:"recommended"`
}

type OptionsAnalysis struct {
	Options             []OptionChoice `json:"options"`
	TotalOptions        int            `json:"total_options"`
	RequiresHumanChoice bool           `json:"requires_human_choice"`
	DecisionContext     string         `json:"decision_context"`
}

type FormFieldSpec struct {
	Name         string `json:"name"`
	InputType    string `json:"input_type"`
	Required     bool   `json:"required"`
	SelectorHint string `json:"selector_hint"`
	Notes        string `json:"notes"`
}

type FormAnalysis struct {
	FormName   string          `json:"form_name"`
	MultiStep  bool            `json:"multi_step"`
	StepsCount int             `json:"steps_count"`
	Fields     []FormFieldSpec `json:"fields"`
	Confidence float64         `json:"confidence"`
}

type NextSelector struct {
	Selector string `json:"selector"`
	Type     string `json:"type"`
	Label    string `json:"label"`
}

type NextAnalysis struct {
	// ButtonType is "next" or "submit". Submit buttons are detected
	// but never clicked.
	ButtonType    string         `json:"button_type"`
	NextSelectors []NextSelector `json:"next_selectors"`
	Confidence    float64        `json:"confidence"`
}

const analystSystemPrompt = "You are a precise JSON-producing assistant."

const promptFindLoanNav = `You are an expert at finding loan application links in website navigation.
Given the page snippet, identify buttons/links that would lead to a loan application.
Focus on navigation bar items and main call-to-action buttons.

Page snippet: %s

Return a JSON object:
{
    "loan_application_buttons": [
        {
            "text": "button text",
            "selector": "CSS selector",
            "confidence": 0.0,
            "reason": "why this is likely a loan application button"
        }
    ],
    "nav_area_found": true
}
ONLY output the JSON.`

const promptClassify = `You are analyzing a page in a loan application flow. You must determine if this is:

1. An INTERMEDIATE selection page:
   - Contains multiple loan options/products to choose from
   - Asks the user to select a category or type BEFORE showing the actual application form
   - Does NOT contain form input fields like name, email, phone

2. A FORM page:
   - Contains actual input fields (text inputs, dropdowns, checkboxes)
   - Asks for personal/business information

Page snippet: %s
URL: %s

Return a JSON object:
{
    "page_type": "intermediate" or "form",
    "confidence": 0.0,
    "reason": "why this matches form or intermediate criteria",
    "form_fields_found": false,
    "choice_options_found": false,
    "input_fields": [],
    "loan_options": []
}

IMPORTANT: a simple "Apply Now" page with a single application button is NOT an intermediate page.
ONLY output valid JSON.`

const promptAnalyzeOptions = `You are analyzing an intermediate page in a loan application flow.
Extract all clickable options that a user might need to choose from.

Page snippet: %s

Return a JSON object:
{
    "options": [
        {
            "text": "option text/label",
            "selector": "CSS selector",
            "description": "what this option means",
            "recommended": false
        }
    ],
    "total_options": 0,
    "requires_human_choice": false,
    "decision_context": "what decision the user needs to make here"
}
ONLY output the JSON.`

const promptExtractForm = `You are a scraper that extracts structured form data for a loan application page.
Given the page snippet:
%s

Return JSON:
{
  "form_name": "Personal Loan Application",
  "multi_step": true,
  "steps_count": 3,
  "fields": [
    {"name": "First name", "input_type": "text", "required": true, "selector_hint": "input[name='first_name']", "notes": ""}
  ],
  "confidence": 0.0
}
Only output JSON.`

const promptFindNext = `You are an expert at finding navigation buttons on multi-step web forms.
Given the page snippet:
%s

Decide whether the main action button advances to another step ("next") or finalizes the form ("submit"),
and suggest selectors for it. Any XPath selector must uniquely identify exactly one element.

Return JSON:
{
  "button_type": "next" or "submit",
  "next_selectors": [
    {"selector": "button.next-step", "type": "css", "label": "Next"},
    {"selector": "//button[contains(.,'Continue')]", "type": "xpath", "label": "Continue"}
  ],
  "confidence": 0.0
}
ONLY output JSON.`

// Analyst is the LLM-backed PageAnalyst.
type Analyst struct {
	client llm.Client
	logger zerolog.Logger
}

func NewAnalyst(client llm.Client, logger zerolog.Logger) *Analyst {
	return &Analyst{client: client, logger: logger}
}

func (a *Analyst) FindLoanNav(ctx context.Context, snippet string) (NavAnalysis, error) {
	var out NavAnalysis
	err := a.ask(ctx, fmt.Sprintf(promptFindLoanNav, snippet), &out)
	return out, err
}

func (a *Analyst) ClassifyPage(ctx context.Context, snippet, url string) (Classification, error) {
	var out Classification
	err := a.ask(ctx, fmt.Sprintf(promptClassify, snippet, url), &out)
	return out, err
}

func (a *Analyst) AnalyzeOptions(ctx context.Context, snippet string) (OptionsAnalysis, error) {
	var out OptionsAnalysis
	err := a.ask(ctx, fmt.Sprintf(promptAnalyzeOptions, snippet), &out)
	return out, err
}

func (a *Analyst) ExtractFormFields(ctx context.Context, snippet string) (FormAnalysis, error) {
	var out FormAnalysis
	err := a.ask(ctx, fmt.Sprintf(promptExtractForm, snippet), &out)
	return out, err
}

func (a *Analyst) FindNextButton(ctx context.Context, snippet string) (NextAnalysis, error) {
	var out NextAnalysis
	err := a.ask(ctx, fmt.Sprintf(promptFindNext, snippet), &out)
	return out, err
}

func (a *Analyst) ask(ctx context.Context, prompt string, out any) error {
	resp, err := a.client.Generate(ctx, llm.Request{
		System:      analystSystemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   800,
	})
	if err != nil {
		return fmt.Errorf("llm call: %w", err)
	}
	raw, err := llm.ExtractJSON(resp.Text)
	if err != nil {
		a.logger.Debug().Str("raw", truncate(resp.Text, 300)).Msg("no JSON in llm output")
		return fmt.Errorf("parse llm output: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode llm output: %w", err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
