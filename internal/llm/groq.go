package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	envGroqAPIKey    = "GROQ_API_KEY"
	envGroqAPIBase   = "GROQ_API_BASE"
	envGroqModel     = "GROQ_MODEL"
	defaultGroqBase  = "https://api.groq.com/openai/v1"
	defaultGroqModel = "llama3-70b-8192"

	groqMaxTokens   = 800
	groqTimeoutSecs = 60

	groqMaxRetries     = 3
	groqRetryBaseDelay = 500 * time.Millisecond
	groqMaxRequestSize = 200000 // ~200KB
)

// groqClient talks to Groq's OpenAI-compatible chat completions API.
type groqClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	logger  zerolog.Logger
}

type groqPayload struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func NewGroqFromEnv() (Client, error) {
	key := strings.TrimSpace(os.Getenv(envGroqAPIKey))
	if key == "" {
		return nil, fmt.Errorf("missing %s", envGroqAPIKey)
	}
	base := strings.TrimSpace(os.Getenv(envGroqAPIBase))
	if base == "" {
		base = defaultGroqBase
	}
	model := strings.TrimSpace(os.Getenv(envGroqModel))
	if model == "" {
		model = defaultGroqModel
	}
	model = strings.Trim(model, "\"'")
	return &groqClient{
		apiKey:  key,
		baseURL: strings.TrimRight(base, "/"),
		model:   model,
		http: &http.Client{
			Timeout: groqTimeoutSecs * time.Second,
		},
		logger: zerolog.Nop(),
	}, nil
}

func NewGroqWithLogger(logger zerolog.Logger) (Client, error) {
	client, err := NewGroqFromEnv()
	if err != nil {
		return nil, err
	}
	if gc, ok := client.(*groqClient); ok {
		gc.logger = logger
	}
	return client, nil
}

func (c *groqClient) Name() string { return c.model }

func (c *groqClient) Generate(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("no messages")
	}

	for i, m := range req.Messages {
		if len(m.Content) > groqMaxRequestSize {
			c.logger.Warn().Int("message_idx", i).Int("size", len(m.Content)).Msg("message too large, truncating")
			req.Messages[i].Content = m.Content[:groqMaxRequestSize] + "... [truncated]"
		}
	}
	if len(req.System) > groqMaxRequestSize {
		c.logger.Warn().Int("size", len(req.System)).Msg("system prompt too large, truncating")
		req.System = req.System[:groqMaxRequestSize] + "... [truncated]"
	}

	var lastErr error
	for attempt := 0; attempt <= groqMaxRetries; attempt++ {
		if attempt > 0 {
			delay := groqRetryBaseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying Groq API call")
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		messages := make([]groqMessage, 0, len(req.Messages)+1)
		if req.System != "" {
			messages = append(messages, groqMessage{Role: "system", Content: req.System})
		}
		for _, m := range req.Messages {
			messages = append(messages, groqMessage{Role: m.Role, Content: m.Content})
		}

		payload := groqPayload{
			Model:       c.model,
			Messages:    messages,
			Temperature: float64(req.Temperature),
			MaxTokens:   maxInt(req.MaxTokens, groqMaxTokens),
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("marshal payload: %w", err)
		}

		c.logger.Debug().
			Str("model", c.model).
			Int("messages", len(messages)).
			Int("payload_size", len(body)).
			Int("max_tokens", payload.MaxTokens).
			Msg("Groq API request")

		endpoint := c.baseURL + "/chat/completions"
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return Response{}, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			if attempt < groqMaxRetries {
				continue
			}
			return Response{}, lastErr
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			if attempt < groqMaxRetries {
				continue
			}
			return Response{}, lastErr
		}

		c.logger.Debug().
			Int("status", resp.StatusCode).
			Int("response_size", len(data)).
			Msg("Groq API response")

		if resp.StatusCode >= 400 {
			var apiResp groqResponse
			rawError := string(data)
			if err := json.Unmarshal(data, &apiResp); err != nil || apiResp.Error == nil {
				errorMsg := rawError
				if len(errorMsg) > 500 {
					errorMsg = errorMsg[:500] + "..."
				}
				lastErr = fmt.Errorf("groq %d: %s", resp.StatusCode, errorMsg)
			} else {
				lastErr = fmt.Errorf("groq %d: %s (type: %s, code: %s)", resp.StatusCode, apiResp.Error.Message, apiResp.Error.Type, apiResp.Error.Code)
			}

			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("raw_response", rawError).
				Int("attempt", attempt).
				Msg("Groq API error")

			// Retry on rate limit and server errors only.
			if (resp.StatusCode == 429 || resp.StatusCode >= 500) && attempt < groqMaxRetries {
				continue
			}
			return Response{}, lastErr
		}

		var apiResp groqResponse
		if err := json.Unmarshal(data, &apiResp); err != nil {
			lastErr = fmt.Errorf("parse response: %w", err)
			if attempt < groqMaxRetries {
				continue
			}
			return Response{}, lastErr
		}
		if len(apiResp.Choices) == 0 {
			return Response{}, fmt.Errorf("no choices in response")
		}

		text := apiResp.Choices[0].Message.Content
		c.logger.Debug().
			Str("finish_reason", apiResp.Choices[0].FinishReason).
			Int("total_tokens", apiResp.Usage.TotalTokens).
			Int("response_length", len(text)).
			Msg("Groq API success")

		return Response{Text: text}, nil
	}

	return Response{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
