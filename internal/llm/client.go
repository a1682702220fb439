package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	envProvider = "LLM_PROVIDER" // "groq" or "anthropic"
)

type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Response struct {
	Text string
}

// NewClientFromEnv creates a client based on LLM_PROVIDER.
// Defaults to Groq, which is what the navigator was tuned against.
func NewClientFromEnv() (Client, error) {
	return NewClientWithLogger(zerolog.Nop())
}

// NewClientWithLogger creates a client with a logger attached.
func NewClientWithLogger(logger zerolog.Logger) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv(envProvider)))
	if provider == "" {
		provider = "groq"
	}

	switch provider {
	case "groq":
		return NewGroqWithLogger(logger)
	case "anthropic":
		return NewAnthropicWithLogger(logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (use 'groq' or 'anthropic')", provider)
	}
}
