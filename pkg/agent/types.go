package agent

import (
	"encoding/json"
	"strings"

	"github.com/harun/aura/pkg/toolexecutor"
)

// AgentConfig configures completion behavior
type AgentConfig struct {
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxRetries   int     `json:"max_retries,omitempty"`
}

// ExchangeResult is the outcome of one user message.
type ExchangeResult struct {
	ID          string                  `json:"exchange_id"`
	Reply       string                  `json:"reply"`
	ToolCalls   []ToolCall              `json:"tool_calls,omitempty"`
	ToolResults []toolexecutor.Envelope `json:"tool_results,omitempty"`
	Usage       *TokenUsage             `json:"usage,omitempty"`
	Provider    string                  `json:"provider,omitempty"`
}

// ToolCall represents a tool invocation requested by the model. Arguments
// are kept exactly as the model produced them.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u *TokenUsage) add(other *TokenUsage) *TokenUsage {
	if other == nil {
		return u
	}
	if u == nil {
		copied := *other
		return &copied
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	return u
}

// AuthProfile represents authentication credentials for LLM providers
type AuthProfile struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"` // "anthropic", "openai"
	APIKey        string `json:"api_key"`
	BaseURL       string `json:"base_url,omitempty"`
	Model         string `json:"model,omitempty"`
	CooldownUntil *int64 `json:"cooldown_until,omitempty"`
	FailureCount  int    `json:"failure_count"`
	Priority      int    `json:"priority"`
}

// AgentMessage represents a message in the conversation
type AgentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DefaultConfig returns default agent configuration
func DefaultConfig() AgentConfig {
	return AgentConfig{
		Model:       "claude-3-5-sonnet-20241022",
		Temperature: 0.7,
		MaxTokens:   4096,
		MaxRetries:  3,
	}
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())

	// Network errors
	for _, marker := range []string{"econnreset", "etimedout", "connection reset", "connection refused", "eof"} {
		if strings.Contains(errMsg, marker) {
			return true
		}
	}

	// Rate limits
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "overloaded") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504", "529"} {
		if strings.Contains(errMsg, code) {
			return true
		}
	}

	return false
}

// IsCredentialError reports failures caused by the profile's credentials or
// account rather than by the request.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	for _, marker := range []string{"401", "403", "unauthorized", "authentication_error", "permission_error", "invalid x-api-key", "invalid api key", "incorrect api key"} {
		if strings.Contains(errMsg, marker) {
			return true
		}
	}
	return false
}
