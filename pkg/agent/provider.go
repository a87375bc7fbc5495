package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/aura/pkg/toolspec"
)

// ToolChoiceAuto lets the model decide whether to call tools.
const ToolChoiceAuto = "auto"

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model        string
	Messages     []AgentMessage
	Tools        []toolspec.Declaration
	ToolChoice   string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// defaultModels serves profiles whose provider cannot run the configured
// agent model.
var defaultModels = map[string]string{
	"anthropic": "claude-3-5-sonnet-20241022",
	"openai":    "gpt-4o",
}

// modelProvider names the provider a model belongs to, or "" when the name
// is not recognised (local or proxied models).
func modelProvider(model string) string {
	name := strings.ToLower(model)
	switch {
	case strings.HasPrefix(name, "claude"):
		return "anthropic"
	case strings.HasPrefix(name, "gpt"), strings.HasPrefix(name, "chatgpt"),
		strings.HasPrefix(name, "o1"), strings.HasPrefix(name, "o3"), strings.HasPrefix(name, "o4"):
		return "openai"
	default:
		return ""
	}
}

// ResolveModel picks the model sent to a profile: the profile's own model,
// then the agent model when the profile's provider can serve it, then the
// provider default.
func ResolveModel(profile AuthProfile, agentModel string) string {
	if profile.Model != "" {
		return profile.Model
	}
	if family := modelProvider(agentModel); family == "" || family == profile.Provider {
		return agentModel
	}
	if model, ok := defaultModels[profile.Provider]; ok {
		return model
	}
	return agentModel
}

// ProviderFactory creates LLM providers
type ProviderFactory struct{}

// NewProvider creates a new LLM provider based on auth profile
func (f *ProviderFactory) NewProvider(profile AuthProfile) (LLMProvider, error) {
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey, anthropicOptions(profile)...), nil
	case "openai":
		return NewOpenAIProvider(profile.APIKey, openAIOptions(profile)...), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
