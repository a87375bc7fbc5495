package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/aura/internal/observability"
	"github.com/harun/aura/pkg/memory"
	"github.com/harun/aura/pkg/toolexecutor"
	"github.com/harun/aura/pkg/toolspec"
	"github.com/rs/zerolog"
)

const (
	phasePrimary        = "primary"
	phaseInterpretation = "interpretation"

	defaultRetryBaseDelay = time.Second
	cooldownStep          = 60 * time.Second
)

// Exchange states, logged on every transition.
const (
	stateIdle                   = "idle"
	stateAwaitingPrimary        = "awaiting_primary"
	stateExecutingTools         = "executing_tools"
	stateAwaitingInterpretation = "awaiting_interpretation"
	stateDone                   = "done"
)

// ToolDispatcher executes tool calls on behalf of the runner.
type ToolDispatcher interface {
	Execute(ctx context.Context, name string, params map[string]interface{}) toolexecutor.Envelope
	ExecuteAll(ctx context.Context, calls []toolexecutor.Call) []toolexecutor.Envelope
}

// ProviderCreator creates LLM providers from auth profiles.
type ProviderCreator interface {
	NewProvider(profile AuthProfile) (LLMProvider, error)
}

// Runner orchestrates one exchange per user message: a primary completion,
// concurrent tool dispatch, an interpretation completion and a memory commit.
type Runner struct {
	dispatcher      ToolDispatcher
	store           memory.Store
	logger          zerolog.Logger
	providerFactory ProviderCreator
	agentConfig     AgentConfig
	systemPrompt    string
	conversation    string
	retryBaseDelay  time.Duration

	// Auth profiles
	authProfiles []AuthProfile
	authMu       sync.RWMutex
}

// Config holds runner configuration
type Config struct {
	Dispatcher      ToolDispatcher
	Store           memory.Store
	Logger          zerolog.Logger
	AuthProfiles    []AuthProfile
	ProviderFactory ProviderCreator
	Agent           AgentConfig
	// Conversation labels log lines and tool execution contexts.
	Conversation string
	// RetryBaseDelay is the first backoff step (default 1s, doubling).
	RetryBaseDelay time.Duration
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("tool dispatcher is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	if len(cfg.AuthProfiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}

	agentConfig := cfg.Agent
	if agentConfig.Model == "" {
		agentConfig = mergeDefaults(agentConfig)
	}
	if err := validateConfig(agentConfig); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	providerFactory := cfg.ProviderFactory
	if providerFactory == nil {
		providerFactory = &ProviderFactory{}
	}

	retryBaseDelay := cfg.RetryBaseDelay
	if retryBaseDelay <= 0 {
		retryBaseDelay = defaultRetryBaseDelay
	}

	conversation := cfg.Conversation
	if conversation == "" {
		conversation = memory.DefaultConversation
	}

	profiles := make([]AuthProfile, len(cfg.AuthProfiles))
	copy(profiles, cfg.AuthProfiles)

	return &Runner{
		dispatcher:      cfg.Dispatcher,
		store:           cfg.Store,
		logger:          cfg.Logger,
		providerFactory: providerFactory,
		agentConfig:     agentConfig,
		systemPrompt:    BuildSystemPrompt(agentConfig.SystemPrompt),
		conversation:    conversation,
		retryBaseDelay:  retryBaseDelay,
		authProfiles:    profiles,
	}, nil
}

func mergeDefaults(cfg AgentConfig) AgentConfig {
	defaults := DefaultConfig()
	defaults.SystemPrompt = cfg.SystemPrompt
	if cfg.MaxTokens > 0 {
		defaults.MaxTokens = cfg.MaxTokens
	}
	if cfg.MaxRetries > 0 {
		defaults.MaxRetries = cfg.MaxRetries
	}
	if cfg.Temperature > 0 {
		defaults.Temperature = cfg.Temperature
	}
	return defaults
}

// validateConfig validates agent configuration
func validateConfig(config AgentConfig) error {
	if config.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// SystemPrompt returns the prompt sent at the head of every exchange.
func (r *Runner) SystemPrompt() string {
	return r.systemPrompt
}

// HandleUserMessage runs one exchange. Memory is written only when a
// non-empty reply is produced; every failure leaves memory untouched.
func (r *Runner) HandleUserMessage(ctx context.Context, text string) (result ExchangeResult, err error) {
	if strings.TrimSpace(text) == "" {
		return ExchangeResult{}, fmt.Errorf("%w: message is required", ErrInvalidMessage)
	}

	start := time.Now()
	exchangeID := uuid.NewString()
	logger := r.logger.With().
		Str("exchange_id", exchangeID).
		Str("conversation", r.conversation).
		Logger()
	ctx = toolexecutor.ContextWithExecContext(ctx, &toolexecutor.ExecutionContext{
		ExchangeID:   exchangeID,
		Conversation: r.conversation,
	})

	state := stateIdle
	transition := func(next string) {
		logger.Debug().Str("from", state).Str("to", next).Msg("Exchange state transition")
		state = next
	}
	defer func() {
		observability.RecordExchange(exchangeOutcome(err), time.Since(start))
	}()

	history, err := r.store.All(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load conversation history")
		return ExchangeResult{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	messages := buildMessages(history, text)

	transition(stateAwaitingPrimary)
	primary, provider, err := r.complete(ctx, logger, phasePrimary, LLMRequest{
		Messages:   messages,
		Tools:      toolspec.Describe(),
		ToolChoice: ToolChoiceAuto,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Primary completion failed")
		return ExchangeResult{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	result = ExchangeResult{
		ID:       exchangeID,
		Reply:    primary.Content,
		Usage:    (*TokenUsage)(nil).add(primary.Usage),
		Provider: provider,
	}

	if len(primary.ToolCalls) > 0 {
		transition(stateExecutingTools)
		calls := make([]toolexecutor.Call, len(primary.ToolCalls))
		for i, tc := range primary.ToolCalls {
			calls[i] = toolexecutor.Call{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
		}
		envelopes := r.dispatcher.ExecuteAll(ctx, calls)

		failed := 0
		for _, env := range envelopes {
			if !env.Success {
				failed++
			}
		}
		logger.Info().
			Int("tool_calls", len(calls)).
			Int("failed", failed).
			Msg("Tool calls executed")

		transition(stateAwaitingInterpretation)
		interpretation, interpProvider, interpErr := r.complete(ctx, logger, phaseInterpretation, LLMRequest{
			Messages: interpretationMessages(messages, primary.Content, primary.ToolCalls, envelopes),
		})
		if interpErr != nil {
			logger.Error().Err(interpErr).Msg("Interpretation completion failed")
			return ExchangeResult{}, fmt.Errorf("%w: %w", ErrUpstream, interpErr)
		}

		result.Reply = interpretation.Content
		result.ToolCalls = primary.ToolCalls
		result.ToolResults = envelopes
		result.Usage = result.Usage.add(interpretation.Usage)
		result.Provider = interpProvider
	}

	result.Reply = strings.TrimSpace(result.Reply)
	if result.Reply == "" {
		transition(stateDone)
		logger.Warn().Msg("Exchange produced no reply; nothing persisted")
		return ExchangeResult{}, ErrNoResponse
	}

	if appendErr := r.store.Append(ctx,
		memory.Turn{Role: memory.RoleUser, Content: text},
		memory.Turn{Role: memory.RoleAssistant, Content: result.Reply},
	); appendErr != nil {
		logger.Error().Err(appendErr).Msg("Failed to persist exchange")
		return ExchangeResult{}, fmt.Errorf("%w: %w", ErrPersistence, appendErr)
	}

	transition(stateDone)
	logger.Info().
		Str("provider", result.Provider).
		Dur("duration", time.Since(start)).
		Msg("Exchange completed")

	return result, nil
}

func exchangeOutcome(err error) string {
	switch {
	case err == nil:
		return "reply"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	case errors.Is(err, ErrNoResponse):
		return "no_response"
	default:
		return "error"
	}
}

// ExecuteTool runs a single tool outside of an exchange.
func (r *Runner) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) toolexecutor.Envelope {
	if toolexecutor.ExecContextFromContext(ctx) == nil {
		ctx = toolexecutor.ContextWithExecContext(ctx, &toolexecutor.ExecutionContext{
			ExchangeID:   uuid.NewString(),
			Conversation: r.conversation,
		})
	}
	return r.dispatcher.Execute(ctx, name, args)
}

// History returns every persisted turn in order.
func (r *Runner) History(ctx context.Context) ([]memory.Turn, error) {
	turns, err := r.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return turns, nil
}

// ClearHistory removes every persisted turn.
func (r *Runner) ClearHistory(ctx context.Context) error {
	if err := r.store.Clear(ctx); err != nil {
		observability.RecordMemoryAudit(ctx, "clear", r.conversation, "failure", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	observability.RecordMemoryAudit(ctx, "clear", r.conversation, "success", nil)
	r.logger.Info().Str("conversation", r.conversation).Msg("Conversation history cleared")
	return nil
}

// buildMessages maps persisted turns and the new message onto the prompt.
func buildMessages(history []memory.Turn, text string) []AgentMessage {
	messages := make([]AgentMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, AgentMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	return append(messages, AgentMessage{Role: "user", Content: text})
}

// complete fills in model settings and runs the request with failover.
func (r *Runner) complete(ctx context.Context, logger zerolog.Logger, phase string, request LLMRequest) (*LLMResponse, string, error) {
	request.Temperature = r.agentConfig.Temperature
	request.MaxTokens = r.agentConfig.MaxTokens
	request.SystemPrompt = r.systemPrompt

	return r.executeWithFailover(ctx, logger, phase, request)
}

// executeWithFailover tries each available profile in priority order. A
// profile is cooled down only for failures that say something about the
// profile itself; a request the provider rejects is returned at once.
func (r *Runner) executeWithFailover(ctx context.Context, logger zerolog.Logger, phase string, request LLMRequest) (*LLMResponse, string, error) {
	r.authMu.RLock()
	profiles := make([]AuthProfile, len(r.authProfiles))
	copy(profiles, r.authProfiles)
	r.authMu.RUnlock()

	sortProfilesByPriority(profiles)

	now := time.Now().UnixMilli()
	candidates := make([]AuthProfile, 0, len(profiles))
	for _, profile := range profiles {
		if profile.CooldownUntil != nil && now < *profile.CooldownUntil {
			observability.SetProviderCooldown(profile.Provider, true)
			logger.Debug().
				Str("profile_id", profile.ID).
				Msg("Skipping profile in cooldown")
			continue
		}
		candidates = append(candidates, profile)
	}
	if len(candidates) == 0 {
		logger.Warn().
			Int("profiles", len(profiles)).
			Msg("Every auth profile is in cooldown, trying them anyway")
		candidates = profiles
	}

	var lastErr error

	for _, profile := range candidates {
		provider, err := r.providerFactory.NewProvider(profile)
		if err != nil {
			lastErr = err
			logger.Warn().
				Str("profile_id", profile.ID).
				Err(err).
				Msg("Failed to create provider")
			continue
		}

		attempt := request
		attempt.Model = ResolveModel(profile, r.agentConfig.Model)

		callStart := time.Now()
		response, err := r.callLLMWithRetry(ctx, logger, provider, attempt)
		observability.RecordLLMCall(provider.Provider(), phase, time.Since(callStart), err == nil)
		if err == nil {
			r.updateProfileSuccess(profile.ID)
			return response, provider.Provider(), nil
		}

		lastErr = err
		logger.Warn().
			Str("profile_id", profile.ID).
			Str("provider", provider.Provider()).
			Str("model", attempt.Model).
			Str("phase", phase).
			Err(err).
			Msg("Auth profile failed")

		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}

		// The request itself was rejected; another profile would reject it too.
		if !IsRetryableError(err) && !IsCredentialError(err) {
			return nil, "", err
		}

		r.updateProfileFailure(profile.ID)
	}

	if lastErr == nil {
		lastErr = errors.New("no usable auth profile")
	}
	return nil, "", fmt.Errorf("all auth profiles failed: %w", lastErr)
}

// callLLMWithRetry calls LLM with exponential backoff retry
func (r *Runner) callLLMWithRetry(ctx context.Context, logger zerolog.Logger, provider LLMProvider, request LLMRequest) (*LLMResponse, error) {
	maxRetries := r.agentConfig.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		response, err := provider.Call(ctx, request)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}

		// Last attempt - don't wait
		if attempt == maxRetries-1 {
			break
		}

		delay := r.retryBaseDelay * time.Duration(1<<attempt)
		logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// updateProfileSuccess resets failure count for a profile
func (r *Runner) updateProfileSuccess(profileID string) {
	r.authMu.Lock()
	defer r.authMu.Unlock()

	for i := range r.authProfiles {
		if r.authProfiles[i].ID == profileID {
			r.authProfiles[i].FailureCount = 0
			r.authProfiles[i].CooldownUntil = nil
			observability.SetProviderCooldown(r.authProfiles[i].Provider, false)
			break
		}
	}
}

// updateProfileFailure puts a profile in cooldown, longer for each
// consecutive failure.
func (r *Runner) updateProfileFailure(profileID string) {
	r.authMu.Lock()
	defer r.authMu.Unlock()

	for i := range r.authProfiles {
		if r.authProfiles[i].ID == profileID {
			r.authProfiles[i].FailureCount++
			cooldown := time.Now().Add(cooldownStep * time.Duration(r.authProfiles[i].FailureCount)).UnixMilli()
			r.authProfiles[i].CooldownUntil = &cooldown
			observability.SetProviderCooldown(r.authProfiles[i].Provider, true)
			break
		}
	}
}

// sortProfilesByPriority sorts profiles by priority (lower = higher priority)
func sortProfilesByPriority(profiles []AuthProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
}
