package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harun/aura/internal/observability"
	"github.com/harun/aura/pkg/toolspec"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/iter"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultTimeout bounds a single tool execution when no option overrides it.
const DefaultTimeout = 30 * time.Second

// Handler is the function signature for tool execution
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Handlers maps every registered tool to exactly one handler.
type Handlers map[toolspec.Name]Handler

// Envelope is the uniform result of a tool invocation.
type Envelope struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// MarshalJSON emits result on every success, even a nil or empty one, and
// error on every failure.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Success {
		return json.Marshal(struct {
			Success bool        `json:"success"`
			Result  interface{} `json:"result"`
		}{Success: true, Result: e.Result})
	}
	return json.Marshal(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{Success: false, Error: e.Error})
}

// Succeed wraps a handler result.
func Succeed(result interface{}) Envelope {
	return Envelope{Success: true, Result: result}
}

// Fail builds a failure envelope.
func Fail(format string, args ...interface{}) Envelope {
	return Envelope{Success: false, Error: fmt.Sprintf(format, args...)}
}

// JSON renders the envelope the way it is shown to the model.
func (e Envelope) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, "unserializable tool result: "+err.Error())
	}
	return string(data)
}

// Call is one tool invocation request with raw JSON arguments.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Dispatcher resolves tool names to handlers and executes them.
type Dispatcher struct {
	handlers map[toolspec.Name]Handler
	schemas  map[toolspec.Name]*gojsonschema.Schema
	timeout  time.Duration
	logger   zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout overrides the per-tool execution timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New creates a dispatcher. The handler table must cover the registry exactly.
func New(handlers Handlers, opts ...Option) (*Dispatcher, error) {
	observability.EnsureRegistered()

	if err := CheckParity(handlers); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		handlers: make(map[toolspec.Name]Handler, len(handlers)),
		schemas:  make(map[toolspec.Name]*gojsonschema.Schema, len(handlers)),
		timeout:  DefaultTimeout,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, contract := range toolspec.Contracts() {
		schema, err := generateJSONSchema(contract)
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for %s: %w", contract.Name, err)
		}
		d.handlers[contract.Name] = handlers[contract.Name]
		d.schemas[contract.Name] = schema
	}

	d.logger.Debug().Int("tools", len(d.handlers)).Msg("Tool dispatcher initialized")
	return d, nil
}

// CheckParity reports drift between the registry and a handler table.
func CheckParity(handlers Handlers) error {
	var missing, extra []string

	for _, name := range toolspec.All() {
		if handlers[name] == nil {
			missing = append(missing, string(name))
		}
	}
	for name := range handlers {
		if _, ok := toolspec.Lookup(string(name)); !ok {
			extra = append(extra, string(name))
		}
	}

	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return fmt.Errorf("tool handler table out of sync with registry (missing: [%s], unregistered: [%s])",
		strings.Join(missing, ", "), strings.Join(extra, ", "))
}

// Names returns the names of every dispatchable tool in registry order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for _, name := range toolspec.All() {
		if _, ok := d.handlers[name]; ok {
			names = append(names, string(name))
		}
	}
	return names
}

// ExecuteCall parses raw JSON arguments and executes the tool.
func (d *Dispatcher) ExecuteCall(ctx context.Context, name string, rawArgs []byte) Envelope {
	if _, ok := toolspec.Lookup(name); !ok {
		return d.Execute(ctx, name, nil)
	}

	params := map[string]interface{}{}
	if trimmed := strings.TrimSpace(string(rawArgs)); trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal([]byte(trimmed), &params); err != nil {
			d.logger.Warn().Str("tool", name).Err(err).Msg("Tool arguments are not a JSON object")
			observability.RecordToolExecution(name, 0, false)
			return Fail("invalid arguments for %s: %v", name, err)
		}
	}
	return d.Execute(ctx, name, params)
}

// ExecuteAll runs every call concurrently and returns envelopes aligned with calls.
func (d *Dispatcher) ExecuteAll(ctx context.Context, calls []Call) []Envelope {
	if len(calls) == 0 {
		return []Envelope{}
	}
	mapper := iter.Mapper[Call, Envelope]{MaxGoroutines: len(calls)}
	return mapper.Map(calls, func(call *Call) Envelope {
		return d.ExecuteCall(ctx, call.Name, call.Arguments)
	})
}

// Execute executes a tool with the given parameters. It never panics and
// never returns without an envelope.
func (d *Dispatcher) Execute(ctx context.Context, toolName string, params map[string]interface{}) Envelope {
	startTime := time.Now()
	env := d.execute(ctx, toolName, params, startTime)
	d.audit(ctx, toolName, time.Since(startTime), env)
	return env
}

func (d *Dispatcher) audit(ctx context.Context, toolName string, duration time.Duration, env Envelope) {
	actor := ""
	if execCtx := ExecContextFromContext(ctx); execCtx != nil {
		actor = execCtx.ExchangeID
	}
	metadata := map[string]interface{}{"duration_ms": duration.Milliseconds()}
	auditStatus := "success"
	if !env.Success {
		auditStatus = "failure"
		metadata["error"] = env.Error
	}
	observability.RecordToolAudit(ctx, toolName, actor, auditStatus, metadata)
}

func (d *Dispatcher) execute(ctx context.Context, toolName string, params map[string]interface{}, startTime time.Time) Envelope {
	name, ok := toolspec.Lookup(toolName)
	if !ok {
		d.logger.Warn().Str("tool", toolName).Msg("Unknown tool requested")
		observability.RecordToolExecution(toolName, 0, false)
		return Fail("unknown tool: %s", toolName)
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	if err := validateParameters(d.schemas[name], params); err != nil {
		d.logger.Warn().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		observability.RecordToolExecution(toolName, 0, false)
		return Fail("invalid arguments for %s: %v", toolName, err)
	}

	d.logger.Debug().Str("tool", toolName).Msg("Executing tool")

	timeoutCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	handler := d.handlers[name]
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("tool %s panicked: %v", toolName, r)
			}
		}()
		result, err := handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- result
	}()

	select {
	case result := <-resultChan:
		duration := time.Since(startTime)
		observability.RecordToolExecution(toolName, duration, true)
		d.logger.Debug().
			Str("tool", toolName).
			Dur("duration", duration).
			Msg("Tool execution completed")
		return Succeed(result)

	case err := <-errChan:
		duration := time.Since(startTime)
		observability.RecordToolExecution(toolName, duration, false)
		d.logger.Warn().
			Str("tool", toolName).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")
		return Fail("%v", err)

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)
		observability.RecordToolExecution(toolName, duration, false)
		if ctx.Err() != nil {
			d.logger.Warn().Str("tool", toolName).Msg("Tool execution cancelled")
			return Fail("tool execution cancelled: %v", ctx.Err())
		}
		d.logger.Warn().
			Str("tool", toolName).
			Dur("duration", duration).
			Msg("Tool execution timeout")
		return Fail("tool execution timeout after %v", d.timeout)
	}
}

// generateJSONSchema generates a JSON Schema from a tool contract
func generateJSONSchema(contract toolspec.Contract) (*gojsonschema.Schema, error) {
	schemaMap := toolspec.InputSchema(contract)
	schemaMap["additionalProperties"] = false

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// validateParameters validates parameters against a JSON Schema
func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := make([]string, 0, len(result.Errors()))
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}
