package server

import (
	"context"
	"time"

	"github.com/harun/aura/pkg/agent"
	"github.com/harun/aura/pkg/memory"
	"github.com/harun/aura/pkg/toolexecutor"
	"github.com/rs/zerolog"
)

// Assistant is the part of the agent runner the HTTP surface drives.
type Assistant interface {
	HandleUserMessage(ctx context.Context, text string) (agent.ExchangeResult, error)
	ExecuteTool(ctx context.Context, name string, args map[string]interface{}) toolexecutor.Envelope
	History(ctx context.Context) ([]memory.Turn, error)
	ClearHistory(ctx context.Context) error
}

// Options configures the API server.
type Options struct {
	Host               string
	Port               int
	ShutdownTimeout    time.Duration
	RateLimitPerMinute int
	Logger             zerolog.Logger
}

// ChatRequest is the body of POST /api/chat and of each WebSocket frame.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse carries the assistant reply under "message".
type ChatResponse struct {
	Message    string `json:"message"`
	ExchangeID string `json:"exchange_id,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MemoryResponse is the body of GET /api/memory.
type MemoryResponse struct {
	Memory []memory.Turn `json:"memory"`
}

// MessageResponse acknowledges an operation without a payload.
type MessageResponse struct {
	Message string `json:"message"`
}

const (
	msgMessageRequired = "Message is required"
	msgChatFailed      = "Failed to get response from AI"
	msgNoResponse      = "No response from AI"
	msgInvalidBody     = "Invalid request body"
)

// maxBodyBytes bounds request bodies; file contents ride in createFile calls.
const maxBodyBytes = 4 << 20
