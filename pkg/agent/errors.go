package agent

import "errors"

var (
	// ErrInvalidMessage rejects empty or whitespace-only user text.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUpstream means the LLM provider failed or was unreachable.
	ErrUpstream = errors.New("upstream provider failure")
	// ErrPersistence means conversation memory could not be read or written.
	ErrPersistence = errors.New("memory persistence failure")
	// ErrNoResponse means the exchange completed with empty reply text.
	ErrNoResponse = errors.New("no response from AI")
)
