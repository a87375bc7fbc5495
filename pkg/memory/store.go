package memory

import (
	"context"
	"errors"
	"fmt"
)

// DefaultConversation is the identity used when none is configured.
const DefaultConversation = "default_user"

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory store is closed")

// Role tags who authored a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is one persisted message. Timestamp is unix milliseconds and is used
// for ordering only.
type Turn struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Store is an append-only conversation log.
type Store interface {
	// Append writes turns atomically.
	Append(ctx context.Context, turns ...Turn) error
	// All returns every turn in ascending order; never nil.
	All(ctx context.Context) ([]Turn, error)
	// Clear removes every turn of the conversation.
	Clear(ctx context.Context) error
	Close() error
}

func validateTurns(turns []Turn) error {
	for i, turn := range turns {
		if !turn.Role.Valid() {
			return fmt.Errorf("turn %d: invalid role %q", i, turn.Role)
		}
	}
	return nil
}
