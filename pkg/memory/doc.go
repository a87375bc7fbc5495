// Package memory persists the conversation as an append-only log of turns.
//
// Invariants:
// - Turns are read back in ascending timestamp order, ties broken by insertion.
// - Timestamps never go backwards within a conversation.
// - Append writes all given turns in one transaction or none of them.
// - Only Clear removes turns.
//
// Usage:
//
//	store, _ := memory.NewSQLiteStore(memory.Config{DBPath: "/data/aura.db"})
//	defer store.Close()
//	_ = store.Append(ctx, memory.Turn{Role: memory.RoleUser, Content: "hi"})
//	turns, _ := store.All(ctx)
//	_ = turns
package memory
