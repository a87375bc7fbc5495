// Package agent runs the two-phase tool-calling exchange with provider failover.
//
// Invariants:
// - The primary completion offers every registered tool with tool choice "auto".
// - Requested tools run concurrently through the dispatcher; their envelopes are
//   shown to a second completion that is never offered tools.
// - One user turn and one assistant turn are persisted together, and only when
//   the exchange produced a non-empty reply.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{
//		Dispatcher:   dispatcher,
//		Store:        store,
//		AuthProfiles: profiles,
//	})
//	result, _ := runner.HandleUserMessage(ctx, "what files do I have?")
//	_ = result.Reply
package agent
