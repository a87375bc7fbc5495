// Package toolexecutor dispatches tool invocation requests to their handlers.
//
// Invariants:
// - The handler table covers the toolspec registry exactly; New rejects drift.
// - Arguments are schema-validated before a handler runs.
// - Every request yields exactly one Envelope; handler errors, panics and
//   timeouts become failure envelopes and never escape.
//
// Usage:
//
//	handlers, _ := coretools.Handlers(coretools.Options{Roots: []string{"/workspace"}})
//	d, _ := toolexecutor.New(handlers)
//	env := d.Execute(ctx, "listFiles", map[string]interface{}{"directory": "/"})
//	_ = env
package toolexecutor
