// Package toolspec is the catalogue of tools the assistant can offer to a model.
//
// Invariants:
// - The tool set is closed: every tool is one Name constant listed in All.
// - Describe and Guidelines are derived from the same contracts and are deterministic.
// - The package has no side effects; it is pure data.
//
// Usage:
//
//	decls := toolspec.Describe()
//	prompt := "Tool guidelines:\n" + toolspec.Guidelines()
//	_ = decls
//	_ = prompt
package toolspec
