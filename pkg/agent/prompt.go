package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/harun/aura/pkg/toolexecutor"
	"github.com/harun/aura/pkg/toolspec"
)

// maxEnvelopeBytes bounds each tool result embedded in the interpretation prompt.
const maxEnvelopeBytes = 16 * 1024

const interpretationInstruction = "Please interpret these tool execution results and respond to the user in a natural, conversational manner. Do not show raw JSON output to the user."

const defaultPersona = `You are Aura, a helpful AI assistant with access to various tools through function calls. Always use these tools when appropriate. Never claim you can't perform a task if a suitable tool is available.`

// BuildSystemPrompt assembles the persona, the tool list and the tool I/O
// guidelines. An empty persona selects the built-in one.
func BuildSystemPrompt(persona string) string {
	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nYou have the following tools at your disposal:\n")

	for i, contract := range toolspec.Contracts() {
		signature := make([]string, 0, len(contract.Parameters))
		for _, param := range contract.Parameters {
			signature = append(signature, param.Name+": "+param.Type)
		}
		fmt.Fprintf(&b, "\n%d. %s(%s): %s.\n", i+1, contract.Name, strings.Join(signature, ", "), contract.Description)
		if len(contract.Parameters) == 0 {
			b.WriteString("   - No parameters required\n")
		}
		for _, param := range contract.Parameters {
			fmt.Fprintf(&b, "   - %s: %s\n", param.Name, param.Description)
		}
	}

	b.WriteString("\nWhen asked about your capabilities or instructions, use the readFile tool to look for relevant files in the project, such as 'instructions.txt'.\n")
	b.WriteString("\nIMPORTANT: Adhere to the following guidelines for tool inputs and outputs:\n")
	b.WriteString(toolspec.Guidelines())
	b.WriteString("\n\nAfter receiving tool execution results, interpret them and respond to the user in a natural, conversational manner. Do not show raw JSON output to the user.")

	return b.String()
}

// toolResultsNote renders one line per call: "<name> result: <envelope json>".
func toolResultsNote(calls []ToolCall, envelopes []toolexecutor.Envelope) string {
	lines := make([]string, 0, len(calls))
	for i, call := range calls {
		body := envelopes[i].JSON()
		if len(body) > maxEnvelopeBytes {
			cut := maxEnvelopeBytes
			for cut > 0 && !utf8.RuneStart(body[cut]) {
				cut--
			}
			body = body[:cut] + "...[truncated]"
		}
		lines = append(lines, fmt.Sprintf("%s result: %s", call.Name, body))
	}
	return "Tool execution results:\n" + strings.Join(lines, "\n")
}

// interpretationMessages extends the primary context with the model's partial
// text, the tool results and the instruction to answer in prose.
func interpretationMessages(context []AgentMessage, partial string, calls []ToolCall, envelopes []toolexecutor.Envelope) []AgentMessage {
	messages := make([]AgentMessage, 0, len(context)+3)
	messages = append(messages, context...)
	if strings.TrimSpace(partial) != "" {
		messages = append(messages, AgentMessage{Role: "assistant", Content: partial})
	}
	messages = append(messages,
		AgentMessage{Role: "system", Content: toolResultsNote(calls, envelopes)},
		AgentMessage{Role: "user", Content: interpretationInstruction},
	)
	return messages
}
