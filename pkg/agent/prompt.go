package agent

// Persona is the fixed preamble of every system prompt.
const Persona = `You are ClawdBot, Manny's personal AI assistant. You help with:
- Answering questions about projects and code
- Research and analysis
- Task management and planning
- Technical discussions

Be concise, direct, and helpful. Use your tools when needed.`

// ComposeSystemPrompt appends extra context to the persona, separated by a
// blank line.
func ComposeSystemPrompt(extraContext string) string {
	if extraContext == "" {
		return Persona
	}
	return Persona + "\n\n" + extraContext
}
