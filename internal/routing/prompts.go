package routing

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

const classifierSystemPrompt = "You are a JSON-only response bot. Always respond with valid JSON only, no additional text."

// BrevityInstruction is appended to every bot persona at creation.
const BrevityInstruction = "\n\nIMPORTANT: Keep responses slightly short, one sentence max like someone would in a casual chat, unless you clearly need to write more (such as when a long answer is required to explain something properly or when explicitly asked for details)."

// FallbackReply is stored when a model returns an empty completion.
const FallbackReply = "Sorry, I could not generate a response."

const personaPreviewRunes = 100

const classifierPromptTemplate = `You are an AI conversation orchestrator. Your job is to analyze a chat conversation and decide which AI bot (if any) should respond to the latest message.

IMPORTANT: Be conservative. Only trigger a bot when it clearly makes sense. NOT every message needs a bot response. Let humans talk naturally without AI interruption unless the AI is actually needed.

Available AI bots in this channel:
%s

Recent conversation history:
%s

Latest message:
%s

Only say yes if:
1. The message is a question or request that matches a bot's expertise
2. Someone is directly talking to or about a specific bot, by name or by role
3. The conversation thread is actively engaging with a bot
4. There's a clear need for AI assistance

DO NOT respond if:
- It's casual human-to-human conversation
- It's a greeting, acknowledgment, or social chat
- The message doesn't need AI input
- Humans are just talking normally

When in doubt, do not respond.

Respond with ONLY a JSON object in this exact format:
{
  "shouldRespond": true or false,
  "botName": "exact bot name" or null,
  "reasoning": "brief explanation"
}

If no bot should respond (which should be most of the time), use: {"shouldRespond": false, "botName": null, "reasoning": "explanation"}`

// BuildClassificationPrompt renders the orchestrator's user turn.
func BuildClassificationPrompt(newMsg ContextEntry, window []ContextEntry, roster []Bot) string {
	lines := make([]string, 0, len(roster))
	for _, b := range roster {
		lines = append(lines, fmt.Sprintf("- %s: %s...", b.Name, truncateRunes(b.SystemPrompt, personaPreviewRunes)))
	}
	latest := fmt.Sprintf("%s said: %s", newMsg.SenderName, newMsg.Content)
	return fmt.Sprintf(classifierPromptTemplate, strings.Join(lines, "\n"), FormatConversation(window), latest)
}

// BuildReplyPrompt renders the generator's user turn. window must be non-empty.
// Lines are untagged; only the classifier marks bots.
func BuildReplyPrompt(window []ContextEntry) string {
	last := window[len(window)-1]
	lines := lo.Map(window, func(e ContextEntry, _ int) string { return e.SenderName + ": " + e.Content })
	return "Recent conversation:\n" + strings.Join(lines, "\n") +
		"\n\nUser message: " + last.Content +
		"\n\nRespond naturally as part of this conversation."
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
