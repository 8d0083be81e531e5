package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandevgo/parley/internal/core"
)

const summarySystemPrompt = "You are a conversation summarization engine. Output only valid JSON."

const rewriteSystemPrompt = "You analyze user queries for a conversational assistant. Output only valid JSON. Never answer the query itself."

func buildSummaryPrompt(prior *core.Summary, conversation string) string {
	var b strings.Builder

	b.WriteString(`Summarize the following conversation history into a compact structured memory.

Focus on:
1. "user_profile": who the user is - {"preferences": [...], "constraints": [...]}
2. "key_facts": important facts established in the conversation
3. "decisions": decisions or conclusions that were reached
4. "open_questions": unresolved questions and open issues
5. "todos": follow-up work and next actions

Respond with a single JSON object containing exactly these five keys.
All list values are arrays of strings. Use empty arrays when nothing applies.
`)

	if prior != nil {
		b.WriteString("\nEarlier summary of this session (context only, re-summarize from the conversation):\n")
		data, _ := json.Marshal(prior)
		b.Write(data)
		b.WriteByte('\n')
	}

	b.WriteString("\nConversation history:\n")
	b.WriteString(conversation)
	b.WriteString("\nRespond with valid JSON only, no extra text.")
	return b.String()
}

const summaryCorrectionPrompt = `Your previous output did not match the required schema. Respond again with a single JSON object containing exactly the keys "user_profile" (object with "preferences" and "constraints" string arrays), "key_facts", "decisions", "open_questions" and "todos" (string arrays). No other text.`

func buildRewritePrompt(query string, summary *core.Summary, recent []core.Message) string {
	summaryJSON := "{}"
	if summary != nil {
		if data, err := json.Marshal(summary); err == nil {
			summaryJSON = string(data)
		}
	}

	return fmt.Sprintf(`You receive the user's current query, the recent conversation messages
(short-term memory) and a summary of the older conversation (session memory).

Your ONLY task:
- Decide whether the query is ambiguous.
- If it can be clarified by REWRITING it from context, rewrite it.
- Never answer the query.

A query is ambiguous ONLY if, after considering all supplied context, several
reasonable interpretations remain. If the context clearly fixes the topic you
MUST assume the query belongs to that topic. Do not call a query ambiguous
just because it is short. Produce clarifying questions (between 1 and 3) only
when no rewrite is possible.

Example, not ambiguous:
Context: discussing Transformers.
User: "what is attention"
{"original_query": "what is attention", "is_ambiguous": false, "rewritten_query": null, "clarifying_questions": []}

Example, ambiguous and not resolvable:
Context: no clear subject.
User: "how does it work"
{"original_query": "how does it work", "is_ambiguous": true, "rewritten_query": null, "clarifying_questions": ["Which subject are you asking about?"]}

Example, ambiguous but resolvable:
Context: discussing Docker.
User: "how do I install it"
{"original_query": "how do I install it", "is_ambiguous": true, "rewritten_query": "how do I install Docker", "clarifying_questions": []}

Analyze:
User: %s
Session Summary: %s
Recent Messages:
%s

Respond with valid JSON only.`, query, summaryJSON, formatConversation(recent))
}

// formatConversation renders messages one per line for a prompt. System
// messages carry no conversational content and are skipped.
func formatConversation(messages []core.Message) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role == core.RoleSystem {
			continue
		}
		b.WriteString(strings.ToUpper(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// extractJSONObject pulls the outermost JSON object out of a model response
// that may wrap it in prose or code fences.
func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content[start:], "}")
	if end == -1 {
		return ""
	}

	return content[start : start+end+1]
}
