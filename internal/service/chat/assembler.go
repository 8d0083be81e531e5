package chat

import (
	"strings"

	"github.com/sandevgo/parley/internal/core"
)

// ContextAssembler merges the session's memory record and its recent live
// messages into the final prompt for generation.
type ContextAssembler struct {
	systemPrompt string
}

func NewContextAssembler(systemPrompt string) *ContextAssembler {
	return &ContextAssembler{systemPrompt: systemPrompt}
}

// Build produces the generation context: system prompt, a session-memory
// block when a summary exists, the recent live conversation and finally the
// effective query (rewritten or original).
func (a *ContextAssembler) Build(summary *core.Summary, recent []core.Message, effectiveQuery string) []core.ChatMessage {
	messages := []core.ChatMessage{{Role: core.RoleSystem, Content: a.systemPrompt}}

	if block := memoryBlock(summary); block != "" {
		messages = append(messages, core.ChatMessage{Role: core.RoleSystem, Content: block})
	}

	for _, msg := range recent {
		if msg.Role != core.RoleUser && msg.Role != core.RoleAssistant {
			continue
		}
		messages = append(messages, core.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	return append(messages, core.ChatMessage{Role: core.RoleUser, Content: effectiveQuery})
}

func memoryBlock(summary *core.Summary) string {
	if summary == nil {
		return ""
	}

	var blocks []string
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		blocks = append(blocks, title+":\n- "+strings.Join(items, "\n- "))
	}

	section("User preferences", summary.UserProfile.Preferences)
	section("User constraints", summary.UserProfile.Constraints)
	section("Key facts", summary.KeyFacts)
	section("Decisions", summary.Decisions)
	section("Open questions", summary.OpenQuestions)
	section("Todos", summary.Todos)

	if len(blocks) == 0 {
		return ""
	}
	return "[Session Memory]\n" + strings.Join(blocks, "\n\n")
}
