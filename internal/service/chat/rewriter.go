package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sandevgo/parley/internal/core"
	"github.com/sandevgo/parley/pkg/log"
)

// QueryRewriter classifies a query as ambiguous or clear against the
// session's memory and, when possible, rewrites it into a self-contained
// query. Any failure here falls open to "not ambiguous, use the original":
// disambiguation must never keep the user from getting an answer, so unlike
// the summarizer there is no retry.
type QueryRewriter struct {
	ai core.AIProvider
}

func NewQueryRewriter(ai core.AIProvider) *QueryRewriter {
	return &QueryRewriter{ai: ai}
}

func (r *QueryRewriter) Rewrite(ctx context.Context, query string, summary *core.Summary, recent []core.Message) core.RewriteResult {
	logger := log.FromCtx(ctx)
	clear := core.RewriteResult{OriginalQuery: query}

	// With no history and no summary there is nothing to disambiguate
	// against; absence of context is insufficient basis to call a query
	// ambiguous.
	if summary == nil && !hasConversationalContext(recent) {
		return clear
	}

	content, err := r.ai.Chat(ctx, []core.ChatMessage{
		{Role: core.RoleSystem, Content: rewriteSystemPrompt},
		{Role: core.RoleUser, Content: buildRewritePrompt(query, summary, recent)},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("rewrite generation failed, treating query as clear")
		return clear
	}

	payload, err := parseRewritePayload(content)
	if err != nil {
		logger.Warn().Err(fmt.Errorf("%w: %w", core.ErrRewriteClassification, err)).
			Msg("rewrite judgment unparseable, treating query as clear")
		return clear
	}

	return normalizeRewrite(query, payload)
}

type rewritePayload struct {
	IsAmbiguous         bool     `json:"is_ambiguous"`
	RewrittenQuery      string   `json:"rewritten_query"`
	ClarifyingQuestions []string `json:"clarifying_questions"`
}

func parseRewritePayload(content string) (*rewritePayload, error) {
	jsonStr := extractJSONObject(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var payload rewritePayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal rewrite judgment: %w", err)
	}
	return &payload, nil
}

// normalizeRewrite enforces the result invariant: when ambiguous, exactly
// one of rewritten query / clarifying questions is set; a rewrite wins when
// the model produced both. An ambiguous judgment with neither falls back to
// clear.
func normalizeRewrite(query string, payload *rewritePayload) core.RewriteResult {
	result := core.RewriteResult{OriginalQuery: query}
	if !payload.IsAmbiguous {
		return result
	}

	switch {
	case payload.RewrittenQuery != "":
		result.IsAmbiguous = true
		result.RewrittenQuery = payload.RewrittenQuery
	case len(payload.ClarifyingQuestions) > 0:
		result.IsAmbiguous = true
		questions := payload.ClarifyingQuestions
		if len(questions) > 3 {
			questions = questions[:3]
		}
		result.ClarifyingQuestions = questions
	}
	return result
}

func hasConversationalContext(messages []core.Message) bool {
	for _, m := range messages {
		if m.Role == core.RoleUser || m.Role == core.RoleAssistant {
			return true
		}
	}
	return false
}
