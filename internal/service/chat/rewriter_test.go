package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sandevgo/parley/internal/core"
)

var rewriteContext = []core.Message{
	{Role: core.RoleUser, Content: "we were talking about the atlas deployment"},
	{Role: core.RoleAssistant, Content: "yes, it rolled out yesterday"},
}

func TestRewriteClearQuery(t *testing.T) {
	ai := &fakeAI{
		rewrite: func(int) (string, error) {
			return `{"is_ambiguous": false, "rewritten_query": "", "clarifying_questions": []}`, nil
		},
	}
	r := NewQueryRewriter(ai)

	result := r.Rewrite(context.Background(), "what is the capital of france?", nil, rewriteContext)

	assert.False(t, result.IsAmbiguous)
	assert.Equal(t, "what is the capital of france?", result.EffectiveQuery())
	assert.False(t, result.NeedsClarification())
}

func TestRewriteResolvableAmbiguity(t *testing.T) {
	ai := &fakeAI{
		rewrite: func(int) (string, error) {
			return "Here is the judgment:\n" +
				`{"is_ambiguous": true, "rewritten_query": "did the atlas deployment succeed?", "clarifying_questions": []}`, nil
		},
	}
	r := NewQueryRewriter(ai)

	result := r.Rewrite(context.Background(), "did it work?", nil, rewriteContext)

	assert.True(t, result.IsAmbiguous)
	assert.Equal(t, "did the atlas deployment succeed?", result.EffectiveQuery())
	assert.Equal(t, "did it work?", result.OriginalQuery)
	assert.False(t, result.NeedsClarification())
}

func TestRewriteUnresolvableAmbiguity(t *testing.T) {
	ai := &fakeAI{
		rewrite: func(int) (string, error) {
			return `{"is_ambiguous": true, "rewritten_query": "", "clarifying_questions": ["Which deployment do you mean?", "Which environment?"]}`, nil
		},
	}
	r := NewQueryRewriter(ai)

	result := r.Rewrite(context.Background(), "fix it", nil, rewriteContext)

	assert.True(t, result.NeedsClarification())
	assert.Len(t, result.ClarifyingQuestions, 2)
	assert.Empty(t, result.RewrittenQuery)
}

// When the model produces both a rewrite and questions, the rewrite wins so
// the invariant (exactly one set) holds.
func TestRewriteBothSetRewriteWins(t *testing.T) {
	ai := &fakeAI{
		rewrite: func(int) (string, error) {
			return `{"is_ambiguous": true, "rewritten_query": "status of atlas?", "clarifying_questions": ["Which one?"]}`, nil
		},
	}
	r := NewQueryRewriter(ai)

	result := r.Rewrite(context.Background(), "status?", nil, rewriteContext)

	assert.Equal(t, "status of atlas?", result.RewrittenQuery)
	assert.Empty(t, result.ClarifyingQuestions)
	assert.False(t, result.NeedsClarification())
}

func TestRewriteQuestionsCappedAtThree(t *testing.T) {
	ai := &fakeAI{
		rewrite: func(int) (string, error) {
			return `{"is_ambiguous": true, "clarifying_questions": ["a?", "b?", "c?", "d?", "e?"]}`, nil
		},
	}
	r := NewQueryRewriter(ai)

	result := r.Rewrite(context.Background(), "hm", nil, rewriteContext)

	assert.Len(t, result.ClarifyingQuestions, 3)
}

// Ambiguous with neither a rewrite nor questions is incoherent model output;
// fall back to clear.
func TestRewriteAmbiguousWithNeitherFallsBack(t *testing.T) {
	ai := &fakeAI{
		rewrite: func(int) (string, error) {
			return `{"is_ambiguous": true, "rewritten_query": "", "clarifying_questions": []}`, nil
		},
	}
	r := NewQueryRewriter(ai)

	result := r.Rewrite(context.Background(), "hm", nil, rewriteContext)

	assert.False(t, result.IsAmbiguous)
	assert.Equal(t, "hm", result.EffectiveQuery())
}

func TestRewriteFailuresFallOpen(t *testing.T) {
	tests := []struct {
		name string
		ai   *fakeAI
	}{
		{
			name: "provider error",
			ai:   &fakeAI{rewrite: func(int) (string, error) { return "", errors.New("boom") }},
		},
		{
			name: "no JSON in response",
			ai:   &fakeAI{rewrite: func(int) (string, error) { return "sorry, I cannot help", nil }},
		},
		{
			name: "broken JSON",
			ai:   &fakeAI{rewrite: func(int) (string, error) { return `{"is_ambiguous": tru`, nil }},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewQueryRewriter(tt.ai)
			result := r.Rewrite(context.Background(), "original", nil, rewriteContext)

			assert.False(t, result.IsAmbiguous)
			assert.Equal(t, "original", result.EffectiveQuery())
		})
	}
}

// Absence of context is insufficient basis to call a query ambiguous: with
// no summary and no prior conversation the provider is not even consulted.
func TestRewriteSkippedWithoutContext(t *testing.T) {
	ai := &fakeAI{
		rewrite: func(int) (string, error) {
			t.Fatal("provider must not be called without context")
			return "", nil
		},
	}
	r := NewQueryRewriter(ai)

	result := r.Rewrite(context.Background(), "tell me about it", nil, nil)

	assert.False(t, result.IsAmbiguous)
	assert.Equal(t, "tell me about it", result.EffectiveQuery())
	assert.Equal(t, 0, ai.rewriteCalls)
}

// A summary alone is enough context to consult the provider.
func TestRewriteRunsWithSummaryOnly(t *testing.T) {
	ai := &fakeAI{}
	r := NewQueryRewriter(ai)

	summary := &core.Summary{SessionID: "s", KeyFacts: []string{"project atlas"}}
	r.Rewrite(context.Background(), "how is it going?", summary, nil)

	assert.Equal(t, 1, ai.rewriteCalls)
}
