package chat

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sandevgo/parley/internal/core"
)

// CounterFunc maps a text to its token cost. The default counter uses the
// cl100k_base encoding so the estimate tracks the target model family.
type CounterFunc func(text string) int

var (
	tkOnce sync.Once
	tk     *tiktoken.Tiktoken
)

// CountTokens is the default counter. Falls back to the ~4 chars/token
// heuristic when the encoding cannot be loaded (offline start), which keeps
// the trigger deterministic instead of failing the turn.
func CountTokens(text string) int {
	tkOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tk = enc
		}
	})
	if tk == nil {
		return (len(text) + 3) / 4
	}
	return len(tk.Encode(text, nil, nil))
}

// TokenAccountant decides whether a session's live history has outgrown the
// configured budget. Pure computation over the supplied messages.
type TokenAccountant struct {
	threshold   int
	minMessages int
	count       CounterFunc
}

func NewTokenAccountant(threshold, minMessages int) *TokenAccountant {
	return &TokenAccountant{
		threshold:   threshold,
		minMessages: minMessages,
		count:       CountTokens,
	}
}

// CostOf estimates the token cost of the message contents plus any extra
// serialized context (e.g. a summary).
func (a *TokenAccountant) CostOf(messages []core.Message, extra ...string) int {
	parts := make([]string, 0, len(messages)+len(extra))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	parts = append(parts, extra...)
	return a.count(strings.Join(parts, " "))
}

// ShouldSummarize is true when the live history costs more than the token
// threshold AND the live message count has reached the minimum floor. The
// floor keeps a short but token-heavy session (one pasted document) from
// being compacted away.
func (a *TokenAccountant) ShouldSummarize(messages []core.Message) bool {
	if len(messages) < a.minMessages {
		return false
	}
	return a.CostOf(messages) > a.threshold
}
