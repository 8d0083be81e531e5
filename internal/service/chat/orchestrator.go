package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/parley/internal/config"
	"github.com/sandevgo/parley/internal/core"
	"github.com/sandevgo/parley/pkg/log"
	"github.com/sandevgo/parley/pkg/retry"
)

const (
	TurnAnswer  = "answer"
	TurnClarify = "clarify"
)

// TurnResult is what one processed turn returns to the transport: either a
// generated answer or clarifying questions, plus what happened along the way.
type TurnResult struct {
	Type         string   `json:"type"`
	Text         string   `json:"text,omitempty"`
	Questions    []string `json:"questions,omitempty"`
	WasRewritten bool     `json:"was_rewritten"`
	WasCompacted bool     `json:"was_compacted"`
}

// Orchestrator runs the per-turn pipeline:
// Start -> MaybeCompact -> MaybeRewrite -> {EarlyClarify | Generate} -> Done.
// Turns for the same session are serialized; unrelated sessions proceed in
// parallel.
type Orchestrator struct {
	cfg        *config.AppConfig
	sessions   core.SessionsRepository
	messages   core.MessagesRepository
	summaries  core.SummariesRepository
	compactor  core.CompactionStore
	ai         core.AIProvider
	accountant *TokenAccountant
	summarizer *Summarizer
	rewriter   *QueryRewriter
	assembler  *ContextAssembler
	retrier    *retry.Retrier
	locks      *sessionLocks
}

func NewOrchestrator(
	cfg *config.AppConfig,
	sessions core.SessionsRepository,
	messages core.MessagesRepository,
	summaries core.SummariesRepository,
	compactor core.CompactionStore,
	ai core.AIProvider,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		sessions:   sessions,
		messages:   messages,
		summaries:  summaries,
		compactor:  compactor,
		ai:         ai,
		accountant: NewTokenAccountant(cfg.TokenThreshold, cfg.SummarizeMinMessages),
		summarizer: NewSummarizer(ai),
		rewriter:   NewQueryRewriter(ai),
		assembler:  NewContextAssembler(cfg.SystemPrompt),
		retrier: retry.NewRetrier(&retry.Config{
			MaxRetries:    2,
			BackoffFactor: 2,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      time.Second,
			Jitter:        25 * time.Millisecond,
		}),
		locks: newSessionLocks(),
	}
}

// CreateTurn processes one user message and blocks until the full answer is
// available.
func (o *Orchestrator) CreateTurn(ctx context.Context, sessionID, userText string) (TurnResult, error) {
	release := o.locks.acquire(sessionID)
	defer release()

	pre, err := o.preprocess(ctx, sessionID, userText)
	if err != nil {
		return TurnResult{}, err
	}
	if pre.clarify != nil {
		return *pre.clarify, nil
	}

	text, err := o.ai.Chat(ctx, pre.prompt)
	if err != nil {
		return TurnResult{}, fmt.Errorf("%w: %w", core.ErrGenerationUnavailable, err)
	}

	if _, err := o.messages.Append(ctx, sessionID, core.RoleAssistant, text); err != nil {
		return TurnResult{}, err
	}

	return TurnResult{
		Type:         TurnAnswer,
		Text:         text,
		WasRewritten: pre.wasRewritten,
		WasCompacted: pre.wasCompacted,
	}, nil
}

// CreateTurnStream processes one user message, forwarding answer fragments
// to onFragment as they arrive. The concatenated answer is persisted exactly
// once; when the consumer disconnects mid-stream the partial text produced
// so far is still persisted rather than lost. On early clarification no
// fragments are emitted.
func (o *Orchestrator) CreateTurnStream(ctx context.Context, sessionID, userText string, onFragment func(string) error) (TurnResult, error) {
	release := o.locks.acquire(sessionID)
	defer release()

	pre, err := o.preprocess(ctx, sessionID, userText)
	if err != nil {
		return TurnResult{}, err
	}
	if pre.clarify != nil {
		return *pre.clarify, nil
	}

	text, streamErr := o.ai.ChatStream(ctx, pre.prompt, onFragment)
	if streamErr != nil && text == "" {
		return TurnResult{}, fmt.Errorf("%w: %w", core.ErrGenerationUnavailable, streamErr)
	}

	if _, err := o.messages.Append(ctx, sessionID, core.RoleAssistant, text); err != nil {
		return TurnResult{}, err
	}

	result := TurnResult{
		Type:         TurnAnswer,
		Text:         text,
		WasRewritten: pre.wasRewritten,
		WasCompacted: pre.wasCompacted,
	}
	if streamErr != nil {
		log.FromCtx(ctx).Warn().Err(streamErr).Int("persisted_chars", len(text)).
			Msg("stream interrupted, persisted partial response")
		return result, fmt.Errorf("%w: %w", core.ErrGenerationUnavailable, streamErr)
	}
	return result, nil
}

type preprocessed struct {
	prompt       []core.ChatMessage
	clarify      *TurnResult
	wasRewritten bool
	wasCompacted bool
}

func (o *Orchestrator) preprocess(ctx context.Context, sessionID, userText string) (*preprocessed, error) {
	logger := log.FromCtx(ctx)

	if _, err := o.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	// Start: the user's input is persisted before anything else can fail,
	// so a crash later in the turn never loses it.
	userMsg, err := o.messages.Append(ctx, sessionID, core.RoleUser, userText)
	if err != nil {
		return nil, err
	}

	wasCompacted := o.maybeCompact(ctx, sessionID, userMsg.ID)

	// Always re-fetch: compaction may have just written a new record, and
	// the latest-by-update-time record is authoritative.
	summary, err := o.summaries.Latest(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	recent, err := o.messages.RecentLive(ctx, sessionID, o.cfg.MaxContextMessages)
	if err != nil {
		return nil, err
	}
	// The current query is handled separately; context is what came before.
	history := excludeMessage(recent, userMsg.ID)

	result := o.rewriter.Rewrite(ctx, userText, summary, history)

	if result.NeedsClarification() {
		logger.Info().Int("questions", len(result.ClarifyingQuestions)).Msg("returning clarifying questions")
		return &preprocessed{
			clarify: &TurnResult{
				Type:         TurnClarify,
				Questions:    result.ClarifyingQuestions,
				WasCompacted: wasCompacted,
			},
			wasCompacted: wasCompacted,
		}, nil
	}

	if result.RewrittenQuery != "" {
		logger.Info().Str("rewritten", result.RewrittenQuery).Msg("query rewritten")
	}

	return &preprocessed{
		prompt:       o.assembler.Build(summary, history, result.EffectiveQuery()),
		wasRewritten: result.RewrittenQuery != "",
		wasCompacted: wasCompacted,
	}, nil
}

// maybeCompact summarizes and soft-deletes the pre-turn history when the
// live window has outgrown the budget. Every failure inside is contained:
// the turn proceeds uncompacted and, because the threshold stays exceeded,
// the next turn triggers again.
func (o *Orchestrator) maybeCompact(ctx context.Context, sessionID string, currentUserMsgID int64) bool {
	logger := log.FromCtx(ctx)

	live, err := o.messages.AllLive(ctx, sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load live messages, skipping compaction")
		return false
	}
	if !o.accountant.ShouldSummarize(live) {
		return false
	}

	// The just-appended user message is still being answered; compaction
	// covers the history before it.
	window := excludeMessage(live, currentUserMsgID)
	if len(window) == 0 {
		return false
	}

	prior, err := o.summaries.Latest(ctx, sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load prior summary, skipping compaction")
		return false
	}

	logger.Info().Int("window", len(window)).Msg("token threshold exceeded, summarizing")

	summary, err := o.summarizer.Summarize(ctx, sessionID, prior, window)
	if err != nil {
		logger.Warn().Err(err).Msg("summarization failed, skipping compaction for this turn")
		return false
	}

	cutoff := window[len(window)-1].ID
	err = o.retrier.Do(ctx, func() error {
		return o.compactor.Compact(ctx, summary, cutoff, o.cfg.KeepRecent)
	})
	if err != nil {
		logger.Error().Err(err).Msg("compaction write failed, will trigger again next turn")
		return false
	}
	return true
}

func excludeMessage(messages []core.Message, id int64) []core.Message {
	out := make([]core.Message, 0, len(messages))
	for _, m := range messages {
		if m.ID == id {
			continue
		}
		out = append(out, m)
	}
	return out
}
