package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sandevgo/parley/internal/core"
	"github.com/sandevgo/parley/pkg/log"
)

// Summarizer compresses a window of live messages (plus the prior summary,
// if any) into a fresh five-field memory record. Single-shot: the prior
// summary is extra input context for the model, not a merge target.
// Persistence stays with the orchestrator so the record write and the
// soft-delete commit together.
type Summarizer struct {
	ai core.AIProvider
}

func NewSummarizer(ai core.AIProvider) *Summarizer {
	return &Summarizer{ai: ai}
}

func (s *Summarizer) Summarize(ctx context.Context, sessionID string, prior *core.Summary, messages []core.Message) (*core.Summary, error) {
	logger := log.FromCtx(ctx)

	prompt := buildSummaryPrompt(prior, formatConversation(messages))
	request := []core.ChatMessage{
		{Role: core.RoleSystem, Content: summarySystemPrompt},
		{Role: core.RoleUser, Content: prompt},
	}

	content, err := s.ai.Chat(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("summary generation: %w", err)
	}

	payload, parseErr := parseSummaryPayload(content)
	if parseErr != nil {
		logger.Warn().Err(parseErr).Msg("summary failed schema validation, retrying with correction")

		// One corrective retry: show the model its own output and the
		// schema it violated.
		request = append(request,
			core.ChatMessage{Role: core.RoleAssistant, Content: content},
			core.ChatMessage{Role: core.RoleUser, Content: summaryCorrectionPrompt},
		)
		content, err = s.ai.Chat(ctx, request)
		if err != nil {
			return nil, fmt.Errorf("summary retry generation: %w", err)
		}

		payload, parseErr = parseSummaryPayload(content)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrMalformedSummary, parseErr)
		}
	}

	summary := payload.toSummary(sessionID)
	logger.Debug().
		Int("key_facts", len(summary.KeyFacts)).
		Int("decisions", len(summary.Decisions)).
		Int("open_questions", len(summary.OpenQuestions)).
		Int("todos", len(summary.Todos)).
		Msg("summary extracted")
	return summary, nil
}

// summaryPayload mirrors the five-field schema with pointer fields so a
// missing key is distinguishable from an empty value.
type summaryPayload struct {
	UserProfile   *core.UserProfile `json:"user_profile"`
	KeyFacts      *[]string         `json:"key_facts"`
	Decisions     *[]string         `json:"decisions"`
	OpenQuestions *[]string         `json:"open_questions"`
	Todos         *[]string         `json:"todos"`
}

func parseSummaryPayload(content string) (*summaryPayload, error) {
	jsonStr := extractJSONObject(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var payload summaryPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}

	if payload.UserProfile == nil || payload.KeyFacts == nil || payload.Decisions == nil ||
		payload.OpenQuestions == nil || payload.Todos == nil {
		return nil, fmt.Errorf("summary is missing required fields")
	}
	return &payload, nil
}

func (p *summaryPayload) toSummary(sessionID string) *core.Summary {
	orEmpty := func(l []string) []string {
		if l == nil {
			return []string{}
		}
		return l
	}

	profile := *p.UserProfile
	profile.Preferences = orEmpty(profile.Preferences)
	profile.Constraints = orEmpty(profile.Constraints)

	return &core.Summary{
		SessionID:     sessionID,
		UserProfile:   profile,
		KeyFacts:      orEmpty(*p.KeyFacts),
		Decisions:     orEmpty(*p.Decisions),
		OpenQuestions: orEmpty(*p.OpenQuestions),
		Todos:         orEmpty(*p.Todos),
	}
}
