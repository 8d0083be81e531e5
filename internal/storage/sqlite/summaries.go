package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/parley/internal/core"
)

const insertSummaryQuery = `
	INSERT INTO chat_session_summary
		(id, session_id, user_profile, key_facts, decisions, open_questions, todos, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const latestSummaryQuery = `
	SELECT id, session_id, user_profile, key_facts, decisions, open_questions, todos, created_at, updated_at
	FROM chat_session_summary
	WHERE session_id = ?
	ORDER BY updated_at DESC, created_at DESC, id DESC
	LIMIT 1`

type SummariesRepo struct {
	db *sql.DB
}

func NewSummariesRepo(db *sql.DB) *SummariesRepo {
	return &SummariesRepo{db: db}
}

func (r *SummariesRepo) Latest(ctx context.Context, sessionID string) (*core.Summary, error) {
	row := r.db.QueryRowContext(ctx, latestSummaryQuery, sessionID)

	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("query latest summary", err)
	}
	return summary, nil
}

func (r *SummariesRepo) Save(ctx context.Context, summary *core.Summary) (string, error) {
	args, err := summaryArgs(summary)
	if err != nil {
		return "", err
	}
	if _, err := r.db.ExecContext(ctx, insertSummaryQuery, args...); err != nil {
		return "", storeErr("insert summary", err)
	}
	return summary.ID, nil
}

// summaryArgs fills in identity and timestamps and marshals the structured
// fields. Mutates the summary so the caller sees the assigned id.
func summaryArgs(summary *core.Summary) ([]any, error) {
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = now
	}
	summary.UpdatedAt = now

	profile, err := json.Marshal(summary.UserProfile)
	if err != nil {
		return nil, fmt.Errorf("marshal user profile: %w", err)
	}

	lists := make([][]byte, 0, 4)
	for _, l := range [][]string{summary.KeyFacts, summary.Decisions, summary.OpenQuestions, summary.Todos} {
		if l == nil {
			l = []string{}
		}
		data, err := json.Marshal(l)
		if err != nil {
			return nil, fmt.Errorf("marshal summary list: %w", err)
		}
		lists = append(lists, data)
	}

	return []any{
		summary.ID, summary.SessionID, string(profile),
		string(lists[0]), string(lists[1]), string(lists[2]), string(lists[3]),
		summary.CreatedAt, summary.UpdatedAt,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*core.Summary, error) {
	var s core.Summary
	var profile, facts, decisions, questions, todos string

	err := row.Scan(&s.ID, &s.SessionID, &profile, &facts, &decisions, &questions, &todos, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(profile), &s.UserProfile); err != nil {
		return nil, fmt.Errorf("unmarshal user profile: %w", err)
	}
	for i, dst := range []*[]string{&s.KeyFacts, &s.Decisions, &s.OpenQuestions, &s.Todos} {
		data := []string{facts, decisions, questions, todos}[i]
		if err := json.Unmarshal([]byte(data), dst); err != nil {
			return nil, fmt.Errorf("unmarshal summary list: %w", err)
		}
	}
	return &s, nil
}
