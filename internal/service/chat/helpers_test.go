package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/parley/internal/core"
)

// fakeAI scripts provider behavior per request kind, recognized by the
// system prompt of the request.
type fakeAI struct {
	mu       sync.Mutex
	summary  func(call int) (string, error)
	rewrite  func(call int) (string, error)
	generate func(call int) (string, error)
	stream   func(ctx context.Context, onDelta func(string) error) (string, error)

	summaryCalls  int
	rewriteCalls  int
	generateCalls int
}

func (f *fakeAI) Chat(_ context.Context, messages []core.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(messages) == 0 {
		return "", fmt.Errorf("empty request")
	}
	switch messages[0].Content {
	case summarySystemPrompt:
		f.summaryCalls++
		if f.summary == nil {
			return validSummaryJSON, nil
		}
		return f.summary(f.summaryCalls)
	case rewriteSystemPrompt:
		f.rewriteCalls++
		if f.rewrite == nil {
			return `{"is_ambiguous": false, "rewritten_query": "", "clarifying_questions": []}`, nil
		}
		return f.rewrite(f.rewriteCalls)
	default:
		f.generateCalls++
		if f.generate == nil {
			return "generated answer", nil
		}
		return f.generate(f.generateCalls)
	}
}

func (f *fakeAI) ChatStream(ctx context.Context, messages []core.ChatMessage, onDelta func(string) error) (string, error) {
	if f.stream != nil {
		return f.stream(ctx, onDelta)
	}
	text, err := f.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	if err := onDelta(text); err != nil {
		return "", err
	}
	return text, nil
}

const validSummaryJSON = `{
	"user_profile": {"preferences": ["short answers"], "constraints": ["no weekends"]},
	"key_facts": ["project is named atlas"],
	"decisions": ["use postgres"],
	"open_questions": [],
	"todos": ["draft schema"]
}`

// memStore is an in-memory stand-in for the SQLite repositories, sharing one
// message log so compaction effects are observable across interfaces.
type memStore struct {
	mu           sync.Mutex
	sessions     map[string]core.Session
	messages     []core.Message
	nextID       int64
	summaries    []*core.Summary
	compactErr   error
	compactTries int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]core.Session)}
}

func (s *memStore) Create(_ context.Context, session core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.IsDeleted {
		return core.Session{}, core.ErrSessionNotFound
	}
	return session, nil
}

func (s *memStore) List(_ context.Context, page, pageSize int) ([]core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Session
	for _, session := range s.sessions {
		if !session.IsDeleted {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *memStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.IsDeleted {
		return core.ErrSessionNotFound
	}
	session.IsDeleted = true
	s.sessions[id] = session
	return nil
}

func (s *memStore) Append(_ context.Context, sessionID, role, content string) (core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg := core.Message{
		ID:        s.nextID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memStore) live(sessionID string) []core.Message {
	var out []core.Message
	for _, m := range s.messages {
		if m.SessionID == sessionID && !m.IsDeleted {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) RecentLive(_ context.Context, sessionID string, limit int) ([]core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.live(sessionID)
	if len(live) > limit {
		live = live[len(live)-limit:]
	}
	return live, nil
}

func (s *memStore) AllLive(_ context.Context, sessionID string) ([]core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(sessionID), nil
}

func (s *memStore) CountLive(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live(sessionID)), nil
}

func (s *memStore) CountAll(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

func (s *memStore) Page(_ context.Context, sessionID string, page, pageSize int) ([]core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []core.Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			all = append(all, m)
		}
	}
	// Page 0 is the most recent window, oldest first within the page.
	end := len(all) - page*pageSize
	if end <= 0 {
		return nil, nil
	}
	start := end - pageSize
	if start < 0 {
		start = 0
	}
	return all[start:end], nil
}

func (s *memStore) SoftDeleteBefore(_ context.Context, sessionID string, cutoffID int64, keepRecent int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softDeleteLocked(sessionID, cutoffID, keepRecent), nil
}

func (s *memStore) softDeleteLocked(sessionID string, cutoffID int64, keepRecent int) int64 {
	var inRange []int
	for i, m := range s.messages {
		if m.SessionID == sessionID && !m.IsDeleted && m.ID <= cutoffID {
			inRange = append(inRange, i)
		}
	}
	if len(inRange) <= keepRecent {
		return 0
	}
	var deleted int64
	for _, i := range inRange[:len(inRange)-keepRecent] {
		s.messages[i].IsDeleted = true
		deleted++
	}
	return deleted
}

func (s *memStore) Latest(_ context.Context, sessionID string) (*core.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.summaries) - 1; i >= 0; i-- {
		if s.summaries[i].SessionID == sessionID {
			copied := *s.summaries[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) Save(_ context.Context, summary *core.Summary) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(summary)
	return summary.ID, nil
}

func (s *memStore) saveLocked(summary *core.Summary) {
	if summary.ID == "" {
		summary.ID = fmt.Sprintf("sum-%d", len(s.summaries)+1)
	}
	copied := *summary
	s.summaries = append(s.summaries, &copied)
}

func (s *memStore) Compact(_ context.Context, summary *core.Summary, cutoffID int64, keepRecent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compactTries++
	if s.compactErr != nil {
		return s.compactErr
	}
	s.saveLocked(summary)
	s.softDeleteLocked(summary.SessionID, cutoffID, keepRecent)
	return nil
}

func (s *memStore) roleSequence(sessionID string, liveOnly bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var roles []string
	for _, m := range s.messages {
		if m.SessionID != sessionID {
			continue
		}
		if liveOnly && m.IsDeleted {
			continue
		}
		roles = append(roles, m.Role)
	}
	return strings.Join(roles, ",")
}
