package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sandevgo/parley/internal/core"
	"github.com/sandevgo/parley/pkg/log"
)

// SessionInfo is a session plus its live message count, the shape listings
// return.
type SessionInfo struct {
	core.Session
	MessageCount int `json:"message_count"`
}

// SessionService owns session lifecycle: create, lookup, listing and
// soft-delete. Turn processing lives in the Orchestrator.
type SessionService struct {
	sessions     core.SessionsRepository
	messages     core.MessagesRepository
	systemPrompt string
}

func NewSessionService(sessions core.SessionsRepository, messages core.MessagesRepository, systemPrompt string) *SessionService {
	return &SessionService{sessions: sessions, messages: messages, systemPrompt: systemPrompt}
}

// Create registers a new session and seeds the system prompt as its first
// message, so an exported history is self-describing. An empty name gets a
// timestamp-derived default.
func (s *SessionService) Create(ctx context.Context, name string) (core.Session, error) {
	now := time.Now().UTC()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Session " + now.Format("2006-01-02 15:04")
	}

	session := core.Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return core.Session{}, err
	}
	if _, err := s.messages.Append(ctx, session.ID, core.RoleSystem, s.systemPrompt); err != nil {
		return core.Session{}, err
	}

	log.FromCtx(ctx).Info().Str("session_id", session.ID).Str("name", session.Name).Msg("session created")
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (core.Session, error) {
	return s.sessions.Get(ctx, id)
}

// List returns one page of live sessions, newest first, each with its live
// message count.
func (s *SessionService) List(ctx context.Context, page, pageSize int) ([]SessionInfo, error) {
	sessions, err := s.sessions.List(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		count, err := s.messages.CountLive(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, SessionInfo{Session: session, MessageCount: count})
	}
	return infos, nil
}

// Delete soft-deletes a session. Its messages and summaries stay on disk but
// the session no longer resolves.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if err := s.sessions.SoftDelete(ctx, id); err != nil {
		return err
	}
	log.FromCtx(ctx).Info().Str("session_id", id).Msg("session deleted")
	return nil
}

// Messages returns one page of the session's history, oldest first, deleted
// rows included so a client can render what compaction folded away. The bool
// reports whether older pages remain.
func (s *SessionService) Messages(ctx context.Context, sessionID string, page, pageSize int) ([]core.Message, bool, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, false, err
	}
	messages, err := s.messages.Page(ctx, sessionID, page, pageSize)
	if err != nil {
		return nil, false, err
	}
	total, err := s.messages.CountAll(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return messages, (page+1)*pageSize < total, nil
}
