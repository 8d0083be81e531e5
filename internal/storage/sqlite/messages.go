package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/sandevgo/parley/internal/core"
	"github.com/sandevgo/parley/pkg/log"
)

// softDeleteQuery marks live messages at or before the cutoff as deleted
// while always sparing the keepRecent most recent of them. Messages above
// the cutoff are never touched, so the keepRecent most recent live messages
// of the session survive any cutoff. The floor wins over the cutoff.
const softDeleteQuery = `
	UPDATE chat_message SET is_deleted = 1
	WHERE session_id = ? AND is_deleted = 0 AND id <= ?
	AND id NOT IN (
		SELECT id FROM chat_message
		WHERE session_id = ? AND is_deleted = 0 AND id <= ?
		ORDER BY id DESC LIMIT ?
	)`

type MessagesRepo struct {
	db *sql.DB
}

func NewMessagesRepo(db *sql.DB) *MessagesRepo {
	return &MessagesRepo{db: db}
}

func (r *MessagesRepo) Append(ctx context.Context, sessionID, role, content string) (core.Message, error) {
	now := time.Now().UTC()

	query := `INSERT INTO chat_message (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, sessionID, role, content, now)
	if err != nil {
		return core.Message{}, storeErr("insert message", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Message{}, storeErr("insert message", err)
	}

	return core.Message{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}, nil
}

func (r *MessagesRepo) RecentLive(ctx context.Context, sessionID string, limit int) ([]core.Message, error) {
	// Fetch the LAST 'limit' live messages by ordering DESC
	query := `SELECT id, session_id, role, content, created_at, is_deleted FROM chat_message
		WHERE session_id = ? AND is_deleted = 0 ORDER BY id DESC LIMIT ?`

	messages, err := r.queryMessages(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}

	// The query returned messages newest first; reverse back to
	// chronological order for the model.
	reverseMessages(messages)

	log.FromCtx(ctx).Debug().Int("count", len(messages)).Msg("loaded recent live messages")
	return messages, nil
}

func (r *MessagesRepo) AllLive(ctx context.Context, sessionID string) ([]core.Message, error) {
	query := `SELECT id, session_id, role, content, created_at, is_deleted FROM chat_message
		WHERE session_id = ? AND is_deleted = 0 ORDER BY id ASC`

	return r.queryMessages(ctx, query, sessionID)
}

func (r *MessagesRepo) CountLive(ctx context.Context, sessionID string) (int, error) {
	query := `SELECT COUNT(*) FROM chat_message WHERE session_id = ? AND is_deleted = 0`

	var count int
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, storeErr("count messages", err)
	}
	return count, nil
}

func (r *MessagesRepo) CountAll(ctx context.Context, sessionID string) (int, error) {
	query := `SELECT COUNT(*) FROM chat_message WHERE session_id = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, storeErr("count messages", err)
	}
	return count, nil
}

func (r *MessagesRepo) Page(ctx context.Context, sessionID string, page, pageSize int) ([]core.Message, error) {
	if page < 0 {
		page = 0
	}
	// Page 0 is the most recent window, matching how a chat UI paginates
	// backwards through history.
	query := `SELECT id, session_id, role, content, created_at, is_deleted FROM chat_message
		WHERE session_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`

	messages, err := r.queryMessages(ctx, query, sessionID, pageSize, page*pageSize)
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

func (r *MessagesRepo) SoftDeleteBefore(ctx context.Context, sessionID string, cutoffID int64, keepRecent int) (int64, error) {
	res, err := r.db.ExecContext(ctx, softDeleteQuery, sessionID, cutoffID, sessionID, cutoffID, keepRecent)
	if err != nil {
		return 0, storeErr("soft delete messages", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("soft delete messages", err)
	}

	log.FromCtx(ctx).Debug().Int64("count", affected).Int64("cutoff", cutoffID).Msg("soft deleted messages")
	return affected, nil
}

func (r *MessagesRepo) queryMessages(ctx context.Context, query string, args ...any) ([]core.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query messages", err)
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		var msg core.Message
		var content sql.NullString

		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &content, &msg.CreatedAt, &msg.IsDeleted); err != nil {
			return nil, storeErr("scan message", err)
		}
		msg.Content = content.String
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate messages", err)
	}
	return messages, nil
}

func reverseMessages(messages []core.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
