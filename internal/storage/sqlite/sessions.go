package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sandevgo/parley/internal/core"
)

type SessionsRepo struct {
	db *sql.DB
}

func NewSessionsRepo(db *sql.DB) *SessionsRepo {
	return &SessionsRepo{db: db}
}

func (r *SessionsRepo) Create(ctx context.Context, session core.Session) error {
	query := `INSERT INTO chat_session (id, name, created_at, is_deleted) VALUES (?, ?, ?, 0)`
	if _, err := r.db.ExecContext(ctx, query, session.ID, session.Name, session.CreatedAt); err != nil {
		return storeErr("insert session", err)
	}
	return nil
}

func (r *SessionsRepo) Get(ctx context.Context, id string) (core.Session, error) {
	query := `SELECT id, name, created_at, is_deleted FROM chat_session WHERE id = ? AND is_deleted = 0`

	var s core.Session
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Name, &s.CreatedAt, &s.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, core.ErrSessionNotFound
	}
	if err != nil {
		return core.Session{}, storeErr("query session", err)
	}
	return s, nil
}

// List returns one page of live sessions, newest first. Page 0 is the first
// page, matching the message pagination convention.
func (r *SessionsRepo) List(ctx context.Context, page, pageSize int) ([]core.Session, error) {
	if page < 0 {
		page = 0
	}
	query := `SELECT id, name, created_at, is_deleted FROM chat_session
		WHERE is_deleted = 0 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, pageSize, page*pageSize)
	if err != nil {
		return nil, storeErr("query sessions", err)
	}
	defer rows.Close()

	var sessions []core.Session
	for rows.Next() {
		var s core.Session
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.IsDeleted); err != nil {
			return nil, storeErr("scan session", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate sessions", err)
	}
	return sessions, nil
}

func (r *SessionsRepo) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE chat_session SET is_deleted = 1 WHERE id = ? AND is_deleted = 0`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return storeErr("soft delete session", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("soft delete session", err)
	}
	if affected == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}
