package core

import "context"

type SessionsRepository interface {
	Create(ctx context.Context, session Session) error
	Get(ctx context.Context, id string) (Session, error)
	List(ctx context.Context, page, pageSize int) ([]Session, error)
	SoftDelete(ctx context.Context, id string) error
}

type MessagesRepository interface {
	// Append persists one message as a single atomic write and returns it
	// with its assigned id.
	Append(ctx context.Context, sessionID, role, content string) (Message, error)

	// RecentLive returns the most recent limit live messages, oldest first.
	RecentLive(ctx context.Context, sessionID string, limit int) ([]Message, error)

	// AllLive returns every live message of the session, oldest first.
	AllLive(ctx context.Context, sessionID string) ([]Message, error)

	CountLive(ctx context.Context, sessionID string) (int, error)

	// CountAll counts every message of the session, deleted included.
	CountAll(ctx context.Context, sessionID string) (int, error)

	// Page returns one page of messages (live and deleted), oldest first.
	Page(ctx context.Context, sessionID string, page, pageSize int) ([]Message, error)

	// SoftDeleteBefore marks live messages with id <= cutoffID as deleted,
	// always sparing the keepRecent most recent live messages. The floor
	// takes precedence over the cutoff. Returns the number of rows marked.
	SoftDeleteBefore(ctx context.Context, sessionID string, cutoffID int64, keepRecent int) (int64, error)
}

type SummariesRepository interface {
	// Latest returns the most recently updated summary for the session, or
	// nil when none exists.
	Latest(ctx context.Context, sessionID string) (*Summary, error)

	// Save writes a new record and returns its id. There is no update or
	// merge operation; every compaction event appends.
	Save(ctx context.Context, summary *Summary) (string, error)
}

// CompactionStore joins the summary write and the message soft-delete into
// one logically atomic step.
type CompactionStore interface {
	Compact(ctx context.Context, summary *Summary, cutoffID int64, keepRecent int) error
}
