package sqlite

import (
	"context"
	"database/sql"

	"github.com/sandevgo/parley/internal/core"
	"github.com/sandevgo/parley/pkg/log"
)

// CompactionStore runs the summary write and the message soft-delete as one
// transaction, so a crash between the two writes cannot leave a summary that
// superseded nothing or drop messages without a summary.
type CompactionStore struct {
	db *sql.DB
}

func NewCompactionStore(db *sql.DB) *CompactionStore {
	return &CompactionStore{db: db}
}

func (s *CompactionStore) Compact(ctx context.Context, summary *core.Summary, cutoffID int64, keepRecent int) error {
	args, err := summaryArgs(summary)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin compaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertSummaryQuery, args...); err != nil {
		return storeErr("insert summary", err)
	}

	res, err := tx.ExecContext(ctx, softDeleteQuery, summary.SessionID, cutoffID, summary.SessionID, cutoffID, keepRecent)
	if err != nil {
		return storeErr("soft delete messages", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit compaction", err)
	}

	deleted, _ := res.RowsAffected()
	log.FromCtx(ctx).Info().
		Str("session_id", summary.SessionID).
		Str("summary_id", summary.ID).
		Int64("deleted", deleted).
		Msg("compacted session history")
	return nil
}
