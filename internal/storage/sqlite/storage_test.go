package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/parley/internal/core"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestSession(t *testing.T, db *sql.DB) string {
	t.Helper()
	id := fmt.Sprintf("sess-%d", rand.Int63())
	err := NewSessionsRepo(db).Create(context.Background(), core.Session{
		ID:        id,
		Name:      "test session",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return id
}

func appendN(t *testing.T, repo *MessagesRepo, sessionID string, n int) []core.Message {
	t.Helper()
	out := make([]core.Message, 0, n)
	for i := 0; i < n; i++ {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		msg, err := repo.Append(context.Background(), sessionID, role, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func TestSessionsCRUD(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSessionsRepo(db)

	id := newTestSession(t, db)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "test session", got.Name)

	sessions, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	require.NoError(t, repo.SoftDelete(ctx, id))

	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	err = repo.SoftDelete(ctx, id)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	sessions, err = repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

// Page 0 is the first page and consecutive pages never overlap.
func TestSessionsListPagination(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSessionsRepo(db)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, core.Session{
			ID:        fmt.Sprintf("s-%d", i),
			Name:      fmt.Sprintf("session %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	// Newest first.
	page0, err := repo.List(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, page0, 1)
	assert.Equal(t, "s-2", page0[0].ID)

	page1, err := repo.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page1, 1)
	assert.Equal(t, "s-1", page1[0].ID)

	// A negative page clamps to the first page.
	neg, err := repo.List(ctx, -1, 1)
	require.NoError(t, err)
	require.Len(t, neg, 1)
	assert.Equal(t, "s-2", neg[0].ID)

	empty, err := repo.List(ctx, 3, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSessionsGetUnknown(t *testing.T) {
	db := newTestDB(t)
	_, err := NewSessionsRepo(db).Get(context.Background(), "never-created")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestMessagesAppendAssignsIncreasingIDs(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessagesRepo(db)
	sessionID := newTestSession(t, db)

	msgs := appendN(t, repo, sessionID, 5)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].ID, msgs[i-1].ID)
	}
}

func TestMessagesRecentLiveOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMessagesRepo(db)
	sessionID := newTestSession(t, db)

	appendN(t, repo, sessionID, 6)

	recent, err := repo.RecentLive(ctx, sessionID, 4)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	// Most recent 4, oldest first.
	assert.Equal(t, "message 2", recent[0].Content)
	assert.Equal(t, "message 5", recent[3].Content)
}

func TestMessagesPage(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMessagesRepo(db)
	sessionID := newTestSession(t, db)

	appendN(t, repo, sessionID, 5)

	// Page 0 is the most recent window.
	page0, err := repo.Page(ctx, sessionID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page0, 2)
	assert.Equal(t, "message 3", page0[0].Content)
	assert.Equal(t, "message 4", page0[1].Content)

	page1, err := repo.Page(ctx, sessionID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "message 1", page1[0].Content)

	empty, err := repo.Page(ctx, sessionID, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSoftDeleteBeforeSparesRecentFloor(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMessagesRepo(db)
	sessionID := newTestSession(t, db)

	msgs := appendN(t, repo, sessionID, 8)
	cutoff := msgs[7].ID

	deleted, err := repo.SoftDeleteBefore(ctx, sessionID, cutoff, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	live, err := repo.AllLive(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, live, 3)
	assert.Equal(t, msgs[5].ID, live[0].ID)
	assert.Equal(t, msgs[7].ID, live[2].ID)
}

func TestSoftDeleteBeforeCutoffLeavesNewerUntouched(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMessagesRepo(db)
	sessionID := newTestSession(t, db)

	msgs := appendN(t, repo, sessionID, 8)
	cutoff := msgs[5].ID // 6 messages in range, 2 above

	deleted, err := repo.SoftDeleteBefore(ctx, sessionID, cutoff, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	live, err := repo.AllLive(ctx, sessionID)
	require.NoError(t, err)
	// 3 spared in range plus the 2 above the cutoff.
	require.Len(t, live, 5)
	assert.Equal(t, msgs[3].ID, live[0].ID)
}

func TestSoftDeleteBeforeFloorWinsOverCutoff(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMessagesRepo(db)
	sessionID := newTestSession(t, db)

	msgs := appendN(t, repo, sessionID, 3)

	deleted, err := repo.SoftDeleteBefore(ctx, sessionID, msgs[2].ID, 5)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	count, err := repo.CountLive(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSoftDeleteBeforeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMessagesRepo(db)
	sessionID := newTestSession(t, db)

	msgs := appendN(t, repo, sessionID, 8)
	cutoff := msgs[7].ID

	_, err := repo.SoftDeleteBefore(ctx, sessionID, cutoff, 3)
	require.NoError(t, err)

	deleted, err := repo.SoftDeleteBefore(ctx, sessionID, cutoff, 3)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	count, err := repo.CountLive(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// Property check against a reference model: however cutoff and keepRecent
// land, the keepRecent most recent live messages always survive and nothing
// above the cutoff is touched.
func TestSoftDeleteBeforeRandomized(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMessagesRepo(db)

	rnd := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		sessionID := newTestSession(t, db)
		total := 1 + rnd.Intn(15)
		msgs := appendN(t, repo, sessionID, total)

		cutoff := msgs[rnd.Intn(total)].ID
		keepRecent := rnd.Intn(6)

		inRange := 0
		for _, m := range msgs {
			if m.ID <= cutoff {
				inRange++
			}
		}
		wantDeleted := inRange - keepRecent
		if wantDeleted < 0 {
			wantDeleted = 0
		}

		deleted, err := repo.SoftDeleteBefore(ctx, sessionID, cutoff, keepRecent)
		require.NoError(t, err)
		assert.Equal(t, int64(wantDeleted), deleted,
			"round %d: total=%d cutoff=%d keep=%d", round, total, cutoff, keepRecent)

		live, err := repo.AllLive(ctx, sessionID)
		require.NoError(t, err)
		assert.Len(t, live, total-wantDeleted)

		// Survivors are always the most recent ones.
		for i, m := range live {
			assert.Equal(t, msgs[total-len(live)+i].ID, m.ID)
		}
	}
}

func TestSummariesLatestEmpty(t *testing.T) {
	db := newTestDB(t)
	sessionID := newTestSession(t, db)

	summary, err := NewSummariesRepo(db).Latest(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestSummariesSaveAndLatest(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSummariesRepo(db)
	sessionID := newTestSession(t, db)

	first := &core.Summary{
		SessionID: sessionID,
		UserProfile: core.UserProfile{
			Preferences: []string{"short answers"},
			Constraints: []string{"no weekends"},
		},
		KeyFacts:      []string{"project atlas"},
		Decisions:     []string{"use postgres"},
		OpenQuestions: []string{},
		Todos:         nil, // nil round-trips as an empty list
	}

	id, err := repo.Save(ctx, first)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := repo.Latest(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.UserProfile, got.UserProfile)
	assert.Equal(t, []string{"project atlas"}, got.KeyFacts)
	assert.Equal(t, []string{"use postgres"}, got.Decisions)
	assert.Equal(t, []string{}, got.OpenQuestions)
	assert.Equal(t, []string{}, got.Todos)

	// A later record supersedes the first.
	second := &core.Summary{
		SessionID: sessionID,
		KeyFacts:  []string{"project atlas", "renamed to beacon"},
	}
	_, err = repo.Save(ctx, second)
	require.NoError(t, err)

	got, err = repo.Latest(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, []string{"project atlas", "renamed to beacon"}, got.KeyFacts)

	// With no intervening save, a repeated read returns identical data.
	again, err := repo.Latest(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestSummariesScopedToSession(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSummariesRepo(db)
	a := newTestSession(t, db)
	b := newTestSession(t, db)

	_, err := repo.Save(ctx, &core.Summary{SessionID: a, KeyFacts: []string{"belongs to a"}})
	require.NoError(t, err)

	got, err := repo.Latest(ctx, b)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCompactWritesSummaryAndDeletesAtomically(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	messages := NewMessagesRepo(db)
	summaries := NewSummariesRepo(db)
	store := NewCompactionStore(db)
	sessionID := newTestSession(t, db)

	msgs := appendN(t, messages, sessionID, 8)

	summary := &core.Summary{SessionID: sessionID, KeyFacts: []string{"compacted"}}
	require.NoError(t, store.Compact(ctx, summary, msgs[7].ID, 3))

	count, err := messages.CountLive(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	got, err := summaries.Latest(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"compacted"}, got.KeyFacts)
}

// A failing summary insert must roll back the whole compaction, leaving the
// history untouched.
func TestCompactRollsBackOnSummaryConflict(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	messages := NewMessagesRepo(db)
	store := NewCompactionStore(db)
	sessionID := newTestSession(t, db)

	msgs := appendN(t, messages, sessionID, 8)

	first := &core.Summary{SessionID: sessionID}
	require.NoError(t, store.Compact(ctx, first, msgs[4].ID, 2))

	before, err := messages.CountLive(ctx, sessionID)
	require.NoError(t, err)

	// Reusing the same primary key forces the insert to fail.
	dup := &core.Summary{ID: first.ID, SessionID: sessionID}
	err = store.Compact(ctx, dup, msgs[7].ID, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorageUnavailable)

	after, err := messages.CountLive(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
