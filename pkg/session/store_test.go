package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"agent-chat-engine/internal/model"
	"agent-chat-engine/internal/pkg/logger"
	"agent-chat-engine/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTitler struct {
	calls int
	title string
	err   error
}

func (f *fakeTitler) Summarize(_ context.Context, _ []*model.Message) (string, error) {
	f.calls++
	return f.title, f.err
}

func newTestStore(t *testing.T, limit int, titler Titler) *Store {
	t.Helper()
	repo := memory.NewSessionRepository("test")
	store := NewStore(repo, titler, limit, 50, logger.NewNopLogger())
	require.NoError(t, store.Init(context.Background()))
	return store
}

func turn(user, reply string) []*model.Message {
	return []*model.Message{
		model.NewUserMessage(user, nil),
		{Role: model.RoleAssistant, Content: reply},
	}
}

func TestUpsertCreatesWithPreview(t *testing.T) {
	store := newTestStore(t, 20, nil)
	ctx := context.Background()

	store.Upsert(ctx, "s-1", turn("How did we do this quarter?", "Revenue grew 12%."))

	sessions := store.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-1", sessions[0].Id)
	assert.Equal(t, "How did we do this quarter?", sessions[0].Preview)
	assert.Equal(t, "s-1", store.ActiveID())
}

func TestPreviewTruncated(t *testing.T) {
	store := newTestStore(t, 20, nil)

	long := strings.Repeat("x", 80)
	store.Upsert(context.Background(), "s-1", turn(long, "ok"))

	sessions := store.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, strings.Repeat("x", 50)+"...", sessions[0].Preview)
}

func TestUpsertReplacesInPlace(t *testing.T) {
	store := newTestStore(t, 20, nil)
	ctx := context.Background()

	store.Upsert(ctx, "s-1", turn("first question", "a"))
	store.Upsert(ctx, "s-2", turn("second question", "b"))

	grown := append(turn("first question", "a"), turn("follow-up", "c")...)
	store.Upsert(ctx, "s-1", grown)

	sessions := store.Sessions()
	require.Len(t, sessions, 2)
	// In-place update: recency order unchanged, messages replaced.
	assert.Equal(t, "s-2", sessions[0].Id)
	assert.Equal(t, "s-1", sessions[1].Id)
	assert.Len(t, sessions[1].Messages, 4)
	assert.Equal(t, "first question", sessions[1].Preview)
}

func TestEvictionBound(t *testing.T) {
	store := newTestStore(t, 20, nil)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		store.Upsert(ctx, fmt.Sprintf("s-%d", i), turn(fmt.Sprintf("question %d", i), "ok"))
	}

	sessions := store.Sessions()
	require.Len(t, sessions, 20)
	assert.Equal(t, "s-24", sessions[0].Id)
	assert.Equal(t, "s-5", sessions[19].Id)
}

func TestEmptyUpsertIgnored(t *testing.T) {
	store := newTestStore(t, 20, nil)
	ctx := context.Background()

	store.Upsert(ctx, "", turn("q", "a"))
	store.Upsert(ctx, "s-1", nil)

	assert.Empty(t, store.Sessions())
}

func TestDeleteActiveSession(t *testing.T) {
	store := newTestStore(t, 20, nil)
	ctx := context.Background()

	store.Upsert(ctx, "s-1", turn("q1", "a1"))
	store.Upsert(ctx, "s-2", turn("q2", "a2"))

	wasActive := store.Delete(ctx, "s-2")
	assert.True(t, wasActive)
	assert.Empty(t, store.ActiveID())
	require.Len(t, store.Sessions(), 1)

	wasActive = store.Delete(ctx, "s-1")
	assert.False(t, wasActive)
	assert.Empty(t, store.Sessions())
}

func TestResumeMovesToFront(t *testing.T) {
	store := newTestStore(t, 20, nil)
	ctx := context.Background()

	store.Upsert(ctx, "s-1", turn("q1", "a1"))
	store.Upsert(ctx, "s-2", turn("q2", "a2"))
	store.Upsert(ctx, "s-3", turn("q3", "a3"))

	messages, ok := store.Resume(ctx, "s-1")
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "q1", messages[0].Content)
	assert.Equal(t, "s-1", store.ActiveID())
	assert.Equal(t, "s-1", store.Sessions()[0].Id)

	_, ok = store.Resume(ctx, "missing")
	assert.False(t, ok)
}

func TestResumeReorderPersisted(t *testing.T) {
	repo := memory.NewSessionRepository("test")
	log := logger.NewNopLogger()
	ctx := context.Background()

	store := NewStore(repo, nil, 20, 50, log)
	require.NoError(t, store.Init(ctx))
	store.Upsert(ctx, "s-1", turn("q1", "a1"))
	store.Upsert(ctx, "s-2", turn("q2", "a2"))

	_, ok := store.Resume(ctx, "s-1")
	require.True(t, ok)

	// A fresh store over the same backing blob sees the new order.
	reloaded := NewStore(repo, nil, 20, 50, log)
	require.NoError(t, reloaded.Init(ctx))
	sessions := reloaded.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "s-1", sessions[0].Id)
	assert.Equal(t, "s-2", sessions[1].Id)
}

func TestRestoreLatest(t *testing.T) {
	store := newTestStore(t, 20, nil)
	ctx := context.Background()

	store.Upsert(ctx, "s-1", turn("q1", "a1"))
	store.Upsert(ctx, "s-2", turn("q2", "a2"))
	store.ClearActive()

	sess, ok := store.RestoreLatest(false)
	require.True(t, ok)
	assert.Equal(t, "s-2", sess.Id)
	assert.Equal(t, "s-2", store.ActiveID())

	// Already bound: no second restore.
	_, ok = store.RestoreLatest(false)
	assert.False(t, ok)
}

func TestRestoreLatestSkippedWhenAutoSendPending(t *testing.T) {
	store := newTestStore(t, 20, nil)
	store.Upsert(context.Background(), "s-1", turn("q1", "a1"))
	store.ClearActive()

	_, ok := store.RestoreLatest(true)
	assert.False(t, ok)
	assert.Empty(t, store.ActiveID())
}

func TestPersistenceRoundTrip(t *testing.T) {
	repo := memory.NewSessionRepository("test")
	ctx := context.Background()

	first := NewStore(repo, nil, 20, 50, logger.NewNopLogger())
	require.NoError(t, first.Init(ctx))
	first.Upsert(ctx, "s-1", turn("q1", "a1"))

	second := NewStore(repo, nil, 20, 50, logger.NewNopLogger())
	require.NoError(t, second.Init(ctx))
	sessions := second.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-1", sessions[0].Id)
}

func TestRetitleAppliesOnce(t *testing.T) {
	titler := &fakeTitler{title: "Quarterly sales review"}
	store := newTestStore(t, 20, titler)
	ctx := context.Background()

	store.Upsert(ctx, "s-1", turn("How did we do this quarter?", "Revenue grew 12%."))

	store.MaybeRetitle(ctx, "s-1")
	store.MaybeRetitle(ctx, "s-1")

	assert.Equal(t, 1, titler.calls)
	assert.Equal(t, "Quarterly sales review", store.Sessions()[0].Preview)
}

func TestRetitleFailureIsSilentAndFinal(t *testing.T) {
	titler := &fakeTitler{err: errors.New("summarizer down")}
	store := newTestStore(t, 20, titler)
	ctx := context.Background()

	store.Upsert(ctx, "s-1", turn("How did we do this quarter?", "ok"))

	store.MaybeRetitle(ctx, "s-1")
	store.MaybeRetitle(ctx, "s-1")

	// Marked before the request: a failed attempt is never retried.
	assert.Equal(t, 1, titler.calls)
	assert.Equal(t, "How did we do this quarter?", store.Sessions()[0].Preview)
}

func TestRetitleUnknownSessionIgnored(t *testing.T) {
	titler := &fakeTitler{title: "whatever"}
	store := newTestStore(t, 20, titler)

	store.MaybeRetitle(context.Background(), "missing")
	assert.Equal(t, 0, titler.calls)
}

func TestDefaultPreviewWithoutUserMessage(t *testing.T) {
	store := newTestStore(t, 20, nil)

	store.Upsert(context.Background(), "s-1", []*model.Message{
		{Role: model.RoleAssistant, Content: "unsolicited"},
	})

	assert.Equal(t, defaultPreview, store.Sessions()[0].Preview)
}
