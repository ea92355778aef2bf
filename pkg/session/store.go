package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"agent-chat-engine/internal/model"
	"agent-chat-engine/internal/pkg/logger"
	"agent-chat-engine/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

const defaultPreview = "New conversation"

// Titler generates a short session title from the opening messages.
// Title generation is cosmetic: every failure is silent and leaves the
// preview in place.
type Titler interface {
	Summarize(ctx context.Context, messages []*model.Message) (string, error)
}

// Store is the persisted mapping of session id to transcript, ordered
// by recency of creation/resumption and capped at a fixed limit. It is
// the only state shared across turns; a RWMutex guards it because the
// gateway serves session listings from other goroutines while a turn
// streams.
type Store struct {
	mu       sync.RWMutex
	repo     contract.SessionRepository
	titler   Titler
	retitled *cache.Cache
	limit    int
	preview  int
	log      logger.ILogger

	sessions []*model.Session
	activeID string
}

func NewStore(repo contract.SessionRepository, titler Titler, limit, previewMaxLen int, log logger.ILogger) *Store {
	return &Store{
		repo:     repo,
		titler:   titler,
		retitled: cache.New(cache.NoExpiration, 0),
		limit:    limit,
		preview:  previewMaxLen,
		log:      log,
	}
}

// Init loads the persisted collection. A missing or unreadable blob
// starts the store empty rather than failing the boot.
func (s *Store) Init(ctx context.Context) error {
	sessions, err := s.repo.Load(ctx)
	if err != nil {
		s.log.Warn("SessionStore", "Failed to load persisted sessions, starting empty", map[string]interface{}{"error": err.Error()})
		sessions = []*model.Session{}
	}
	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
	return nil
}

// Upsert replaces the messages of an existing session in place, or
// materializes a new one at the front of the collection. An empty
// transcript is never persisted.
func (s *Store) Upsert(ctx context.Context, sessionID string, messages []*model.Message) {
	if sessionID == "" || len(messages) == 0 {
		return
	}

	s.mu.Lock()
	if existing := s.find(sessionID); existing != nil {
		existing.Messages = messages
	} else {
		sess := &model.Session{
			Id:        sessionID,
			Preview:   previewOf(messages, s.preview),
			CreatedAt: time.Now(),
			Messages:  messages,
		}
		s.sessions = append([]*model.Session{sess}, s.sessions...)
		if len(s.sessions) > s.limit {
			s.sessions = s.sessions[:s.limit]
		}
	}
	s.activeID = sessionID
	s.mu.Unlock()

	s.persist(ctx)
}

// Sessions returns a snapshot of the collection, most recent first.
func (s *Store) Sessions() []*model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

func (s *Store) ClearActive() {
	s.mu.Lock()
	s.activeID = ""
	s.mu.Unlock()
}

// Delete removes a session. It reports whether the deleted session was
// the active one, in which case active transcript state was cleared.
func (s *Store) Delete(ctx context.Context, sessionID string) bool {
	s.mu.Lock()
	wasActive := s.activeID == sessionID
	for i, sess := range s.sessions {
		if sess.Id == sessionID {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}
	if wasActive {
		s.activeID = ""
	}
	s.mu.Unlock()

	s.persist(ctx)
	return wasActive
}

// Resume binds a stored session as the active one and returns its
// transcript. The session moves to the front of the recency order and
// the reorder is persisted like any other mutation. A forked session
// id simply resolves to a miss here and binds like any new session on
// its first upsert.
func (s *Store) Resume(ctx context.Context, sessionID string) ([]*model.Message, bool) {
	s.mu.Lock()
	for i, sess := range s.sessions {
		if sess.Id == sessionID {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			s.sessions = append([]*model.Session{sess}, s.sessions...)
			s.activeID = sessionID
			s.mu.Unlock()
			s.persist(ctx)
			return sess.Messages, true
		}
	}
	s.mu.Unlock()
	return nil, false
}

// RestoreLatest resumes the most recent session on startup. Skipped
// when an initial auto-send prompt is pending, so two turns never race.
func (s *Store) RestoreLatest(autoSendPending bool) (*model.Session, bool) {
	if autoSendPending {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID != "" || len(s.sessions) == 0 {
		return nil, false
	}
	sess := s.sessions[0]
	s.activeID = sess.Id
	return sess, true
}

// MaybeRetitle asks the titler for a better preview, once per session.
// The session is marked as requested before the call so a failed
// request is never retried.
func (s *Store) MaybeRetitle(ctx context.Context, sessionID string) {
	if s.titler == nil || sessionID == "" {
		return
	}
	if err := s.retitled.Add(sessionID, true, cache.NoExpiration); err != nil {
		return // already requested
	}

	s.mu.RLock()
	sess := s.find(sessionID)
	var messages []*model.Message
	if sess != nil {
		messages = sess.Messages
	}
	s.mu.RUnlock()
	if sess == nil {
		return
	}

	title, err := s.titler.Summarize(ctx, messages)
	if err != nil || strings.TrimSpace(title) == "" {
		s.log.Debug("SessionStore", "Title generation failed, keeping preview", map[string]interface{}{"session_id": sessionID})
		return
	}

	s.mu.Lock()
	if sess := s.find(sessionID); sess != nil {
		sess.Preview = title
	}
	s.mu.Unlock()
	s.persist(ctx)
}

// find must be called with the lock held.
func (s *Store) find(sessionID string) *model.Session {
	for _, sess := range s.sessions {
		if sess.Id == sessionID {
			return sess
		}
	}
	return nil
}

func (s *Store) persist(ctx context.Context) {
	s.mu.RLock()
	snapshot := make([]*model.Session, len(s.sessions))
	copy(snapshot, s.sessions)
	s.mu.RUnlock()

	if err := s.repo.Save(ctx, snapshot); err != nil {
		s.log.Error("SessionStore", "Failed to persist sessions", map[string]interface{}{"error": err.Error()})
	}
}

func previewOf(messages []*model.Message, maxLen int) string {
	for _, msg := range messages {
		if msg.Role == model.RoleUser {
			r := []rune(msg.Content)
			if len(r) > maxLen {
				return string(r[:maxLen]) + "..."
			}
			return msg.Content
		}
	}
	return defaultPreview
}
