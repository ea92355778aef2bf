package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"agent-chat-engine/internal/dto"
	"agent-chat-engine/internal/model"
	"agent-chat-engine/internal/pkg/logger"
	"agent-chat-engine/internal/pkg/serverutils"
	"agent-chat-engine/pkg/engine"
	"agent-chat-engine/pkg/events"
	"agent-chat-engine/pkg/nats"
	"agent-chat-engine/pkg/session"
	"agent-chat-engine/pkg/transcript"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// IChatService defines the chat gateway surface over the engine.
type IChatService interface {
	SendChat(ctx context.Context, request *dto.SendChatRequest) (*dto.ChatResponse, error)
	SelectOption(request *dto.SelectOptionRequest) *dto.ChatResponse
	AnswerQuestion(ctx context.Context, request *dto.AnswerQuestionRequest) (*dto.ChatResponse, error)
	GetTranscript() *dto.ChatResponse
	GetSessions() []*dto.SessionSummaryResponse
	ResumeSession(ctx context.Context, sessionID string) (*dto.ResumeSessionResponse, error)
	DeleteSession(ctx context.Context, sessionID string) (*dto.DeleteSessionResponse, error)
	NewChat() (*dto.ChatResponse, error)
	AbortTurn()
	SaveUpload(fileName, mimeType string, src io.Reader) (*dto.UploadResponse, error)
}

type chatService struct {
	engine        *engine.Engine
	store         *session.Store
	natsPublisher *nats.Publisher
	uploadDir     string
	baseURL       string
	log           logger.ILogger
}

func NewChatService(
	eng *engine.Engine,
	store *session.Store,
	natsPublisher *nats.Publisher,
	uploadDir string,
	baseURL string,
	log logger.ILogger,
) IChatService {
	return &chatService{
		engine:        eng,
		store:         store,
		natsPublisher: natsPublisher,
		uploadDir:     uploadDir,
		baseURL:       baseURL,
		log:           log,
	}
}

func (s *chatService) SendChat(ctx context.Context, request *dto.SendChatRequest) (*dto.ChatResponse, error) {
	before := s.engine.SessionID()

	messages, err := s.engine.SendMessage(ctx, request.Message)
	if err != nil {
		return nil, mapSubmissionError(err)
	}

	if after := s.engine.SessionID(); after != "" && after != before {
		s.announceLifecycle(ctx, events.TypeSessionCreated, after)
	}

	return s.transcript(messages), nil
}

func (s *chatService) SelectOption(request *dto.SelectOptionRequest) *dto.ChatResponse {
	s.engine.SelectOption(request.MessageIndex, request.QuestionIndex, request.Label)
	return s.GetTranscript()
}

func (s *chatService) AnswerQuestion(ctx context.Context, request *dto.AnswerQuestionRequest) (*dto.ChatResponse, error) {
	messages, err := s.engine.SubmitAnswers(ctx, request.MessageIndex)
	if err != nil {
		return nil, mapSubmissionError(err)
	}
	return s.transcript(messages), nil
}

func (s *chatService) GetTranscript() *dto.ChatResponse {
	return s.transcript(s.engine.Messages())
}

func (s *chatService) GetSessions() []*dto.SessionSummaryResponse {
	sessions := s.store.Sessions()
	activeID := s.store.ActiveID()

	summaries := make([]*dto.SessionSummaryResponse, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, &dto.SessionSummaryResponse{
			Id:        sess.Id,
			Preview:   sess.Preview,
			CreatedAt: sess.CreatedAt.Format(time.RFC3339),
			Active:    sess.Id == activeID,
		})
	}
	return summaries
}

func (s *chatService) ResumeSession(ctx context.Context, sessionID string) (*dto.ResumeSessionResponse, error) {
	ok, err := s.engine.Resume(ctx, sessionID)
	if err != nil {
		return nil, mapSubmissionError(err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &dto.ResumeSessionResponse{
		SessionId: sessionID,
		Messages:  s.engine.Messages(),
	}, nil
}

func (s *chatService) DeleteSession(ctx context.Context, sessionID string) (*dto.DeleteSessionResponse, error) {
	wasActive := s.store.ActiveID() == sessionID
	if err := s.engine.DeleteSession(ctx, sessionID); err != nil {
		return nil, mapSubmissionError(err)
	}
	s.announceLifecycle(ctx, events.TypeSessionDeleted, sessionID)
	return &dto.DeleteSessionResponse{Deleted: true, WasActive: wasActive}, nil
}

func (s *chatService) NewChat() (*dto.ChatResponse, error) {
	if err := s.engine.NewChat(); err != nil {
		return nil, mapSubmissionError(err)
	}
	return s.GetTranscript(), nil
}

func (s *chatService) AbortTurn() {
	s.engine.Abort()
}

// SaveUpload stores the file under a collision-free name and blocks
// chat submissions for the duration.
func (s *chatService) SaveUpload(fileName, mimeType string, src io.Reader) (*dto.UploadResponse, error) {
	s.engine.SetUploading(true)
	defer s.engine.SetUploading(false)

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, err
	}

	storedName := fmt.Sprintf("%s%s", uuid.New().String(), filepath.Ext(fileName))
	storedPath := filepath.Join(s.uploadDir, storedName)

	dst, err := os.Create(storedPath)
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(storedPath)
		return nil, err
	}

	s.log.Info("ChatService", "File uploaded", map[string]interface{}{
		"original": fileName,
		"stored":   storedName,
	})

	return &dto.UploadResponse{
		Success:  true,
		FileName: fileName,
		MimeType: mimeType,
		FilePath: storedPath,
		URL:      fmt.Sprintf("%s/uploads/%s", s.baseURL, storedName),
	}, nil
}

func (s *chatService) transcript(messages []*model.Message) *dto.ChatResponse {
	return &dto.ChatResponse{
		SessionId:  s.engine.SessionID(),
		Messages:   messages,
		Status:     s.engine.Status(),
		Steps:      s.engine.Steps(),
		Incomplete: s.engine.Incomplete(),
	}
}

// announceLifecycle is best-effort; the publisher is nil-safe when
// NATS is not configured.
func (s *chatService) announceLifecycle(ctx context.Context, eventType, sessionID string) {
	if err := s.natsPublisher.Publish(ctx, events.NewSessionEvent(eventType, sessionID)); err != nil {
		s.log.Warn("ChatService", "Failed to publish lifecycle event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}

func mapSubmissionError(err error) error {
	switch {
	case errors.Is(err, engine.ErrTurnInProgress):
		return &serverutils.ErrConflict{Reason: "A response is already streaming"}
	case errors.Is(err, engine.ErrUploadInProgress):
		return &serverutils.ErrConflict{Reason: "An upload is in progress"}
	case errors.Is(err, transcript.ErrSubmissionBlocked):
		return &serverutils.ErrConflict{Reason: "Answer all questions before submitting"}
	default:
		return err
	}
}
