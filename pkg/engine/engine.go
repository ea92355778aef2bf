package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"agent-chat-engine/internal/model"
	"agent-chat-engine/internal/pkg/logger"
	"agent-chat-engine/pkg/agent"
	"agent-chat-engine/pkg/events"
	"agent-chat-engine/pkg/session"
	"agent-chat-engine/pkg/stream"
	"agent-chat-engine/pkg/transcript"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

var (
	ErrTurnInProgress   = errors.New("a turn is already streaming")
	ErrUploadInProgress = errors.New("an upload is in progress")
	ErrEmptyMessage     = errors.New("message must not be empty")
)

// StreamOpener opens one turn stream against the agent backend.
type StreamOpener interface {
	OpenTurn(ctx context.Context, req *agent.TurnRequest) (io.ReadCloser, error)
}

// DocumentSink receives document_update payloads verbatim. Rendering
// is someone else's problem.
type DocumentSink func(content string)

// Engine is the turn controller: it owns the single-active-turn
// constraint, opens the stream, feeds records through the decoder and
// parser into the accumulator, and resolves the terminal state. All
// transcript mutation happens on the goroutine running SendMessage;
// the session store is the only state shared beyond it.
type Engine struct {
	mu        sync.Mutex
	busy      bool
	uploading bool
	cancel    context.CancelFunc

	opener    StreamOpener
	acc       *transcript.Accumulator
	questions *transcript.QuestionController
	store     *session.Store
	publisher message.Publisher
	sink      DocumentSink
	document  func() string
	log       logger.ILogger
}

func New(
	opener StreamOpener,
	acc *transcript.Accumulator,
	store *session.Store,
	publisher message.Publisher,
	log logger.ILogger,
) *Engine {
	return &Engine{
		opener:    opener,
		acc:       acc,
		questions: transcript.NewQuestionController(),
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

// SetDocumentSink wires the external collaborator that consumes
// document updates.
func (e *Engine) SetDocumentSink(sink DocumentSink) { e.sink = sink }

// SetDocumentProvider wires the source of the documentContent request
// field, when a document editor is attached.
func (e *Engine) SetDocumentProvider(provider func() string) { e.document = provider }

// Bootstrap restores prior client state: auto-resume the most recent
// session, unless an initial prompt is configured, in which case that
// prompt is sent instead (never both, to avoid racing two turns).
func (e *Engine) Bootstrap(ctx context.Context, initialPrompt string) {
	if err := e.store.Init(ctx); err != nil {
		return
	}
	if sess, ok := e.store.RestoreLatest(initialPrompt != ""); ok {
		e.acc.Load(sess.Id, sess.Messages)
		e.log.Info("Engine", "Auto-resumed most recent session", map[string]interface{}{"session_id": sess.Id})
		return
	}
	if initialPrompt != "" {
		// Sending blocks for the whole turn; don't hold up startup.
		go func() {
			if _, err := e.SendMessage(ctx, initialPrompt); err != nil {
				e.log.Warn("Engine", "Initial prompt send rejected", map[string]interface{}{"error": err.Error()})
			}
		}()
	}
}

type provisionalInput struct {
	Message   string  `json:"message"`
	SessionID *string `json:"sessionId"`
}

// SendMessage runs one full turn and returns the transcript in its
// terminal state. Stream-level failures never propagate as errors;
// they resolve into the transcript's terminal error shape. The only
// errors returned are submission rejections.
func (e *Engine) SendMessage(ctx context.Context, text string) ([]*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	if e.uploading {
		e.mu.Unlock()
		return nil, ErrUploadInProgress
	}
	e.busy = true
	turnCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.busy = false
		e.cancel = nil
		e.mu.Unlock()
	}()

	req := &agent.TurnRequest{
		Message: text,
		History: agent.BuildHistory(e.acc.Messages()),
	}
	var boundSession *string
	if id := e.acc.SessionID(); id != "" {
		boundSession = &id
		req.SessionID = &id
	}
	if e.document != nil {
		req.DocumentContent = e.document()
	}

	rawInput, _ := json.Marshal(provisionalInput{Message: text, SessionID: boundSession})
	e.acc.BeginTurn(text, rawInput)

	body, err := e.opener.OpenTurn(turnCtx, req)
	if err != nil {
		e.log.Error("Engine", "Failed to open turn stream", map[string]interface{}{"error": err.Error()})
		e.acc.FailTransport(err)
		e.persist()
		return e.acc.Messages(), nil
	}
	defer body.Close()

	e.consume(turnCtx, body)

	e.persist()
	e.announceCompletion()
	return e.acc.Messages(), nil
}

// consume is the single-suspend-point read loop: records are applied
// strictly in arrival order, and nothing else mutates the transcript
// between reads.
func (e *Engine) consume(ctx context.Context, body io.Reader) {
	decoder := stream.NewDecoder(ctx, body, e.log)

	for record := range decoder.Records() {
		env, ok := stream.ParseEnvelope(record)
		if !ok {
			continue
		}
		if env.Type == stream.EventDocumentUpdate {
			if e.sink != nil {
				e.sink(env.Content)
			}
			continue
		}
		e.acc.Apply(env)
		e.persist()
		if e.acc.Terminal() {
			return
		}
	}

	if ctx.Err() != nil {
		// Aborted mid-stream: partial content stays, turn is tagged
		// incomplete.
		e.acc.AbortTurn()
		return
	}
	if err := decoder.Err(); err != nil {
		e.log.Error("Engine", "Stream read failed", map[string]interface{}{"error": err.Error()})
		e.acc.FailTransport(err)
	}
}

// Abort cancels the in-flight turn, if any.
func (e *Engine) Abort() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Busy reports whether a turn is currently streaming.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// SetUploading blocks/unblocks submissions while a file upload runs.
func (e *Engine) SetUploading(uploading bool) {
	e.mu.Lock()
	e.uploading = uploading
	e.mu.Unlock()
}

// NewChat clears the active transcript and session binding. Rejected
// while a turn streams: nothing may mutate the transcript under the
// consume loop.
func (e *Engine) NewChat() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrTurnInProgress
	}
	e.acc.Reset()
	e.store.ClearActive()
	return nil
}

// Resume loads a stored session as the active transcript. Rejected
// while a turn streams, for the same reason as NewChat.
func (e *Engine) Resume(ctx context.Context, sessionID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return false, ErrTurnInProgress
	}
	messages, ok := e.store.Resume(ctx, sessionID)
	if !ok {
		return false, nil
	}
	e.acc.Load(sessionID, messages)
	return true, nil
}

// DeleteSession removes a session; deleting the active one also clears
// the active transcript, so that case is rejected mid-turn.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy && sessionID == e.store.ActiveID() {
		return ErrTurnInProgress
	}
	if e.store.Delete(ctx, sessionID) {
		e.acc.Reset()
	}
	return nil
}

func (e *Engine) Messages() []*model.Message { return e.acc.Messages() }
func (e *Engine) SessionID() string          { return e.acc.SessionID() }
func (e *Engine) Status() string             { return e.acc.Status() }
func (e *Engine) Steps() []string            { return e.acc.Steps() }
func (e *Engine) Incomplete() bool           { return e.acc.Incomplete() }

// SelectOption forwards a question option choice.
func (e *Engine) SelectOption(msgIdx, qIdx int, label string) {
	if msg := e.messageAt(msgIdx); msg != nil {
		e.questions.SelectOption(msg, msgIdx, qIdx, label)
	}
}

// CanSubmitAnswers reports whether the pending question set on a
// message is fully answered.
func (e *Engine) CanSubmitAnswers(msgIdx int) bool {
	return e.questions.CanSubmit(e.messageAt(msgIdx), msgIdx)
}

// SubmitAnswers renders the selected answers and sends them as the
// next ordinary turn. The turn gate runs before Submit: Submit clears
// the pending question and all selections, and a rejected send must
// leave them intact so the clarification can still be answered.
func (e *Engine) SubmitAnswers(ctx context.Context, msgIdx int) ([]*model.Message, error) {
	msg := e.messageAt(msgIdx)
	if msg == nil {
		return nil, transcript.ErrSubmissionBlocked
	}
	if err := e.gate(); err != nil {
		return nil, err
	}
	answer, err := e.questions.Submit(msg, msgIdx)
	if err != nil {
		return nil, err
	}
	return e.SendMessage(ctx, answer)
}

func (e *Engine) gate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrTurnInProgress
	}
	if e.uploading {
		return ErrUploadInProgress
	}
	return nil
}

func (e *Engine) messageAt(idx int) *model.Message {
	messages := e.acc.Messages()
	if idx < 0 || idx >= len(messages) {
		return nil
	}
	return messages[idx]
}

// persist mirrors every transcript mutation into the store once the
// backend has bound a session id. Persistence runs on a background
// context so an aborted turn still records its partial transcript.
func (e *Engine) persist() {
	if id := e.acc.SessionID(); id != "" {
		e.store.Upsert(context.Background(), id, e.acc.Messages())
	}
}

// announceCompletion publishes turn.completed so the title consumer
// can retitle the session off the hot path.
func (e *Engine) announceCompletion() {
	if e.publisher == nil || e.acc.SessionID() == "" || !e.acc.HasAssistantContent() {
		return
	}
	payload, _ := json.Marshal(events.TurnCompleted{SessionID: e.acc.SessionID()})
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := e.publisher.Publish(events.TopicTurnCompleted, msg); err != nil {
		e.log.Warn("Engine", "Failed to publish turn completion", map[string]interface{}{"error": err.Error()})
	}
}
