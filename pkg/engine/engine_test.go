package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"agent-chat-engine/internal/model"
	"agent-chat-engine/internal/pkg/logger"
	"agent-chat-engine/internal/repository/memory"
	"agent-chat-engine/pkg/agent"
	"agent-chat-engine/pkg/session"
	"agent-chat-engine/pkg/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamBody replays canned SSE records, then either ends the stream
// or blocks until the request context is cancelled.
type streamBody struct {
	ctx     context.Context
	reader  io.Reader
	hold    bool
	served  chan struct{}
	servedC bool
}

func (b *streamBody) Read(p []byte) (int, error) {
	n, err := b.reader.Read(p)
	if err == io.EOF && b.hold {
		if !b.servedC {
			b.servedC = true
			close(b.served)
		}
		<-b.ctx.Done()
		return 0, b.ctx.Err()
	}
	return n, err
}

func (b *streamBody) Close() error { return nil }

type fakeOpener struct {
	records []string
	hold    bool
	openErr error

	lastRequest *agent.TurnRequest
	served      chan struct{}
}

func newFakeOpener(hold bool, records ...string) *fakeOpener {
	return &fakeOpener{records: records, hold: hold, served: make(chan struct{})}
}

func (f *fakeOpener) OpenTurn(ctx context.Context, req *agent.TurnRequest) (io.ReadCloser, error) {
	f.lastRequest = req
	if f.openErr != nil {
		return nil, f.openErr
	}
	var b strings.Builder
	for _, record := range f.records {
		b.WriteString("data: " + record + "\n\n")
	}
	return &streamBody{ctx: ctx, reader: strings.NewReader(b.String()), hold: f.hold, served: f.served}, nil
}

func newTestEngine(t *testing.T, opener StreamOpener) (*Engine, *session.Store) {
	t.Helper()
	log := logger.NewNopLogger()
	store := session.NewStore(memory.NewSessionRepository("test"), nil, 20, 50, log)
	require.NoError(t, store.Init(context.Background()))
	acc := transcript.NewAccumulator(transcript.DefaultConfig(), log)
	return New(opener, acc, store, nil, log), store
}

func TestSendMessageFullTurn(t *testing.T) {
	opener := &fakeOpener{records: []string{
		`{"type":"session","sessionId":"s-1"}`,
		`{"type":"status","status":"thinking..."}`,
		`{"type":"text","text":"Revenue grew 12%."}`,
		`[DONE]`,
	}}
	eng, store := newTestEngine(t, opener)

	messages, err := eng.SendMessage(context.Background(), "How did we do?")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, "How did we do?", messages[0].Content)
	assert.Equal(t, "Revenue grew 12%.", messages[1].Content)
	assert.Equal(t, "s-1", eng.SessionID())

	sessions := store.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-1", sessions[0].Id)
	assert.False(t, eng.Busy())
}

func TestSendMessageRequestShape(t *testing.T) {
	opener := &fakeOpener{records: []string{`{"type":"session","sessionId":"s-1"}`}}
	eng, _ := newTestEngine(t, opener)

	_, err := eng.SendMessage(context.Background(), "first")
	require.NoError(t, err)
	require.NotNil(t, opener.lastRequest)
	assert.Nil(t, opener.lastRequest.SessionID, "first turn must send null sessionId")
	assert.Empty(t, opener.lastRequest.History)

	_, err = eng.SendMessage(context.Background(), "second")
	require.NoError(t, err)
	require.NotNil(t, opener.lastRequest.SessionID)
	assert.Equal(t, "s-1", *opener.lastRequest.SessionID)
	assert.NotEmpty(t, opener.lastRequest.History)
}

func TestSendMessageEmptyRejected(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeOpener{})

	_, err := eng.SendMessage(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendMessageBlockedWhileUploading(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeOpener{})

	eng.SetUploading(true)
	_, err := eng.SendMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrUploadInProgress)

	eng.SetUploading(false)
}

func TestSendMessageBusyRejection(t *testing.T) {
	opener := newFakeOpener(true, `{"type":"text","text":"partial"}`)
	eng, _ := newTestEngine(t, opener)

	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.SendMessage(context.Background(), "long running")
	}()

	<-opener.served

	_, err := eng.SendMessage(context.Background(), "impatient")
	assert.ErrorIs(t, err, ErrTurnInProgress)

	eng.Abort()
	<-done
}

func TestTransportFailureResolvesTerminally(t *testing.T) {
	opener := &fakeOpener{openErr: errors.New("dial tcp: refused")}
	eng, _ := newTestEngine(t, opener)

	messages, err := eng.SendMessage(context.Background(), "hello")
	require.NoError(t, err, "transport failures must not escape")
	require.Len(t, messages, 2)
	assert.Equal(t, transcript.ErrTransportContent, messages[1].Content)
	assert.False(t, eng.Busy())
}

func TestErrorEnvelopeEndsTurn(t *testing.T) {
	opener := &fakeOpener{records: []string{
		`{"type":"session","sessionId":"s-1"}`,
		`{"type":"text","text":"partial"}`,
		`{"type":"error","error":"model overloaded","rawError":"503"}`,
		`{"type":"text","text":"must never arrive"}`,
	}}
	eng, _ := newTestEngine(t, opener)

	messages, err := eng.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, transcript.ErrBackendContent, messages[1].Content)
}

func TestAbortKeepsPartialContent(t *testing.T) {
	opener := newFakeOpener(true,
		`{"type":"session","sessionId":"s-1"}`,
		`{"type":"text","text":"partial answer"}`,
	)
	eng, store := newTestEngine(t, opener)

	done := make(chan []*model.Message, 1)
	go func() {
		messages, _ := eng.SendMessage(context.Background(), "hello")
		done <- messages
	}()

	<-opener.served
	eng.Abort()

	messages := <-done
	require.Len(t, messages, 2)
	assert.Equal(t, "partial answer", messages[1].Content)
	assert.True(t, eng.Incomplete())

	// Partial transcript still persisted.
	sessions := store.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "partial answer", sessions[0].Messages[1].Content)
}

func TestDocumentUpdateRoutedToSink(t *testing.T) {
	opener := &fakeOpener{records: []string{
		`{"type":"session","sessionId":"s-1"}`,
		`{"type":"document_update","content":"# Draft v1"}`,
		`{"type":"text","text":"Updated the draft."}`,
	}}
	eng, _ := newTestEngine(t, opener)

	var got []string
	eng.SetDocumentSink(func(content string) { got = append(got, content) })

	messages, err := eng.SendMessage(context.Background(), "write a draft")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "# Draft v1", got[0])
	assert.Equal(t, "Updated the draft.", messages[1].Content)
}

func TestResumeAndNewChat(t *testing.T) {
	opener := &fakeOpener{records: []string{
		`{"type":"session","sessionId":"s-1"}`,
		`{"type":"text","text":"answer"}`,
	}}
	eng, _ := newTestEngine(t, opener)

	_, err := eng.SendMessage(context.Background(), "question")
	require.NoError(t, err)

	require.NoError(t, eng.NewChat())
	assert.Empty(t, eng.SessionID())
	assert.Empty(t, eng.Messages())

	ok, err := eng.Resume(context.Background(), "s-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s-1", eng.SessionID())
	assert.Len(t, eng.Messages(), 2)

	ok, err = eng.Resume(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionSwitchRejectedMidTurn(t *testing.T) {
	opener := newFakeOpener(true,
		`{"type":"session","sessionId":"s-1"}`,
		`{"type":"text","text":"partial answer"}`,
	)
	eng, _ := newTestEngine(t, opener)

	done := make(chan []*model.Message, 1)
	go func() {
		messages, _ := eng.SendMessage(context.Background(), "hello")
		done <- messages
	}()

	<-opener.served

	assert.ErrorIs(t, eng.NewChat(), ErrTurnInProgress)

	_, err := eng.Resume(context.Background(), "s-1")
	assert.ErrorIs(t, err, ErrTurnInProgress)

	assert.ErrorIs(t, eng.DeleteSession(context.Background(), "s-1"), ErrTurnInProgress)

	eng.Abort()
	messages := <-done
	require.Len(t, messages, 2)
	assert.Equal(t, "partial answer", messages[1].Content)
}

func TestSubmitAnswersSendsRenderedTurn(t *testing.T) {
	opener := &fakeOpener{records: []string{
		`{"type":"session","sessionId":"s-1"}`,
		`{"type":"ask_user_question","toolUseId":"tu-1","questions":[{"question":"Which region?","header":"Region","options":[{"label":"EMEA"}]}]}`,
	}}
	eng, _ := newTestEngine(t, opener)

	_, err := eng.SendMessage(context.Background(), "analyze sales")
	require.NoError(t, err)

	assert.False(t, eng.CanSubmitAnswers(1))
	eng.SelectOption(1, 0, "EMEA")
	require.True(t, eng.CanSubmitAnswers(1))

	opener.records = []string{`{"type":"text","text":"EMEA it is."}`}
	messages, err := eng.SubmitAnswers(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, messages, 4)
	assert.Equal(t, "Region: EMEA", messages[2].Content)
	assert.Nil(t, messages[1].PendingQuestion)
}

func TestSubmitAnswersBlockedWithoutSelections(t *testing.T) {
	opener := &fakeOpener{records: []string{
		`{"type":"ask_user_question","toolUseId":"tu-1","questions":[{"question":"Which?","header":"Region","options":[{"label":"EMEA"}]}]}`,
	}}
	eng, _ := newTestEngine(t, opener)

	_, err := eng.SendMessage(context.Background(), "analyze sales")
	require.NoError(t, err)

	_, err = eng.SubmitAnswers(context.Background(), 1)
	assert.ErrorIs(t, err, transcript.ErrSubmissionBlocked)
}

func TestSubmitAnswersRejectionKeepsQuestion(t *testing.T) {
	opener := &fakeOpener{records: []string{
		`{"type":"session","sessionId":"s-1"}`,
		`{"type":"ask_user_question","toolUseId":"tu-1","questions":[{"question":"Which region?","header":"Region","options":[{"label":"EMEA"}]}]}`,
	}}
	eng, _ := newTestEngine(t, opener)

	_, err := eng.SendMessage(context.Background(), "analyze sales")
	require.NoError(t, err)

	eng.SelectOption(1, 0, "EMEA")
	require.True(t, eng.CanSubmitAnswers(1))

	eng.SetUploading(true)
	_, err = eng.SubmitAnswers(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUploadInProgress)

	// The question and the selections survive the rejection.
	require.NotNil(t, eng.Messages()[1].PendingQuestion)
	require.True(t, eng.CanSubmitAnswers(1))

	eng.SetUploading(false)
	opener.records = []string{`{"type":"text","text":"EMEA it is."}`}
	messages, err := eng.SubmitAnswers(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Region: EMEA", messages[2].Content)
}
