package transcript

import (
	"encoding/json"
	"strings"

	"agent-chat-engine/internal/model"
	"agent-chat-engine/internal/pkg/logger"
	"agent-chat-engine/pkg/stream"
)

// User-facing terminal strings. The transport and backend error paths
// are deliberately distinguishable.
const (
	ErrBackendContent   = "Sorry, an error occurred. Please try again."
	ErrTransportContent = "Sorry, I couldn't connect to the server. Please try again."
)

// Config holds the merge heuristics. They encode tolerance for an
// upstream system's nondeterminism, not a protocol rule, so they are
// tunable rather than hardcoded.
type Config struct {
	// DedupMinChars: both the incoming text (trimmed) and the text
	// accumulated this turn must exceed this length before near-duplicate
	// suppression applies.
	DedupMinChars int

	// DedupProbeLen: length of the incoming text's prefix probed against
	// the accumulated buffer.
	DedupProbeLen int

	// ParagraphBreak is prepended to text that follows an interleaved
	// non-text event.
	ParagraphBreak string
}

func DefaultConfig() Config {
	return Config{DedupMinChars: 50, DedupProbeLen: 80, ParagraphBreak: "\n\n"}
}

// Accumulator owns the ordered message list and reduces envelopes onto
// it. It is not reentrant across turns: exactly one turn feeds it at a
// time, and per-turn state is reset by BeginTurn.
type Accumulator struct {
	cfg Config
	log logger.ILogger

	sessionID string
	messages  []*model.Message

	// Per-turn state.
	probe            strings.Builder
	sawNonText       bool
	questionReceived bool
	statusText       string
	steps            []string
	terminal         bool
	incomplete       bool
}

func NewAccumulator(cfg Config, log logger.ILogger) *Accumulator {
	return &Accumulator{cfg: cfg, log: log}
}

// Reset clears the transcript for a new conversation.
func (a *Accumulator) Reset() {
	a.sessionID = ""
	a.messages = nil
	a.resetTurnState()
}

// Load replaces the transcript with a stored one (session resume).
func (a *Accumulator) Load(sessionID string, messages []*model.Message) {
	a.sessionID = sessionID
	a.messages = messages
	a.resetTurnState()
}

func (a *Accumulator) resetTurnState() {
	a.probe.Reset()
	a.sawNonText = false
	a.questionReceived = false
	a.statusText = ""
	a.steps = nil
	a.terminal = false
	a.incomplete = false
}

func (a *Accumulator) Messages() []*model.Message { return a.messages }
func (a *Accumulator) SessionID() string          { return a.sessionID }
func (a *Accumulator) Status() string             { return a.statusText }
func (a *Accumulator) Steps() []string            { return a.steps }

// Terminal reports whether an error envelope ended the turn early.
func (a *Accumulator) Terminal() bool { return a.terminal }

// Incomplete reports whether the last turn was aborted mid-stream.
func (a *Accumulator) Incomplete() bool { return a.incomplete }

// BeginTurn resets per-turn state and creates the optimistic user
// message plus the empty assistant message the stream merges into.
// rawInput is the provisional request payload; the backend may later
// replace it via an input envelope.
func (a *Accumulator) BeginTurn(content string, rawInput json.RawMessage) {
	a.resetTurnState()
	a.messages = append(a.messages, model.NewUserMessage(content, rawInput))
	a.messages = append(a.messages, model.NewAssistantMessage())
}

// Apply reduces one envelope onto the transcript. Unknown envelope
// kinds are ignored.
func (a *Accumulator) Apply(env *stream.Envelope) {
	switch env.Type {
	case stream.EventSession:
		if env.SessionID != "" {
			a.sessionID = env.SessionID
		}
	case stream.EventStatus:
		a.statusText = env.Status
	case stream.EventThinkingStep:
		a.applyStep(env.Step)
	case stream.EventText:
		a.applyText(env)
	case stream.EventInput:
		a.enrichInput(env.RawInput)
	case stream.EventRaw:
		a.applyRaw(env.RawMessage)
	case stream.EventComplete:
		a.applyComplete(env.AllRawMessages)
	case stream.EventAskUserQuestion:
		a.applyQuestion(env)
	case stream.EventSubagentStart:
		if msg := a.currentAssistant(); msg != nil {
			applySubagentStart(msg, env.AgentType, env.Description)
		}
	case stream.EventError:
		a.applyError(env.Error, env.RawError)
	}
}

// applyStep appends a progress-log entry, suppressing consecutive
// exact duplicates.
func (a *Accumulator) applyStep(step string) {
	if step == "" {
		return
	}
	if n := len(a.steps); n > 0 && a.steps[n-1] == step {
		return
	}
	a.steps = append(a.steps, step)
}

func (a *Accumulator) applyText(env *stream.Envelope) {
	msg := a.currentAssistant()
	if msg == nil || env.Text == "" {
		return
	}

	// Content generated after a clarification request auto-resolves is
	// stale and discarded outright.
	if a.questionReceived {
		return
	}

	// The backend occasionally re-emits a reworded restatement of prior
	// content. Probe the leading chunk of the incoming text against
	// everything merged this turn and drop it on a hit.
	trimmed := strings.TrimSpace(env.Text)
	if runeLen(trimmed) > a.cfg.DedupMinChars && runeLen(a.probe.String()) > a.cfg.DedupMinChars {
		if strings.Contains(a.probe.String(), runePrefix(trimmed, a.cfg.DedupProbeLen)) {
			a.log.Debug("Accumulator", "Suppressed near-duplicate text", map[string]interface{}{
				"chars": runeLen(trimmed),
			})
			return
		}
	}

	text := env.Text
	if a.sawNonText && msg.Content != "" {
		text = a.cfg.ParagraphBreak + text
	}

	msg.Content += text
	a.probe.WriteString(env.Text)
	if env.RawMessage != nil {
		msg.RawOutput = append(msg.RawOutput, env.RawMessage)
	}

	// New content supersedes any "thinking..." indicator.
	a.statusText = ""
	a.sawNonText = false
}

func (a *Accumulator) applyRaw(raw json.RawMessage) {
	if msg := a.currentAssistant(); msg != nil && raw != nil {
		msg.RawOutput = append(msg.RawOutput, raw)
	}
	a.sawNonText = true
}

// enrichInput sets the canonical request payload on the user message
// that opened the current turn: the nearest user message before the
// active assistant message.
func (a *Accumulator) enrichInput(rawInput json.RawMessage) {
	if rawInput == nil {
		return
	}
	idx := a.currentAssistantIndex()
	for i := idx - 1; i >= 0; i-- {
		if a.messages[i].Role == model.RoleUser {
			a.messages[i].RawInput = rawInput
			return
		}
	}
}

func (a *Accumulator) applyComplete(all []json.RawMessage) {
	if all == nil {
		return
	}
	if msg := a.currentAssistant(); msg != nil {
		msg.RawOutput = all
	}
}

func (a *Accumulator) applyQuestion(env *stream.Envelope) {
	a.questionReceived = true
	if msg := a.currentAssistant(); msg != nil {
		msg.PendingQuestion = &model.PendingQuestion{
			ToolUseId: env.ToolUseID,
			Questions: env.Questions,
		}
	}
}

func (a *Accumulator) applyError(errText, rawError string) {
	if msg := a.currentAssistant(); msg != nil {
		msg.Content = ErrBackendContent
		diag, _ := json.Marshal(map[string]string{"error": errText, "rawError": rawError})
		msg.RawOutput = []json.RawMessage{diag}
	}
	a.terminal = true
}

// FailTransport resolves a failed or dropped stream request into the
// same terminal shape as a backend error envelope.
func (a *Accumulator) FailTransport(err error) {
	if msg := a.currentAssistant(); msg != nil {
		msg.Content = ErrTransportContent
		diag, _ := json.Marshal(map[string]string{"error": err.Error()})
		msg.RawOutput = []json.RawMessage{diag}
	}
	a.terminal = true
}

// AbortTurn tags the turn incomplete. Partial content accumulated so
// far stays in place; nothing is rolled back.
func (a *Accumulator) AbortTurn() {
	a.incomplete = true
	a.statusText = ""
}

// HasAssistantContent reports whether the latest assistant message
// carries any text (gates title generation).
func (a *Accumulator) HasAssistantContent() bool {
	msg := a.currentAssistant()
	return msg != nil && strings.TrimSpace(msg.Content) != ""
}

func (a *Accumulator) currentAssistantIndex() int {
	for i := len(a.messages) - 1; i >= 0; i-- {
		if a.messages[i].Role == model.RoleAssistant {
			return i
		}
	}
	return -1
}

func (a *Accumulator) currentAssistant() *model.Message {
	if i := a.currentAssistantIndex(); i >= 0 {
		return a.messages[i]
	}
	return nil
}

func runeLen(s string) int {
	return len([]rune(s))
}

func runePrefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
