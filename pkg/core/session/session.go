package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/arami-app/practice-engine/pkg/core"
)

// Difficulty is the adaptive difficulty level of a session.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Valid reports whether d is a recognized difficulty level.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// State is the lifecycle state of a Session.
type State string

const (
	StateSelecting State = "selecting"
	StateActive    State = "active"
	StateEnded     State = "ended"
)

const (
	greetingWithMode = "¡Mba'éichapa! Soy Arami. Vamos a practicar en el modo seleccionado. ¿En qué puedo ayudarte hoy? 😊"
	greetingDefault  = "¡Mba'éichapa! Soy Arami, tu tutora de Guaraní. ¿En qué puedo ayudarte hoy? 😊"
	fallbackReply    = "Lo siento, tuve un problema para procesar tu mensaje."

	activityChatbot = "CHATBOT"
)

// Exchange is the pair of messages appended by one successful send.
type Exchange struct {
	User Message
	Bot  Message
}

// Session is one bounded practice dialogue, from mode selection to explicit
// termination. Each session is independently constructed and never shared
// across unrelated conversations. The transcript is mutated only by the
// session owner; sends are strictly serialized.
type Session struct {
	dialogue DialogueService
	notifier ActivityNotifier
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	mode       *Mode
	difficulty Difficulty
	remoteID   *int
	startedAt  time.Time
	endedAt    time.Time
	messages   []Message
	inFlight   bool
}

// Option configures a Session.
type Option func(*Session)

// WithNotifier attaches the best-effort activity notifier.
func WithNotifier(n ActivityNotifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithLogger sets the logger used for session diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a session in the selecting state.
func New(dialogue DialogueService, opts ...Option) *Session {
	s := &Session{
		dialogue:   dialogue,
		logger:     slog.Default(),
		state:      StateSelecting,
		difficulty: DifficultyBeginner,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectMode chooses a conversation mode. A nil mode means free conversation.
// Allowed only while selecting.
func (s *Session) SelectMode(mode *Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSelecting {
		return core.NewStateError("mode can only be chosen before the session starts")
	}
	s.mode = mode
	return nil
}

// SelectDifficulty chooses the difficulty level. Allowed only while selecting.
func (s *Session) SelectDifficulty(d Difficulty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSelecting {
		return core.NewStateError("difficulty can only be chosen before the session starts")
	}
	if !d.Valid() {
		return core.NewValidationError("unknown difficulty level", "difficulty")
	}
	s.difficulty = d
	return nil
}

// Start transitions selecting → active and seeds the transcript with the
// greeting message.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSelecting {
		return core.NewStateError("session already started")
	}
	s.state = StateActive
	s.startedAt = time.Now()

	greeting := greetingDefault
	if s.mode != nil {
		greeting = greetingWithMode
	}
	s.messages = append(s.messages, newBotMessage(greeting, nil))
	return nil
}

// SendMessage submits one user turn. On success exactly one user message and
// one bot message are appended, in that order. On a collaborator failure the
// user message remains and a single fallback bot message is appended; the
// error is returned to the caller. Empty or whitespace-only text is a no-op.
// Sends are strictly sequential: a second call while one is pending is
// rejected so transcript order matches conversational order.
func (s *Session) SendMessage(ctx context.Context, text string) (*Exchange, error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return nil, core.NewStateError("session is not active")
	}
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return nil, core.NewValidationError("message text is empty", "text")
	}
	if s.inFlight {
		s.mu.Unlock()
		return nil, core.NewStateError("a send is already in flight for this session")
	}
	s.inFlight = true

	user := newUserMessage(text)
	s.messages = append(s.messages, user)

	req := &TurnRequest{
		Message:         text,
		SessionID:       s.remoteID,
		DifficultyLevel: s.difficulty,
	}
	if s.mode != nil {
		id := s.mode.ID
		req.ModeID = &id
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	reply, err := s.dialogue.SendTurn(ctx, req)
	if err != nil || reply == nil {
		s.mu.Lock()
		if s.state == StateActive {
			s.messages = append(s.messages, newBotMessage(fallbackReply, nil))
		}
		s.mu.Unlock()
		if err == nil {
			err = core.NewTransportError("dialogue service returned no reply", nil)
		}
		return nil, err
	}

	var corrections []Correction
	if reply.HasCorrections {
		corrections = reply.Corrections
	}
	bot := newBotMessage(reply.Response, corrections)

	// End rejects while a send is in flight, so the session is still active
	// here; the re-check keeps a late reply from mutating an ended or reset
	// session regardless.
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return nil, core.NewStateError("session ended while the send was in flight")
	}
	if s.remoteID == nil {
		id := reply.SessionID
		s.remoteID = &id
	}
	s.messages = append(s.messages, bot)
	s.mu.Unlock()

	s.notifyActivity(ctx)

	return &Exchange{User: user, Bot: bot}, nil
}

// notifyActivity fires the side-channel progress update. Failures never fail
// the primary send.
func (s *Session) notifyActivity(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyActivity(ctx, activityChatbot, 1); err != nil {
		s.logger.Warn("activity notification failed", "error", err)
	}
}

// AddPronunciationFeedback appends a bot message carrying the scored result
// of a pronunciation attempt. No dialogue reply is generated for it.
func (s *Session) AddPronunciationFeedback(fb PronunciationFeedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return core.NewStateError("session is not active")
	}
	msg := newBotMessage("", nil)
	msg.Pronunciation = &fb
	s.messages = append(s.messages, msg)
	return nil
}

// End terminates the session. When no remote session id exists (zero messages
// were ever sent) it is a pure local reset back to selecting: no external
// call, no analysis. Otherwise the remote session is closed and the analysis
// summary is returned; if the close fails or returns no summary, a locally
// aggregated summary is substituted. A pending send must finish first: the
// transcript is immutable once the session has ended.
func (s *Session) End(ctx context.Context) (*Analysis, error) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return nil, core.NewStateError("session already ended")
	}
	if s.inFlight {
		s.mu.Unlock()
		return nil, core.NewStateError("a send is still in flight for this session")
	}

	if s.remoteID == nil {
		s.state = StateSelecting
		s.mode = nil
		s.messages = nil
		s.startedAt = time.Time{}
		s.mu.Unlock()
		return nil, nil
	}

	id := *s.remoteID
	s.state = StateEnded
	s.endedAt = time.Now()
	s.mu.Unlock()

	remote, err := s.dialogue.CloseSession(ctx, id)
	if err != nil {
		s.logger.Warn("remote session close failed, using local analysis", "session_id", id, "error", err)
	}

	local := Summarize(s)
	if remote != nil {
		return remote, nil
	}
	return local, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the selected mode, or nil for free conversation.
func (s *Session) Mode() *Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Difficulty returns the selected difficulty level.
func (s *Session) Difficulty() Difficulty {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.difficulty
}

// RemoteID returns the backend-assigned session id, or nil before the first
// successful send.
func (s *Session) RemoteID() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

// Messages returns a copy of the transcript in chronological order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
