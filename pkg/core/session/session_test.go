package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/arami-app/practice-engine/pkg/core"
)

// fakeDialogue scripts the dialogue collaborator.
type fakeDialogue struct {
	mu        sync.Mutex
	turnCalls int
	closes    []int
	reply     *TurnReply
	turnErr   error
	closed    *Analysis
	closeErr  error

	// blockUntil, when non-nil, makes SendTurn wait so tests can observe the
	// in-flight guard; turnStarted signals that the wait has begun.
	blockUntil  chan struct{}
	turnStarted chan struct{}
}

func (f *fakeDialogue) SendTurn(ctx context.Context, req *TurnRequest) (*TurnReply, error) {
	f.mu.Lock()
	f.turnCalls++
	block := f.blockUntil
	started := f.turnStarted
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	return f.reply, nil
}

func (f *fakeDialogue) CloseSession(ctx context.Context, sessionID int) (*Analysis, error) {
	f.mu.Lock()
	f.closes = append(f.closes, sessionID)
	f.mu.Unlock()
	return f.closed, f.closeErr
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeNotifier) NotifyActivity(ctx context.Context, activityType string, amount int) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.err
}

func activeSession(t *testing.T, dialogue DialogueService, opts ...Option) *Session {
	t.Helper()
	s := New(dialogue, opts...)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s
}

func TestSession_StartSeedsGreeting(t *testing.T) {
	s := activeSession(t, &fakeDialogue{})

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("transcript length = %d, want 1", len(msgs))
	}
	if msgs[0].IsUser {
		t.Error("greeting must be bot-authored")
	}
	if len(msgs[0].Corrections) != 0 {
		t.Error("greeting must carry no corrections")
	}
	if s.State() != StateActive {
		t.Errorf("state = %v, want active", s.State())
	}
}

func TestSession_SelectionOnlyBeforeStart(t *testing.T) {
	s := New(&fakeDialogue{})

	if err := s.SelectDifficulty(DifficultyAdvanced); err != nil {
		t.Fatalf("SelectDifficulty() error = %v", err)
	}
	if err := s.SelectMode(&Mode{ID: 3, Name: "Mercado"}); err != nil {
		t.Fatalf("SelectMode() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := s.SelectDifficulty(DifficultyBeginner); core.TypeOf(err) != core.ErrState {
		t.Errorf("SelectDifficulty after Start = %v, want state_error", err)
	}
	if err := s.SelectMode(nil); core.TypeOf(err) != core.ErrState {
		t.Errorf("SelectMode after Start = %v, want state_error", err)
	}
}

func TestSession_SendMessage_AppendsUserThenBot(t *testing.T) {
	dialogue := &fakeDialogue{reply: &TurnReply{
		Response:       "¡Iporãite! Che aĩ porã avei.",
		SessionID:      42,
		HasCorrections: true,
		Corrections: []Correction{{
			OriginalText:  "porã",
			CorrectedText: "iporã",
			ErrorType:     ErrorSpelling,
			Severity:      SeverityLow,
		}},
	}}
	s := activeSession(t, dialogue)
	before := len(s.Messages())

	exchange, err := s.SendMessage(context.Background(), "Che aĩ porã")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != before+2 {
		t.Fatalf("transcript grew by %d, want 2", len(msgs)-before)
	}
	user, bot := msgs[len(msgs)-2], msgs[len(msgs)-1]
	if !user.IsUser || bot.IsUser {
		t.Error("expected user message then bot message")
	}
	if len(user.Corrections) != 0 {
		t.Error("corrections must never attach to user messages")
	}
	if len(bot.Corrections) != 1 || bot.Corrections[0].CorrectedText != "iporã" {
		t.Errorf("bot corrections = %+v", bot.Corrections)
	}
	if exchange.User.ID != user.ID || exchange.Bot.ID != bot.ID {
		t.Error("exchange does not match transcript tail")
	}
	if s.RemoteID() == nil || *s.RemoteID() != 42 {
		t.Errorf("remote id = %v, want 42", s.RemoteID())
	}
	if user.WordCount != 3 {
		t.Errorf("user word count = %d, want 3", user.WordCount)
	}
}

func TestSession_SendMessage_EmptyTextIsNoOp(t *testing.T) {
	dialogue := &fakeDialogue{reply: &TurnReply{Response: "ok", SessionID: 1}}
	s := activeSession(t, dialogue)
	before := len(s.Messages())

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := s.SendMessage(context.Background(), text)
		if core.TypeOf(err) != core.ErrValidation {
			t.Errorf("SendMessage(%q) = %v, want validation_error", text, err)
		}
	}

	if got := len(s.Messages()); got != before {
		t.Errorf("transcript length = %d, want unchanged %d", got, before)
	}
	if dialogue.turnCalls != 0 {
		t.Errorf("dialogue called %d times, want 0", dialogue.turnCalls)
	}
}

func TestSession_SendMessage_FailureAppendsFallback(t *testing.T) {
	dialogue := &fakeDialogue{turnErr: errors.New("network down")}
	s := activeSession(t, dialogue)
	before := len(s.Messages())

	_, err := s.SendMessage(context.Background(), "Hola")
	if err == nil {
		t.Fatal("expected error from failed send")
	}

	msgs := s.Messages()
	if len(msgs) != before+2 {
		t.Fatalf("transcript grew by %d, want 2 (user + fallback)", len(msgs)-before)
	}
	user, fallback := msgs[len(msgs)-2], msgs[len(msgs)-1]
	if !user.IsUser || user.Text != "Hola" {
		t.Error("user message must remain in the transcript")
	}
	if fallback.IsUser || len(fallback.Corrections) != 0 {
		t.Error("fallback must be a bot message with empty corrections")
	}
	if s.RemoteID() != nil {
		t.Error("failed first send must not assign a remote id")
	}
}

func TestSession_SendMessage_SerializedWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	dialogue := &fakeDialogue{
		reply:       &TurnReply{Response: "ok", SessionID: 7},
		blockUntil:  block,
		turnStarted: make(chan struct{}, 1),
	}
	s := activeSession(t, dialogue)

	done := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(context.Background(), "primer mensaje")
		done <- err
	}()

	// Wait for the first send to be in flight.
	<-dialogue.turnStarted

	_, err := s.SendMessage(context.Background(), "segundo mensaje")
	if core.TypeOf(err) != core.ErrState {
		t.Errorf("concurrent SendMessage = %v, want state_error", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	// Only the first send's messages may be in the transcript.
	msgs := s.Messages()
	if len(msgs) != 3 { // greeting + user + bot
		t.Errorf("transcript length = %d, want 3", len(msgs))
	}
	if msgs[1].Text != "primer mensaje" {
		t.Errorf("transcript order broken: %q", msgs[1].Text)
	}
}

func TestSession_End_RejectedWhileSendInFlight(t *testing.T) {
	block := make(chan struct{})
	dialogue := &fakeDialogue{
		reply:       &TurnReply{Response: "ok", SessionID: 7},
		blockUntil:  block,
		turnStarted: make(chan struct{}, 1),
	}
	s := activeSession(t, dialogue)

	done := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(context.Background(), "primer mensaje")
		done <- err
	}()
	<-dialogue.turnStarted

	// Ending mid-send must fail instead of letting the pending reply land in
	// a reset or ended session.
	if _, err := s.End(context.Background()); core.TypeOf(err) != core.ErrState {
		t.Errorf("End() during in-flight send = %v, want state_error", err)
	}
	if s.State() != StateActive {
		t.Errorf("state = %v, want still active", s.State())
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 3 { // greeting + user + bot
		t.Fatalf("transcript length = %d, want 3", len(msgs))
	}
	if s.RemoteID() == nil || *s.RemoteID() != 7 {
		t.Errorf("remote id = %v, want 7", s.RemoteID())
	}

	// With the send resolved the session ends normally.
	if _, err := s.End(context.Background()); err != nil {
		t.Fatalf("End() after send resolved = %v", err)
	}
	if s.State() != StateEnded {
		t.Errorf("state = %v, want ended", s.State())
	}
}

func TestSession_NotifierFailureDoesNotFailSend(t *testing.T) {
	dialogue := &fakeDialogue{reply: &TurnReply{Response: "ok", SessionID: 3}}
	notifier := &fakeNotifier{err: errors.New("challenge service down")}
	s := activeSession(t, dialogue, WithNotifier(notifier))

	_, err := s.SendMessage(context.Background(), "Mba'éichapa")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if notifier.calls != 1 {
		t.Errorf("notifier calls = %d, want 1", notifier.calls)
	}
}

func TestSession_End_NoMessagesIsLocalReset(t *testing.T) {
	dialogue := &fakeDialogue{}
	s := activeSession(t, dialogue)

	analysis, err := s.End(context.Background())
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if analysis != nil {
		t.Error("local reset must return no analysis")
	}
	if len(dialogue.closes) != 0 {
		t.Error("local reset must not call the backend")
	}
	if s.State() != StateSelecting {
		t.Errorf("state = %v, want selecting", s.State())
	}
	if len(s.Messages()) != 0 {
		t.Error("local reset must clear the transcript")
	}
}

func TestSession_End_ClosesRemoteSession(t *testing.T) {
	remote := &Analysis{AccuracyRate: 91, Performance: PerformanceExcellent}
	dialogue := &fakeDialogue{
		reply:  &TurnReply{Response: "ok", SessionID: 99},
		closed: remote,
	}
	s := activeSession(t, dialogue)

	if _, err := s.SendMessage(context.Background(), "Che aĩ porã"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	analysis, err := s.End(context.Background())
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if analysis != remote {
		t.Error("remote analysis must win when present")
	}
	if len(dialogue.closes) != 1 || dialogue.closes[0] != 99 {
		t.Errorf("closes = %v, want [99]", dialogue.closes)
	}
	if s.State() != StateEnded {
		t.Errorf("state = %v, want ended", s.State())
	}

	if _, err := s.SendMessage(context.Background(), "tarde"); core.TypeOf(err) != core.ErrState {
		t.Errorf("SendMessage after End = %v, want state_error", err)
	}
	if _, err := s.End(context.Background()); core.TypeOf(err) != core.ErrState {
		t.Errorf("second End = %v, want state_error", err)
	}
}

func TestSession_End_LocalAnalysisWhenCloseFails(t *testing.T) {
	dialogue := &fakeDialogue{
		reply:    &TurnReply{Response: "ok", SessionID: 5},
		closeErr: errors.New("backend gone"),
	}
	s := activeSession(t, dialogue)

	if _, err := s.SendMessage(context.Background(), "Che aĩ porã ha vy'a"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	analysis, err := s.End(context.Background())
	if err != nil {
		t.Fatalf("End() must recover close failures, got %v", err)
	}
	if analysis == nil {
		t.Fatal("expected locally aggregated analysis")
	}
	if analysis.MessagesSent != 1 {
		t.Errorf("messages sent = %d, want 1", analysis.MessagesSent)
	}
}

func TestSession_AddPronunciationFeedback(t *testing.T) {
	dialogue := &fakeDialogue{}
	s := activeSession(t, dialogue)
	before := len(s.Messages())

	fb := PronunciationFeedback{
		Target:        "Mba'éichapa",
		Transcription: "Mbaeichapa",
		AccuracyScore: 82,
		Feedback:      "Very close.",
	}
	if err := s.AddPronunciationFeedback(fb); err != nil {
		t.Fatalf("AddPronunciationFeedback() error = %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != before+1 {
		t.Fatalf("transcript grew by %d, want exactly 1", len(msgs)-before)
	}
	got := msgs[len(msgs)-1]
	if got.IsUser {
		t.Error("feedback message must be bot-authored")
	}
	if got.Pronunciation == nil || got.Pronunciation.AccuracyScore != 82 {
		t.Errorf("pronunciation = %+v", got.Pronunciation)
	}
	if dialogue.turnCalls != 0 {
		t.Error("no dialogue reply may be generated for a pronunciation attempt")
	}
}
