package session

import "context"

// Mode describes one conversation practice mode offered by the backend.
type Mode struct {
	ID              int      `json:"id"`
	Name            string   `json:"name"`
	Icon            string   `json:"icon"`
	Description     string   `json:"description"`
	DifficultyLevel string   `json:"difficulty_level"`
	ExamplePhrases  []string `json:"example_phrases"`
}

// TurnRequest is one user turn sent to the dialogue collaborator. SessionID
// is nil on the first turn; the remote side owns session-id assignment.
type TurnRequest struct {
	Message         string
	ModeID          *int
	SessionID       *int
	DifficultyLevel Difficulty
}

// TurnReply is the dialogue collaborator's response to one turn.
type TurnReply struct {
	Response       string
	SessionID      int
	HasCorrections bool
	Corrections    []Correction
}

// DialogueService is the external dialogue-generation collaborator.
type DialogueService interface {
	// SendTurn submits one user message and returns the bot reply with any
	// corrections found in it.
	SendTurn(ctx context.Context, req *TurnRequest) (*TurnReply, error)

	// CloseSession closes the remote session. The returned analysis may be
	// nil when the backend supplies none.
	CloseSession(ctx context.Context, sessionID int) (*Analysis, error)
}

// ActivityNotifier is the best-effort side-channel progress notification.
// Failures are logged and ignored; they never fail the primary send.
type ActivityNotifier interface {
	NotifyActivity(ctx context.Context, activityType string, amount int) error
}
