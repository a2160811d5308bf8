// Package session implements the conversation practice session: a state
// machine over an ordered transcript of messages with structured grammar
// corrections, plus the analytics derived from a finished session.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrorKind classifies a grammar correction. Values outside the known set are
// preserved as-is so unclassified backend types survive aggregation.
type ErrorKind string

const (
	ErrorVerb        ErrorKind = "verb"
	ErrorArticle     ErrorKind = "article"
	ErrorPreposition ErrorKind = "preposition"
	ErrorSpelling    ErrorKind = "spelling"
	ErrorOther       ErrorKind = "other"
)

// Severity grades how serious a correction is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a recognized severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Correction is a structured annotation attached to a bot reply describing a
// grammar or spelling issue found in the preceding user message.
type Correction struct {
	OriginalText  string    `json:"original_text"`
	CorrectedText string    `json:"corrected_text"`
	ErrorType     ErrorKind `json:"error_type"`
	Severity      Severity  `json:"severity"`
	Explanation   string    `json:"explanation"`
}

// PronunciationFeedback is the scored result of a pronunciation practice
// attempt, carried by a bot message in the transcript.
type PronunciationFeedback struct {
	Target        string `json:"target"`
	Transcription string `json:"transcription"`
	AccuracyScore int    `json:"accuracy_score"`
	Feedback      string `json:"feedback"`
}

// Message is one transcript entry. Messages are immutable once appended;
// insertion order is the chronological conversation order.
type Message struct {
	ID            string                 `json:"id"`
	Text          string                 `json:"text"`
	IsUser        bool                   `json:"is_user"`
	Corrections   []Correction           `json:"corrections,omitempty"`
	Pronunciation *PronunciationFeedback `json:"pronunciation,omitempty"`
	WordCount     int                    `json:"word_count"`
	CreatedAt     time.Time              `json:"created_at"`
}

func newUserMessage(text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Text:      text,
		IsUser:    true,
		WordCount: countWords(text),
		CreatedAt: time.Now(),
	}
}

func newBotMessage(text string, corrections []Correction) Message {
	return Message{
		ID:          uuid.NewString(),
		Text:        text,
		Corrections: corrections,
		WordCount:   countWords(text),
		CreatedAt:   time.Now(),
	}
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
