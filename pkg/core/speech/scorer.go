package speech

import (
	"context"
	"log/slog"
	"strings"

	"github.com/arami-app/practice-engine/pkg/core"
)

// Attempt is one scored pronunciation attempt. It is ephemeral and owned by
// the flow that requested it; it is never part of the session transcript.
type Attempt struct {
	TargetPhrase  string
	RawAudio      string // base64 transport payload
	Transcription string
	AccuracyScore int // clamped to [0, 100]
	Feedback      string
}

// Scorer scores a captured attempt against a target phrase by delegating to
// an external Analyzer.
type Scorer struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithScorerLogger sets the logger used for scoring diagnostics.
func WithScorerLogger(l *slog.Logger) ScorerOption {
	return func(s *Scorer) { s.logger = l }
}

// NewScorer creates a Scorer delegating to analyzer.
func NewScorer(analyzer Analyzer, opts ...ScorerOption) *Scorer {
	s := &Scorer{
		analyzer: analyzer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreAttempt returns a scored attempt, or nil (with a nil error) when the
// external analysis fails or its response is malformed. The nil result is the
// request-level failure signal and is distinct from a valid score of 0.
// Invalid inputs are rejected with a validation error before any network call.
func (s *Scorer) ScoreAttempt(ctx context.Context, targetPhrase, payload, mimeType string) (*Attempt, error) {
	if strings.TrimSpace(targetPhrase) == "" {
		return nil, core.NewValidationError("target phrase is empty", "targetPhrase")
	}
	if payload == "" {
		return nil, core.NewValidationError("audio payload is empty", "payload")
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	analysis, err := s.analyzer.Analyze(ctx, payload, mimeType, targetPhrase)
	if err != nil || analysis == nil {
		s.logger.Warn("pronunciation analysis unavailable", "target", targetPhrase, "error", err)
		return nil, nil
	}

	return &Attempt{
		TargetPhrase:  targetPhrase,
		RawAudio:      payload,
		Transcription: analysis.Transcription,
		AccuracyScore: clampScore(analysis.AccuracyScore),
		Feedback:      analysis.Feedback,
	}, nil
}

// clampScore bounds an upstream score to the closed range [0, 100].
func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
