// Package speech provides the external speech collaborators: transcription,
// synthesis and pronunciation analysis. The services are consumed as opaque
// contracts; failures are recovered at the component boundary.
package speech

import "context"

// Analysis is the structured result of a pronunciation analysis.
type Analysis struct {
	Transcription string `json:"transcription"`
	AccuracyScore int    `json:"accuracyScore"`
	Feedback      string `json:"feedback"`
}

// Transcriber converts a base64 audio payload into text. An empty transcript
// means "no usable transcript" and must not be processed further.
type Transcriber interface {
	Transcribe(ctx context.Context, base64Audio, mimeType string) (string, error)
}

// Synthesizer converts text into a base64 audio payload. The audio format is
// fixed at mono, 24kHz, 16-bit PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Analyzer scores a pronunciation attempt against a target phrase.
type Analyzer interface {
	Analyze(ctx context.Context, base64Audio, mimeType, targetPhrase string) (*Analysis, error)
}
