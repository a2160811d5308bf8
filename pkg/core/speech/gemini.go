package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/arami-app/practice-engine/pkg/core"
)

const (
	// DefaultTextModel handles transcription and pronunciation analysis.
	DefaultTextModel = "gemini-2.5-flash"

	// DefaultTTSModel generates spoken replies.
	DefaultTTSModel = "gemini-2.5-flash-preview-tts"

	// DefaultVoice is the prebuilt voice used for synthesis.
	DefaultVoice = "Kore"
)

// GeminiProvider implements Transcriber, Synthesizer and Analyzer on top of
// the Gemini API.
type GeminiProvider struct {
	client    *genai.Client
	textModel string
	ttsModel  string
	voice     string
	logger    *slog.Logger
}

// GeminiOption configures a GeminiProvider.
type GeminiOption func(*GeminiProvider)

// WithTextModel overrides the transcription/analysis model.
func WithTextModel(model string) GeminiOption {
	return func(p *GeminiProvider) { p.textModel = model }
}

// WithTTSModel overrides the synthesis model.
func WithTTSModel(model string) GeminiOption {
	return func(p *GeminiProvider) { p.ttsModel = model }
}

// WithVoice overrides the prebuilt synthesis voice.
func WithVoice(voice string) GeminiOption {
	return func(p *GeminiProvider) { p.voice = voice }
}

// WithGeminiLogger sets the logger used for provider diagnostics.
func WithGeminiLogger(l *slog.Logger) GeminiOption {
	return func(p *GeminiProvider) { p.logger = l }
}

// NewGeminiProvider creates a provider authenticated with the given API key.
func NewGeminiProvider(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewTransportError("creating Gemini client", err)
	}

	p := &GeminiProvider{
		client:    client,
		textModel: DefaultTextModel,
		ttsModel:  DefaultTTSModel,
		voice:     DefaultVoice,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Transcribe converts spoken Spanish or Guaraní audio into text. An empty
// result means the audio produced no usable transcript.
func (p *GeminiProvider) Transcribe(ctx context.Context, base64Audio, mimeType string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(base64Audio)
	if err != nil {
		return "", core.NewDecodeError("audio payload is not valid base64", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText("Transcribe the following audio, which is a person speaking in Spanish or Guaraní."),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.textModel, contents, nil)
	if err != nil {
		return "", core.NewTransportError("transcription request failed", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Synthesize generates spoken audio for text and returns it as a base64
// payload of mono 24kHz PCM16.
func (p *GeminiProvider) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", core.NewValidationError("synthesis text is empty", "text")
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: p.voice},
			},
		},
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.ttsModel, contents, config)
	if err != nil {
		return "", core.NewTransportError("speech synthesis failed", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return base64.StdEncoding.EncodeToString(part.InlineData.Data), nil
			}
		}
	}
	return "", core.NewTransportError("synthesis response contained no audio", nil)
}

// Analyze scores a pronunciation attempt against targetPhrase using a JSON
// response schema so the reply is structurally constrained.
func (p *GeminiProvider) Analyze(ctx context.Context, base64Audio, mimeType, targetPhrase string) (*Analysis, error) {
	data, err := base64.StdEncoding.DecodeString(base64Audio)
	if err != nil {
		return nil, core.NewDecodeError("audio payload is not valid base64", err)
	}

	prompt := fmt.Sprintf(`You are a Guaraní language pronunciation coach. A user is trying to pronounce the phrase: %q.
The provided audio is their attempt.
Analyze their pronunciation and provide a response in JSON format.
The JSON object must contain:
1. "transcription": What you heard in the audio.
2. "accuracyScore": An integer score from 0 to 100 representing how accurately the user pronounced the target phrase.
3. "feedback": Constructive, specific, and encouraging feedback on their pronunciation. Keep it concise.`, targetPhrase)

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"transcription": {Type: genai.TypeString},
				"accuracyScore": {Type: genai.TypeNumber},
				"feedback":      {Type: genai.TypeString},
			},
			Required: []string{"transcription", "accuracyScore", "feedback"},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.textModel, contents, config)
	if err != nil {
		return nil, core.NewTransportError("pronunciation analysis failed", err)
	}

	analysis, err := parseAnalysisJSON(resp.Text())
	if err != nil {
		p.logger.Warn("malformed pronunciation analysis", "error", err)
		return nil, err
	}
	return analysis, nil
}

// parseAnalysisJSON validates the analysis payload at the collaborator
// boundary; malformed payloads are transport errors, never trusted.
func parseAnalysisJSON(raw string) (*Analysis, error) {
	var wire struct {
		Transcription *string  `json:"transcription"`
		AccuracyScore *float64 `json:"accuracyScore"`
		Feedback      *string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &wire); err != nil {
		return nil, core.NewTransportError("analysis response is not valid JSON", err)
	}
	if wire.Transcription == nil || wire.AccuracyScore == nil || wire.Feedback == nil {
		return nil, core.NewTransportError("analysis response is missing required fields", nil)
	}
	return &Analysis{
		Transcription: *wire.Transcription,
		AccuracyScore: int(math.Round(*wire.AccuracyScore)),
		Feedback:      *wire.Feedback,
	}, nil
}
