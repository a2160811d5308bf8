// Package practice is the high-level entry point for the conversation
// practice engine. It wires the speech provider, the backend client and the
// session state machine into one client so applications only deal with
// sessions, transcripts and audio payloads.
//
// Usage:
//
//	client, err := practice.New(ctx)
//	if err != nil { ... }
//	sess := client.NewSession()
//	sess.Start()
//	exchange, err := sess.SendMessage(ctx, "Mba'éichapa")
package practice

import (
	"context"
	"log/slog"
	"os"

	"github.com/arami-app/practice-engine/pkg/backend"
	"github.com/arami-app/practice-engine/pkg/core"
	"github.com/arami-app/practice-engine/pkg/core/audio"
	"github.com/arami-app/practice-engine/pkg/core/session"
	"github.com/arami-app/practice-engine/pkg/core/speech"
)

// Client bundles the collaborators needed to run practice sessions.
type Client struct {
	speech  speechProvider
	backend *backend.Client
	scorer  *speech.Scorer
	logger  *slog.Logger
}

// speechProvider is the combined speech surface the client depends on.
type speechProvider interface {
	speech.Transcriber
	speech.Synthesizer
	speech.Analyzer
}

type clientConfig struct {
	apiKey      string
	backendURL  string
	authToken   string
	logger      *slog.Logger
	speech      speechProvider
	backend     *backend.Client
	geminiOpts  []speech.GeminiOption
	backendOpts []backend.Option
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithAPIKey sets the Gemini API key explicitly instead of reading it from
// the environment.
func WithAPIKey(key string) ClientOption {
	return func(c *clientConfig) { c.apiKey = key }
}

// WithBackendURL sets the learning backend base URL.
func WithBackendURL(url string) ClientOption {
	return func(c *clientConfig) { c.backendURL = url }
}

// WithAuthToken sets the backend auth token.
func WithAuthToken(token string) ClientOption {
	return func(c *clientConfig) { c.authToken = token }
}

// WithLogger sets the logger shared by all wired components.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = l }
}

// WithSpeechProvider replaces the default Gemini speech provider.
func WithSpeechProvider(p speechProvider) ClientOption {
	return func(c *clientConfig) { c.speech = p }
}

// WithBackendClient replaces the default backend client.
func WithBackendClient(b *backend.Client) ClientOption {
	return func(c *clientConfig) { c.backend = b }
}

// WithGeminiOptions forwards options to the default Gemini provider.
func WithGeminiOptions(opts ...speech.GeminiOption) ClientOption {
	return func(c *clientConfig) { c.geminiOpts = append(c.geminiOpts, opts...) }
}

// WithBackendOptions forwards options to the default backend client.
func WithBackendOptions(opts ...backend.Option) ClientOption {
	return func(c *clientConfig) { c.backendOpts = append(c.backendOpts, opts...) }
}

// New creates a Client. The Gemini API key is taken from the options or from
// GEMINI_API_KEY / GOOGLE_API_KEY; the backend URL and token from the options
// or from ARAMI_BACKEND_URL / ARAMI_AUTH_TOKEN.
func New(ctx context.Context, opts ...ClientOption) (*Client, error) {
	cfg := &clientConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	provider := cfg.speech
	if provider == nil {
		apiKey := cfg.apiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return nil, core.NewValidationError(
				"missing Gemini API key: set GEMINI_API_KEY or pass WithAPIKey", "apiKey")
		}
		geminiOpts := append([]speech.GeminiOption{speech.WithGeminiLogger(cfg.logger)}, cfg.geminiOpts...)
		p, err := speech.NewGeminiProvider(ctx, apiKey, geminiOpts...)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	backendClient := cfg.backend
	if backendClient == nil {
		backendOpts := []backend.Option{backend.WithLogger(cfg.logger)}
		url := cfg.backendURL
		if url == "" {
			url = os.Getenv("ARAMI_BACKEND_URL")
		}
		if url != "" {
			backendOpts = append(backendOpts, backend.WithBaseURL(url))
		}
		token := cfg.authToken
		if token == "" {
			token = os.Getenv("ARAMI_AUTH_TOKEN")
		}
		if token != "" {
			backendOpts = append(backendOpts, backend.WithAuthToken(token))
		}
		backendOpts = append(backendOpts, cfg.backendOpts...)
		backendClient = backend.New(backendOpts...)
	}

	return &Client{
		speech:  provider,
		backend: backendClient,
		scorer:  speech.NewScorer(provider, speech.WithScorerLogger(cfg.logger)),
		logger:  cfg.logger,
	}, nil
}

// NewSession creates a practice session in the selecting state, wired to the
// backend for dialogue and activity reporting.
func (c *Client) NewSession() *session.Session {
	return session.New(c.backend,
		session.WithNotifier(c.backend),
		session.WithLogger(c.logger))
}

// ListModes fetches the conversation modes offered by the backend.
func (c *Client) ListModes(ctx context.Context) ([]session.Mode, error) {
	return c.backend.ListModes(ctx)
}

// Transcribe converts a captured audio payload to text.
func (c *Client) Transcribe(ctx context.Context, payload audio.Payload) (string, error) {
	return c.speech.Transcribe(ctx, payload.Base64, payload.MIMEType)
}

// Synthesize converts text to a playable sample buffer.
func (c *Client) Synthesize(ctx context.Context, text string) (*audio.PlaybackBuffer, error) {
	encoded, err := c.speech.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	pcm, err := audio.Decode(encoded)
	if err != nil {
		return nil, err
	}
	return audio.ToPlaybackBuffer(pcm, audio.DefaultSampleRate, audio.DefaultChannels)
}

// PracticePronunciation scores a captured attempt against a target phrase and
// appends the feedback to the session transcript. A nil attempt with a nil
// error means the analysis was unavailable; the transcript is left untouched
// so the caller can prompt the user to retry.
func (c *Client) PracticePronunciation(ctx context.Context, sess *session.Session, targetPhrase string, payload audio.Payload) (*speech.Attempt, error) {
	attempt, err := c.scorer.ScoreAttempt(ctx, targetPhrase, payload.Base64, payload.MIMEType)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, nil
	}

	fb := session.PronunciationFeedback{
		Target:        attempt.TargetPhrase,
		Transcription: attempt.Transcription,
		AccuracyScore: attempt.AccuracyScore,
		Feedback:      attempt.Feedback,
	}
	if err := sess.AddPronunciationFeedback(fb); err != nil {
		return nil, err
	}
	return attempt, nil
}

// SpeakReply synthesizes text and schedules it on the player. Playback is
// fire-and-forget; synthesis or scheduling failures are logged and returned
// but must not abort the conversation flow.
func (c *Client) SpeakReply(ctx context.Context, player *audio.Player, text string) error {
	buf, err := c.Synthesize(ctx, text)
	if err != nil {
		c.logger.Warn("speech synthesis failed", "error", err)
		return err
	}
	return player.Play(buf, nil)
}
