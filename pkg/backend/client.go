// Package backend is the REST client for the Arami learning backend. It
// implements the dialogue and activity collaborators consumed by the session
// package and validates every response at the trust boundary before handing
// it to the engine.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/arami-app/practice-engine/pkg/core"
	"github.com/arami-app/practice-engine/pkg/core/session"
)

const defaultBaseURL = "http://localhost:8000/api"

// Client talks to the backend's chatbot and challenge endpoints.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the backend base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithAuthToken sets the token sent on every request.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a backend client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: newDefaultHTTPClient(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newDefaultHTTPClient configures transport-level timeouts while keeping the
// overall request lifetime controlled by context deadlines.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// chatTurnRequest is the POST /chatbot/ request body.
type chatTurnRequest struct {
	Message         string `json:"message"`
	ModeID          *int   `json:"mode_id,omitempty"`
	SessionID       *int   `json:"session_id,omitempty"`
	DifficultyLevel string `json:"difficulty_level,omitempty"`
}

// chatTurnResponse is the POST /chatbot/ response body.
type chatTurnResponse struct {
	Response       string               `json:"response"`
	SessionID      int                  `json:"session_id"`
	HasCorrections bool                 `json:"has_corrections"`
	Corrections    []session.Correction `json:"corrections"`
}

// closeSessionRequest is the POST /chatbot/sessions/end/ request body.
type closeSessionRequest struct {
	SessionID int `json:"session_id"`
}

// closeSessionResponse is the POST /chatbot/sessions/end/ response body.
type closeSessionResponse struct {
	Analysis *session.Analysis `json:"analysis"`
}

// activityRequest is the POST /challenges/progress/ request body.
type activityRequest struct {
	ActivityType string `json:"activity_type"`
	Amount       int    `json:"amount"`
}

// SendTurn implements session.DialogueService.
func (c *Client) SendTurn(ctx context.Context, req *session.TurnRequest) (*session.TurnReply, error) {
	body := chatTurnRequest{
		Message:         req.Message,
		ModeID:          req.ModeID,
		SessionID:       req.SessionID,
		DifficultyLevel: string(req.DifficultyLevel),
	}

	var reply chatTurnResponse
	if err := c.post(ctx, "/chatbot/", body, &reply); err != nil {
		return nil, err
	}

	if reply.Response == "" {
		return nil, core.NewTransportError("chatbot reply has no response text", nil)
	}
	if reply.SessionID <= 0 {
		return nil, core.NewTransportError(fmt.Sprintf("chatbot reply has invalid session id %d", reply.SessionID), nil)
	}
	if reply.HasCorrections {
		for i, corr := range reply.Corrections {
			if err := validateCorrection(corr); err != nil {
				return nil, core.NewTransportError(fmt.Sprintf("correction %d is malformed", i), err)
			}
		}
	}

	return &session.TurnReply{
		Response:       reply.Response,
		SessionID:      reply.SessionID,
		HasCorrections: reply.HasCorrections,
		Corrections:    reply.Corrections,
	}, nil
}

func validateCorrection(corr session.Correction) error {
	if corr.OriginalText == "" || corr.CorrectedText == "" {
		return core.NewValidationError("correction is missing original or corrected text", "corrections")
	}
	if corr.ErrorType == "" {
		return core.NewValidationError("correction is missing an error type", "corrections")
	}
	if !corr.Severity.Valid() {
		return core.NewValidationError(fmt.Sprintf("unknown correction severity %q", corr.Severity), "corrections")
	}
	return nil
}

// CloseSession implements session.DialogueService. The analysis is nil when
// the backend supplies none.
func (c *Client) CloseSession(ctx context.Context, sessionID int) (*session.Analysis, error) {
	var reply closeSessionResponse
	if err := c.post(ctx, "/chatbot/sessions/end/", closeSessionRequest{SessionID: sessionID}, &reply); err != nil {
		return nil, err
	}
	return reply.Analysis, nil
}

// ListModes fetches the conversation modes offered by the backend.
func (c *Client) ListModes(ctx context.Context) ([]session.Mode, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/chatbot/modes/", nil)
	if err != nil {
		return nil, err
	}

	var modes []session.Mode
	if err := c.do(req, &modes); err != nil {
		return nil, err
	}
	return modes, nil
}

// NotifyActivity implements session.ActivityNotifier.
func (c *Client) NotifyActivity(ctx context.Context, activityType string, amount int) error {
	return c.post(ctx, "/challenges/progress/", activityRequest{ActivityType: activityType, Amount: amount}, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return core.NewTransportError("marshal request body", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, core.NewTransportError("create request", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Token "+c.authToken)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.NewTransportError("request failed", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return core.NewTransportError(
			fmt.Sprintf("backend error (status %d): %s", resp.StatusCode, string(respBody)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.NewTransportError("decode response", err)
	}
	return nil
}
