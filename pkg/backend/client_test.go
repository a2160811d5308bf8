package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arami-app/practice-engine/pkg/core"
	"github.com/arami-app/practice-engine/pkg/core/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL), WithAuthToken("test-token"))
}

func TestClient_SendTurn(t *testing.T) {
	var gotBody chatTurnRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chatbot/" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatTurnResponse{
			Response:       "¡Iporãite!",
			SessionID:      17,
			HasCorrections: true,
			Corrections: []session.Correction{{
				OriginalText:  "aime",
				CorrectedText: "aĩ",
				ErrorType:     session.ErrorVerb,
				Severity:      session.SeverityMedium,
				Explanation:   "The copula is aĩ.",
			}},
		})
	})

	modeID := 2
	reply, err := client.SendTurn(context.Background(), &session.TurnRequest{
		Message:         "Che aime porã",
		ModeID:          &modeID,
		DifficultyLevel: session.DifficultyBeginner,
	})
	if err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}

	if gotBody.Message != "Che aime porã" {
		t.Errorf("request message = %q", gotBody.Message)
	}
	if gotBody.ModeID == nil || *gotBody.ModeID != 2 {
		t.Errorf("request mode_id = %v, want 2", gotBody.ModeID)
	}
	if gotBody.SessionID != nil {
		t.Error("first turn must omit session_id")
	}
	if gotBody.DifficultyLevel != "beginner" {
		t.Errorf("request difficulty = %q", gotBody.DifficultyLevel)
	}

	if reply.SessionID != 17 {
		t.Errorf("session id = %d, want 17", reply.SessionID)
	}
	if !reply.HasCorrections || len(reply.Corrections) != 1 {
		t.Fatalf("corrections = %+v", reply.Corrections)
	}
	if reply.Corrections[0].ErrorType != session.ErrorVerb {
		t.Errorf("error type = %q", reply.Corrections[0].ErrorType)
	}
}

func TestClient_SendTurn_RejectsMalformedReplies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>proxy error</html>"},
		{"empty response text", `{"response": "", "session_id": 4}`},
		{"zero session id", `{"response": "ok", "session_id": 0}`},
		{"negative session id", `{"response": "ok", "session_id": -3}`},
		{
			"correction missing texts",
			`{"response": "ok", "session_id": 4, "has_corrections": true,
			  "corrections": [{"error_type": "verb", "severity": "low"}]}`,
		},
		{
			"correction missing error type",
			`{"response": "ok", "session_id": 4, "has_corrections": true,
			  "corrections": [{"original_text": "a", "corrected_text": "b", "severity": "low"}]}`,
		},
		{
			"correction unknown severity",
			`{"response": "ok", "session_id": 4, "has_corrections": true,
			  "corrections": [{"original_text": "a", "corrected_text": "b", "error_type": "verb", "severity": "catastrophic"}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			})

			_, err := client.SendTurn(context.Background(), &session.TurnRequest{Message: "hola"})
			if core.TypeOf(err) != core.ErrTransport {
				t.Errorf("err = %v, want transport_error", err)
			}
		})
	}
}

func TestClient_SendTurn_HTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "rate limited"}`, http.StatusTooManyRequests)
	})

	_, err := client.SendTurn(context.Background(), &session.TurnRequest{Message: "hola"})
	if core.TypeOf(err) != core.ErrTransport {
		t.Errorf("err = %v, want transport_error", err)
	}
}

func TestClient_CloseSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chatbot/sessions/end/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req closeSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SessionID != 17 {
			t.Errorf("session_id = %d, want 17", req.SessionID)
		}
		json.NewEncoder(w).Encode(closeSessionResponse{Analysis: &session.Analysis{
			MessagesSent: 6,
			AccuracyRate: 91,
			Performance:  session.PerformanceExcellent,
			ErrorBreakdown: map[string]int{
				"verb": 1,
			},
		}})
	})

	analysis, err := client.CloseSession(context.Background(), 17)
	if err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if analysis == nil || analysis.AccuracyRate != 91 {
		t.Errorf("analysis = %+v", analysis)
	}
}

func TestClient_CloseSession_NoAnalysis(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	analysis, err := client.CloseSession(context.Background(), 9)
	if err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if analysis != nil {
		t.Errorf("analysis = %+v, want nil", analysis)
	}
}

func TestClient_ListModes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/chatbot/modes/" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode([]session.Mode{
			{ID: 1, Name: "Saludos", Icon: "👋", DifficultyLevel: "beginner"},
			{ID: 2, Name: "Mercado", Icon: "🛒", DifficultyLevel: "intermediate"},
		})
	})

	modes, err := client.ListModes(context.Background())
	if err != nil {
		t.Fatalf("ListModes() error = %v", err)
	}
	if len(modes) != 2 || modes[1].Name != "Mercado" {
		t.Errorf("modes = %+v", modes)
	}
}

func TestClient_NotifyActivity(t *testing.T) {
	var got activityRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/challenges/progress/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.NotifyActivity(context.Background(), "CHATBOT", 1); err != nil {
		t.Fatalf("NotifyActivity() error = %v", err)
	}
	if got.ActivityType != "CHATBOT" || got.Amount != 1 {
		t.Errorf("request = %+v", got)
	}
}
