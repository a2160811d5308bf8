// Package main is an interactive terminal client for Guaraní conversation
// practice. It drives a full session end to end: mode selection, text and
// voice turns, spoken replies, pronunciation practice and the final session
// analysis.
//
// Usage:
//
//	go run ./cmd/practice-cli
//
// Environment variables:
//
//	GEMINI_API_KEY    - Required for speech services
//	ARAMI_BACKEND_URL - Learning backend base URL (default http://localhost:8000/api)
//	ARAMI_AUTH_TOKEN  - Backend auth token
//
// Commands:
//
//	<text>          - Send a text message
//	/rec            - Record a voice message (Enter stops), transcribe and send
//	/say <phrase>   - Record a pronunciation attempt of the phrase and score it
//	/modes          - List conversation modes
//	/mode <id>      - Select a mode (before the first message)
//	/level <name>   - Select difficulty: beginner, intermediate, advanced
//	/end            - End the session and print the analysis
//	q               - Quit
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	practice "github.com/arami-app/practice-engine/sdk"

	"github.com/arami-app/practice-engine/pkg/core"
	"github.com/arami-app/practice-engine/pkg/core/audio"
	"github.com/arami-app/practice-engine/pkg/core/session"
)

func main() {
	_ = godotenv.Load()

	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		log.Fatal("GEMINI_API_KEY required")
	}

	logger := newLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	client, err := practice.New(ctx, practice.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	recorder, player := initAudio(logger)

	fmt.Println("Arami - práctica de conversación en Guaraní")
	fmt.Println("Escribe un mensaje, o /modes, /mode <id>, /level <name>, /rec, /say <frase>, /end, q")
	fmt.Println()

	sess := client.NewSession()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "q":
			return

		case line == "/modes":
			listModes(ctx, client)

		case strings.HasPrefix(line, "/mode "):
			selectMode(ctx, client, sess, strings.TrimPrefix(line, "/mode "))

		case strings.HasPrefix(line, "/level "):
			level := session.Difficulty(strings.TrimPrefix(line, "/level "))
			if err := sess.SelectDifficulty(level); err != nil {
				fmt.Println("!", err)
			}

		case line == "/rec":
			payload, ok := record(ctx, recorder, scanner)
			if !ok {
				continue
			}
			text, err := client.Transcribe(ctx, payload)
			if err != nil || strings.TrimSpace(text) == "" {
				fmt.Println("! no usable transcript, try again")
				continue
			}
			fmt.Printf("you said: %s\n", text)
			sendTurn(ctx, client, sess, player, text)

		case strings.HasPrefix(line, "/say "):
			practicePhrase(ctx, client, sess, recorder, scanner, strings.TrimPrefix(line, "/say "))

		case line == "/end":
			endSession(ctx, sess)
			sess = client.NewSession()

		case line != "":
			sendTurn(ctx, client, sess, player, line)
		}
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// initAudio opens the microphone and speaker. Either may be unavailable; the
// session still works in text-only form.
func initAudio(logger *slog.Logger) (*audio.Recorder, *audio.Player) {
	var recorder *audio.Recorder
	mic, err := audio.NewMalgoInput(audio.DefaultSampleRate, audio.DefaultChannels)
	if err != nil {
		logger.Warn("microphone unavailable, /rec and /say disabled", "error", err)
	} else {
		recorder = audio.NewRecorder(mic, audio.WithRecorderLogger(logger))
	}

	speaker, err := audio.NewOtoOutput(audio.DefaultSampleRate, audio.DefaultChannels)
	if err != nil {
		logger.Warn("speaker unavailable, replies will be text-only", "error", err)
		return recorder, audio.NewPlayer(nil, audio.WithPlayerLogger(logger))
	}
	return recorder, audio.NewPlayer(speaker, audio.WithPlayerLogger(logger))
}

func listModes(ctx context.Context, client *practice.Client) {
	modes, err := client.ListModes(ctx)
	if err != nil {
		fmt.Println("!", err)
		return
	}
	for _, m := range modes {
		fmt.Printf("  %d. %s %s (%s) - %s\n", m.ID, m.Icon, m.Name, m.DifficultyLevel, m.Description)
	}
}

func selectMode(ctx context.Context, client *practice.Client, sess *session.Session, arg string) {
	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		fmt.Println("! mode id must be a number")
		return
	}
	modes, err := client.ListModes(ctx)
	if err != nil {
		fmt.Println("!", err)
		return
	}
	for _, m := range modes {
		if m.ID == id {
			if err := sess.SelectMode(&m); err != nil {
				fmt.Println("!", err)
			}
			return
		}
	}
	fmt.Println("! unknown mode id")
}

// sendTurn starts the session on first use, sends one message and speaks the
// reply.
func sendTurn(ctx context.Context, client *practice.Client, sess *session.Session, player *audio.Player, text string) {
	if sess.State() == session.StateSelecting {
		if err := sess.Start(); err != nil {
			fmt.Println("!", err)
			return
		}
		msgs := sess.Messages()
		fmt.Printf("arami: %s\n", msgs[len(msgs)-1].Text)
	}

	exchange, err := sess.SendMessage(ctx, text)
	if err != nil {
		// The fallback reply is already in the transcript.
		msgs := sess.Messages()
		fmt.Printf("arami: %s\n", msgs[len(msgs)-1].Text)
		return
	}

	fmt.Printf("arami: %s\n", exchange.Bot.Text)
	for _, c := range exchange.Bot.Corrections {
		fmt.Printf("  corrección [%s/%s]: %s → %s (%s)\n",
			c.ErrorType, c.Severity, c.OriginalText, c.CorrectedText, c.Explanation)
	}

	_ = client.SpeakReply(ctx, player, exchange.Bot.Text)
}

// record captures microphone audio until the user presses Enter.
func record(ctx context.Context, recorder *audio.Recorder, scanner *bufio.Scanner) (audio.Payload, bool) {
	if recorder == nil {
		fmt.Println("! no microphone available")
		return audio.Payload{}, false
	}
	if err := recorder.Start(); err != nil {
		if core.TypeOf(err) == core.ErrPermissionDenied {
			fmt.Println("! microphone permission denied, check your OS settings")
		} else {
			fmt.Println("!", err)
		}
		return audio.Payload{}, false
	}

	fmt.Println("recording... press Enter to stop")
	scanner.Scan()

	payload, err := recorder.Stop().Wait(ctx)
	if err != nil {
		fmt.Println("!", err)
		return audio.Payload{}, false
	}
	return payload, true
}

func practicePhrase(ctx context.Context, client *practice.Client, sess *session.Session, recorder *audio.Recorder, scanner *bufio.Scanner, phrase string) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		fmt.Println("! usage: /say <phrase>")
		return
	}
	if sess.State() == session.StateSelecting {
		if err := sess.Start(); err != nil {
			fmt.Println("!", err)
			return
		}
	}

	fmt.Printf("say: %s\n", phrase)
	payload, ok := record(ctx, recorder, scanner)
	if !ok {
		return
	}

	attempt, err := client.PracticePronunciation(ctx, sess, phrase, payload)
	if err != nil {
		fmt.Println("!", err)
		return
	}
	if attempt == nil {
		fmt.Println("! could not score that attempt, try again")
		return
	}
	fmt.Printf("score: %d/100\n", attempt.AccuracyScore)
	fmt.Printf("heard: %s\n", attempt.Transcription)
	fmt.Printf("tip:   %s\n", attempt.Feedback)
}

func endSession(ctx context.Context, sess *session.Session) {
	analysis, err := sess.End(ctx)
	if err != nil {
		fmt.Println("!", err)
		return
	}
	if analysis == nil {
		fmt.Println("session reset")
		return
	}

	fmt.Println("--- resumen de la sesión ---")
	fmt.Printf("  duración:   %d min\n", analysis.DurationMinutes)
	fmt.Printf("  mensajes:   %d\n", analysis.MessagesSent)
	fmt.Printf("  palabras:   %d\n", analysis.WordsUsed)
	fmt.Printf("  errores:    %d\n", analysis.GrammarErrors)
	fmt.Printf("  precisión:  %d%% (%s)\n", analysis.AccuracyRate, analysis.Performance)
	if len(analysis.MostCommonWords) > 0 {
		fmt.Printf("  vocabulario: %s\n", strings.Join(analysis.MostCommonWords, ", "))
	}
	for kind, n := range analysis.ErrorBreakdown {
		fmt.Printf("    %s: %d\n", kind, n)
	}
}
