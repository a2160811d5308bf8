package session

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Performance is the four-level categorical summary of session accuracy.
type Performance string

const (
	PerformanceExcellent        Performance = "excellent"
	PerformanceGood             Performance = "good"
	PerformanceFair             Performance = "fair"
	PerformanceNeedsImprovement Performance = "needs_improvement"
)

// Analysis is the derived summary of a finished session. It is never
// persisted by this engine.
type Analysis struct {
	DurationMinutes int            `json:"duration_minutes"`
	MessagesSent    int            `json:"messages_sent"`
	WordsUsed       int            `json:"words_used"`
	GrammarErrors   int            `json:"grammar_errors"`
	AccuracyRate    int            `json:"accuracy_rate"`
	MostCommonWords []string       `json:"most_common_words"`
	ErrorBreakdown  map[string]int `json:"error_breakdown"`
	Performance     Performance    `json:"performance"`
}

// topWordCount bounds the most-common-words list.
const topWordCount = 5

// minCountedWordLen skips fillers and particles when ranking vocabulary.
const minCountedWordLen = 3

// Summarize derives an Analysis from a terminated session's transcript. It is
// a pure function of the transcript: the per-message correctness signal
// (corrections attached by the backend vs. the user's word counts) is consumed
// as-is rather than re-derived.
func Summarize(s *Session) *Analysis {
	s.mu.Lock()
	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	startedAt, endedAt := s.startedAt, s.endedAt
	s.mu.Unlock()

	var (
		messagesSent  int
		wordsUsed     int
		grammarErrors int
		breakdown     = map[string]int{}
		userTexts     []string
	)

	for _, msg := range messages {
		if msg.IsUser {
			messagesSent++
			wordsUsed += msg.WordCount
			userTexts = append(userTexts, msg.Text)
			continue
		}
		grammarErrors += len(msg.Corrections)
		for _, c := range msg.Corrections {
			// Unknown error types keep their literal key.
			breakdown[string(c.ErrorType)]++
		}
	}

	rate := accuracyRate(wordsUsed, grammarErrors)

	return &Analysis{
		DurationMinutes: durationMinutes(startedAt, endedAt),
		MessagesSent:    messagesSent,
		WordsUsed:       wordsUsed,
		GrammarErrors:   grammarErrors,
		AccuracyRate:    rate,
		MostCommonWords: mostCommonWords(userTexts, topWordCount),
		ErrorBreakdown:  breakdown,
		Performance:     performanceTier(rate),
	}
}

func durationMinutes(start, end time.Time) int {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return int(math.Round(end.Sub(start).Minutes()))
}

// accuracyRate consumes the backend-supplied correctness signal: total
// corrections against total user words.
func accuracyRate(wordsUsed, grammarErrors int) int {
	if wordsUsed <= 0 {
		return 100
	}
	correct := wordsUsed - grammarErrors
	rate := int(math.Round(100 * float64(correct) / float64(wordsUsed)))
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}

// performanceTier maps an accuracy rate onto the four-level summary.
func performanceTier(accuracyRate int) Performance {
	switch {
	case accuracyRate >= 90:
		return PerformanceExcellent
	case accuracyRate >= 70:
		return PerformanceGood
	case accuracyRate >= 50:
		return PerformanceFair
	default:
		return PerformanceNeedsImprovement
	}
}

// mostCommonWords ranks the user's vocabulary by frequency. Ties break by
// first appearance so the result is deterministic.
func mostCommonWords(texts []string, n int) []string {
	counts := map[string]int{}
	firstSeen := map[string]int{}
	order := 0

	for _, text := range texts {
		for _, raw := range strings.Fields(text) {
			word := strings.ToLower(strings.TrimFunc(raw, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsNumber(r)
			}))
			if len([]rune(word)) < minCountedWordLen {
				continue
			}
			if _, seen := counts[word]; !seen {
				firstSeen[word] = order
				order++
			}
			counts[word]++
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return firstSeen[words[i]] < firstSeen[words[j]]
	})

	if len(words) > n {
		words = words[:n]
	}
	return words
}
