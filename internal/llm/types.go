// Package llm provides the language-model gateway for the interview engine.
// Every provider call funnels through a shared rate-limited request queue,
// and every operation degrades to a deterministic fallback value: no method
// in this package ever returns an error to its caller.
package llm

import (
	"time"
)

// Question is a single interview question. Immutable once issued.
type Question struct {
	Text            string  `json:"text"`
	Followup        string  `json:"followup"`
	Category        string  `json:"category"`
	ExpectedInsight string  `json:"expectedInsight"`
	Adaptability    float64 `json:"adaptability"` // 0..1, how freely the question may be rephrased
}

// Answer pairs a question with the transcript of its answer.
// Appended once per question, never mutated.
type Answer struct {
	Question   string `json:"question"`
	AnswerText string `json:"answerText"`
}

// SentimentAnalysis describes one answer's sentiment and engagement.
type SentimentAnalysis struct {
	Sentiment       string   `json:"sentiment"`       // positive, neutral, negative
	EngagementLevel string   `json:"engagementLevel"` // low, medium, high
	EngagementScore int      `json:"engagementScore"` // 1..10
	Characteristics []string `json:"characteristics"`
	Recommendations []string `json:"recommendations"`
}

// EngagementAnalytics aggregates sentiment across all answers of a session.
type EngagementAnalytics struct {
	AverageScore      float64 `json:"averageScore"`
	DominantSentiment string  `json:"dominantSentiment"`
	ResponseCount     int     `json:"responseCount"`
}

// Summary is the narrative wrap-up of a completed interview.
type Summary struct {
	Text        string              `json:"text"`
	Analytics   EngagementAnalytics `json:"engagementAnalytics"`
	GeneratedAt time.Time           `json:"generatedAt"`
}
