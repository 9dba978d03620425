package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/interviewavatar/internal/queue"
)

// questionCount is the number of questions generated per interview.
const questionCount = 5

// shortAnswerThreshold is the length below which sentiment analysis
// short-circuits to the low-engagement default without a provider call.
const shortAnswerThreshold = 10

// quotedQuestionPattern salvages quoted interrogative sentences from
// completions that failed structured parsing.
var quotedQuestionPattern = regexp.MustCompile(`"([^"]+\?)"`)

// Gateway routes all interview LLM operations through a shared request
// queue. Every method converts provider and parse failures into a
// documented deterministic fallback; none of them ever returns an error.
type Gateway struct {
	provider Provider
	queue    *queue.Queue
	logger   zerolog.Logger
}

// NewGateway creates a gateway over the given provider and queue.
func NewGateway(provider Provider, q *queue.Queue, logger zerolog.Logger) *Gateway {
	return &Gateway{
		provider: provider,
		queue:    q,
		logger:   logger.With().Str("component", "llm-gateway").Logger(),
	}
}

// complete runs one provider call through the shared queue.
func (g *Gateway) complete(ctx context.Context, req *CompletionRequest) (string, error) {
	v, err := g.queue.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return g.provider.Complete(ctx, req)
	})
	if err != nil {
		return "", err
	}
	text, _ := v.(string)
	return text, nil
}

// GenerateInterviewQuestions builds five questions from prior-stage context.
// Parse failures fall back to a regex salvage of quoted interrogative
// sentences; if that also fails, or the provider errors, the fixed default
// list is returned. Always returns exactly five questions.
func (g *Gateway) GenerateInterviewQuestions(ctx context.Context, interviewContext string) []Question {
	raw, err := g.complete(ctx, &CompletionRequest{
		SystemPrompt: questionSystemPrompt,
		UserPrompt:   buildQuestionPrompt(interviewContext),
		Temperature:  0.8,
		MaxTokens:    1200,
	})
	if err != nil {
		g.logger.Warn().Err(err).Msg("Question generation failed, using default questions")
		return DefaultQuestions()
	}

	questions, err := parseQuestions(raw)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Question parse failed, attempting salvage")
		questions = salvageQuestions(raw)
		if len(questions) == 0 {
			g.logger.Warn().Msg("Question salvage found nothing, using default questions")
			return DefaultQuestions()
		}
	}

	return padQuestions(questions)
}

// AnalyzeSentiment derives sentiment and engagement for one answer.
// Text shorter than ten characters returns the fixed low-engagement
// default immediately, without any provider call. Parse and provider
// failures return the neutral-medium default.
func (g *Gateway) AnalyzeSentiment(ctx context.Context, text string) SentimentAnalysis {
	if len(text) < shortAnswerThreshold {
		return LowEngagementSentiment()
	}

	raw, err := g.complete(ctx, &CompletionRequest{
		SystemPrompt: sentimentSystemPrompt,
		UserPrompt:   fmt.Sprintf("Analyze this interview answer:\n\n%s", text),
		Temperature:  0.2,
		MaxTokens:    400,
	})
	if err != nil {
		g.logger.Warn().Err(err).Msg("Sentiment analysis failed, using neutral default")
		return NeutralSentiment()
	}

	var analysis SentimentAnalysis
	if err := json.Unmarshal([]byte(stripMarkdownFences(raw)), &analysis); err != nil {
		g.logger.Warn().Err(err).Msg("Sentiment parse failed, using neutral default")
		return NeutralSentiment()
	}
	if analysis.Sentiment == "" {
		g.logger.Warn().Msg("Sentiment response missing label, using neutral default")
		return NeutralSentiment()
	}

	if analysis.EngagementScore < 1 {
		analysis.EngagementScore = 1
	}
	if analysis.EngagementScore > 10 {
		analysis.EngagementScore = 10
	}

	return analysis
}

// AdaptQuestion rephrases a question using the sentiment of the previous
// answer as steering context. On any failure the question is returned
// unchanged.
func (g *Gateway) AdaptQuestion(ctx context.Context, question, previousAnswer string) string {
	sentiment := g.AnalyzeSentiment(ctx, previousAnswer)

	raw, err := g.complete(ctx, &CompletionRequest{
		SystemPrompt: adaptSystemPrompt,
		UserPrompt:   buildAdaptPrompt(question, previousAnswer, sentiment),
		Temperature:  0.7,
		MaxTokens:    200,
	})
	if err != nil {
		g.logger.Warn().Err(err).Msg("Question adaptation failed, keeping original")
		return question
	}

	adapted := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if adapted == "" {
		return question
	}
	return adapted
}

// GenerateInterviewSummary analyzes every answer's sentiment in parallel,
// aggregates engagement analytics, and requests a narrative summary seeded
// with that analytics block. On failure it builds a templated summary from
// truncated answer text plus the computed analytics.
func (g *Gateway) GenerateInterviewSummary(ctx context.Context, answers []Answer) Summary {
	analytics := g.aggregateEngagement(ctx, answers)

	raw, err := g.complete(ctx, &CompletionRequest{
		SystemPrompt: summarySystemPrompt,
		UserPrompt:   buildSummaryPrompt(answers, analytics),
		Temperature:  0.5,
		MaxTokens:    800,
	})
	if err != nil || strings.TrimSpace(raw) == "" {
		g.logger.Warn().Err(err).Msg("Summary generation failed, using templated summary")
		return templatedSummary(answers, analytics)
	}

	return Summary{
		Text:        strings.TrimSpace(raw),
		Analytics:   analytics,
		GeneratedAt: time.Now(),
	}
}

// aggregateEngagement runs sentiment analysis over all answers in parallel.
// The shared queue still serializes the underlying provider calls.
func (g *Gateway) aggregateEngagement(ctx context.Context, answers []Answer) EngagementAnalytics {
	analyses := make([]SentimentAnalysis, len(answers))

	var wg sync.WaitGroup
	for i, a := range answers {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			analyses[i] = g.AnalyzeSentiment(ctx, text)
		}(i, a.AnswerText)
	}
	wg.Wait()

	if len(analyses) == 0 {
		return EngagementAnalytics{DominantSentiment: "neutral"}
	}

	var total int
	for _, a := range analyses {
		total += a.EngagementScore
	}

	return EngagementAnalytics{
		AverageScore:      float64(total) / float64(len(analyses)),
		DominantSentiment: dominantSentiment(analyses),
		ResponseCount:     len(analyses),
	}
}

// dominantSentiment picks the most frequent sentiment label.
// Ties break in favor of the label seen first in answer order.
func dominantSentiment(analyses []SentimentAnalysis) string {
	counts := make(map[string]int)
	var order []string

	for _, a := range analyses {
		if _, seen := counts[a.Sentiment]; !seen {
			order = append(order, a.Sentiment)
		}
		counts[a.Sentiment]++
	}

	dominant := "neutral"
	best := 0
	for _, label := range order {
		if counts[label] > best {
			best = counts[label]
			dominant = label
		}
	}
	return dominant
}

// parseQuestions decodes a structured questions response.
func parseQuestions(raw string) ([]Question, error) {
	var payload struct {
		Questions []Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(stripMarkdownFences(raw)), &payload); err != nil {
		return nil, err
	}
	if len(payload.Questions) == 0 {
		return nil, fmt.Errorf("no questions in response")
	}
	for i := range payload.Questions {
		if strings.TrimSpace(payload.Questions[i].Text) == "" {
			return nil, fmt.Errorf("question %d has empty text", i)
		}
	}
	return payload.Questions, nil
}

// salvageQuestions extracts quoted interrogative sentences from a
// malformed completion.
func salvageQuestions(raw string) []Question {
	matches := quotedQuestionPattern.FindAllStringSubmatch(raw, questionCount)

	questions := make([]Question, 0, len(matches))
	for _, m := range matches {
		questions = append(questions, Question{
			Text:         m[1],
			Category:     "general",
			Adaptability: 0.5,
		})
	}
	return questions
}

// padQuestions tops the list up to exactly questionCount entries using the
// default list, and trims any excess.
func padQuestions(questions []Question) []Question {
	if len(questions) > questionCount {
		return questions[:questionCount]
	}
	for _, d := range DefaultQuestions() {
		if len(questions) == questionCount {
			break
		}
		if !containsQuestion(questions, d.Text) {
			questions = append(questions, d)
		}
	}
	return questions
}

func containsQuestion(questions []Question, text string) bool {
	for _, q := range questions {
		if q.Text == text {
			return true
		}
	}
	return false
}

// DefaultQuestions is the fixed fallback list used when generation fails.
func DefaultQuestions() []Question {
	return []Question{
		{
			Text:            "Can you tell me about a recent project you worked on and what role you played in it?",
			Followup:        "What part of that project are you most proud of?",
			Category:        "experience",
			ExpectedInsight: "ownership and contribution",
			Adaptability:    0.6,
		},
		{
			Text:            "What has been the most challenging problem you faced recently, and how did you approach it?",
			Followup:        "What would you do differently next time?",
			Category:        "problem-solving",
			ExpectedInsight: "analytical approach under pressure",
			Adaptability:    0.7,
		},
		{
			Text:            "How do you prefer to collaborate with others when working toward a shared goal?",
			Followup:        "Can you give a concrete example?",
			Category:        "collaboration",
			ExpectedInsight: "teamwork style",
			Adaptability:    0.5,
		},
		{
			Text:            "What motivates you to keep learning, and what are you learning right now?",
			Followup:        "How do you make time for it?",
			Category:        "growth",
			ExpectedInsight: "curiosity and self-direction",
			Adaptability:    0.6,
		},
		{
			Text:            "Where do you see yourself developing over the next year, and what support would help you get there?",
			Followup:        "What is the first step you plan to take?",
			Category:        "goals",
			ExpectedInsight: "ambition and self-awareness",
			Adaptability:    0.4,
		},
	}
}

// LowEngagementSentiment is the fixed default for very short answers.
func LowEngagementSentiment() SentimentAnalysis {
	return SentimentAnalysis{
		Sentiment:       "neutral",
		EngagementLevel: "low",
		EngagementScore: 2,
		Characteristics: []string{"very brief response"},
		Recommendations: []string{"ask a more open-ended follow-up"},
	}
}

// NeutralSentiment is the default when analysis fails.
func NeutralSentiment() SentimentAnalysis {
	return SentimentAnalysis{
		Sentiment:       "neutral",
		EngagementLevel: "medium",
		EngagementScore: 5,
		Characteristics: []string{"analysis unavailable"},
		Recommendations: []string{"continue with the planned question"},
	}
}

// templatedSummary builds the fallback summary from truncated answer text
// plus the computed analytics.
func templatedSummary(answers []Answer, analytics EngagementAnalytics) Summary {
	var sb strings.Builder
	sb.WriteString("Interview summary\n\n")
	fmt.Fprintf(&sb, "The candidate answered %d questions. ", len(answers))
	fmt.Fprintf(&sb, "Overall engagement averaged %.1f/10 with a predominantly %s tone.\n\n",
		analytics.AverageScore, analytics.DominantSentiment)

	for i, a := range answers {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, a.Question, truncateAnswer(a.AnswerText, 120))
	}

	return Summary{
		Text:        sb.String(),
		Analytics:   analytics,
		GeneratedAt: time.Now(),
	}
}

func truncateAnswer(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
