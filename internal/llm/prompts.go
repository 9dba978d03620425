package llm

import (
	"fmt"
	"strings"
)

const questionSystemPrompt = `You are an experienced interviewer preparing a short spoken interview.
Respond ONLY with a JSON object of the form:
{"questions": [{"text": "...", "followup": "...", "category": "...", "expectedInsight": "...", "adaptability": 0.5}]}
Each question must be a single spoken sentence. adaptability is a number between 0 and 1 describing how freely the question may be rephrased.`

const sentimentSystemPrompt = `You analyze interview answers. Respond ONLY with a JSON object:
{"sentiment": "positive|neutral|negative", "engagementLevel": "low|medium|high", "engagementScore": 1-10, "characteristics": ["..."], "recommendations": ["..."]}
engagementScore measures detail and enthusiasm on a 1-10 scale.`

const adaptSystemPrompt = `You rephrase interview questions to match the candidate's energy.
Respond with the rephrased question only, as one spoken sentence. No quotes, no commentary.`

const summarySystemPrompt = `You write concise interview summaries for a hiring team.
Write 2-3 short paragraphs in plain prose: what the candidate said, how engaged they were, and what stood out. Do not use headings or bullet lists.`

// buildQuestionPrompt assembles the user prompt for question generation.
func buildQuestionPrompt(interviewContext string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Generate exactly %d interview questions for a spoken one-on-one interview.\n\n", questionCount)

	if strings.TrimSpace(interviewContext) != "" {
		sb.WriteString("Context from earlier stages:\n")
		sb.WriteString(interviewContext)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Keep every question short enough to be spoken naturally in one breath.\n")
	sb.WriteString("Cover different categories: experience, problem-solving, collaboration, growth, goals.")

	return sb.String()
}

// buildAdaptPrompt assembles the user prompt for question adaptation.
func buildAdaptPrompt(question, previousAnswer string, sentiment SentimentAnalysis) string {
	var sb strings.Builder

	sb.WriteString("The next planned question is:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nThe candidate's previous answer was:\n")
	sb.WriteString(truncateAnswer(previousAnswer, 300))
	fmt.Fprintf(&sb, "\n\nTheir sentiment was %s with %s engagement (%d/10).\n",
		sentiment.Sentiment, sentiment.EngagementLevel, sentiment.EngagementScore)
	sb.WriteString("Rephrase the question so it lands well given that energy, keeping its intent intact.")

	return sb.String()
}

// buildSummaryPrompt assembles the user prompt for summary generation,
// seeded with the computed engagement analytics.
func buildSummaryPrompt(answers []Answer, analytics EngagementAnalytics) string {
	var sb strings.Builder

	sb.WriteString("Summarize this interview.\n\n")
	fmt.Fprintf(&sb, "Engagement analytics: average score %.1f/10, dominant sentiment %s, %d answers.\n\n",
		analytics.AverageScore, analytics.DominantSentiment, analytics.ResponseCount)

	sb.WriteString("Questions and answers:\n")
	for i, a := range answers {
		fmt.Fprintf(&sb, "%d. Q: %s\n   A: %s\n", i+1, a.Question, a.AnswerText)
	}

	return sb.String()
}
