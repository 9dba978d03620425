// Package interview drives the conversational interview flow: question
// preparation, turn-by-turn answer processing, summary generation, and
// session persistence with resume support.
package interview

import (
	"time"

	"github.com/google/uuid"

	"github.com/normanking/interviewavatar/internal/llm"
)

// State is the interview lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StatePreparing  State = "preparing"
	StateActive     State = "active"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
)

// Session is one interview's persisted record. Questions are fixed once
// generated; answers append one per question.
type Session struct {
	ID           string         `json:"id"`
	Context      string         `json:"context"`
	Questions    []llm.Question `json:"questions"`
	Answers      []llm.Answer   `json:"answers"`
	CurrentIndex int            `json:"currentIndex"`
	Summary      *llm.Summary   `json:"summary,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// NewSession creates a session for the generated question list.
func NewSession(interviewContext string, questions []llm.Question) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Context:   interviewContext,
		Questions: questions,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy safe to hand to background persistence.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Questions = append([]llm.Question(nil), s.Questions...)
	c.Answers = append([]llm.Answer(nil), s.Answers...)
	if s.Summary != nil {
		summary := *s.Summary
		c.Summary = &summary
	}
	return &c
}
