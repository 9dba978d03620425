package interview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/interviewavatar/internal/bus"
	"github.com/normanking/interviewavatar/internal/llm"
)

// adaptThreshold is the minimum adaptability at which the next question is
// rephrased against the previous answer instead of asked verbatim.
const adaptThreshold = 0.5

var (
	ErrInterviewActive  = errors.New("an interview is already in progress")
	ErrNothingToProcess = errors.New("interview is not awaiting an answer")
)

// Gateway is the language-model surface the flow depends on. All methods
// degrade to deterministic fallbacks instead of returning errors, and
// GenerateInterviewQuestions returns a non-empty list; the flow still
// substitutes the default list if an implementation violates that.
type Gateway interface {
	GenerateInterviewQuestions(ctx context.Context, interviewContext string) []llm.Question
	AdaptQuestion(ctx context.Context, question, previousAnswer string) string
	GenerateInterviewSummary(ctx context.Context, answers []llm.Answer) llm.Summary
}

// Flow is the interview state machine:
//
//	idle -> preparing -> active -> processing -> complete
//
// Start from complete resets into a fresh session. Persistence is
// best-effort and never blocks or fails a transition.
type Flow struct {
	gateway  Gateway
	store    Store
	eventBus *bus.EventBus
	logger   zerolog.Logger

	persistDelays []time.Duration

	mu      sync.Mutex
	state   State
	session *Session

	callbackMu sync.RWMutex
	onQuestion func(text string, index int)
	onState    func(State)
	onSummary  func(llm.Summary)
}

// NewFlow creates an idle interview flow.
func NewFlow(gateway Gateway, store Store, eventBus *bus.EventBus, logger zerolog.Logger) *Flow {
	return &Flow{
		gateway:       gateway,
		store:         store,
		eventBus:      eventBus,
		logger:        logger.With().Str("component", "interview-flow").Logger(),
		persistDelays: defaultPersistDelays,
		state:         StateIdle,
	}
}

// OnQuestion registers the callback invoked each time a question is asked.
func (f *Flow) OnQuestion(fn func(text string, index int)) {
	f.callbackMu.Lock()
	defer f.callbackMu.Unlock()
	f.onQuestion = fn
}

// OnStateChange registers the callback invoked on every state transition.
func (f *Flow) OnStateChange(fn func(State)) {
	f.callbackMu.Lock()
	defer f.callbackMu.Unlock()
	f.onState = fn
}

// OnSummary registers the callback invoked when the summary is ready.
func (f *Flow) OnSummary(fn func(llm.Summary)) {
	f.callbackMu.Lock()
	defer f.callbackMu.Unlock()
	f.onSummary = fn
}

// State returns the current lifecycle state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Session returns a copy of the current session, or nil.
func (f *Flow) Session() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.Clone()
}

// CurrentQuestion returns the question awaiting an answer, or empty.
func (f *Flow) CurrentQuestion() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateActive || f.session == nil || f.session.CurrentIndex >= len(f.session.Questions) {
		return ""
	}
	return f.session.Questions[f.session.CurrentIndex].Text
}

// Start begins a new interview. Allowed from idle and from complete, which
// discards the finished session and starts fresh.
func (f *Flow) Start(ctx context.Context, interviewContext string) error {
	f.mu.Lock()
	if f.state != StateIdle && f.state != StateComplete {
		f.mu.Unlock()
		return ErrInterviewActive
	}
	f.session = nil
	f.setStateLocked(StatePreparing)
	f.mu.Unlock()

	f.publish(bus.EventTypeInterviewStarted, map[string]any{"context": interviewContext})

	questions := f.gateway.GenerateInterviewQuestions(ctx, interviewContext)
	if len(questions) == 0 {
		f.logger.Warn().Msg("Gateway produced no questions, using default list")
		questions = llm.DefaultQuestions()
	}
	session := NewSession(interviewContext, questions)

	f.mu.Lock()
	f.session = session
	f.setStateLocked(StateActive)
	snapshot := session.Clone()
	f.mu.Unlock()

	f.logger.Info().Str("sessionID", session.ID).Int("questions", len(questions)).Msg("Interview started")
	f.publish(bus.EventTypeQuestionsReady, map[string]any{"count": len(questions)})
	f.persistAsync(snapshot)

	f.ask(questions[0].Text, 0)
	return nil
}

// ProcessAnswer records the transcript for the current question and
// advances the interview. The last answer triggers summary generation.
func (f *Flow) ProcessAnswer(ctx context.Context, transcript string) error {
	transcript = strings.TrimSpace(transcript)

	f.mu.Lock()
	if f.state != StateActive || f.session == nil {
		f.mu.Unlock()
		return ErrNothingToProcess
	}

	index := f.session.CurrentIndex
	question := f.session.Questions[index]
	f.session.Answers = append(f.session.Answers, llm.Answer{
		Question:   question.Text,
		AnswerText: transcript,
	})
	f.session.UpdatedAt = time.Now()

	last := len(f.session.Answers) == len(f.session.Questions)
	var next llm.Question
	if last {
		f.setStateLocked(StateProcessing)
	} else {
		f.session.CurrentIndex++
		next = f.session.Questions[f.session.CurrentIndex]
	}
	nextIndex := f.session.CurrentIndex
	snapshot := f.session.Clone()
	f.mu.Unlock()

	f.logger.Info().Int("question", index).Int("answerLen", len(transcript)).Msg("Answer recorded")
	f.publish(bus.EventTypeAnswerRecorded, map[string]any{"index": index, "length": len(transcript)})
	f.persistAsync(snapshot)

	if last {
		f.finish(ctx)
		return nil
	}

	text := next.Text
	if next.Adaptability >= adaptThreshold {
		text = f.gateway.AdaptQuestion(ctx, next.Text, transcript)
	}
	f.ask(text, nextIndex)
	return nil
}

// Resume restores the most recently persisted session. A session with a
// summary resumes complete; one with at least one answer and unanswered
// questions resumes active at the first unanswered question; one with
// every answer recorded but no summary finishes summary generation. A
// session with no answers yet is not resumed: the flow stays idle so a
// fresh Start regenerates the questions.
func (f *Flow) Resume(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateIdle {
		f.mu.Unlock()
		return ErrInterviewActive
	}
	f.mu.Unlock()

	session, err := f.store.Latest()
	if err != nil {
		f.logger.Warn().Err(err).Msg("Session resume failed, starting fresh")
		return nil
	}
	if session == nil {
		return nil
	}

	f.mu.Lock()
	switch {
	case session.Summary != nil:
		f.session = session
		f.setStateLocked(StateComplete)
		f.mu.Unlock()
		f.logger.Info().Str("sessionID", session.ID).Msg("Resumed completed interview")
		return nil

	case len(session.Questions) > 0 && len(session.Answers) == len(session.Questions):
		f.session = session
		f.setStateLocked(StateProcessing)
		f.mu.Unlock()
		f.logger.Info().Str("sessionID", session.ID).Msg("Resuming pending summary")
		f.finish(ctx)
		return nil

	case len(session.Answers) > 0 && len(session.Answers) < len(session.Questions):
		session.CurrentIndex = len(session.Answers)
		f.session = session
		f.setStateLocked(StateActive)
		index := session.CurrentIndex
		text := session.Questions[index].Text
		f.mu.Unlock()
		f.logger.Info().Str("sessionID", session.ID).Int("question", index).Msg("Resumed interview mid-flight")
		f.ask(text, index)
		return nil

	default:
		f.mu.Unlock()
		return nil
	}
}

// finish generates the summary exactly once and completes the interview.
func (f *Flow) finish(ctx context.Context) {
	f.mu.Lock()
	if f.session == nil || f.session.Summary != nil {
		f.mu.Unlock()
		return
	}
	answers := append([]llm.Answer(nil), f.session.Answers...)
	f.mu.Unlock()

	summary := f.gateway.GenerateInterviewSummary(ctx, answers)

	f.mu.Lock()
	if f.session == nil || f.session.Summary != nil {
		f.mu.Unlock()
		return
	}
	f.session.Summary = &summary
	f.session.UpdatedAt = time.Now()
	f.setStateLocked(StateComplete)
	snapshot := f.session.Clone()
	f.mu.Unlock()

	f.logger.Info().
		Float64("avgEngagement", summary.Analytics.AverageScore).
		Str("sentiment", summary.Analytics.DominantSentiment).
		Msg("Interview complete")

	f.persistAsync(snapshot)
	f.publish(bus.EventTypeSummaryReady, map[string]any{
		"responseCount": summary.Analytics.ResponseCount,
	})

	f.callbackMu.RLock()
	callback := f.onSummary
	f.callbackMu.RUnlock()
	if callback != nil {
		callback(summary)
	}
}

// ask announces the question at index.
func (f *Flow) ask(text string, index int) {
	f.publish(bus.EventTypeQuestionAsked, map[string]any{"text": text, "index": index})

	f.callbackMu.RLock()
	callback := f.onQuestion
	f.callbackMu.RUnlock()
	if callback != nil {
		callback(text, index)
	}
}

// setStateLocked transitions state; callers hold f.mu.
func (f *Flow) setStateLocked(state State) {
	if f.state == state {
		return
	}
	previous := f.state
	f.state = state
	f.logger.Debug().Str("from", string(previous)).Str("to", string(state)).Msg("State changed")

	go func() {
		f.publish(bus.EventTypeStateChanged, map[string]any{"from": string(previous), "to": string(state)})

		f.callbackMu.RLock()
		callback := f.onState
		f.callbackMu.RUnlock()
		if callback != nil {
			callback(state)
		}
	}()
}

// persistAsync saves a session snapshot in the background with retries.
// Storage failures never surface to the interview flow.
func (f *Flow) persistAsync(session *Session) {
	if f.store == nil || session == nil {
		return
	}
	go func() {
		if err := saveWithRetry(f.store, session, f.persistDelays, f.logger); err != nil {
			f.publish(bus.EventTypeSessionSaveFailed, map[string]any{"sessionID": session.ID, "error": err.Error()})
			return
		}
		f.publish(bus.EventTypeSessionSaved, map[string]any{"sessionID": session.ID})
	}()
}

func (f *Flow) publish(eventType bus.EventType, data map[string]any) {
	if f.eventBus != nil {
		f.eventBus.Publish(bus.Event{Type: eventType, Data: data})
	}
}
