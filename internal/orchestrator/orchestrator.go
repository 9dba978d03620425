// Package orchestrator coordinates the interview flow with speech IO and
// derives the avatar emotion from what the engine is doing.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/interviewavatar/internal/bus"
	"github.com/normanking/interviewavatar/internal/interview"
	"github.com/normanking/interviewavatar/internal/llm"
	"github.com/normanking/interviewavatar/internal/speech"
)

// Avatar emotions derived from engine activity.
const (
	EmotionNeutral    = "neutral"
	EmotionInterested = "interested"
	EmotionListening  = "listening"
	EmotionHappy      = "happy"
)

// closingLine is spoken after the summary is generated.
const closingLine = "That concludes our interview. Thank you for your time!"

// Speaker is the speech surface the orchestrator drives.
type Speaker interface {
	Speak(text string) (*speech.SpeakHandle, error)
	StartListening() error
	StopListening()
	IsListening() bool
	IsSpeaking() bool
	OnSpeechEnd(fn func(transcript string))
	OnSpeakingDone(fn func())
	SynthesisSupported() bool
}

// Flow is the interview surface the orchestrator drives.
type Flow interface {
	Start(ctx context.Context, interviewContext string) error
	ProcessAnswer(ctx context.Context, transcript string) error
	Resume(ctx context.Context) error
	State() interview.State
	OnQuestion(fn func(text string, index int))
	OnStateChange(fn func(interview.State))
	OnSummary(fn func(llm.Summary))
}

// Config tunes orchestrator turn-taking.
type Config struct {
	SettleDelay time.Duration // pause between the avatar finishing speech and listening starting
	TurnSilence time.Duration // silence after a final transcript that ends the answer turn
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SettleDelay: 1 * time.Second,
		TurnSilence: 2 * time.Second,
	}
}

// Orchestrator owns turn-taking: it speaks each question, opens a
// listening turn once the question has settled, closes the turn after a
// stretch of silence, and feeds the flushed transcript back to the flow.
type Orchestrator struct {
	flow     Flow
	speaker  Speaker
	eventBus *bus.EventBus
	logger   zerolog.Logger
	config   Config

	mu             sync.Mutex
	emotion        string
	awaitingAnswer bool
	settleTimer    *time.Timer
	turnTimer      *time.Timer
	closed         bool
}

// New creates an orchestrator and wires flow and speech callbacks.
func New(flow Flow, speaker Speaker, cfg Config, eventBus *bus.EventBus, logger zerolog.Logger) *Orchestrator {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultConfig().SettleDelay
	}
	if cfg.TurnSilence <= 0 {
		cfg.TurnSilence = DefaultConfig().TurnSilence
	}

	o := &Orchestrator{
		flow:     flow,
		speaker:  speaker,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		config:   cfg,
		emotion:  EmotionNeutral,
	}

	flow.OnQuestion(o.handleQuestion)
	flow.OnStateChange(o.handleStateChange)
	flow.OnSummary(o.handleSummary)
	speaker.OnSpeakingDone(o.handleSpeakingDone)
	speaker.OnSpeechEnd(o.handleSpeechEnd)

	if eventBus != nil {
		eventBus.Subscribe(bus.EventTypeTranscript, func(bus.Event) {
			o.resetTurnTimer()
		})
	}

	return o
}

// StartInterview begins a new interview.
func (o *Orchestrator) StartInterview(ctx context.Context, interviewContext string) error {
	return o.flow.Start(ctx, interviewContext)
}

// Resume restores the most recent persisted session.
func (o *Orchestrator) Resume(ctx context.Context) error {
	return o.flow.Resume(ctx)
}

// Emotion returns the current avatar emotion.
func (o *Orchestrator) Emotion() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.emotion
}

// Close cancels pending timers and stops listening.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	if o.settleTimer != nil {
		o.settleTimer.Stop()
	}
	if o.turnTimer != nil {
		o.turnTimer.Stop()
	}
	o.mu.Unlock()

	o.speaker.StopListening()
}

// handleQuestion speaks the asked question. When synthesis is unavailable
// the listening turn is scheduled directly, since no speaking-done callback
// will arrive.
func (o *Orchestrator) handleQuestion(text string, index int) {
	o.mu.Lock()
	o.awaitingAnswer = true
	o.mu.Unlock()

	o.setEmotion(EmotionInterested)
	o.logger.Info().Int("index", index).Msg("Asking question")

	if o.speaker.IsListening() {
		// A new question preempts any stale listening turn.
		o.speaker.StopListening()
	}

	if _, err := o.speaker.Speak(text); err != nil {
		o.logger.Warn().Err(err).Msg("Question could not be spoken, opening listening turn directly")
		o.scheduleListening()
	}
}

// handleSpeakingDone opens the listening turn after the settle delay.
func (o *Orchestrator) handleSpeakingDone() {
	o.mu.Lock()
	awaiting := o.awaitingAnswer
	o.mu.Unlock()

	if !awaiting || o.flow.State() != interview.StateActive {
		return
	}
	o.scheduleListening()
}

// scheduleListening starts listening after the settle delay.
func (o *Orchestrator) scheduleListening() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if o.settleTimer != nil {
		o.settleTimer.Stop()
	}
	o.settleTimer = time.AfterFunc(o.config.SettleDelay, o.beginListening)
}

func (o *Orchestrator) beginListening() {
	o.mu.Lock()
	awaiting := o.awaitingAnswer && !o.closed
	o.mu.Unlock()

	if !awaiting || o.speaker.IsSpeaking() || o.flow.State() != interview.StateActive {
		return
	}

	if err := o.speaker.StartListening(); err != nil {
		o.logger.Warn().Err(err).Msg("Could not start listening")
		return
	}
	o.setEmotion(EmotionListening)
}

// resetTurnTimer restarts the end-of-turn silence countdown. Called on
// every final transcript while a listening turn is open.
func (o *Orchestrator) resetTurnTimer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if o.turnTimer != nil {
		o.turnTimer.Stop()
	}
	o.turnTimer = time.AfterFunc(o.config.TurnSilence, o.endTurn)
}

// endTurn closes the listening turn, flushing the accumulated transcript
// through the speech-end callback.
func (o *Orchestrator) endTurn() {
	if !o.speaker.IsListening() {
		return
	}
	o.logger.Debug().Msg("Answer turn ended on silence")
	o.speaker.StopListening()
}

// handleSpeechEnd feeds the flushed transcript to the flow.
func (o *Orchestrator) handleSpeechEnd(transcript string) {
	o.mu.Lock()
	o.awaitingAnswer = false
	o.mu.Unlock()

	o.setEmotion(EmotionInterested)

	if err := o.flow.ProcessAnswer(context.Background(), transcript); err != nil {
		o.logger.Warn().Err(err).Msg("Transcript could not be processed")
	}
}

// handleStateChange maps lifecycle states onto emotions.
func (o *Orchestrator) handleStateChange(state interview.State) {
	switch state {
	case interview.StateIdle:
		o.setEmotion(EmotionNeutral)
	case interview.StatePreparing, interview.StateProcessing:
		o.setEmotion(EmotionInterested)
	case interview.StateComplete:
		o.setEmotion(EmotionHappy)
	}
}

// handleSummary speaks the closing line once the summary is ready.
func (o *Orchestrator) handleSummary(summary llm.Summary) {
	o.setEmotion(EmotionHappy)
	if o.speaker.SynthesisSupported() {
		if _, err := o.speaker.Speak(closingLine); err != nil {
			o.logger.Warn().Err(err).Msg("Closing line could not be spoken")
		}
	}
	o.logger.Info().
		Int("responses", summary.Analytics.ResponseCount).
		Float64("avgEngagement", summary.Analytics.AverageScore).
		Msg("Summary ready")
}

// setEmotion publishes emotion changes.
func (o *Orchestrator) setEmotion(emotion string) {
	o.mu.Lock()
	if o.emotion == emotion {
		o.mu.Unlock()
		return
	}
	previous := o.emotion
	o.emotion = emotion
	o.mu.Unlock()

	o.logger.Debug().Str("from", previous).Str("to", emotion).Msg("Emotion changed")
	if o.eventBus != nil {
		o.eventBus.Publish(bus.Event{
			Type: bus.EventTypeEmotionChanged,
			Data: map[string]any{"from": previous, "to": emotion},
		})
	}
}
