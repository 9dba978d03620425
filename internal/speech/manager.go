package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/interviewavatar/internal/bus"
	"github.com/normanking/interviewavatar/internal/viseme"
)

// Manager owns the single recognition session and the single active
// utterance. It publishes the viseme timeline before playback begins so a
// renderer sampling wall-clock time is in sync from the first frame, and
// clears it when the utterance ends, errs, or is canceled.
type Manager struct {
	recognizer  Recognizer
	synthesizer Synthesizer
	transcriber Transcriber
	analyzer    *viseme.Analyzer
	filter      *TranscriptFilter
	eventBus    *bus.EventBus
	logger      zerolog.Logger

	mu         sync.Mutex
	voice      VoiceSettings
	listening  bool // intentional flag: true between StartListening and StopListening
	sessionGen int
	finals     []string

	speaking    bool
	speakGen    int
	cancelSpeak func()

	// Sticky capability flags: once a capability proves unsupported the
	// affected control stays disabled instead of erroring repeatedly.
	recognitionUnsupported bool
	synthesisUnsupported   bool

	callbackMu     sync.RWMutex
	onSpeechEnd    func(transcript string)
	onSpeakingDone func()

	timelineMu sync.RWMutex
	timeline   []viseme.WordViseme
}

// NewManager creates a speech manager over the given capabilities.
func NewManager(recognizer Recognizer, synthesizer Synthesizer, voice VoiceSettings, eventBus *bus.EventBus, logger zerolog.Logger) *Manager {
	m := &Manager{
		recognizer:  recognizer,
		synthesizer: synthesizer,
		analyzer:    viseme.NewAnalyzer(),
		filter:      NewTranscriptFilter(nil),
		eventBus:    eventBus,
		logger:      logger.With().Str("component", "speech").Logger(),
		voice:       voice,
	}

	if recognizer == nil || !recognizer.Available() {
		m.recognitionUnsupported = true
		m.logger.Warn().Msg("Speech recognition unsupported, listening disabled")
	}
	if synthesizer == nil || !synthesizer.Available() {
		m.synthesisUnsupported = true
		m.logger.Warn().Msg("Speech synthesis unsupported, speaking disabled")
	}

	return m
}

// OnSpeechEnd registers the callback invoked with the accumulated
// transcript when a caller-initiated stop ends the listening turn.
func (m *Manager) OnSpeechEnd(fn func(transcript string)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onSpeechEnd = fn
}

// OnSpeakingDone registers the callback invoked when an utterance ends.
func (m *Manager) OnSpeakingDone(fn func()) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onSpeakingDone = fn
}

// RecognitionSupported reports whether listening is available.
func (m *Manager) RecognitionSupported() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.recognitionUnsupported
}

// SynthesisSupported reports whether speaking is available.
func (m *Manager) SynthesisSupported() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.synthesisUnsupported
}

// SetTranscriber installs a batch transcriber for recorded-audio answers.
func (m *Manager) SetTranscriber(t Transcriber) {
	m.mu.Lock()
	m.transcriber = t
	m.mu.Unlock()
}

// SubmitAudio transcribes one recorded utterance and delivers the cleaned
// transcript through the same speech-end path as live recognition. Used by
// runtimes that capture whole answers instead of streaming audio.
func (m *Manager) SubmitAudio(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	m.mu.Lock()
	transcriber := m.transcriber
	m.mu.Unlock()

	if transcriber == nil {
		return "", ErrUnsupported
	}

	text, err := transcriber.Transcribe(ctx, audio, sampleRate)
	if err != nil {
		return "", err
	}

	cleaned, meaningful := m.filter.Clean(text)
	if !meaningful {
		m.logger.Debug().Str("text", text).Msg("Dropping hesitation-only transcript")
		cleaned = ""
	}

	m.publish(bus.EventTypeTranscript, map[string]any{"text": cleaned})

	m.callbackMu.RLock()
	callback := m.onSpeechEnd
	m.callbackMu.RUnlock()
	if callback != nil {
		callback(cleaned)
	}
	return cleaned, nil
}

// SetVoiceSettings replaces the voice settings, e.g. after a config reload.
func (m *Manager) SetVoiceSettings(voice VoiceSettings) {
	m.mu.Lock()
	m.voice = voice
	m.mu.Unlock()
	m.logger.Info().Str("voice", voice.Voice).Msg("Voice settings updated")
}

// StartListening opens a continuous recognition session. Engine-initiated
// stops (silence timeouts) restart the session automatically as long as
// the intentional listening flag is still set.
func (m *Manager) StartListening() error {
	m.mu.Lock()
	if m.recognitionUnsupported {
		m.mu.Unlock()
		return ErrUnsupported
	}
	if m.listening {
		m.mu.Unlock()
		return ErrAlreadyListening
	}
	m.listening = true
	m.finals = nil
	m.sessionGen++
	gen := m.sessionGen
	m.mu.Unlock()

	go m.runSession(gen)
	return nil
}

// runSession drives one recognition session, restarting it while the
// intentional flag remains set.
func (m *Manager) runSession(gen int) {
	for {
		m.mu.Lock()
		if !m.listening || gen != m.sessionGen {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		results, err := m.recognizer.Start(context.Background())
		if err != nil {
			m.logger.Error().Err(err).Msg("Recognition session failed to start")
			m.mu.Lock()
			m.listening = false
			m.mu.Unlock()
			return
		}

		m.publish(bus.EventTypeListeningStarted, nil)
		m.logger.Debug().Int("session", gen).Msg("Recognition session started")

		for result := range results {
			m.mu.Lock()
			stale := gen != m.sessionGen
			m.mu.Unlock()
			if stale {
				return
			}

			if result.IsFinal {
				cleaned, meaningful := m.filter.Clean(result.Text)
				if !meaningful {
					m.logger.Debug().Str("text", result.Text).Msg("Dropping hesitation-only transcript")
					continue
				}
				m.mu.Lock()
				m.finals = append(m.finals, cleaned)
				m.mu.Unlock()
				m.publish(bus.EventTypeTranscript, map[string]any{"text": cleaned})
			} else {
				m.publish(bus.EventTypeInterimResult, map[string]any{"text": result.Text})
			}
		}

		// Channel closed. If we are still intentionally listening this
		// was an engine-initiated stop: loop and restart the session.
		m.mu.Lock()
		restart := m.listening && gen == m.sessionGen
		m.mu.Unlock()
		if !restart {
			return
		}
		m.logger.Debug().Int("session", gen).Msg("Recognition ended by engine, restarting")
	}
}

// StopListening ends the session intentionally and synchronously flushes
// the accumulated transcript to the speech-end callback.
func (m *Manager) StopListening() {
	m.mu.Lock()
	if !m.listening {
		m.mu.Unlock()
		return
	}
	m.listening = false
	m.sessionGen++
	transcript := strings.TrimSpace(strings.Join(m.finals, " "))
	m.finals = nil
	m.mu.Unlock()

	if err := m.recognizer.Stop(); err != nil {
		m.logger.Warn().Err(err).Msg("Recognizer stop failed")
	}

	m.publish(bus.EventTypeListeningStopped, map[string]any{"transcript": transcript})

	m.callbackMu.RLock()
	callback := m.onSpeechEnd
	m.callbackMu.RUnlock()
	if callback != nil {
		callback(transcript)
	}
}

// IsListening reports whether an intentional listening turn is active.
func (m *Manager) IsListening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

// SpeakHandle cancels an in-flight utterance.
type SpeakHandle struct {
	cancel func()
}

// Cancel stops playback and clears the published viseme timeline.
func (h *SpeakHandle) Cancel() {
	if h != nil && h.cancel != nil {
		h.cancel()
	}
}

// Speak cancels any in-flight utterance, publishes the viseme timeline for
// text, then starts playback. The timeline is published before playback
// begins and cleared when the utterance ends, errs, or is canceled.
func (m *Manager) Speak(text string) (*SpeakHandle, error) {
	m.mu.Lock()
	if m.synthesisUnsupported {
		m.mu.Unlock()
		return &SpeakHandle{}, ErrUnsupported
	}
	previousCancel := m.cancelSpeak
	m.mu.Unlock()

	if previousCancel != nil {
		previousCancel()
	}

	voice := m.resolveVoice(context.Background())

	referenceTime := time.Now()
	timeline := m.analyzer.AnalyzeText(text, referenceTime)
	m.setTimeline(timeline)
	m.publish(bus.EventTypeTimelinePublished, map[string]any{
		"words":    len(timeline),
		"duration": viseme.Duration(timeline).String(),
	})

	m.mu.Lock()
	m.speakGen++
	gen := m.speakGen
	m.speaking = true
	speed := m.voice.Speed
	m.mu.Unlock()

	m.publish(bus.EventTypeSpeakingStarted, map[string]any{"text": text, "voice": voice})

	done, stop, err := m.synthesizer.Speak(context.Background(), text, voice, speed)
	if err != nil {
		m.logger.Error().Err(err).Msg("Synthesis failed to start")
		m.finishSpeaking(gen)
		return &SpeakHandle{}, err
	}

	cancel := func() {
		stop()
		m.finishSpeaking(gen)
	}

	m.mu.Lock()
	m.cancelSpeak = cancel
	m.mu.Unlock()

	go func() {
		if err := <-done; err != nil {
			m.logger.Warn().Err(err).Msg("Utterance ended with error")
		}
		m.finishSpeaking(gen)
	}()

	return &SpeakHandle{cancel: cancel}, nil
}

// finishSpeaking clears speaking state and the published timeline exactly
// once per utterance generation.
func (m *Manager) finishSpeaking(gen int) {
	m.mu.Lock()
	if gen != m.speakGen || !m.speaking {
		m.mu.Unlock()
		return
	}
	m.speaking = false
	m.cancelSpeak = nil
	m.mu.Unlock()

	m.setTimeline(nil)
	m.publish(bus.EventTypeTimelineCleared, nil)
	m.publish(bus.EventTypeSpeakingStopped, nil)

	m.callbackMu.RLock()
	callback := m.onSpeakingDone
	m.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// IsSpeaking reports whether an utterance is in flight.
func (m *Manager) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

// Timeline returns a snapshot of the currently published viseme timeline.
// Empty outside an active utterance.
func (m *Manager) Timeline() []viseme.WordViseme {
	m.timelineMu.RLock()
	defer m.timelineMu.RUnlock()

	if m.timeline == nil {
		return nil
	}
	timeline := make([]viseme.WordViseme, len(m.timeline))
	copy(timeline, m.timeline)
	return timeline
}

func (m *Manager) setTimeline(timeline []viseme.WordViseme) {
	m.timelineMu.Lock()
	m.timeline = timeline
	m.timelineMu.Unlock()
}

// resolveVoice picks the synthesis voice: the configured voice when set,
// otherwise the first preference the synthesizer offers, otherwise the
// synthesizer's first voice.
func (m *Manager) resolveVoice(ctx context.Context) string {
	m.mu.Lock()
	settings := m.voice
	m.mu.Unlock()

	if settings.Voice != "" {
		return settings.Voice
	}

	voices, err := m.synthesizer.Voices(ctx)
	if err != nil || len(voices) == 0 {
		if len(settings.Preferences) > 0 {
			return settings.Preferences[0]
		}
		return ""
	}

	offered := make(map[string]bool, len(voices))
	for _, v := range voices {
		offered[v] = true
	}
	for _, pref := range settings.Preferences {
		if offered[pref] {
			return pref
		}
	}
	return voices[0]
}

func (m *Manager) publish(eventType bus.EventType, data map[string]any) {
	if m.eventBus != nil {
		m.eventBus.Publish(bus.Event{Type: eventType, Data: data})
	}
}
