package speech

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/interviewavatar/internal/bus"
)

// fakeRecognizer scripts recognition sessions for manager tests.
type fakeRecognizer struct {
	mu      sync.Mutex
	starts  int
	ch      chan RecognitionResult
	started chan struct{}
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{started: make(chan struct{}, 8)}
}

func (f *fakeRecognizer) Name() string    { return "fake-recognizer" }
func (f *fakeRecognizer) Available() bool { return true }

func (f *fakeRecognizer) Start(ctx context.Context) (<-chan RecognitionResult, error) {
	f.mu.Lock()
	f.starts++
	f.ch = make(chan RecognitionResult, 8)
	ch := f.ch
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}
	return ch, nil
}

func (f *fakeRecognizer) Stop() error {
	f.closeSession()
	return nil
}

// closeSession closes the result channel, as the engine would on a
// silence timeout.
func (f *fakeRecognizer) closeSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch != nil {
		close(f.ch)
		f.ch = nil
	}
}

func (f *fakeRecognizer) emit(text string, final bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch != nil {
		f.ch <- RecognitionResult{Text: text, IsFinal: final}
	}
}

func (f *fakeRecognizer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// fakeSynthesizer scripts utterances. With block set, playback holds until
// finishLast or stop is called.
type fakeSynthesizer struct {
	mu     sync.Mutex
	block  bool
	speaks int
	stops  int
	dones  []chan error
	onces  []*sync.Once
}

func (f *fakeSynthesizer) Name() string    { return "fake-synthesizer" }
func (f *fakeSynthesizer) Available() bool { return true }

func (f *fakeSynthesizer) Voices(ctx context.Context) ([]string, error) {
	return []string{"nova", "alloy"}, nil
}

func (f *fakeSynthesizer) Speak(ctx context.Context, text, voice string, speed float64) (<-chan error, func(), error) {
	done := make(chan error, 1)
	var once sync.Once

	f.mu.Lock()
	f.speaks++
	f.dones = append(f.dones, done)
	f.onces = append(f.onces, &once)
	block := f.block
	f.mu.Unlock()

	stop := func() {
		f.mu.Lock()
		f.stops++
		f.mu.Unlock()
		once.Do(func() { done <- context.Canceled })
	}

	if !block {
		once.Do(func() { done <- nil })
	}
	return done, stop, nil
}

// finishLast ends the most recent utterance's playback.
func (f *fakeSynthesizer) finishLast(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.dones) == 0 {
		return
	}
	done := f.dones[len(f.dones)-1]
	f.onces[len(f.onces)-1].Do(func() { done <- err })
}

func (f *fakeSynthesizer) counts() (speaks, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speaks, f.stops
}

type unavailableSynthesizer struct{ fakeSynthesizer }

func (*unavailableSynthesizer) Available() bool { return false }

func testVoiceSettings() VoiceSettings {
	return VoiceSettings{Preferences: []string{"nova", "shimmer"}, Speed: 1.0}
}

func finalCount(m *Manager) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.finals)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSpeak_PublishesTimelineBeforePlayback(t *testing.T) {
	synth := &fakeSynthesizer{block: true}
	m := NewManager(newFakeRecognizer(), synth, testVoiceSettings(), bus.NewEventBus(), zerolog.Nop())

	handle, err := m.Speak("Hello there")
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	defer handle.Cancel()

	if got := len(m.Timeline()); got != 2 {
		t.Errorf("expected 2 timeline words while speaking, got %d", got)
	}
	if !m.IsSpeaking() {
		t.Error("expected IsSpeaking true during playback")
	}

	synth.finishLast(nil)
	waitFor(t, func() bool { return !m.IsSpeaking() }, "utterance never finished")
	if m.Timeline() != nil {
		t.Error("expected timeline cleared after playback")
	}
}

func TestSpeak_CancelClearsTimelineImmediately(t *testing.T) {
	synth := &fakeSynthesizer{block: true}
	m := NewManager(newFakeRecognizer(), synth, testVoiceSettings(), bus.NewEventBus(), zerolog.Nop())

	handle, err := m.Speak("a long utterance that should be interrupted")
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	handle.Cancel()

	if m.Timeline() != nil {
		t.Error("expected timeline cleared right after cancel")
	}
	if m.IsSpeaking() {
		t.Error("expected IsSpeaking false after cancel")
	}
	if _, stops := synth.counts(); stops != 1 {
		t.Errorf("expected 1 stop call, got %d", stops)
	}
}

func TestSpeak_NewUtteranceCancelsPrevious(t *testing.T) {
	synth := &fakeSynthesizer{block: true}
	m := NewManager(newFakeRecognizer(), synth, testVoiceSettings(), bus.NewEventBus(), zerolog.Nop())

	if _, err := m.Speak("first utterance"); err != nil {
		t.Fatalf("first Speak failed: %v", err)
	}
	handle, err := m.Speak("one two three four")
	if err != nil {
		t.Fatalf("second Speak failed: %v", err)
	}
	defer handle.Cancel()

	speaks, stops := synth.counts()
	if speaks != 2 {
		t.Errorf("expected 2 speak calls, got %d", speaks)
	}
	if stops != 1 {
		t.Errorf("expected previous utterance stopped once, got %d stops", stops)
	}
	if got := len(m.Timeline()); got != 4 {
		t.Errorf("expected timeline for second utterance (4 words), got %d", got)
	}
	if !m.IsSpeaking() {
		t.Error("expected IsSpeaking true for second utterance")
	}
}

func TestSpeak_UnsupportedSynthesizer(t *testing.T) {
	m := NewManager(newFakeRecognizer(), &unavailableSynthesizer{}, testVoiceSettings(), bus.NewEventBus(), zerolog.Nop())

	if m.SynthesisSupported() {
		t.Error("expected synthesis unsupported")
	}
	if _, err := m.Speak("hello"); err != ErrUnsupported {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if m.Timeline() != nil {
		t.Error("expected no timeline for unsupported synthesis")
	}
}

func TestListening_FlushesAccumulatedTranscript(t *testing.T) {
	rec := newFakeRecognizer()
	eventBus := bus.NewEventBus()

	var finalEvents int
	var countMu sync.Mutex
	eventBus.Subscribe(bus.EventTypeTranscript, func(bus.Event) {
		countMu.Lock()
		finalEvents++
		countMu.Unlock()
	})

	m := NewManager(rec, &fakeSynthesizer{}, testVoiceSettings(), eventBus, zerolog.Nop())

	var flushed string
	var flushMu sync.Mutex
	m.OnSpeechEnd(func(transcript string) {
		flushMu.Lock()
		flushed = transcript
		flushMu.Unlock()
	})

	if err := m.StartListening(); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	<-rec.started

	rec.emit("I worked", true)
	rec.emit("on a", false)
	rec.emit("on a project", true)

	waitFor(t, func() bool {
		countMu.Lock()
		defer countMu.Unlock()
		return finalEvents == 2
	}, "final transcripts never observed")

	m.StopListening()

	flushMu.Lock()
	defer flushMu.Unlock()
	if flushed != "I worked on a project" {
		t.Errorf("expected accumulated transcript, got %q", flushed)
	}
	if m.IsListening() {
		t.Error("expected IsListening false after stop")
	}
}

func TestListening_EngineStopRestartsSession(t *testing.T) {
	rec := newFakeRecognizer()
	m := NewManager(rec, &fakeSynthesizer{}, testVoiceSettings(), bus.NewEventBus(), zerolog.Nop())

	var flushed string
	var flushMu sync.Mutex
	m.OnSpeechEnd(func(transcript string) {
		flushMu.Lock()
		flushed = transcript
		flushMu.Unlock()
	})

	if err := m.StartListening(); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	<-rec.started

	rec.emit("first part", true)
	waitFor(t, func() bool { return finalCount(m) == 1 }, "first final never recorded")

	// Silence timeout: the engine closes the channel while we are still
	// intentionally listening.
	rec.closeSession()
	<-rec.started

	if rec.startCount() != 2 {
		t.Fatalf("expected automatic restart, got %d starts", rec.startCount())
	}

	rec.emit("second part", true)
	waitFor(t, func() bool { return finalCount(m) == 2 }, "second final never recorded")

	m.StopListening()

	flushMu.Lock()
	defer flushMu.Unlock()
	if flushed != "first part second part" {
		t.Errorf("expected transcript across restarts, got %q", flushed)
	}
}

func TestStartListening_AlreadyListening(t *testing.T) {
	rec := newFakeRecognizer()
	m := NewManager(rec, &fakeSynthesizer{}, testVoiceSettings(), bus.NewEventBus(), zerolog.Nop())

	if err := m.StartListening(); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	<-rec.started
	defer m.StopListening()

	if err := m.StartListening(); err != ErrAlreadyListening {
		t.Errorf("expected ErrAlreadyListening, got %v", err)
	}
}

func TestStartListening_UnsupportedRecognizer(t *testing.T) {
	m := NewManager(nil, &fakeSynthesizer{}, testVoiceSettings(), bus.NewEventBus(), zerolog.Nop())

	if m.RecognitionSupported() {
		t.Error("expected recognition unsupported")
	}
	if err := m.StartListening(); err != ErrUnsupported {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestStopListening_NoSessionIsNoop(t *testing.T) {
	m := NewManager(newFakeRecognizer(), &fakeSynthesizer{}, testVoiceSettings(), bus.NewEventBus(), zerolog.Nop())

	called := false
	m.OnSpeechEnd(func(string) { called = true })

	m.StopListening()
	if called {
		t.Error("speech-end callback must not fire without a session")
	}
}

// fakeTranscriber returns a scripted transcript for any audio.
type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Name() string { return "fake-transcriber" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	return f.text, f.err
}

func TestSubmitAudio_DeliversTranscript(t *testing.T) {
	m := NewManager(newFakeRecognizer(), &fakeSynthesizer{}, testVoiceSettings(), bus.NewEventBus(), zerolog.Nop())
	m.SetTranscriber(&fakeTranscriber{text: "um I shipped the feature"})

	var flushed string
	m.OnSpeechEnd(func(transcript string) { flushed = transcript })

	got, err := m.SubmitAudio(context.Background(), make([]byte, 3200), 16000)
	if err != nil {
		t.Fatalf("SubmitAudio failed: %v", err)
	}
	if got != "I shipped the feature" {
		t.Errorf("expected cleaned transcript, got %q", got)
	}
	if flushed != got {
		t.Errorf("speech-end callback got %q, want %q", flushed, got)
	}
}

func TestSubmitAudio_HesitationOnlyDeliversEmpty(t *testing.T) {
	m := NewManager(newFakeRecognizer(), &fakeSynthesizer{}, testVoiceSettings(), bus.NewEventBus(), zerolog.Nop())
	m.SetTranscriber(&fakeTranscriber{text: "um, uh..."})

	got, err := m.SubmitAudio(context.Background(), make([]byte, 3200), 16000)
	if err != nil {
		t.Fatalf("SubmitAudio failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty transcript for hesitation-only audio, got %q", got)
	}
}

func TestSubmitAudio_WithoutTranscriber(t *testing.T) {
	m := NewManager(newFakeRecognizer(), &fakeSynthesizer{}, testVoiceSettings(), bus.NewEventBus(), zerolog.Nop())

	if _, err := m.SubmitAudio(context.Background(), make([]byte, 3200), 16000); err != ErrUnsupported {
		t.Errorf("expected ErrUnsupported without a transcriber, got %v", err)
	}
}

func TestResolveVoice_PreferenceChain(t *testing.T) {
	synth := &fakeSynthesizer{}

	m := NewManager(newFakeRecognizer(), synth, VoiceSettings{Voice: "onyx"}, bus.NewEventBus(), zerolog.Nop())
	if got := m.resolveVoice(context.Background()); got != "onyx" {
		t.Errorf("configured voice must win, got %q", got)
	}

	m = NewManager(newFakeRecognizer(), synth, VoiceSettings{Preferences: []string{"shimmer", "alloy"}}, bus.NewEventBus(), zerolog.Nop())
	if got := m.resolveVoice(context.Background()); got != "alloy" {
		t.Errorf("expected first offered preference, got %q", got)
	}

	m = NewManager(newFakeRecognizer(), synth, VoiceSettings{Preferences: []string{"unknown"}}, bus.NewEventBus(), zerolog.Nop())
	if got := m.resolveVoice(context.Background()); got != "nova" {
		t.Errorf("expected first offered voice fallback, got %q", got)
	}
}
