// Package speech wraps recognition and synthesis capabilities behind one
// manager that owns turn-taking state and publishes the viseme timeline for
// the avatar renderer. Recognition and synthesis are caller-enforced
// mutually exclusive: listening never starts while synthesis is active.
package speech

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrUnsupported      = errors.New("speech capability unsupported in this runtime")
	ErrAlreadyListening = errors.New("recognition session already active")
	ErrAudioTooShort    = errors.New("audio too short for transcription")
)

// RecognitionResult is one interim or final transcript event.
type RecognitionResult struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// Recognizer is a continuous speech recognition capability. Start opens a
// session and returns a result channel; the channel closing without a
// prior Stop call signals an engine-initiated stop (e.g. a silence
// timeout), which the manager answers with an automatic restart.
type Recognizer interface {
	// Name returns the recognizer identifier (e.g., "ws-streaming")
	Name() string

	// Available reports whether the capability can be used at all.
	Available() bool

	// Start opens a recognition session and streams transcript events
	// until Stop is called or the engine ends the session.
	Start(ctx context.Context) (<-chan RecognitionResult, error)

	// Stop ends the current session. The result channel closes afterward.
	Stop() error
}

// Synthesizer is a speech synthesis capability.
type Synthesizer interface {
	// Name returns the synthesizer identifier (e.g., "http-tts")
	Name() string

	// Available reports whether the capability can be used at all.
	Available() bool

	// Voices returns the voice identifiers this synthesizer offers.
	Voices(ctx context.Context) ([]string, error)

	// Speak plays text with the given voice. The returned channel
	// receives exactly one value when playback ends: nil on normal
	// completion, an error otherwise. The stop function cancels
	// playback immediately.
	Speak(ctx context.Context, text, voice string, speed float64) (<-chan error, func(), error)
}

// Transcriber converts recorded audio to text, for runtimes without
// streaming recognition.
type Transcriber interface {
	// Name returns the transcriber identifier (e.g., "whisper-api")
	Name() string

	// Transcribe converts one recorded utterance to text.
	Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error)
}

// VoiceSettings selects and tunes the synthesis voice.
type VoiceSettings struct {
	Voice       string   // preferred voice; empty falls through Preferences
	Preferences []string // ordered fallback chain
	Speed       float64
}
