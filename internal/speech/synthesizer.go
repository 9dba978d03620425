package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Synthesis voices offered by the HTTP endpoint.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// Player plays synthesized audio. The runtime embedding the engine
// supplies the real output device; NopPlayer discards audio for headless
// runs.
type Player interface {
	Play(ctx context.Context, audio []byte, format string) error
}

// NopPlayer discards audio immediately.
type NopPlayer struct{}

func (NopPlayer) Play(ctx context.Context, audio []byte, format string) error { return nil }

// HTTPSynthesizer implements Synthesizer against an OpenAI-compatible
// speech endpoint, handing the fetched audio to a Player for output.
type HTTPSynthesizer struct {
	apiKey string
	client *http.Client
	player Player
	logger zerolog.Logger
	config *SynthesisConfig
}

// SynthesisConfig holds speech synthesis configuration.
type SynthesisConfig struct {
	URL     string        `json:"url"`
	APIKey  string        `json:"api_key"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultSynthesisConfig returns sensible defaults.
func DefaultSynthesisConfig() *SynthesisConfig {
	return &SynthesisConfig{
		URL:     "https://api.openai.com/v1/audio/speech",
		Model:   "tts-1",
		Timeout: 30 * time.Second,
	}
}

// NewHTTPSynthesizer creates a synthesizer over the given player.
func NewHTTPSynthesizer(logger zerolog.Logger, config *SynthesisConfig, player Player) *HTTPSynthesizer {
	if config == nil {
		config = DefaultSynthesisConfig()
	}
	if player == nil {
		player = NopPlayer{}
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	return &HTTPSynthesizer{
		apiKey: apiKey,
		client: &http.Client{Timeout: config.Timeout},
		player: player,
		logger: logger.With().Str("provider", "http-tts").Logger(),
		config: config,
	}
}

// Name returns the synthesizer identifier.
func (s *HTTPSynthesizer) Name() string {
	return "http-tts"
}

// Available reports whether an API key is configured.
func (s *HTTPSynthesizer) Available() bool {
	return s.apiKey != ""
}

// Voices returns the fixed voice set the endpoint offers.
func (s *HTTPSynthesizer) Voices(ctx context.Context) ([]string, error) {
	return []string{VoiceNova, VoiceShimmer, VoiceAlloy, VoiceEcho, VoiceOnyx, VoiceFable}, nil
}

type synthesisRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Speak fetches audio for text and plays it. The returned channel receives
// exactly one value when playback ends; the stop function cancels both the
// fetch and playback.
func (s *HTTPSynthesizer) Speak(ctx context.Context, text, voice string, speed float64) (<-chan error, func(), error) {
	if s.apiKey == "" {
		return nil, nil, ErrUnsupported
	}
	if voice == "" {
		voice = VoiceNova
	}
	if speed == 0 {
		speed = 1.0
	}

	playCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)

	go func() {
		audio, err := s.fetch(playCtx, text, voice, speed)
		if err != nil {
			cancel()
			done <- err
			return
		}
		err = s.player.Play(playCtx, audio, "mp3")
		cancel()
		done <- err
	}()

	return done, cancel, nil
}

// fetch requests synthesized audio from the endpoint.
func (s *HTTPSynthesizer) fetch(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	startTime := time.Now()

	body, err := json.Marshal(synthesisRequest{
		Model:          s.config.Model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: "mp3",
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	s.logger.Debug().Str("voice", voice).Int("textLen", len(text)).Msg("Sending synthesis request")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		s.logger.Error().Int("status", resp.StatusCode).Str("body", string(bodyBytes)).Msg("Synthesis request failed")
		return nil, fmt.Errorf("synthesis error: %s", string(bodyBytes))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	s.logger.Info().
		Str("voice", voice).
		Int("audioBytes", len(audio)).
		Dur("fetchTime", time.Since(startTime)).
		Msg("Synthesis complete")

	return audio, nil
}
