package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// minAudioBytes is the smallest PCM payload worth sending.
const minAudioBytes = 3200 // 100ms at 16kHz mono 16-bit

// HTTPTranscriber implements Transcriber against a Whisper-style
// transcription endpoint, for runtimes without streaming recognition.
type HTTPTranscriber struct {
	apiKey string
	client *http.Client
	logger zerolog.Logger
	config *TranscriptionConfig
}

// TranscriptionConfig holds batch transcription configuration.
type TranscriptionConfig struct {
	URL      string        `json:"url"`
	APIKey   string        `json:"api_key"`
	Model    string        `json:"model"`
	Language string        `json:"language"`
	Timeout  time.Duration `json:"timeout"`
}

// DefaultTranscriptionConfig returns sensible defaults.
func DefaultTranscriptionConfig() *TranscriptionConfig {
	return &TranscriptionConfig{
		URL:     "https://api.openai.com/v1/audio/transcriptions",
		Model:   "whisper-1",
		Timeout: 30 * time.Second,
	}
}

// NewHTTPTranscriber creates a batch transcriber.
func NewHTTPTranscriber(logger zerolog.Logger, config *TranscriptionConfig) *HTTPTranscriber {
	if config == nil {
		config = DefaultTranscriptionConfig()
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	return &HTTPTranscriber{
		apiKey: apiKey,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With().Str("provider", "whisper-api").Logger(),
		config: config,
	}
}

// Name returns the transcriber identifier.
func (t *HTTPTranscriber) Name() string {
	return "whisper-api"
}

// Transcribe uploads one recorded PCM utterance and returns its text.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	if t.apiKey == "" {
		return "", ErrUnsupported
	}
	if len(audio) < minAudioBytes {
		return "", ErrAudioTooShort
	}

	wavData := wrapWAV(audio, sampleRate, 1)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	if err := writer.WriteField("model", t.config.Model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if t.config.Language != "" {
		if err := writer.WriteField("language", t.config.Language); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", t.config.URL, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	startTime := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.logger.Error().Int("status", resp.StatusCode).Str("body", string(bodyBytes)).Msg("Transcription request failed")
		return "", fmt.Errorf("transcription error: %s", string(bodyBytes))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	t.logger.Info().
		Int("audioBytes", len(audio)).
		Int("textLen", len(text)).
		Dur("processingTime", time.Since(startTime)).
		Msg("Transcription complete")

	return text, nil
}

// wrapWAV prepends a RIFF header to raw 16-bit PCM samples.
func wrapWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
