package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// StreamingRecognizer implements Recognizer over a WebSocket streaming
// recognition endpoint. A silence timeout on the server side closes the
// socket, which surfaces as the result channel closing; the manager treats
// that as an engine-initiated stop and restarts the session.
type StreamingRecognizer struct {
	apiKey string
	logger zerolog.Logger
	config *StreamingConfig

	connMu    sync.Mutex
	conn      *websocket.Conn
	connected bool
	results   chan RecognitionResult
}

// StreamingConfig holds streaming recognition configuration.
type StreamingConfig struct {
	URL            string        `json:"url"`
	APIKey         string        `json:"api_key"`
	Model          string        `json:"model"`
	Language       string        `json:"language"`
	SampleRate     int           `json:"sample_rate"`
	Encoding       string        `json:"encoding"`
	Channels       int           `json:"channels"`
	InterimResults bool          `json:"interim_results"`
	SilenceTimeout time.Duration `json:"silence_timeout"`
}

// DefaultStreamingConfig returns sensible defaults.
func DefaultStreamingConfig() *StreamingConfig {
	return &StreamingConfig{
		URL:            "wss://api.deepgram.com/v1/listen",
		Model:          "nova-2",
		Language:       "en-US",
		SampleRate:     16000,
		Encoding:       "linear16",
		Channels:       1,
		InterimResults: true,
		SilenceTimeout: 8 * time.Second,
	}
}

// NewStreamingRecognizer creates a WebSocket streaming recognizer.
func NewStreamingRecognizer(logger zerolog.Logger, config *StreamingConfig) *StreamingRecognizer {
	if config == nil {
		config = DefaultStreamingConfig()
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}

	return &StreamingRecognizer{
		apiKey: apiKey,
		logger: logger.With().Str("provider", "ws-streaming").Logger(),
		config: config,
	}
}

// Name returns the recognizer identifier.
func (r *StreamingRecognizer) Name() string {
	return "ws-streaming"
}

// Available reports whether an API key is configured.
func (r *StreamingRecognizer) Available() bool {
	return r.apiKey != ""
}

type streamMessage struct {
	Type        string        `json:"type"`
	IsFinal     bool          `json:"is_final,omitempty"`
	SpeechFinal bool          `json:"speech_final,omitempty"`
	Channel     streamChannel `json:"channel,omitempty"`
}

type streamChannel struct {
	Alternatives []streamAlternative `json:"alternatives,omitempty"`
}

type streamAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Start dials the streaming endpoint and returns the result channel. The
// channel closes when Stop is called or the server ends the session.
func (r *StreamingRecognizer) Start(ctx context.Context) (<-chan RecognitionResult, error) {
	if r.apiKey == "" {
		return nil, ErrUnsupported
	}

	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.connected {
		return nil, ErrAlreadyListening
	}

	url := fmt.Sprintf("%s?model=%s&language=%s&encoding=%s&sample_rate=%d&channels=%d&interim_results=%t&punctuate=true",
		r.config.URL,
		r.config.Model,
		r.config.Language,
		r.config.Encoding,
		r.config.SampleRate,
		r.config.Channels,
		r.config.InterimResults,
	)

	header := http.Header{}
	header.Set("Authorization", "Token "+r.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			r.logger.Error().Int("status", resp.StatusCode).Err(err).Msg("Recognition WebSocket dial failed")
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.connected = true
	r.results = make(chan RecognitionResult, 32)
	r.logger.Info().Str("model", r.config.Model).Msg("Streaming recognition connected")

	go r.readResults(conn, r.results)

	return r.results, nil
}

// readResults pumps server messages into the result channel until the
// connection closes. The silence timeout is enforced as a read deadline
// reset on every message.
func (r *StreamingRecognizer) readResults(conn *websocket.Conn, results chan<- RecognitionResult) {
	defer close(results)
	defer r.teardown(conn)

	for {
		if r.config.SilenceTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(r.config.SilenceTimeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug().Msg("Recognition connection closed normally")
			} else {
				r.logger.Debug().Err(err).Msg("Recognition read ended")
			}
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to parse recognition message")
			continue
		}

		switch msg.Type {
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if alt.Transcript == "" {
				continue
			}
			result := RecognitionResult{
				Text:    alt.Transcript,
				IsFinal: msg.IsFinal || msg.SpeechFinal,
			}
			select {
			case results <- result:
				r.logger.Debug().Str("text", alt.Transcript).Bool("final", result.IsFinal).Msg("Transcript")
			default:
				r.logger.Warn().Msg("Result channel full, dropping transcript")
			}

		case "Error":
			r.logger.Error().Str("message", string(message)).Msg("Recognition server error")
		}
	}
}

// SendAudio forwards one chunk of captured audio to the open session.
func (r *StreamingRecognizer) SendAudio(audio []byte) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if !r.connected || r.conn == nil {
		return fmt.Errorf("recognition session not connected")
	}
	return r.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Stop ends the session. The result channel closes once the read loop
// observes the connection closing.
func (r *StreamingRecognizer) Stop() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn == nil {
		return nil
	}

	closeMsg := []byte(`{"type": "CloseStream"}`)
	if err := r.conn.WriteMessage(websocket.TextMessage, closeMsg); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to send close message")
	}

	err := r.conn.Close()
	r.conn = nil
	r.connected = false

	r.logger.Info().Msg("Streaming recognition stopped")
	return err
}

// teardown clears connection state after the read loop exits, unless Stop
// already did.
func (r *StreamingRecognizer) teardown(conn *websocket.Conn) {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn == conn {
		_ = conn.Close()
		r.conn = nil
		r.connected = false
	}
}
