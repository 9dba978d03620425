package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTranscriber_Transcribe(t *testing.T) {
	tests := []struct {
		name           string
		language       string
		responseStatus int
		responseBody   string
		expectedText   string
		wantErr        bool
	}{
		{
			name:           "successful transcription",
			responseStatus: http.StatusOK,
			responseBody:   `{"text": "  Hello world  "}`,
			expectedText:   "Hello world",
		},
		{
			name:           "language forwarded",
			language:       "en",
			responseStatus: http.StatusOK,
			responseBody:   `{"text": "bonjour"}`,
			expectedText:   "bonjour",
		},
		{
			name:           "server error",
			responseStatus: http.StatusInternalServerError,
			responseBody:   `{"error": "model overloaded"}`,
			wantErr:        true,
		},
		{
			name:           "malformed response",
			responseStatus: http.StatusOK,
			responseBody:   `not json`,
			wantErr:        true,
		},
	}

	audio := make([]byte, minAudioBytes)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				require.NoError(t, r.ParseMultipartForm(1<<20))
				assert.Equal(t, "whisper-1", r.FormValue("model"))
				if tt.language != "" {
					assert.Equal(t, tt.language, r.FormValue("language"))
				}

				file, header, err := r.FormFile("file")
				require.NoError(t, err)
				defer file.Close()
				assert.Equal(t, "audio.wav", header.Filename)

				magic := make([]byte, 4)
				_, err = file.Read(magic)
				require.NoError(t, err)
				assert.Equal(t, "RIFF", string(magic))

				w.WriteHeader(tt.responseStatus)
				w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			tr := NewHTTPTranscriber(zerolog.Nop(), &TranscriptionConfig{
				URL:      server.URL,
				APIKey:   "test-key",
				Model:    "whisper-1",
				Language: tt.language,
				Timeout:  5 * time.Second,
			})

			text, err := tr.Transcribe(context.Background(), audio, 16000)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedText, text)
		})
	}
}

func TestHTTPTranscriber_RejectsShortAudio(t *testing.T) {
	tr := NewHTTPTranscriber(zerolog.Nop(), &TranscriptionConfig{
		URL:    "http://unreachable.invalid",
		APIKey: "test-key",
	})

	_, err := tr.Transcribe(context.Background(), make([]byte, minAudioBytes-1), 16000)
	assert.ErrorIs(t, err, ErrAudioTooShort)
}

func TestHTTPTranscriber_NoKeyUnsupported(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	tr := NewHTTPTranscriber(zerolog.Nop(), &TranscriptionConfig{URL: "http://unreachable.invalid"})

	_, err := tr.Transcribe(context.Background(), make([]byte, minAudioBytes), 16000)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestWrapWAV_Header(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := wrapWAV(pcm, 16000, 1)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, "data", string(wav[36:40]))

	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[20:22]), "PCM format tag")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]), "channels")
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]), "sample rate")
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(wav[28:32]), "byte rate")
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(wav[32:34]), "block align")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]), "bits per sample")
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
	assert.True(t, bytes.Equal(pcm, wav[44:]))
}
