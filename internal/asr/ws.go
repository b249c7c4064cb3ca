package asr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSConfig controls the streaming transcription client.
type WSConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Timeout    time.Duration
}

// WSEngine transcribes a finished capture over a Deepgram-style websocket:
// it streams the PCM in chunks, signals end of audio, and joins the final
// transcript fragments the service sends back.
type WSEngine struct {
	cfg WSConfig
	log *zap.Logger
}

func NewWSEngine(cfg WSConfig, log *zap.Logger) *WSEngine {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WSEngine{cfg: cfg, log: log}
}

func (e *WSEngine) Load(_ context.Context) error {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return errors.New("streaming transcription API key is not configured")
	}
	return nil
}

func (e *WSEngine) SampleRate() int { return e.cfg.SampleRate }

func (e *WSEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	wsURL, err := e.listenURL(sampleRate)
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	if e.cfg.APIKey != "" {
		headers.Set("Authorization", "Token "+e.cfg.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return "", fmt.Errorf("failed to connect to transcription websocket: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	var wg sync.WaitGroup
	var writeErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeErr = streamAudio(conn, pcm16Bytes(samples))
	}()

	finals, readErr := collectFinals(conn)
	wg.Wait()

	if readErr != nil {
		return "", readErr
	}
	if writeErr != nil {
		return "", writeErr
	}
	return strings.Join(finals, " "), nil
}

func (e *WSEngine) listenURL(sampleRate int) (string, error) {
	parsed, err := url.Parse(e.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket base url: %w", err)
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http":
		parsed.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported websocket scheme %q", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/listen"

	query := parsed.Query()
	query.Set("model", e.cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("channels", "1")
	if e.cfg.Language != "" {
		query.Set("language", e.cfg.Language)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// streamAudio writes the PCM in fixed-size chunks and then signals end of
// audio with a CloseStream control message.
func streamAudio(conn *websocket.Conn, pcm []byte) error {
	const chunkBytes = 8192
	for off := 0; off < len(pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}

// collectFinals reads transcript events until the server closes the
// connection and returns the final fragments in order.
func collectFinals(conn *websocket.Conn) ([]string, error) {
	var finals []string
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				return finals, nil
			}
			return finals, fmt.Errorf("failed to read transcription event: %w", err)
		}

		var response listenResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "transcription service returned an unknown error"
			}
			return finals, errors.New(message)
		}

		if !response.IsFinal && !response.SpeechFinal {
			continue
		}
		if text := extractTranscript(response); text != "" {
			finals = append(finals, text)
		}
	}
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func extractTranscript(response listenResponse) string {
	if len(response.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(response.Channel.Alternatives[0].Transcript)
}
