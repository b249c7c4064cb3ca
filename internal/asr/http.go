package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPConfig controls the multipart-upload transcription client.
type HTTPConfig struct {
	Endpoint   string
	Token      string
	Model      string
	Language   string
	SampleRate int
	Timeout    time.Duration
}

// HTTPEngine transcribes finished captures by encoding them as a WAV file
// and uploading it to an OpenAI-compatible /transcriptions endpoint.
type HTTPEngine struct {
	cfg    HTTPConfig
	client *http.Client
	log    *zap.Logger
}

func NewHTTPEngine(cfg HTTPConfig, client *http.Client, log *zap.Logger) *HTTPEngine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPEngine{cfg: cfg, client: client, log: log}
}

// Load validates the configuration. The remote service holds the model, so
// there is nothing to warm up locally.
func (e *HTTPEngine) Load(_ context.Context) error {
	if strings.TrimSpace(e.cfg.Endpoint) == "" {
		return errors.New("transcription endpoint is not configured")
	}
	return nil
}

func (e *HTTPEngine) SampleRate() int { return e.cfg.SampleRate }

func (e *HTTPEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	path, err := writeTempWAV(samples, sampleRate)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			e.log.Warn("failed to remove temp wav", zap.String("path", path), zap.Error(err))
		}
	}()

	body, contentType, err := e.buildUpload(path)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if e.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.Token)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription upload failed: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service returned %d: %s", resp.StatusCode, snippet(payload))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode transcription response: %w", err)
	}

	e.log.Debug("transcription round trip",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("samples", len(samples)),
	)
	return parsed.Text, nil
}

func (e *HTTPEngine) buildUpload(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}

	if e.cfg.Model != "" {
		_ = writer.WriteField("model", e.cfg.Model)
	}
	if e.cfg.Language != "" {
		_ = writer.WriteField("language", e.cfg.Language)
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func snippet(payload []byte) string {
	const max = 200
	s := strings.TrimSpace(string(payload))
	if len(s) > max {
		return s[:max] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
