package asr

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// writeTempWAV encodes mono float32 samples as a 16-bit PCM WAV file in the
// OS temp directory and returns its path. The caller removes the file.
func writeTempWAV(samples []float32, sampleRate int) (string, error) {
	path := filepath.Join(os.TempDir(), "whisperkey-"+uuid.NewString()+".wav")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create temp wav: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           pcm16(samples),
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to finalize wav: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// pcm16 converts float32 samples into 16-bit values, rescaling when the
// input peaks above full scale so clipped captures do not wrap.
func pcm16(samples []float32) []int {
	var peak float32 = 1.0
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}

	out := make([]int, len(samples))
	for i, s := range samples {
		v := s / peak
		out[i] = int(math.Round(float64(v) * math.MaxInt16))
	}
	return out
}

// pcm16Bytes converts float32 samples into little-endian 16-bit PCM bytes
// for streaming transports.
func pcm16Bytes(samples []float32) []byte {
	ints := pcm16(samples)
	out := make([]byte, 2*len(ints))
	for i, v := range ints {
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}
