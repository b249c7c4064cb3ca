package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"whisperkey/internal/ports"
)

const framesPerChunk = 1024

// Device describes an audio input device.
type Device struct {
	Index      int
	Name       string
	Channels   int
	SampleRate float64
	Default    bool
}

// PortAudioOpener opens real microphone streams through PortAudio. The
// library is initialized once per process and torn down when the last open
// stream closes.
type PortAudioOpener struct {
	mu   sync.Mutex
	refs int
}

func NewPortAudioOpener() *PortAudioOpener {
	return &PortAudioOpener{}
}

func (o *PortAudioOpener) Open(cfg ports.StreamConfig, onChunk func([]float32)) (ports.AudioStream, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}

	callback := func(in []float32) {
		onChunk(in)
	}

	var stream *portaudio.Stream
	var err error
	if cfg.DeviceIndex < 0 {
		stream, err = portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), framesPerChunk, callback)
	} else {
		stream, err = o.openDeviceStream(cfg, callback)
	}
	if err != nil {
		o.release()
		return nil, fmt.Errorf("open portaudio stream: %w", err)
	}

	return &paStream{stream: stream, opener: o}, nil
}

func (o *PortAudioOpener) openDeviceStream(cfg ports.StreamConfig, callback func([]float32)) (*portaudio.Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if cfg.DeviceIndex >= len(devices) {
		return nil, fmt.Errorf("no input device at index %d", cfg.DeviceIndex)
	}
	info := devices[cfg.DeviceIndex]
	if info.MaxInputChannels < cfg.Channels {
		return nil, fmt.Errorf("device %q has no input channels", info.Name)
	}

	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = cfg.Channels
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = framesPerChunk
	return portaudio.OpenStream(params, callback)
}

// Devices lists available audio input devices.
func (o *PortAudioOpener) Devices() ([]Device, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	defaultInfo, _ := portaudio.DefaultInputDevice()

	var out []Device
	for i, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, Device{
			Index:      i,
			Name:       info.Name,
			Channels:   info.MaxInputChannels,
			SampleRate: info.DefaultSampleRate,
			Default:    defaultInfo != nil && info.Name == defaultInfo.Name,
		})
	}
	return out, nil
}

func (o *PortAudioOpener) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.refs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("portaudio init: %w", err)
		}
	}
	o.refs++
	return nil
}

func (o *PortAudioOpener) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refs--
	if o.refs == 0 {
		_ = portaudio.Terminate()
	}
}

type paStream struct {
	stream *portaudio.Stream
	opener *PortAudioOpener
	once   sync.Once
}

func (s *paStream) Start() error {
	return s.stream.Start()
}

func (s *paStream) Stop() error {
	return s.stream.Stop()
}

func (s *paStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.stream.Close()
		s.opener.release()
	})
	return err
}
