package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

// MalgoInput is an InputDevice backed by the default system microphone.
type MalgoInput struct {
	ctx        *malgo.AllocatedContext
	sampleRate int
	channels   int

	mu     sync.Mutex
	device *malgo.Device
}

// NewMalgoInput initializes the audio backend and returns a microphone handle
// capturing PCM16 mono at the given sample rate.
func NewMalgoInput(sampleRate, channels int) (*MalgoInput, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	return &MalgoInput{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// SampleRate returns the capture sample rate in Hz.
func (m *MalgoInput) SampleRate() int { return m.sampleRate }

// Start opens the capture device and begins delivering frames to onData.
func (m *MalgoInput) Start(onData func(pcm []byte)) error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.channels)
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			// malgo reuses the sample slice between callbacks.
			frame := make([]byte, len(pInputSamples))
			copy(frame, pInputSamples)
			onData(frame)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start microphone: %w", err)
	}

	m.mu.Lock()
	m.device = device
	m.mu.Unlock()
	return nil
}

// Stop releases the capture device. Safe to call after a failed Start.
func (m *MalgoInput) Stop() error {
	m.mu.Lock()
	device := m.device
	m.device = nil
	m.mu.Unlock()

	if device == nil {
		return nil
	}
	err := device.Stop()
	device.Uninit()
	return err
}

// Close tears down the audio backend context.
func (m *MalgoInput) Close() error {
	_ = m.Stop()
	if err := m.ctx.Uninit(); err != nil {
		return err
	}
	m.ctx.Free()
	return nil
}

// OtoOutput is an OutputDevice backed by the default system speaker.
type OtoOutput struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
}

// NewOtoOutput initializes the speaker for PCM16 output at the given sample
// rate. The ~100ms buffer trades latency against glitch risk.
func NewOtoOutput(sampleRate, channels int) (*OtoOutput, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}

	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}
	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	return &OtoOutput{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Play schedules pcm for output and returns immediately. Each call creates an
// independent player; concurrent playback is allowed.
func (o *OtoOutput) Play(pcm []byte, onDone func()) error {
	player := o.ctx.NewPlayer(bytes.NewReader(pcm))
	player.Play()

	go func() {
		for player.IsPlaying() {
			time.Sleep(50 * time.Millisecond)
		}
		_ = player.Close()
		if onDone != nil {
			onDone()
		}
	}()
	return nil
}
