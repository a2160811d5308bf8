package audio

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/arami-app/practice-engine/pkg/core"
)

// The microphone is a single exclusive resource: one active recorder at a
// time, process-wide.
var micInUse atomic.Bool

// InputDevice is the OS-level audio input handle passed into a Recorder.
// Implementations deliver raw PCM16LE mono frames to the data callback
// between Start and Stop.
type InputDevice interface {
	// Start acquires the device and begins delivering captured frames.
	Start(onData func(pcm []byte)) error

	// Stop releases the device. It must be safe to call after a failed Start.
	Stop() error

	// SampleRate returns the capture sample rate in Hz.
	SampleRate() int
}

// Payload is a finalized capture encoded for transmission.
type Payload struct {
	Base64   string
	MIMEType string
}

// CaptureResult resolves exactly once with the finalized payload or a capture
// error, replacing callback-style delivery.
type CaptureResult struct {
	done    chan struct{}
	payload Payload
	err     error
}

func newCaptureResult() *CaptureResult {
	return &CaptureResult{done: make(chan struct{})}
}

func (r *CaptureResult) resolve(p Payload, err error) {
	r.payload = p
	r.err = err
	close(r.done)
}

// Done returns a channel closed when the result is available.
func (r *CaptureResult) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the capture is finalized or ctx is cancelled.
func (r *CaptureResult) Wait(ctx context.Context) (Payload, error) {
	select {
	case <-r.done:
		return r.payload, r.err
	case <-ctx.Done():
		return Payload{}, ctx.Err()
	}
}

type recorderState int

const (
	recorderIdle recorderState = iota
	recorderRecording
)

// Recorder owns one microphone recording at a time. Lifecycle is
// idle → recording → idle; the input device is always released once
// recording ends, regardless of how it ended.
type Recorder struct {
	dev    InputDevice
	logger *slog.Logger

	mu    sync.Mutex
	state recorderState
	buf   bytes.Buffer
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger used for capture diagnostics.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder creates a Recorder bound to an explicit input device handle.
func NewRecorder(dev InputDevice, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		dev:    dev,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins recording. It fails with a permission error when the device
// refuses to open, and with a state error when a recording is already active
// (here or anywhere else in the process).
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.state == recorderRecording {
		r.mu.Unlock()
		return core.NewStateError("a recording is already active")
	}
	if !micInUse.CompareAndSwap(false, true) {
		r.mu.Unlock()
		return core.NewStateError("microphone is in use by another recorder")
	}
	r.state = recorderRecording
	r.buf.Reset()
	r.mu.Unlock()

	err := r.dev.Start(func(pcm []byte) {
		r.mu.Lock()
		if r.state == recorderRecording {
			r.buf.Write(pcm)
		}
		r.mu.Unlock()
	})
	if err != nil {
		// Release the device even though acquisition failed partway.
		_ = r.dev.Stop()
		r.mu.Lock()
		r.state = recorderIdle
		r.mu.Unlock()
		micInUse.Store(false)
		return core.NewPermissionDeniedError("microphone access refused: " + err.Error())
	}
	return nil
}

// Stop finalizes the buffered audio into a single WAV payload and transitions
// back to idle. The returned CaptureResult resolves exactly once.
func (r *Recorder) Stop() *CaptureResult {
	result := newCaptureResult()

	r.mu.Lock()
	if r.state != recorderRecording {
		r.mu.Unlock()
		result.resolve(Payload{}, core.NewStateError("no recording is active"))
		return result
	}
	r.state = recorderIdle
	pcm := make([]byte, r.buf.Len())
	copy(pcm, r.buf.Bytes())
	r.buf.Reset()
	// Release the exclusivity flag together with the state flip so the next
	// recorder can start while this device handle is still winding down. The
	// state check in the data callback keeps stale frames out of the buffer.
	micInUse.Store(false)
	r.mu.Unlock()

	stopErr := r.dev.Stop()

	if stopErr != nil {
		r.logger.Warn("input device did not stop cleanly", "error", stopErr)
	}

	wav := WrapWAV(pcm, r.dev.SampleRate(), DefaultChannels)
	payload, err := FromCapture(bytes.NewReader(wav))
	if err != nil {
		result.resolve(Payload{}, err)
		return result
	}

	result.resolve(Payload{Base64: payload, MIMEType: "audio/wav"}, nil)
	return result
}

// Recording reports whether a capture is currently active on this recorder.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == recorderRecording
}
