// Package audio implements capture, playback and codec transforms for the
// engine's transport audio format: base64-encoded PCM16 little-endian,
// mono, 24kHz.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/arami-app/practice-engine/pkg/core"
)

const (
	// DefaultSampleRate is the fixed sample rate of synthesized speech.
	DefaultSampleRate = 24000

	// DefaultChannels is the channel count of transport audio (mono).
	DefaultChannels = 1

	bytesPerSample = 2
)

// PlaybackBuffer is a decoded sample buffer ready for audible output.
// Samples are normalized to [-1.0, 1.0].
type PlaybackBuffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the buffer length in seconds.
func (b *PlaybackBuffer) Duration() float64 {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate*b.Channels)
}

// Decode converts a base64 transport payload into raw bytes.
func Decode(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, core.NewDecodeError("payload is not valid base64", err)
	}
	return data, nil
}

// Encode converts raw bytes into a base64 transport payload.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// ToPlaybackBuffer interprets data as signed 16-bit little-endian linear PCM
// and normalizes each sample to floating point by dividing by 32768.0.
// The sample count is exactly len(data)/2 for mono input.
func ToPlaybackBuffer(data []byte, sampleRate, channels int) (*PlaybackBuffer, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	if len(data)%bytesPerSample != 0 {
		return nil, core.NewFormatError(fmt.Sprintf("PCM16 byte length %d is not a multiple of 2", len(data)))
	}

	samples := make([]float32, len(data)/bytesPerSample)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
		samples[i] = float32(s) / 32768.0
	}

	return &PlaybackBuffer{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

// FromPlaybackBuffer converts normalized samples back into PCM16LE bytes.
func FromPlaybackBuffer(buf *PlaybackBuffer) []byte {
	out := make([]byte, len(buf.Samples)*bytesPerSample)
	for i, v := range buf.Samples {
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(int16(v*32767.0)))
	}
	return out
}

// FromCapture reads a captured audio blob fully into memory and encodes it as
// a base64 transport payload.
func FromCapture(blob io.Reader) (string, error) {
	data, err := io.ReadAll(blob)
	if err != nil {
		return "", core.NewEncodeError("reading captured audio", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// WrapWAV prepends a canonical 44-byte RIFF/WAVE header to raw PCM16 data so
// the payload is self-describing for the speech collaborators.
func WrapWAV(pcm []byte, sampleRate, channels int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}

	byteRate := sampleRate * channels * bytesPerSample
	blockAlign := channels * bytesPerSample

	out := make([]byte, 44+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], 16) // bits per sample
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}
