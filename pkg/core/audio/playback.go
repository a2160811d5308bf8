package audio

import (
	"log/slog"

	"github.com/arami-app/practice-engine/pkg/core"
)

// OutputDevice is the OS-level audio output handle passed into a Player.
// The output device is not exclusive; each Play call owns its buffer.
type OutputDevice interface {
	// Play schedules pcm (PCM16LE) for audible output and returns without
	// waiting. onDone, if non-nil, is invoked when output naturally ends.
	Play(pcm []byte, onDone func()) error
}

// Player renders decoded sample buffers audibly. Playback is fire-and-forget:
// callers must not assume synchronous completion.
type Player struct {
	dev    OutputDevice
	logger *slog.Logger
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithPlayerLogger sets the logger used for playback diagnostics.
func WithPlayerLogger(l *slog.Logger) PlayerOption {
	return func(p *Player) { p.logger = l }
}

// NewPlayer creates a Player bound to an explicit output device handle.
func NewPlayer(dev OutputDevice, opts ...PlayerOption) *Player {
	p := &Player{
		dev:    dev,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play schedules buf for immediate output. A device failure is reported and
// logged but is not fatal to the caller. onDone may be nil.
func (p *Player) Play(buf *PlaybackBuffer, onDone func()) error {
	if p.dev == nil {
		err := core.NewStateError("no audio output device available")
		p.logger.Warn("playback skipped", "error", err)
		return err
	}
	if buf == nil || len(buf.Samples) == 0 {
		return nil
	}

	if err := p.dev.Play(FromPlaybackBuffer(buf), onDone); err != nil {
		p.logger.Warn("playback failed", "error", err)
		return core.NewStateError("audio output failed: " + err.Error())
	}
	return nil
}
