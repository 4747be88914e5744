// Package audio holds the decoded-sample model for preview clips and the
// loader that fetches and decodes them.
package audio

import "time"

const (
	// DeviceRate is the sample rate the output device is opened at.
	// Buffers decoded at other rates are resampled on the way out.
	DeviceRate = 44100

	// OpusRate is the rate the Opus decoder always produces.
	OpusRate = 48000

	// MaxPreviewBytes bounds how much of a remote asset is read. Previews
	// are 30-second clips, typically well under 1 MiB.
	MaxPreviewBytes = 16 << 20
)

// AssetReference identifies a playable remote preview plus its display
// metadata. Immutable once resolved.
type AssetReference struct {
	ID           string
	PreviewURL   string
	Title        string
	Artist       string
	Contributors []string
}

// Buffer is the decoded PCM for one preview clip: stereo float64 frames at
// the source sample rate. Mono sources are stored with both channels equal;
// Channels reports the source channel count so analysis can account for it.
// A Buffer is owned by the session that loaded it and never shared.
type Buffer struct {
	frames   [][2]float64
	rate     int
	channels int
}

// NewBuffer wraps decoded frames. rate is the source sample rate in Hz,
// channels the source channel count (1 or 2).
func NewBuffer(frames [][2]float64, rate, channels int) *Buffer {
	return &Buffer{frames: frames, rate: rate, channels: channels}
}

// Frames returns the underlying sample frames. Callers must not mutate them.
func (b *Buffer) Frames() [][2]float64 { return b.frames }

// Rate returns the sample rate in Hz.
func (b *Buffer) Rate() int { return b.rate }

// Channels returns the source channel count.
func (b *Buffer) Channels() int { return b.channels }

// Len returns the number of sample frames.
func (b *Buffer) Len() int { return len(b.frames) }

// Duration returns the clip length.
func (b *Buffer) Duration() time.Duration {
	if b.rate == 0 {
		return 0
	}
	return time.Duration(len(b.frames)) * time.Second / time.Duration(b.rate)
}
