package player

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacbz/lisztnup/internal/loudness"
)

func TestSimpleNoTap(t *testing.T) {
	b := NewSimpleBackend(&captureOutput{}, zerolog.Nop())
	if b.Tap() != nil {
		t.Error("simple backend reported a tap, want nil")
	}
}

func TestSimpleUsesFallbackVolume(t *testing.T) {
	out := &captureOutput{}
	b := NewSimpleBackend(out, zerolog.Nop())
	defer b.Stop()

	buf := constBuffer(1000, 5000)
	profile := loudness.Gain{Value: 4, FallbackVolume: 0.25}
	if err := b.Start(buf, profile, 0, 5*time.Second, func() {}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	chunk := make([][2]float64, 10)
	out.streamer.Stream(chunk)
	if chunk[0][0] != 0.25 {
		t.Errorf("amplitude = %f, want fallback volume 0.25", chunk[0][0])
	}
}

func TestSimpleFadeInRamp(t *testing.T) {
	out := &captureOutput{}
	b := NewSimpleBackend(out, zerolog.Nop())
	defer b.Stop()

	buf := constBuffer(1000, 5000)
	if err := b.Start(buf, loudness.Gain{FallbackVolume: 0.8}, 0, 5*time.Second, func() {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The session's opening fade: drop to silence, ramp back up to the
	// full fallback level over 300 ms.
	b.SetGain(0)
	b.ScheduleGainRamp(1, 0, 300*time.Millisecond)

	chunk := make([][2]float64, 4)
	out.streamer.Stream(chunk)
	if chunk[0][0] != 0 {
		t.Errorf("amplitude at ramp start = %f, want 0", chunk[0][0])
	}

	b.mu.Lock()
	mid := b.volumeAtLocked(150 * time.Millisecond)
	end := b.volumeAtLocked(400 * time.Millisecond)
	b.mu.Unlock()
	if math.Abs(mid-0.4) > 1e-9 {
		t.Errorf("mid-ramp volume = %f, want 0.4 (half of 0.8)", mid)
	}
	if end != 0.8 {
		t.Errorf("post-ramp volume = %f, want 0.8", end)
	}
}

func TestSimpleEndsAtCutoff(t *testing.T) {
	out := &captureOutput{}
	b := NewSimpleBackend(out, zerolog.Nop())

	buf := constBuffer(1000, 5000)
	ended := make(chan struct{})
	if err := b.Start(buf, loudness.Gain{FallbackVolume: 1}, 0, 150*time.Millisecond, func() { close(ended) }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-ended:
	case <-time.After(3 * time.Second):
		t.Fatal("end callback never fired")
	}
	if got := b.Position(); got != 150*time.Millisecond {
		t.Errorf("position after cutoff = %s, want the limit", got)
	}
}

func TestSimpleStopIdempotent(t *testing.T) {
	out := &captureOutput{}
	b := NewSimpleBackend(out, zerolog.Nop())

	buf := constBuffer(1000, 5000)
	if err := b.Start(buf, loudness.Gain{FallbackVolume: 1}, 0, 5*time.Second, func() {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	b.Stop()
	b.Stop()
	if out.cleared != 1 {
		t.Errorf("output cleared %d times, want 1", out.cleared)
	}
}

func TestSimplePositionTracksWallClock(t *testing.T) {
	out := &captureOutput{}
	b := NewSimpleBackend(out, zerolog.Nop())
	defer b.Stop()

	buf := constBuffer(1000, 5000)
	offset := 2 * time.Second
	if err := b.Start(buf, loudness.Gain{FallbackVolume: 1}, offset, 5*time.Second, func() {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pos := b.Position()
	if pos < offset || pos > offset+500*time.Millisecond {
		t.Errorf("position = %s, want just past %s", pos, offset)
	}
}
