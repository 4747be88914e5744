package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacbz/lisztnup/internal/audio"
	"github.com/jacbz/lisztnup/internal/loudness"
)

// PreciseBackend plays the decoded buffer directly: sample-accurate offsets,
// per-sample gain with scheduled ramps, a cutoff enforced in the sample
// clock rather than by polling, and a live frequency tap.
type PreciseBackend struct {
	out Output
	log zerolog.Logger
	tap Tap

	mu      sync.Mutex
	str     *preciseStreamer
	lastPos time.Duration
}

// NewPreciseBackend creates the default, buffer-based strategy.
func NewPreciseBackend(out Output, log zerolog.Logger) *PreciseBackend {
	return &PreciseBackend{
		out: out,
		log: log.With().Str("backend", "precise").Logger(),
	}
}

func (b *PreciseBackend) Start(buf *audio.Buffer, profile loudness.Gain, offset, limit time.Duration, onEnded func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.str != nil {
		return fmt.Errorf("precise backend already started")
	}

	rate := buf.Rate()
	offsetSamples := clampSamples(durToSamples(offset, rate), buf.Len())
	limitSamples := clampSamples(durToSamples(limit, rate), buf.Len())

	b.tap.reset()
	b.str = &preciseStreamer{
		frames:  buf.Frames(),
		rate:    rate,
		pos:     offsetSamples,
		limit:   limitSamples,
		target:  profile.Value,
		base:    profile.Value,
		tap:     &b.tap,
		onEnded: onEnded,
	}
	b.out.Play(rate, b.str)
	b.log.Debug().
		Dur("offset", offset).
		Dur("limit", limit).
		Float64("gain", profile.Value).
		Msg("output started")
	return nil
}

func (b *PreciseBackend) Stop() {
	b.mu.Lock()
	str := b.str
	b.str = nil
	if str != nil {
		b.lastPos = str.halt()
	}
	b.mu.Unlock()
	if str != nil {
		b.out.Clear()
	}
}

func (b *PreciseBackend) SetGain(fraction float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.str != nil {
		b.str.setGain(fraction)
	}
}

func (b *PreciseBackend) ScheduleGainRamp(fraction float64, at, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.str != nil {
		b.str.scheduleRamp(fraction, at, duration)
	}
}

func (b *PreciseBackend) Position() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.str != nil {
		return b.str.position()
	}
	return b.lastPos
}

func (b *PreciseBackend) Tap() *Tap {
	return &b.tap
}

// gainRamp is a linear gain segment on the track timeline, in samples.
type gainRamp struct {
	from, to   float64
	start, end int
}

// preciseStreamer is the pull-based sample source for one playthrough. The
// output device (or a test) pulls it; all mutation happens under its own
// lock so backend calls from the session side stay safe.
type preciseStreamer struct {
	mu      sync.Mutex
	frames  [][2]float64
	rate    int
	pos     int // track-timeline sample index
	limit   int
	target  float64 // absolute gain for fraction 1
	base    float64 // gain absent any ramp
	ramps   []gainRamp
	tap     *Tap
	onEnded func()
	halted  bool
	ended   bool
}

func (s *preciseStreamer) Stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	if s.halted || s.ended {
		s.mu.Unlock()
		return 0, false
	}

	n := 0
	for i := range samples {
		if s.pos >= s.limit {
			break
		}
		g := s.gainAt(s.pos)
		frame := s.frames[s.pos]
		l, r := frame[0]*g, frame[1]*g
		samples[i] = [2]float64{l, r}
		s.tap.push((l + r) / 2)
		s.pos++
		n++
	}

	var fire func()
	if s.pos >= s.limit && !s.ended {
		s.ended = true
		fire = s.onEnded
	}
	s.mu.Unlock()

	// The callback re-enters the session, which may call back into the
	// output device. Stream itself runs on the device's mixer goroutine,
	// so it must be dispatched rather than called inline.
	if fire != nil {
		go fire()
	}
	if n == 0 {
		return 0, false
	}
	return n, true
}

func (s *preciseStreamer) Err() error { return nil }

// halt stops output and suppresses any pending onEnded. Returns the offset
// at which output halted.
func (s *preciseStreamer) halt() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
	return samplesToDur(s.pos, s.rate)
}

func (s *preciseStreamer) position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return samplesToDur(s.pos, s.rate)
}

func (s *preciseStreamer) setGain(fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = fraction * s.target
	s.ramps = nil
}

func (s *preciseStreamer) scheduleRamp(fraction float64, at, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := durToSamples(at, s.rate)
	end := start + durToSamples(duration, s.rate)
	if end <= start {
		end = start + 1
	}
	s.ramps = append(s.ramps, gainRamp{
		from:  s.gainAt(start),
		to:    fraction * s.target,
		start: start,
		end:   end,
	})
}

// gainAt evaluates the scheduled gain at a track position. Ramps are kept
// in scheduling order; the last one whose window has been reached wins.
func (s *preciseStreamer) gainAt(pos int) float64 {
	g := s.base
	for _, r := range s.ramps {
		switch {
		case pos >= r.end:
			g = r.to
		case pos >= r.start:
			t := float64(pos-r.start) / float64(r.end-r.start)
			g = r.from + (r.to-r.from)*t
		}
	}
	return g
}

func durToSamples(d time.Duration, rate int) int {
	return int(d * time.Duration(rate) / time.Second)
}

func samplesToDur(n, rate int) time.Duration {
	if rate == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

func clampSamples(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}
