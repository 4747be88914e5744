package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacbz/lisztnup/internal/audio"
	"github.com/jacbz/lisztnup/internal/loudness"
)

// simplePollInterval is how often the fallback backend checks the wall
// clock for the cutoff and for pending gain ramps.
const simplePollInterval = 100 * time.Millisecond

// SimpleBackend is the degraded strategy for hosts where the precise path
// is unavailable. Position comes from the wall clock, the cutoff and gain
// ramps are approximated by a polling goroutine, and there is no frequency
// tap. Loudness-compensated gain is replaced by the conservative fallback
// volume baked into the profile.
type SimpleBackend struct {
	out Output
	log zerolog.Logger

	mu      sync.Mutex
	str     *simpleStreamer
	started time.Time
	offset  time.Duration
	limit   time.Duration
	lastPos time.Duration
	target  float64
	base    float64 // volume absent any ramp
	ramps   []simpleRamp
	onEnded func()
	stop    chan struct{}
}

type simpleRamp struct {
	from, to   float64
	start, end time.Duration
}

// NewSimpleBackend creates the wall-clock fallback strategy.
func NewSimpleBackend(out Output, log zerolog.Logger) *SimpleBackend {
	return &SimpleBackend{
		out: out,
		log: log.With().Str("backend", "simple").Logger(),
	}
}

func (b *SimpleBackend) Start(buf *audio.Buffer, profile loudness.Gain, offset, limit time.Duration, onEnded func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.str != nil {
		return fmt.Errorf("simple backend already started")
	}

	rate := buf.Rate()
	start := clampSamples(durToSamples(offset, rate), buf.Len())
	b.str = &simpleStreamer{
		frames: buf.Frames(),
		pos:    start,
		volume: profile.FallbackVolume,
	}
	b.started = time.Now()
	b.offset = samplesToDur(start, rate)
	b.limit = limit
	b.target = profile.FallbackVolume
	b.base = profile.FallbackVolume
	b.ramps = nil
	b.onEnded = onEnded
	b.stop = make(chan struct{})
	b.out.Play(rate, b.str)
	go b.poll(b.stop)
	b.log.Debug().
		Dur("offset", offset).
		Dur("limit", limit).
		Float64("volume", profile.FallbackVolume).
		Msg("output started")
	return nil
}

func (b *SimpleBackend) Stop() {
	b.mu.Lock()
	if b.str == nil {
		b.mu.Unlock()
		return
	}
	b.lastPos = b.positionLocked()
	b.str = nil
	b.onEnded = nil
	close(b.stop)
	b.mu.Unlock()
	b.out.Clear()
}

func (b *SimpleBackend) SetGain(fraction float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ramps = nil
	b.base = fraction * b.target
	if b.str != nil {
		b.str.setVolume(b.base)
	}
}

func (b *SimpleBackend) ScheduleGainRamp(fraction float64, at, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.str == nil {
		return
	}
	end := at + duration
	if end <= at {
		end = at + simplePollInterval
	}
	b.ramps = append(b.ramps, simpleRamp{
		from:  b.volumeAtLocked(at),
		to:    fraction * b.target,
		start: at,
		end:   end,
	})
}

func (b *SimpleBackend) Position() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.str == nil {
		return b.lastPos
	}
	return b.positionLocked()
}

// Tap reports nil: the fallback path has no access to the sample stream
// timing needed for a useful spectrum.
func (b *SimpleBackend) Tap() *Tap { return nil }

func (b *SimpleBackend) positionLocked() time.Duration {
	pos := b.offset + time.Since(b.started)
	if pos > b.limit {
		pos = b.limit
	}
	return pos
}

func (b *SimpleBackend) volumeAtLocked(pos time.Duration) float64 {
	v := b.base
	for _, r := range b.ramps {
		switch {
		case pos >= r.end:
			v = r.to
		case pos >= r.start:
			t := float64(pos-r.start) / float64(r.end-r.start)
			v = r.from + (r.to-r.from)*t
		}
	}
	return v
}

// poll drives the cutoff and ramp approximation. It owns no state; every
// tick re-reads under the lock so Stop and new Starts stay race-free.
func (b *SimpleBackend) poll(stop chan struct{}) {
	ticker := time.NewTicker(simplePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		if b.str == nil {
			b.mu.Unlock()
			return
		}
		pos := b.positionLocked()
		b.str.setVolume(b.volumeAtLocked(pos))
		if pos < b.limit {
			b.mu.Unlock()
			continue
		}
		fire := b.onEnded
		b.lastPos = b.limit
		b.str = nil
		b.onEnded = nil
		b.mu.Unlock()

		b.out.Clear()
		if fire != nil {
			fire()
		}
		return
	}
}

// simpleStreamer plays the buffer at a single, atomically updated volume.
// All timing decisions live in the backend; the streamer just emits frames
// until it runs out.
type simpleStreamer struct {
	mu     sync.Mutex
	frames [][2]float64
	pos    int
	volume float64
}

func (s *simpleStreamer) Stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range samples {
		if s.pos >= len(s.frames) {
			break
		}
		f := s.frames[s.pos]
		samples[i] = [2]float64{f[0] * s.volume, f[1] * s.volume}
		s.pos++
		n++
	}
	if n == 0 {
		return 0, false
	}
	return n, true
}

func (s *simpleStreamer) Err() error { return nil }

func (s *simpleStreamer) setVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}
