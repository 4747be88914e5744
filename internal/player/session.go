package player

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jacbz/lisztnup/internal/audio"
	"github.com/jacbz/lisztnup/internal/loudness"
)

// State is the lifecycle stage of a playback session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

const (
	// MinTrackLength and MaxTrackLength bound the configurable excerpt
	// length. MaxPlayback additionally caps playback regardless of the
	// configured length or the material's own duration.
	MinTrackLength = 5 * time.Second
	MaxTrackLength = 30 * time.Second
	MaxPlayback    = 30 * time.Second

	// FadeDuration is the linear fade applied when playback starts and
	// again just before the cutoff.
	FadeDuration = 300 * time.Millisecond
)

// ErrSuperseded reports that a load was abandoned because a newer load or
// a destroy arrived while it was in flight.
var ErrSuperseded = errors.New("load superseded")

// SourceLoader fetches and decodes one track. *audio.Loader satisfies it.
type SourceLoader interface {
	Load(ctx context.Context, ref audio.AssetReference) (*audio.Buffer, audio.AssetReference, error)
}

// Session drives one track at a time through load, loudness analysis and
// gated playback. All methods are safe for concurrent use; transitions are
// serialized by a single lock, and slow work (fetching, decoding,
// measuring) happens outside it guarded by a generation counter so that
// only the newest load can commit.
type Session struct {
	id      string
	log     zerolog.Logger
	loader  SourceLoader
	backend Backend

	mu          sync.Mutex
	state       State
	buf         *audio.Buffer
	ref         audio.AssetReference
	profile     loudness.Gain
	trackLength time.Duration
	pausedAt    time.Duration
	gen         uint64
	epoch       uint64
	cancelLoad  context.CancelFunc
	onEnded     func()
}

// NewSession creates a session in the idle state.
func NewSession(loader SourceLoader, backend Backend, trackLength time.Duration, log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		log:         log.With().Str("component", "session").Str("session", id).Logger(),
		loader:      loader,
		backend:     backend,
		state:       StateIdle,
		trackLength: clampTrackLength(trackLength),
	}
}

// ID returns the session's identity, stable for its lifetime.
func (s *Session) ID() string { return s.id }

// SetTrackLength changes the excerpt length, clamped to the allowed range.
// It affects the next play; it does not cut short a running one.
func (s *Session) SetTrackLength(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackLength = clampTrackLength(d)
}

// OnEnded registers a callback invoked exactly once each time a playthrough
// runs to its cutoff. It fires after the session has settled in the ended
// state and runs outside the session lock, so it may call back into the
// session. A nil fn clears the registration.
func (s *Session) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// Load fetches, decodes and measures a track, then parks the session in
// the ready state. Any in-flight load and any current playback are torn
// down first. If another Load or Destroy arrives while this one is still
// working, the late result is discarded and ErrSuperseded is returned.
func (s *Session) Load(ctx context.Context, ref audio.AssetReference) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	s.stopPlaybackLocked()
	s.buf = nil
	s.pausedAt = 0
	s.state = StateLoading
	s.ref = ref
	s.mu.Unlock()

	s.log.Debug().Str("track", ref.ID).Msg("loading track")

	buf, meta, err := s.loader.Load(loadCtx, ref)
	var profile loudness.Gain
	if err == nil {
		profile = loudness.ComputeGain(loudness.Measure(buf))
	}
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrSuperseded
	}
	if err != nil {
		s.state = StateIdle
		s.log.Warn().Err(err).Str("track", ref.ID).Msg("load failed")
		return err
	}
	s.buf = buf
	s.ref = meta
	s.profile = profile
	s.state = StateReady
	s.log.Info().
		Str("track", meta.ID).
		Dur("duration", buf.Duration()).
		Float64("lufs", profile.Measured).
		Float64("gain", profile.Value).
		Msg("track ready")
	return nil
}

// Play starts or resumes playback. From the ready and ended states it
// starts at the beginning; from paused it resumes where playback stopped.
// In any other state it is a logged no-op.
func (s *Session) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady, StateEnded:
		s.startLocked(0, true)
	case StatePaused:
		s.startLocked(s.pausedAt, true)
	default:
		s.log.Warn().Stringer("state", s.state).Msg("play ignored")
	}
}

// Pause suspends playback, remembering the position. Outside the playing
// state it is a logged no-op.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		s.log.Warn().Stringer("state", s.state).Msg("pause ignored")
		return
	}
	s.pausedAt = s.backend.Position()
	s.stopPlaybackLocked()
	s.state = StatePaused
}

// Seek moves the playhead, clamped to the playable window. While playing
// it restarts output at the new position without a fade-in; while paused
// it just moves the stored position. Otherwise it is a logged no-op.
func (s *Session) Seek(offset time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePlaying:
		offset = clampOffset(offset, s.effectiveLengthLocked())
		s.stopPlaybackLocked()
		s.startLocked(offset, false)
	case StatePaused:
		s.pausedAt = clampOffset(offset, s.effectiveLengthLocked())
	default:
		s.log.Warn().Stringer("state", s.state).Msg("seek ignored")
	}
}

// Replay restarts the current track from the beginning, with the fades and
// the cutoff re-armed. Valid while playing, paused or ended; in any other
// state it is a logged no-op.
func (s *Session) Replay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePlaying, StatePaused, StateEnded:
		s.stopPlaybackLocked()
		s.pausedAt = 0
		s.startLocked(0, true)
	default:
		s.log.Warn().Stringer("state", s.state).Msg("replay ignored")
	}
}

// Destroy tears the session down synchronously: any in-flight load is
// abandoned, output stops, and the session returns to idle. It never
// blocks on the network and is safe to call repeatedly and from any state.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.stopPlaybackLocked()
	s.buf = nil
	s.ref = audio.AssetReference{}
	s.pausedAt = 0
	s.state = StateIdle
}

// Snapshot is a point-in-time view of the session for display.
type Snapshot struct {
	State    State
	Playing  bool
	Track    audio.AssetReference
	Position time.Duration
	Length   time.Duration
	Progress float64
	Spectrum []float64
}

// Snapshot reports the current state without disturbing it.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:   s.state,
		Playing: s.state == StatePlaying,
		Track:   s.ref,
		Length:  s.effectiveLengthLocked(),
	}
	switch s.state {
	case StatePlaying:
		snap.Position = s.backend.Position()
		if tap := s.backend.Tap(); tap != nil {
			snap.Spectrum = tap.Magnitudes()
		}
	case StatePaused:
		snap.Position = s.pausedAt
	case StateEnded:
		snap.Position = snap.Length
	}
	if snap.Length > 0 {
		snap.Progress = math.Min(1, float64(snap.Position)/float64(snap.Length))
	}
	return snap
}

// startLocked begins output at the given offset. Callers hold the lock and
// have verified a buffer exists.
func (s *Session) startLocked(offset time.Duration, fadeIn bool) {
	if s.buf == nil {
		s.log.Warn().Msg("play ignored, no track loaded")
		return
	}
	length := s.effectiveLengthLocked()
	offset = clampOffset(offset, length)

	s.epoch++
	epoch := s.epoch
	gen := s.gen
	onEnded := func() { s.finished(gen, epoch) }

	if err := s.backend.Start(s.buf, s.profile, offset, length, onEnded); err != nil {
		s.log.Error().Err(err).Msg("backend start failed")
		return
	}
	if fadeIn {
		s.backend.SetGain(0)
		s.backend.ScheduleGainRamp(1, offset, FadeDuration)
	}
	// The closing fade only fits when the remaining window can hold both
	// fades without them overlapping.
	if length-offset > 2*FadeDuration {
		s.backend.ScheduleGainRamp(0, length-FadeDuration, FadeDuration)
	}
	s.state = StatePlaying
}

// finished is the backend's end-of-playback callback. The generation and
// epoch guards drop callbacks from playthroughs that were already stopped,
// replaced or destroyed.
func (s *Session) finished(gen, epoch uint64) {
	s.mu.Lock()
	if s.gen != gen || s.epoch != epoch || s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	s.backend.Stop()
	s.pausedAt = s.effectiveLengthLocked()
	s.state = StateEnded
	s.log.Debug().Str("track", s.ref.ID).Msg("playback ended")
	fn := s.onEnded
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// stopPlaybackLocked halts output if any is running. Bumping the epoch
// invalidates the pending end callback of the stopped playthrough.
func (s *Session) stopPlaybackLocked() {
	if s.state == StatePlaying {
		s.epoch++
		s.backend.Stop()
	}
}

// effectiveLengthLocked is how much of the loaded track a playthrough may
// cover: the configured excerpt length, capped by the material itself and
// by the hard playback ceiling.
func (s *Session) effectiveLengthLocked() time.Duration {
	length := s.trackLength
	if s.buf != nil && s.buf.Duration() < length {
		length = s.buf.Duration()
	}
	if length > MaxPlayback {
		length = MaxPlayback
	}
	return length
}

func clampTrackLength(d time.Duration) time.Duration {
	if d < MinTrackLength {
		return MinTrackLength
	}
	if d > MaxTrackLength {
		return MaxTrackLength
	}
	return d
}

func clampOffset(offset, length time.Duration) time.Duration {
	if offset < 0 {
		return 0
	}
	if offset > length {
		return length
	}
	return offset
}
