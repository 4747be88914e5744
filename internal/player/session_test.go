package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacbz/lisztnup/internal/audio"
	"github.com/jacbz/lisztnup/internal/loudness"
)

// --- test doubles ---

type startCall struct {
	offset, limit time.Duration
}

// fakeBackend records backend calls and lets tests drive position and the
// end-of-playback callback by hand.
type fakeBackend struct {
	mu      sync.Mutex
	starts  []startCall
	stops   int
	ramps   []time.Duration
	pos     time.Duration
	onEnded func()
	running bool
}

func (f *fakeBackend) Start(buf *audio.Buffer, profile loudness.Gain, offset, limit time.Duration, onEnded func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, startCall{offset, limit})
	f.onEnded = onEnded
	f.pos = offset
	f.running = true
	return nil
}

func (f *fakeBackend) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

func (f *fakeBackend) SetGain(fraction float64) {}

func (f *fakeBackend) ScheduleGainRamp(fraction float64, at, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ramps = append(f.ramps, at)
}

func (f *fakeBackend) Position() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeBackend) Tap() *Tap { return nil }

func (f *fakeBackend) setPos(d time.Duration) {
	f.mu.Lock()
	f.pos = d
	f.mu.Unlock()
}

func (f *fakeBackend) ended() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onEnded
}

func (f *fakeBackend) lastStart(t *testing.T) startCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.starts) == 0 {
		t.Fatal("backend was never started")
	}
	return f.starts[len(f.starts)-1]
}

// stubLoader serves a fixed buffer, optionally blocking until released so
// tests can overlap loads deterministically.
type stubLoader struct {
	buf   *audio.Buffer
	err   error
	block chan struct{} // nil means return immediately
}

func (l *stubLoader) Load(ctx context.Context, ref audio.AssetReference) (*audio.Buffer, audio.AssetReference, error) {
	if l.block != nil {
		select {
		case <-l.block:
		case <-ctx.Done():
			return nil, ref, ctx.Err()
		}
	}
	if l.err != nil {
		return nil, ref, l.err
	}
	return l.buf, ref, nil
}

// toneBuffer returns a quiet constant-signal buffer of the given length.
func toneBuffer(d time.Duration) *audio.Buffer {
	n := int(d * 44100 / time.Second)
	frames := make([][2]float64, n)
	for i := range frames {
		frames[i] = [2]float64{0.1, 0.1}
	}
	return audio.NewBuffer(frames, 44100, 2)
}

func newTestSession(loader SourceLoader, backend Backend, length time.Duration) *Session {
	return NewSession(loader, backend, length, zerolog.Nop())
}

// --- loading ---

func TestLoadReady(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(&stubLoader{buf: toneBuffer(10 * time.Second)}, backend, 20*time.Second)

	if err := s.Load(context.Background(), audio.AssetReference{ID: "1"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := s.Snapshot()
	if snap.State != StateReady {
		t.Errorf("state = %s, want ready", snap.State)
	}
	// Material shorter than the configured length caps the window.
	if snap.Length != 10*time.Second {
		t.Errorf("length = %s, want 10s", snap.Length)
	}
}

func TestLoadFailure(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(&stubLoader{err: audio.ErrDecode}, backend, 20*time.Second)

	err := s.Load(context.Background(), audio.AssetReference{ID: "1"})
	if !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("Load error = %v, want decode error", err)
	}
	if got := s.Snapshot().State; got != StateIdle {
		t.Errorf("state after failed load = %s, want idle", got)
	}
}

func TestLoadSuperseded(t *testing.T) {
	backend := &fakeBackend{}
	first := &stubLoader{buf: toneBuffer(10 * time.Second), block: make(chan struct{})}
	s := newTestSession(first, backend, 20*time.Second)

	firstErr := make(chan error, 1)
	go func() { firstErr <- s.Load(context.Background(), audio.AssetReference{ID: "a"}) }()

	// Wait for the first load to be in flight, then start a second one.
	// The session only hands out one loader, so swap in a fast path by
	// releasing the block after the second load has bumped the counter.
	waitForState(t, s, StateLoading)
	second := make(chan error, 1)
	go func() { second <- s.Load(context.Background(), audio.AssetReference{ID: "b"}) }()

	// The second load blocks on the same stub; release both.
	close(first.block)

	if err := <-second; err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first Load error = %v, want ErrSuperseded", err)
	}
	snap := s.Snapshot()
	if snap.State != StateReady || snap.Track.ID != "b" {
		t.Errorf("state = %s track = %q, want ready with track b", snap.State, snap.Track.ID)
	}
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Snapshot().State == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session never reached state %s", want)
}

// --- transport controls ---

func loadedSession(t *testing.T, backend Backend, trackSeconds, lengthSeconds int) *Session {
	t.Helper()
	s := newTestSession(
		&stubLoader{buf: toneBuffer(time.Duration(trackSeconds) * time.Second)},
		backend,
		time.Duration(lengthSeconds)*time.Second,
	)
	if err := s.Load(context.Background(), audio.AssetReference{ID: "t"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestPlayFromReady(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)

	s.Play()
	if got := s.Snapshot().State; got != StatePlaying {
		t.Fatalf("state = %s, want playing", got)
	}
	start := backend.lastStart(t)
	if start.offset != 0 || start.limit != 20*time.Second {
		t.Errorf("started at %s limit %s, want 0 and 20s", start.offset, start.limit)
	}
	// Opening fade plus the closing fade before the cutoff.
	if len(backend.ramps) != 2 {
		t.Errorf("scheduled %d ramps, want 2", len(backend.ramps))
	}
}

func TestPlayIgnoredWhileIdle(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(&stubLoader{}, backend, 20*time.Second)

	s.Play()
	if got := s.Snapshot().State; got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
	if len(backend.starts) != 0 {
		t.Errorf("backend started %d times, want 0", len(backend.starts))
	}
}

func TestPauseAndResume(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)

	s.Play()
	backend.setPos(7 * time.Second)
	s.Pause()

	snap := s.Snapshot()
	if snap.State != StatePaused || snap.Position != 7*time.Second {
		t.Fatalf("after pause: state = %s position = %s", snap.State, snap.Position)
	}

	// Pausing again is a no-op.
	s.Pause()
	if backend.stops != 1 {
		t.Errorf("backend stopped %d times, want 1", backend.stops)
	}

	s.Play()
	if start := backend.lastStart(t); start.offset != 7*time.Second {
		t.Errorf("resumed at %s, want 7s", start.offset)
	}
}

func TestSeekWhilePaused(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)
	s.Play()
	s.Pause()

	s.Seek(50 * time.Second)
	if got := s.Snapshot().Position; got != 20*time.Second {
		t.Errorf("position after overshooting seek = %s, want clamp to 20s", got)
	}

	s.Seek(-5 * time.Second)
	if got := s.Snapshot().Position; got != 0 {
		t.Errorf("position after negative seek = %s, want 0", got)
	}
}

func TestSeekWhilePlayingRestartsWithoutFadeIn(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)
	s.Play()
	rampsAfterPlay := len(backend.ramps)

	s.Seek(10 * time.Second)
	if got := s.Snapshot().State; got != StatePlaying {
		t.Fatalf("state = %s, want playing", got)
	}
	if start := backend.lastStart(t); start.offset != 10*time.Second {
		t.Errorf("restarted at %s, want 10s", start.offset)
	}
	// Only the closing fade gets scheduled on a seek restart.
	if got := len(backend.ramps) - rampsAfterPlay; got != 1 {
		t.Errorf("seek scheduled %d ramps, want 1", got)
	}
}

func TestSeekIgnoredWhileReady(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)

	s.Seek(10 * time.Second)
	snap := s.Snapshot()
	if snap.State != StateReady || snap.Position != 0 {
		t.Errorf("after seek in ready: state = %s position = %s", snap.State, snap.Position)
	}
}

// --- end of playback ---

func TestPlaybackEnds(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)
	s.Play()

	backend.ended()()
	snap := s.Snapshot()
	if snap.State != StateEnded {
		t.Fatalf("state = %s, want ended", snap.State)
	}
	if snap.Position != snap.Length || snap.Progress != 1 {
		t.Errorf("position = %s progress = %f, want full", snap.Position, snap.Progress)
	}

	// Replay starts over from the top.
	s.Play()
	if start := backend.lastStart(t); start.offset != 0 {
		t.Errorf("replay started at %s, want 0", start.offset)
	}
	if got := s.Snapshot().State; got != StatePlaying {
		t.Errorf("state after replay = %s, want playing", got)
	}
}

func TestStaleEndCallbackIgnored(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)
	s.Play()
	stale := backend.ended()
	s.Pause()

	// The callback belongs to the stopped playthrough and must not flip
	// the paused session to ended.
	stale()
	if got := s.Snapshot().State; got != StatePaused {
		t.Errorf("state = %s, want paused", got)
	}
}

// --- replay ---

func TestReplayFromPlaying(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)
	s.Play()
	backend.setPos(12 * time.Second)
	rampsAfterPlay := len(backend.ramps)

	s.Replay()
	if got := s.Snapshot().State; got != StatePlaying {
		t.Fatalf("state = %s, want playing", got)
	}
	if start := backend.lastStart(t); start.offset != 0 || start.limit != 20*time.Second {
		t.Errorf("replay started at %s limit %s, want 0 and 20s", start.offset, start.limit)
	}
	// Unlike a seek restart, a replay re-arms the opening fade too.
	if got := len(backend.ramps) - rampsAfterPlay; got != 2 {
		t.Errorf("replay scheduled %d ramps, want 2", got)
	}
	if got := s.Snapshot().Progress; got != 0 {
		t.Errorf("progress after replay = %f, want 0", got)
	}
}

func TestReplayFromPausedAndEnded(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)
	s.Play()
	backend.setPos(9 * time.Second)
	s.Pause()

	s.Replay()
	if start := backend.lastStart(t); start.offset != 0 {
		t.Errorf("replay from paused started at %s, want 0", start.offset)
	}

	backend.ended()()
	if got := s.Snapshot().State; got != StateEnded {
		t.Fatalf("state = %s, want ended", got)
	}
	s.Replay()
	if got := s.Snapshot().State; got != StatePlaying {
		t.Errorf("state after replay from ended = %s, want playing", got)
	}
	if start := backend.lastStart(t); start.offset != 0 {
		t.Errorf("replay from ended started at %s, want 0", start.offset)
	}
}

func TestReplayIgnoredWhileReady(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)

	s.Replay()
	if got := s.Snapshot().State; got != StateReady {
		t.Errorf("state = %s, want ready", got)
	}
	if len(backend.starts) != 0 {
		t.Errorf("backend started %d times, want 0", len(backend.starts))
	}
}

// --- end callback ---

func TestOnEndedFiresOncePerPlaythrough(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)
	fired := 0
	s.OnEnded(func() { fired++ })

	s.Play()
	cb := backend.ended()
	cb()
	if fired != 1 {
		t.Fatalf("callback fired %d times, want 1", fired)
	}

	// The stale callback of the finished playthrough must not fire again.
	cb()
	if fired != 1 {
		t.Errorf("callback fired %d times after stale invocation, want 1", fired)
	}

	// A fresh playthrough gets its own single invocation.
	s.Replay()
	backend.ended()()
	if fired != 2 {
		t.Errorf("callback fired %d times after second playthrough, want 2", fired)
	}
}

func TestOnEndedNotFiredForStoppedPlaythrough(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)
	fired := 0
	s.OnEnded(func() { fired++ })

	s.Play()
	stale := backend.ended()
	s.Pause()
	stale()
	if fired != 0 {
		t.Errorf("callback fired %d times for a paused playthrough, want 0", fired)
	}
}

// --- teardown ---

func TestDestroy(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)
	s.Play()

	s.Destroy()
	snap := s.Snapshot()
	if snap.State != StateIdle || snap.Track.ID != "" {
		t.Errorf("after destroy: state = %s track = %q", snap.State, snap.Track.ID)
	}
	if backend.running {
		t.Error("backend still running after destroy")
	}

	// Destroy is idempotent.
	s.Destroy()
	if got := s.Snapshot().State; got != StateIdle {
		t.Errorf("state after double destroy = %s, want idle", got)
	}
}

func TestDestroyAbandonsLoad(t *testing.T) {
	backend := &fakeBackend{}
	loader := &stubLoader{buf: toneBuffer(time.Second * 10), block: make(chan struct{})}
	s := newTestSession(loader, backend, 20*time.Second)

	result := make(chan error, 1)
	go func() { result <- s.Load(context.Background(), audio.AssetReference{ID: "x"}) }()
	waitForState(t, s, StateLoading)

	s.Destroy()
	if err := <-result; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Load after destroy = %v, want ErrSuperseded", err)
	}
	if got := s.Snapshot().State; got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

// --- configuration ---

func TestTrackLengthClamped(t *testing.T) {
	backend := &fakeBackend{}
	s := loadedSession(t, backend, 60, 20)

	s.SetTrackLength(time.Second)
	if got := s.Snapshot().Length; got != MinTrackLength {
		t.Errorf("length after too-short setting = %s, want %s", got, MinTrackLength)
	}

	s.SetTrackLength(2 * time.Minute)
	if got := s.Snapshot().Length; got != MaxTrackLength {
		t.Errorf("length after too-long setting = %s, want %s", got, MaxTrackLength)
	}
}
