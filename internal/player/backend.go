package player

import (
	"time"

	"github.com/jacbz/lisztnup/internal/audio"
	"github.com/jacbz/lisztnup/internal/loudness"
)

// Backend is one playback execution strategy. The session is agnostic to
// which strategy is active: both honor the same contract for state
// transitions and timing.
//
// Gain fractions are relative to the backend's own target level (the true
// computed gain for the precise backend, the saturating fallback volume for
// the simple one). Fades therefore read the same against either backend:
// 0 is silent and 1 is the normalized playback level.
type Backend interface {
	// Start begins output of buf at the given track offset, stopping at
	// the limit (or the end of data, whichever comes first) and then
	// invoking onEnded exactly once. A prior Start must have been
	// stopped first.
	Start(buf *audio.Buffer, profile loudness.Gain, offset, limit time.Duration, onEnded func()) error

	// Stop halts output immediately and discards any scheduled ramps.
	// No onEnded fires after Stop returns. Idempotent.
	Stop()

	// SetGain sets the output level immediately to the given fraction.
	SetGain(fraction float64)

	// ScheduleGainRamp linearly ramps the level to fraction over
	// duration, beginning when playback reaches track position at.
	ScheduleGainRamp(fraction float64, at, duration time.Duration)

	// Position reports the current track offset. After Stop it reports
	// the offset at which output halted.
	Position() time.Duration

	// Tap returns the frequency-analysis tap, or nil when the strategy
	// does not support one.
	Tap() *Tap
}
