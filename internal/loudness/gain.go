package loudness

import "math"

const (
	// TargetLUFS is the playback loudness target (EBU R128 broadcast).
	TargetLUFS = -23.0

	// MaxGain caps the compensating gain so near-silent or corrupt clips
	// are not amplified destructively.
	MaxGain = 5.0
)

// Gain is the playback gain derived from one measurement. Computed once per
// load and never mutated.
type Gain struct {
	// Measured is the integrated loudness the profile was derived from.
	Measured float64

	// Value is the linear gain bringing Measured to TargetLUFS, capped
	// at MaxGain.
	Value float64

	// FallbackVolume is a saturating [0,1] stand-in for backends that
	// cannot amplify above unity. Monotonic in Value.
	FallbackVolume float64
}

// ComputeGain derives the gain profile for a measured loudness.
func ComputeGain(measured float64) Gain {
	gain := math.Pow(10, (TargetLUFS-measured)/20)
	if gain > MaxGain {
		gain = MaxGain
	}
	return Gain{
		Measured:       measured,
		Value:          gain,
		FallbackVolume: math.Min(1, gain/2),
	}
}
