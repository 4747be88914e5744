// Package loudness measures the perceived loudness of a decoded clip
// (ITU-R BS.1770-4, simplified single pass) and derives the playback gain
// that brings it to the broadcast target.
package loudness

import (
	"math"

	"github.com/jacbz/lisztnup/internal/audio"
)

const (
	// SilenceFloorLUFS is reported whenever gating leaves nothing to
	// average: all-silent input, clips shorter than one gating block, and
	// numerical edge cases all land here.
	SilenceFloorLUFS = -70.0

	// absoluteGateLUFS discards blocks at or below this loudness.
	absoluteGateLUFS = -70.0

	// relativeGateLU is subtracted from the provisional integrated value
	// to form the second gate threshold. The constant is fixed regardless
	// of how many blocks survive the absolute gate; with a single
	// survivor the relative gate is trivially satisfied.
	relativeGateLU = 10.0

	// blockMillis is the gating block length; blocks overlap by 75%.
	blockMillis = 400
)

// Biquad filter coefficients.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// Biquad filter state, one per channel per stage.
type biquadState struct {
	z1, z2 float64
}

func (s *biquadState) process(b *biquad, in float64) float64 {
	out := b.b0*in + s.z1
	s.z1 = b.b1*in - b.a1*out + s.z2
	s.z2 = b.b2*in - b.a2*out
	return out
}

// kWeightingFilters computes the two K-weighting stages for the given
// sample rate from the BS.1770 analog prototypes: a high shelf modelling
// the acoustic effect of the head, then the RLB high pass.
func kWeightingFilters(sampleRate int) (pre, rlb biquad) {
	fs := float64(sampleRate)

	// Pre-filter (high shelf), ~+4 dB above 1681.97 Hz.
	f0 := 1681.974450955533
	gain := 3.999843853973347
	q := 0.7071752369554196

	k := math.Tan(math.Pi * f0 / fs)
	vh := math.Pow(10, gain/20)
	vb := math.Pow(vh, 0.4996667741545416)

	a0 := 1 + k/q + k*k
	pre.b0 = (vh + vb*k/q + k*k) / a0
	pre.b1 = 2 * (k*k - vh) / a0
	pre.b2 = (vh - vb*k/q + k*k) / a0
	pre.a1 = 2 * (k*k - 1) / a0
	pre.a2 = (1 - k/q + k*k) / a0

	// RLB weighting (high pass), corner 38.14 Hz.
	f0 = 38.13547087602444
	q = 0.5003270373238773

	k = math.Tan(math.Pi * f0 / fs)

	a0 = 1 + k/q + k*k
	rlb.b0 = 1 / a0
	rlb.b1 = -2 / a0
	rlb.b2 = 1 / a0
	rlb.a1 = 2 * (k*k - 1) / a0
	rlb.a2 = (1 - k/q + k*k) / a0

	return pre, rlb
}

// blockLoudness converts summed channel power to LUFS.
func blockLoudness(power float64) float64 {
	return -0.691 + 10*math.Log10(power)
}

// Measure returns the integrated loudness of buf in LUFS. It is a pure
// function of the buffer contents and sample rate: one causal K-weighting
// pass over the whole clip, then 400 ms blocks at 75% overlap, gated
// absolutely at -70 LUFS and relatively at 10 LU under the provisional
// average, with power-domain averaging throughout. Channels are summed with
// equal weight.
func Measure(buf *audio.Buffer) float64 {
	rate := buf.Rate()
	blockLen := rate * blockMillis / 1000
	if blockLen == 0 || buf.Len() < blockLen {
		return SilenceFloorLUFS
	}
	step := blockLen / 4

	channels := buf.Channels()
	if channels > 2 {
		channels = 2
	}

	// Offline K-weighting pass. cum[ch][i] holds the running sum of
	// squared filtered samples so block powers fall out in O(1).
	pre, rlb := kWeightingFilters(rate)
	frames := buf.Frames()
	cum := make([][]float64, channels)
	for ch := 0; ch < channels; ch++ {
		var preState, rlbState biquadState
		sums := make([]float64, len(frames)+1)
		for i, frame := range frames {
			filtered := rlbState.process(&rlb, preState.process(&pre, frame[ch]))
			sums[i+1] = sums[i] + filtered*filtered
		}
		cum[ch] = sums
	}

	// Per-block power: per-channel mean square, summed across channels.
	var powers []float64
	for start := 0; start+blockLen <= len(frames); start += step {
		var power float64
		for ch := 0; ch < channels; ch++ {
			power += (cum[ch][start+blockLen] - cum[ch][start]) / float64(blockLen)
		}
		powers = append(powers, power)
	}

	// Absolute gate.
	gated := powers[:0]
	for _, p := range powers {
		if blockLoudness(p) > absoluteGateLUFS {
			gated = append(gated, p)
		}
	}
	if len(gated) == 0 {
		return SilenceFloorLUFS
	}

	provisional := blockLoudness(meanPower(gated))

	// Relative gate.
	threshold := provisional - relativeGateLU
	final := gated[:0]
	for _, p := range gated {
		if blockLoudness(p) > threshold {
			final = append(final, p)
		}
	}
	if len(final) == 0 {
		return SilenceFloorLUFS
	}

	integrated := blockLoudness(meanPower(final))
	if math.IsNaN(integrated) || math.IsInf(integrated, 0) {
		return SilenceFloorLUFS
	}
	return integrated
}

func meanPower(powers []float64) float64 {
	var sum float64
	for _, p := range powers {
		sum += p
	}
	return sum / float64(len(powers))
}
