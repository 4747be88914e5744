package player

import (
	"math"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

// tapSize is the FFT window over recent output samples.
const tapSize = 1024

// Tap exposes a live frequency-magnitude view of the precise backend's
// output, for visualization. It holds the most recent post-gain mono
// samples in a ring and computes magnitudes on demand.
type Tap struct {
	mu     sync.Mutex
	ring   [tapSize]float64
	pos    int
	filled bool
}

func (t *Tap) push(v float64) {
	t.mu.Lock()
	t.ring[t.pos] = v
	t.pos++
	if t.pos == tapSize {
		t.pos = 0
		t.filled = true
	}
	t.mu.Unlock()
}

func (t *Tap) reset() {
	t.mu.Lock()
	t.ring = [tapSize]float64{}
	t.pos = 0
	t.filled = false
	t.mu.Unlock()
}

// Magnitudes returns the spectrum of the last tapSize output samples:
// tapSize/2 bins from DC to Nyquist. Returns nil until a full window has
// been observed.
func (t *Tap) Magnitudes() []float64 {
	t.mu.Lock()
	if !t.filled {
		t.mu.Unlock()
		return nil
	}
	window := make([]float64, tapSize)
	for i := 0; i < tapSize; i++ {
		window[i] = t.ring[(t.pos+i)%tapSize]
	}
	t.mu.Unlock()

	// Hann window keeps block boundaries from smearing the spectrum.
	for i := range window {
		window[i] *= 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(tapSize-1)))
	}

	coeffs := fft.FFTReal(window)
	mags := make([]float64, tapSize/2)
	for i := range mags {
		mags[i] = math.Sqrt(real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i]))
	}
	return mags
}
