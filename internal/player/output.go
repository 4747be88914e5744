// Package player contains the playback session state machine and the two
// backend strategies that execute it.
package player

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/jacbz/lisztnup/internal/audio"
)

// Output delivers a sample stream to the host's audio device. Backends are
// written against this interface so they can be driven without hardware.
type Output interface {
	// Play starts pulling s, which produces samples at the given rate.
	Play(rate int, s beep.Streamer)

	// Clear stops whatever is playing. Must be synchronous.
	Clear()
}

// SpeakerOutput plays through the default audio device, resampling to
// DeviceRate when the source rate differs. The speaker is initialized once,
// on first use.
type SpeakerOutput struct {
	once sync.Once
	err  error
}

// NewSpeakerOutput creates a SpeakerOutput.
func NewSpeakerOutput() *SpeakerOutput {
	return &SpeakerOutput{}
}

func (o *SpeakerOutput) Play(rate int, s beep.Streamer) {
	o.once.Do(func() {
		sr := beep.SampleRate(audio.DeviceRate)
		o.err = speaker.Init(sr, sr.N(100*time.Millisecond))
	})
	if o.err != nil {
		return
	}
	if rate != audio.DeviceRate {
		s = beep.Resample(4, beep.SampleRate(rate), beep.SampleRate(audio.DeviceRate), s)
	}
	speaker.Play(s)
}

func (o *SpeakerOutput) Clear() {
	speaker.Clear()
}

// Err reports the speaker initialization error, if any.
func (o *SpeakerOutput) Err() error {
	return o.err
}
