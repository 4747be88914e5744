package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/gopxl/beep/v2/mp3"
	"gopkg.in/hraban/opus.v2"
	"mccoy.space/g/ogg"
)

// Decode sniffs the container of a fetched asset and decodes it to a Buffer.
// The asset is an opaque compressed byte stream; previews are MP3 in
// practice, with WAV and Ogg/Opus accepted for locally sourced clips.
func Decode(data []byte) (*Buffer, error) {
	switch {
	case len(data) == 0:
		return nil, fmt.Errorf("%w: empty asset", ErrDecode)
	case bytes.HasPrefix(data, []byte("OggS")):
		return decodeOggOpus(data)
	case bytes.HasPrefix(data, []byte("RIFF")):
		return decodeWAV(data)
	default:
		// MP3 streams start with an ID3 tag or a raw frame sync; the
		// decoder rejects anything else.
		return decodeMP3(data)
	}
}

func decodeMP3(data []byte) (*Buffer, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", ErrDecode, err)
	}
	defer streamer.Close()

	frames := make([][2]float64, 0, streamer.Len())
	chunk := make([][2]float64, 4096)
	for {
		n, ok := streamer.Stream(chunk)
		frames = append(frames, chunk[:n]...)
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", ErrDecode, err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: mp3: no audio frames", ErrDecode)
	}
	return NewBuffer(frames, int(format.SampleRate), format.NumChannels), nil
}

func decodeWAV(data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: wav: invalid file", ErrDecode)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: wav: %v", ErrDecode, err)
	}

	channels := pcm.Format.NumChannels
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: wav: unsupported channel count %d", ErrDecode, channels)
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = pcm.SourceBitDepth
	}
	scale := float64(int64(1) << (bitDepth - 1))

	frames := make([][2]float64, 0, len(pcm.Data)/channels)
	for i := 0; i+channels <= len(pcm.Data); i += channels {
		l := float64(pcm.Data[i]) / scale
		r := l
		if channels == 2 {
			r = float64(pcm.Data[i+1]) / scale
		}
		frames = append(frames, [2]float64{l, r})
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: wav: no audio frames", ErrDecode)
	}
	return NewBuffer(frames, pcm.Format.SampleRate, channels), nil
}

// decodeOggOpus walks Ogg pages, reads the channel count from the OpusHead
// packet, and decodes every audio packet at the Opus-native 48 kHz.
func decodeOggOpus(data []byte) (*Buffer, error) {
	pages := ogg.NewDecoder(bytes.NewReader(data))

	var dec *opus.Decoder
	channels := 0
	// 120 ms at 48 kHz stereo is the largest possible Opus frame.
	pcm := make([]int16, 5760*2)
	var frames [][2]float64

	for {
		page, err := pages.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: ogg: %v", ErrDecode, err)
		}

		for _, pkt := range page.Packets {
			switch {
			case bytes.HasPrefix(pkt, []byte("OpusHead")):
				if len(pkt) < 10 {
					return nil, fmt.Errorf("%w: opus: truncated header", ErrDecode)
				}
				channels = int(pkt[9])
				if channels < 1 || channels > 2 {
					return nil, fmt.Errorf("%w: opus: unsupported channel count %d", ErrDecode, channels)
				}
				dec, err = opus.NewDecoder(OpusRate, channels)
				if err != nil {
					return nil, fmt.Errorf("%w: opus: %v", ErrDecode, err)
				}
			case bytes.HasPrefix(pkt, []byte("OpusTags")):
				// Vorbis-style comments; display metadata comes from
				// the asset reference, not the container.
			case dec != nil:
				n, err := dec.Decode(pkt, pcm)
				if err != nil {
					// Damaged packets are skipped; a stream that
					// yields nothing at all fails below.
					continue
				}
				frames = appendPCM16(frames, pcm[:n*channels], channels)
			}
		}
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: opus: no audio frames", ErrDecode)
	}
	return NewBuffer(frames, OpusRate, channels), nil
}

func appendPCM16(frames [][2]float64, pcm []int16, channels int) [][2]float64 {
	for i := 0; i+channels <= len(pcm); i += channels {
		l := float64(pcm[i]) / 32768.0
		r := l
		if channels == 2 {
			r = float64(pcm[i+1]) / 32768.0
		}
		frames = append(frames, [2]float64{l, r})
	}
	return frames
}
