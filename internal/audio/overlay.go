package audio

import "fmt"

// Overlay mixes vocal over instrumental after applying each track's gain
// in dB. A mono track is spread to every channel of the other. The result
// lasts as long as the longer input, the shorter one being treated as
// silent past its end, and is clipped to [-1, 1].
func Overlay(vocal, instrumental *Waveform, vocalGainDB, instrumentalGainDB int) (*Waveform, error) {
	if vocal.sampleRate != instrumental.sampleRate {
		return nil, fmt.Errorf("vocal %d Hz, instrumental %d Hz: %w",
			vocal.sampleRate, instrumental.sampleRate, ErrFormatMismatch)
	}
	channels := max(vocal.channels, instrumental.channels)
	for _, w := range []*Waveform{vocal, instrumental} {
		if w.channels != channels && w.channels != 1 {
			return nil, fmt.Errorf("cannot mix %d channels into %d: %w",
				w.channels, channels, ErrFormatMismatch)
		}
	}

	vg := dbToGain(float64(vocalGainDB))
	ig := dbToGain(float64(instrumentalGainDB))
	frames := max(vocal.Frames(), instrumental.Frames())
	out := make([]float64, frames*channels)
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			s := sampleOrZero(vocal, f, c)*vg + sampleOrZero(instrumental, f, c)*ig
			out[f*channels+c] = clip(s)
		}
	}
	return &Waveform{samples: out, sampleRate: vocal.sampleRate, channels: channels}, nil
}

func sampleOrZero(w *Waveform, frame, ch int) float64 {
	if frame >= w.Frames() {
		return 0
	}
	if w.channels == 1 {
		ch = 0
	}
	return w.At(frame, ch)
}

func clip(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}
