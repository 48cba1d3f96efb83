package audio

import (
	"fmt"
	"math"
	"time"
)

// Waveform is an immutable block of interleaved PCM samples in [-1, 1].
// Every operation returns a new Waveform; slices share the backing array,
// so nothing in this package writes to samples after construction.
type Waveform struct {
	samples    []float64
	sampleRate int
	channels   int
}

// NewWaveform builds a waveform from interleaved samples.
// The samples are copied.
func NewWaveform(samples []float64, sampleRate, channels int) (*Waveform, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %d: %w", sampleRate, ErrInvalidFormat)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count %d: %w", channels, ErrInvalidFormat)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("%d samples do not divide into %d channels: %w",
			len(samples), channels, ErrInvalidFormat)
	}
	cp := make([]float64, len(samples))
	copy(cp, samples)
	return &Waveform{samples: cp, sampleRate: sampleRate, channels: channels}, nil
}

// Silence returns a zero-valued waveform lasting d, rounded to the nearest frame.
func Silence(d time.Duration, sampleRate, channels int) *Waveform {
	return silenceFrames(FramesFor(d, sampleRate), sampleRate, channels)
}

func silenceFrames(frames, sampleRate, channels int) *Waveform {
	if frames < 0 {
		frames = 0
	}
	return &Waveform{
		samples:    make([]float64, frames*channels),
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// FramesFor converts a duration to the nearest whole frame count at rate.
func FramesFor(d time.Duration, rate int) int {
	return int(math.Round(d.Seconds() * float64(rate)))
}

// durationOf converts a frame count to a duration at rate.
func durationOf(frames, rate int) time.Duration {
	return time.Duration(int64(frames) * int64(time.Second) / int64(rate))
}

// SampleRate returns frames per second.
func (w *Waveform) SampleRate() int { return w.sampleRate }

// Channels returns the interleaved channel count.
func (w *Waveform) Channels() int { return w.channels }

// Frames returns the number of sample frames.
func (w *Waveform) Frames() int { return len(w.samples) / w.channels }

// IsEmpty reports whether the waveform has no frames.
func (w *Waveform) IsEmpty() bool { return len(w.samples) == 0 }

// Duration returns the playing time of the waveform.
func (w *Waveform) Duration() time.Duration { return durationOf(w.Frames(), w.sampleRate) }

// At returns the sample of channel ch at frame.
func (w *Waveform) At(frame, ch int) float64 { return w.samples[frame*w.channels+ch] }

// Samples returns a copy of the interleaved samples.
func (w *Waveform) Samples() []float64 {
	cp := make([]float64, len(w.samples))
	copy(cp, w.samples)
	return cp
}

// SameFormat reports whether o has the same sample rate and channel count.
func (w *Waveform) SameFormat(o *Waveform) bool {
	return w.sampleRate == o.sampleRate && w.channels == o.channels
}

// Slice returns frames [start, end), clamped to the waveform bounds.
func (w *Waveform) Slice(start, end int) *Waveform {
	n := w.Frames()
	start = min(max(start, 0), n)
	end = min(max(end, start), n)
	return &Waveform{
		samples:    w.samples[start*w.channels : end*w.channels : end*w.channels],
		sampleRate: w.sampleRate,
		channels:   w.channels,
	}
}

// PadEnd appends frames of silence.
func (w *Waveform) PadEnd(frames int) *Waveform {
	if frames <= 0 {
		return w
	}
	out := make([]float64, len(w.samples)+frames*w.channels)
	copy(out, w.samples)
	return &Waveform{samples: out, sampleRate: w.sampleRate, channels: w.channels}
}

// TrimEnd drops frames from the tail.
func (w *Waveform) TrimEnd(frames int) *Waveform {
	if frames <= 0 {
		return w
	}
	return w.Slice(0, w.Frames()-frames)
}

// FitFrames pads or trims the tail so the waveform is exactly n frames long.
func (w *Waveform) FitFrames(n int) *Waveform {
	cur := w.Frames()
	switch {
	case n > cur:
		return w.PadEnd(n - cur)
	case n < cur:
		return w.TrimEnd(cur - n)
	default:
		return w
	}
}

// Gain scales every sample by db decibels. Samples are not clipped.
func (w *Waveform) Gain(db float64) *Waveform {
	if db == 0 {
		return w
	}
	g := dbToGain(db)
	out := make([]float64, len(w.samples))
	for i, s := range w.samples {
		out[i] = s * g
	}
	return &Waveform{samples: out, sampleRate: w.sampleRate, channels: w.channels}
}

// Equal reports whether both waveforms carry identical format and samples.
func (w *Waveform) Equal(o *Waveform) bool {
	if !w.SameFormat(o) || len(w.samples) != len(o.samples) {
		return false
	}
	for i := range w.samples {
		if w.samples[i] != o.samples[i] {
			return false
		}
	}
	return true
}

// Concat joins waveforms end to end. All parts must share one format.
func Concat(parts ...*Waveform) (*Waveform, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat: %w", ErrEmptyWaveform)
	}
	first := parts[0]
	total := 0
	for i, p := range parts {
		if !p.SameFormat(first) {
			return nil, fmt.Errorf("part %d is %d Hz/%d ch, want %d Hz/%d ch: %w",
				i, p.sampleRate, p.channels, first.sampleRate, first.channels, ErrFormatMismatch)
		}
		total += len(p.samples)
	}
	out := make([]float64, 0, total)
	for _, p := range parts {
		out = append(out, p.samples...)
	}
	return &Waveform{samples: out, sampleRate: first.sampleRate, channels: first.channels}, nil
}

func dbToGain(db float64) float64 {
	return math.Pow(10, db/20)
}
