package audio

import (
	"fmt"
	"math"
	"time"
)

// Default silence parameters.
const (
	DefaultMinSilenceLen = 350 * time.Millisecond
	DefaultThreshold     = -48.0
)

// Relaxation schedule used when a segment is still too long after detection.
const (
	relaxSilenceStep    = 10 * time.Millisecond
	relaxThresholdStep  = 5.0
	minSilenceFloor     = 50 * time.Millisecond
	maxThresholdCeiling = -16.0
	maxSplitDepth       = 32
)

// detectStep is the hop between analysis windows.
const detectStep = time.Millisecond

// SilenceParams tunes silence detection.
type SilenceParams struct {
	// MinSilenceLen is the shortest quiet run that counts as a gap.
	MinSilenceLen time.Duration
	// Threshold is the RMS level in dBFS at or below which a window is quiet.
	Threshold float64
}

// DefaultSilenceParams returns 350ms at -48 dBFS.
func DefaultSilenceParams() SilenceParams {
	return SilenceParams{MinSilenceLen: DefaultMinSilenceLen, Threshold: DefaultThreshold}
}

// Validate rejects non-positive lengths and thresholds that are NaN or above 0 dBFS.
func (p SilenceParams) Validate() error {
	if p.MinSilenceLen <= 0 {
		return fmt.Errorf("min silence length %v must be positive: %w", p.MinSilenceLen, ErrInvalidParams)
	}
	if math.IsNaN(p.Threshold) || p.Threshold > 0 {
		return fmt.Errorf("threshold %v dBFS must be <= 0: %w", p.Threshold, ErrInvalidParams)
	}
	return nil
}

// Relax loosens the parameters one level: 10ms shorter, 5 dB louder.
// Each bound is honored on its own: the length stops at a 50ms floor and
// the threshold at a -16 dBFS ceiling, and a value already past its bound
// is left alone. It reports false only when neither can move.
func (p SilenceParams) Relax() (SilenceParams, bool) {
	next, moved := p, false
	if p.MinSilenceLen > minSilenceFloor {
		next.MinSilenceLen = max(p.MinSilenceLen-relaxSilenceStep, minSilenceFloor)
		moved = true
	}
	if p.Threshold < maxThresholdCeiling {
		next.Threshold = math.Min(p.Threshold+relaxThresholdStep, maxThresholdCeiling)
		moved = true
	}
	return next, moved
}

// Segment is a frame span [Start, End) of a source waveform.
type Segment struct {
	Start int
	End   int
	// Silent marks a span with no detected sound.
	Silent bool
	// Irreducible marks an over-long span that could not be split further.
	Irreducible bool
}

// Frames returns the span length.
func (s Segment) Frames() int { return s.End - s.Start }

// Duration returns the span length at rate.
func (s Segment) Duration(rate int) time.Duration { return durationOf(s.Frames(), rate) }

// DetectSilence partitions w into contiguous segments, each holding one
// sound region plus half of the silence on either side of it. Cuts fall
// at silence midpoints, so the segments cover w exactly.
func DetectSilence(w *Waveform, p SilenceParams) ([]Segment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if w == nil || w.IsEmpty() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, ErrEmptyWaveform)
	}
	return newPowerIndex(w).detect(0, w.Frames(), p), nil
}

// powerIndex holds prefix sums of per-frame power so any window's mean
// power is an O(1) lookup.
type powerIndex struct {
	prefix []float64
	rate   int
	chans  int
}

func newPowerIndex(w *Waveform) *powerIndex {
	n := w.Frames()
	prefix := make([]float64, n+1)
	for f := 0; f < n; f++ {
		var sum float64
		base := f * w.channels
		for c := 0; c < w.channels; c++ {
			s := w.samples[base+c]
			sum += s * s
		}
		prefix[f+1] = prefix[f] + sum
	}
	return &powerIndex{prefix: prefix, rate: w.sampleRate, chans: w.channels}
}

// quiet reports whether frames [start, start+win) sit at or below power.
func (x *powerIndex) quiet(start, win int, power float64) bool {
	mean := (x.prefix[start+win] - x.prefix[start]) / float64(win*x.chans)
	return mean <= power
}

// silences returns merged silent ranges, relative to start, within [start, end).
func (x *powerIndex) silences(start, end int, p SilenceParams) [][2]int {
	n := end - start
	win := max(FramesFor(p.MinSilenceLen, x.rate), 1)
	if n < win {
		return nil
	}
	step := max(FramesFor(detectStep, x.rate), 1)
	power := math.Pow(10, p.Threshold/10)

	var ranges [][2]int
	prev := -1
	open := -1

	last := n - win
	visit := func(i int) {
		if !x.quiet(start+i, win, power) {
			return
		}
		if prev == -1 {
			open = i
		} else if i > prev+win {
			// Gap is wider than one window: close the running range.
			ranges = append(ranges, [2]int{open, prev + win})
			open = i
		}
		prev = i
	}
	for i := 0; i <= last; i += step {
		visit(i)
	}
	if last%step != 0 {
		visit(last)
	}
	if prev != -1 {
		ranges = append(ranges, [2]int{open, prev + win})
	}
	return ranges
}

// detect partitions [start, end) into sound-centred segments.
func (x *powerIndex) detect(start, end int, p SilenceParams) []Segment {
	n := end - start
	quiet := x.silences(start, end, p)
	if len(quiet) == 0 {
		return []Segment{{Start: start, End: end}}
	}
	if quiet[0][0] == 0 && quiet[0][1] == n {
		return []Segment{{Start: start, End: end, Silent: true}}
	}

	// Sound regions are the complement of the quiet ranges.
	var sound [][2]int
	prevEnd := 0
	for _, q := range quiet {
		if q[0] > prevEnd {
			sound = append(sound, [2]int{prevEnd, q[0]})
		}
		prevEnd = q[1]
	}
	if prevEnd < n {
		sound = append(sound, [2]int{prevEnd, n})
	}

	segments := make([]Segment, 0, len(sound))
	cut := 0
	for i := range sound {
		next := n
		if i+1 < len(sound) {
			next = (sound[i][1] + sound[i+1][0]) / 2
		}
		segments = append(segments, Segment{Start: start + cut, End: start + next})
		cut = next
	}
	return segments
}
