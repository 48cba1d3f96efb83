package audio

import (
	"fmt"
	"time"
)

// CorrectionAction is what Synchronize did to one converted chunk.
type CorrectionAction int

// Correction actions.
const (
	CorrectionNone CorrectionAction = iota
	CorrectionPad
	CorrectionTrim
)

func (a CorrectionAction) String() string {
	switch a {
	case CorrectionPad:
		return "pad"
	case CorrectionTrim:
		return "trim"
	default:
		return "none"
	}
}

// Correction records the drift of one converted chunk.
// Delta is original minus converted duration.
type Correction struct {
	Index  int
	Delta  time.Duration
	Action CorrectionAction
}

// SyncResult is the reassembled track plus per-chunk corrections.
type SyncResult struct {
	Track       *Waveform
	Corrections []Correction
}

// Corrected returns the number of chunks that were padded or trimmed.
func (r *SyncResult) Corrected() int {
	n := 0
	for _, c := range r.Corrections {
		if c.Action != CorrectionNone {
			n++
		}
	}
	return n
}

// Synchronize pairs converted chunks with original chunk durations by
// position and concatenates them. With correctDrift set, a converted
// chunk shorter than its original by more than DriftEpsilon is padded
// with trailing silence, and one longer by more than DriftEpsilon is
// trimmed from the tail, so it ends up exactly the original length.
// Converted chunks must all share one format.
func Synchronize(originals []time.Duration, converted []*Waveform, correctDrift bool) (*Waveform, error) {
	res, err := SynchronizeReport(originals, converted, correctDrift)
	if err != nil {
		return nil, err
	}
	return res.Track, nil
}

// SynchronizeReport is Synchronize returning the per-chunk corrections too.
func SynchronizeReport(originals []time.Duration, converted []*Waveform, correctDrift bool) (*SyncResult, error) {
	if len(originals) != len(converted) {
		return nil, &CorrelationMismatchError{Original: len(originals), Converted: len(converted)}
	}
	if len(converted) == 0 {
		return nil, fmt.Errorf("synchronize: %w", ErrEmptyWaveform)
	}

	parts := make([]*Waveform, len(converted))
	corrections := make([]Correction, len(converted))
	for i, conv := range converted {
		if !conv.SameFormat(converted[0]) {
			return nil, fmt.Errorf("converted chunk %d is %d Hz/%d ch, want %d Hz/%d ch: %w",
				i, conv.sampleRate, conv.channels,
				converted[0].sampleRate, converted[0].channels, ErrFormatMismatch)
		}
		delta := originals[i] - conv.Duration()
		corrections[i] = Correction{Index: i, Delta: delta}
		parts[i] = conv
		if !correctDrift {
			continue
		}
		switch {
		case delta > DriftEpsilon:
			corrections[i].Action = CorrectionPad
			parts[i] = conv.FitFrames(FramesFor(originals[i], conv.sampleRate))
		case delta < -DriftEpsilon:
			corrections[i].Action = CorrectionTrim
			parts[i] = conv.FitFrames(FramesFor(originals[i], conv.sampleRate))
		}
	}

	track, err := Concat(parts...)
	if err != nil {
		return nil, err
	}
	return &SyncResult{Track: track, Corrections: corrections}, nil
}
