package audio

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Assembler turns a waveform into chunks no longer than a max duration,
// cutting only inside detected silences.
type Assembler struct {
	log logrus.FieldLogger
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithLogger sets the logger for split and integrity events.
func WithLogger(l logrus.FieldLogger) AssemblerOption {
	return func(a *Assembler) {
		if l != nil {
			a.log = l
		}
	}
}

// NewAssembler creates an Assembler. Without WithLogger it logs to the
// logrus standard logger.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble partitions w into a ChunkSet.
//
// A waveform no longer than maxDuration comes back as a single chunk.
// Otherwise segments from DetectSilence are merged greedily while the
// running total stays strictly below maxDuration; oversized segments are
// split with progressively relaxed parameters. A segment that cannot be
// split below maxDuration is kept whole and flagged irreducible.
func (a *Assembler) Assemble(w *Waveform, maxDuration time.Duration, p SilenceParams) (*ChunkSet, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if w == nil || w.IsEmpty() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, ErrEmptyWaveform)
	}
	if maxDuration <= 0 {
		return nil, fmt.Errorf("max duration %v must be positive: %w", maxDuration, ErrInvalidParams)
	}

	n := w.Frames()
	maxFrames := FramesFor(maxDuration, w.sampleRate)
	if n <= maxFrames {
		return newChunkSet(w, maxDuration, []Segment{{Start: 0, End: n}}), nil
	}

	idx := newPowerIndex(w)
	segments := idx.detect(0, n, p)
	a.log.WithFields(logrus.Fields{
		"segments":      len(segments),
		"min_silence":   p.MinSilenceLen,
		"threshold_dbs": p.Threshold,
	}).Debug("silence detection done")

	var out []Segment
	var acc Segment
	has := false
	flush := func() {
		if has {
			out = append(out, acc)
			has = false
		}
	}

	for _, seg := range segments {
		if seg.Frames() > maxFrames {
			flush()
			a.log.WithFields(logrus.Fields{
				"start":    durationOf(seg.Start, w.sampleRate),
				"duration": seg.Duration(w.sampleRate),
				"max":      maxDuration,
			}).Warn("segment exceeds max duration, splitting further")
			pieces := a.split(idx, seg, maxFrames, p)
			a.log.WithField("pieces", len(pieces)).Debug("oversized segment split")
			out = append(out, pieces...)
			continue
		}
		if has && acc.Frames()+seg.Frames() < maxFrames {
			acc.End = seg.End
			acc.Silent = acc.Silent && seg.Silent
			continue
		}
		flush()
		acc = seg
		has = true
	}
	flush()

	set := newChunkSet(w, maxDuration, out)
	for _, c := range set.Irreducible() {
		a.log.WithFields(logrus.Fields{
			"chunk":    c.Index,
			"duration": c.Duration(),
			"max":      maxDuration,
		}).Warn("chunk could not be split below max duration")
	}
	if warn, bad := set.verify(); bad {
		a.log.WithFields(logrus.Fields{
			"source": warn.Source,
			"chunks": warn.Chunks,
		}).Warn("chunk durations do not add up to source")
	}
	return set, nil
}
