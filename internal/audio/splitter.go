package audio

import (
	"time"

	"github.com/sirupsen/logrus"
)

// splitFrame is one level of the relaxation worklist: the pieces still to
// resolve at this level and the pieces already resolved.
type splitFrame struct {
	params  SilenceParams
	depth   int
	pending []Segment
	done    []Segment
}

// Split breaks seg of w into pieces no longer than maxDuration where it
// can. See Assemble for the relaxation rules.
func (a *Assembler) Split(w *Waveform, seg Segment, maxDuration time.Duration, p SilenceParams) []Segment {
	return a.split(newPowerIndex(w), seg, FramesFor(maxDuration, w.sampleRate), p)
}

// split resolves an oversized segment with an explicit stack instead of
// recursion. Each level re-detects with parameters relaxed once more than
// its parent, resolves its own oversized pieces through child levels, then
// rejoins adjacent small pieces before handing them back up.
func (a *Assembler) split(idx *powerIndex, seg Segment, maxFrames int, p SilenceParams) []Segment {
	root, ok := a.descend(idx, seg, p, 1)
	if !ok {
		seg.Irreducible = true
		return []Segment{seg}
	}
	stack := []*splitFrame{root}
	for {
		top := stack[len(stack)-1]
		if len(top.pending) == 0 {
			pieces := rejoin(top.done, maxFrames)
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return pieces
			}
			parent := stack[len(stack)-1]
			parent.done = append(parent.done, pieces...)
			continue
		}

		piece := top.pending[0]
		top.pending = top.pending[1:]
		if piece.Frames() <= maxFrames {
			top.done = append(top.done, piece)
			continue
		}
		if top.depth >= maxSplitDepth {
			piece.Irreducible = true
			top.done = append(top.done, piece)
			continue
		}
		child, ok := a.descend(idx, piece, top.params, top.depth+1)
		if !ok {
			piece.Irreducible = true
			top.done = append(top.done, piece)
			continue
		}
		stack = append(stack, child)
	}
}

// descend opens a new level for seg with params relaxed one step.
// It reports false when the parameters are already at their floor.
func (a *Assembler) descend(idx *powerIndex, seg Segment, p SilenceParams, depth int) (*splitFrame, bool) {
	relaxed, ok := p.Relax()
	if !ok {
		return nil, false
	}
	pending := idx.detect(seg.Start, seg.End, relaxed)
	a.log.WithFields(logrus.Fields{
		"depth":       depth,
		"min_silence": relaxed.MinSilenceLen,
		"threshold":   relaxed.Threshold,
		"pieces":      len(pending),
	}).Debug("relaxed split")
	return &splitFrame{params: relaxed, depth: depth, pending: pending}, true
}

// rejoin greedily merges adjacent pieces while the merged length stays
// strictly below maxFrames. Irreducible pieces are never merged.
func rejoin(pieces []Segment, maxFrames int) []Segment {
	out := make([]Segment, 0, len(pieces))
	var acc Segment
	has := false
	flush := func() {
		if has {
			out = append(out, acc)
			has = false
		}
	}
	for _, p := range pieces {
		if p.Irreducible || p.Frames() > maxFrames {
			flush()
			out = append(out, p)
			continue
		}
		if has && acc.Frames()+p.Frames() < maxFrames {
			acc.End = p.End
			acc.Silent = acc.Silent && p.Silent
			continue
		}
		flush()
		acc = p
		has = true
	}
	flush()
	return out
}
