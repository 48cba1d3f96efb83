package audio

import (
	"fmt"
	"time"

	"github.com/redub/redub/internal/format"
)

// DriftEpsilon is the tolerance for duration comparisons between
// original and converted audio.
const DriftEpsilon = 10 * time.Millisecond

// Chunk is one contiguous piece of a ChunkSet, addressed in source frames.
type Chunk struct {
	Index       int
	Start       int
	End         int
	Irreducible bool
	rate        int
}

// Frames returns the chunk length in frames.
func (c Chunk) Frames() int { return c.End - c.Start }

// StartTime returns the chunk offset in the source.
func (c Chunk) StartTime() time.Duration { return durationOf(c.Start, c.rate) }

// EndTime returns the chunk end offset in the source.
func (c Chunk) EndTime() time.Duration { return durationOf(c.End, c.rate) }

// Duration returns the playing time of the chunk.
func (c Chunk) Duration() time.Duration { return durationOf(c.Frames(), c.rate) }

// String returns a human-readable representation of the chunk.
func (c Chunk) String() string {
	s := fmt.Sprintf("chunk %d: %s-%s (%s)", c.Index,
		format.Offset(c.StartTime()), format.Offset(c.EndTime()), format.Seconds(c.Duration()))
	if c.Irreducible {
		s += " irreducible"
	}
	return s
}

// ChunkSet is an ordered, gapless partition of a source waveform.
type ChunkSet struct {
	Source      *Waveform
	Chunks      []Chunk
	MaxDuration time.Duration
	// Warnings holds integrity deviations found while assembling.
	Warnings []IntegrityWarning
}

func newChunkSet(src *Waveform, maxDuration time.Duration, segments []Segment) *ChunkSet {
	chunks := make([]Chunk, len(segments))
	for i, s := range segments {
		chunks[i] = Chunk{
			Index:       i,
			Start:       s.Start,
			End:         s.End,
			Irreducible: s.Irreducible,
			rate:        src.sampleRate,
		}
	}
	return &ChunkSet{Source: src, Chunks: chunks, MaxDuration: maxDuration}
}

// Len returns the chunk count.
func (s *ChunkSet) Len() int { return len(s.Chunks) }

// Waveform returns the audio of chunk i.
func (s *ChunkSet) Waveform(i int) *Waveform {
	c := s.Chunks[i]
	return s.Source.Slice(c.Start, c.End)
}

// Durations returns each chunk's duration in order.
func (s *ChunkSet) Durations() []time.Duration {
	out := make([]time.Duration, len(s.Chunks))
	for i, c := range s.Chunks {
		out[i] = c.Duration()
	}
	return out
}

// TotalDuration returns the summed chunk durations.
func (s *ChunkSet) TotalDuration() time.Duration {
	frames := 0
	for _, c := range s.Chunks {
		frames += c.Frames()
	}
	return durationOf(frames, s.Source.sampleRate)
}

// Irreducible returns chunks that exceed MaxDuration.
func (s *ChunkSet) Irreducible() []Chunk {
	var out []Chunk
	for _, c := range s.Chunks {
		if c.Irreducible {
			out = append(out, c)
		}
	}
	return out
}

// CheckIntegrity compares the chunk total with the source duration and
// reports a warning when they differ by more than DriftEpsilon.
func CheckIntegrity(source time.Duration, chunks []time.Duration) (IntegrityWarning, bool) {
	var total time.Duration
	for _, d := range chunks {
		total += d
	}
	w := IntegrityWarning{Source: source, Chunks: total}
	return w, w.Deviation() > DriftEpsilon
}

// verify records an integrity warning on the set when the chunk total
// drifts from the source.
func (s *ChunkSet) verify() (IntegrityWarning, bool) {
	w, bad := CheckIntegrity(s.Source.Duration(), s.Durations())
	if bad {
		s.Warnings = append(s.Warnings, w)
	}
	return w, bad
}
