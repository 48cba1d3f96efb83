package audio_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redub/redub/internal/audio"
)

// testRate keeps synthetic signals small; detection works on frames so
// the rate does not change any outcome.
const testRate = 8000

// tone returns a mono 220 Hz sine lasting d.
func tone(t *testing.T, d time.Duration, amp float64) *audio.Waveform {
	t.Helper()
	n := audio.FramesFor(d, testRate)
	s := make([]float64, n)
	for i := range s {
		s[i] = amp * math.Sin(2*math.Pi*220*float64(i)/testRate)
	}
	w, err := audio.NewWaveform(s, testRate, 1)
	require.NoError(t, err)
	return w
}

// quiet returns mono digital silence lasting d.
func quiet(d time.Duration) *audio.Waveform {
	return audio.Silence(d, testRate, 1)
}

// constant returns a waveform whose every sample is v.
func constant(t *testing.T, d time.Duration, v float64, channels int) *audio.Waveform {
	t.Helper()
	n := audio.FramesFor(d, testRate) * channels
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	w, err := audio.NewWaveform(s, testRate, channels)
	require.NoError(t, err)
	return w
}

func join(t *testing.T, parts ...*audio.Waveform) *audio.Waveform {
	t.Helper()
	w, err := audio.Concat(parts...)
	require.NoError(t, err)
	return w
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func sec(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }

// requirePartition checks that segments tile [0, frames) with no gap or overlap.
func requirePartition(t *testing.T, segs []audio.Segment, frames int) {
	t.Helper()
	require.NotEmpty(t, segs)
	require.Equal(t, 0, segs[0].Start, "first segment must start at 0")
	for i := 1; i < len(segs); i++ {
		require.Equal(t, segs[i-1].End, segs[i].Start, "gap or overlap before segment %d", i)
	}
	require.Equal(t, frames, segs[len(segs)-1].End, "last segment must end at source end")
	for i, s := range segs {
		require.Positive(t, s.Frames(), "segment %d is empty", i)
	}
}

// requireChunkPartition checks the same property on a ChunkSet.
func requireChunkPartition(t *testing.T, set *audio.ChunkSet) {
	t.Helper()
	segs := make([]audio.Segment, len(set.Chunks))
	for i, c := range set.Chunks {
		require.Equal(t, i, c.Index)
		segs[i] = audio.Segment{Start: c.Start, End: c.End}
	}
	requirePartition(t, segs, set.Source.Frames())
}
