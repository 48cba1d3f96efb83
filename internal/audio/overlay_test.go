package audio_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redub/redub/internal/audio"
)

// ---------------------------------------------------------------------------
// Overlay - mixing
// ---------------------------------------------------------------------------

func TestOverlay_LengthIsLongerInput(t *testing.T) {
	t.Parallel()

	vocal := tone(t, 10*time.Second, 0.3)
	instrumental := tone(t, 12*time.Second, 0.3)

	out, err := audio.Overlay(vocal, instrumental, 3, -3)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, out.Duration())

	longVocal, err := audio.Overlay(tone(t, 5*time.Second, 0.3), tone(t, 2*time.Second, 0.3), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, longVocal.Duration())
}

func TestOverlay_GainsAreIndependent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		vocalDB   int
		instDB    int
		wantFirst float64
	}{
		{name: "vocal gain with flat instrumental", vocalDB: 6, instDB: 0, wantFirst: 0.1*1.995262 + 0.2},
		{name: "instrumental gain with flat vocal", vocalDB: 0, instDB: -6, wantFirst: 0.1 + 0.2/1.995262},
		{name: "both flat", vocalDB: 0, instDB: 0, wantFirst: 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			vocal := constant(t, ms(100), 0.1, 1)
			inst := constant(t, ms(100), 0.2, 1)
			out, err := audio.Overlay(vocal, inst, tt.vocalDB, tt.instDB)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantFirst, out.At(0, 0), 1e-6)
		})
	}
}

func TestOverlay_Clips(t *testing.T) {
	t.Parallel()

	out, err := audio.Overlay(constant(t, ms(10), 0.9, 1), constant(t, ms(10), 0.9, 1), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.At(0, 0))

	out, err = audio.Overlay(constant(t, ms(10), -0.9, 1), constant(t, ms(10), -0.9, 1), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, -1.0, out.At(0, 0))
}

func TestOverlay_MonoBroadcastsToStereo(t *testing.T) {
	t.Parallel()

	vocal := constant(t, ms(10), 0.25, 1)
	inst := constant(t, ms(20), 0.5, 2)

	out, err := audio.Overlay(vocal, inst, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, out.Channels())
	assert.Equal(t, 0.75, out.At(0, 0))
	assert.Equal(t, 0.75, out.At(0, 1))
	// Past the vocal's end only the instrumental remains.
	assert.Equal(t, 0.5, out.At(out.Frames()-1, 1))
}

func TestOverlay_Errors(t *testing.T) {
	t.Parallel()

	_, err := audio.Overlay(quiet(time.Second), audio.Silence(time.Second, 48000, 1), 0, 0)
	require.ErrorIs(t, err, audio.ErrFormatMismatch)

	_, err = audio.Overlay(constant(t, ms(10), 0, 2), constant(t, ms(10), 0, 6), 0, 0)
	require.ErrorIs(t, err, audio.ErrFormatMismatch)
}
