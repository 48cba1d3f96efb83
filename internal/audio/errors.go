package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidParams indicates silence parameters or a max duration that cannot drive detection.
var ErrInvalidParams = errors.New("invalid silence detection parameters")

// ErrEmptyWaveform indicates a waveform with zero frames was given where audio is required.
var ErrEmptyWaveform = errors.New("empty waveform")

// ErrInvalidFormat indicates a sample rate, channel count or sample layout that is not usable.
var ErrInvalidFormat = errors.New("invalid audio format")

// ErrFormatMismatch indicates two waveforms that must share a format do not.
var ErrFormatMismatch = errors.New("audio format mismatch")

// ErrCorrelationMismatch indicates the converted chunk count differs from the original chunk count.
var ErrCorrelationMismatch = errors.New("converted chunks do not correlate with original chunks")

// ErrInvalidWAV indicates a file that could not be decoded as PCM WAV.
var ErrInvalidWAV = errors.New("invalid WAV file")

// ErrChunkIndex indicates a chunk file name without a parseable segment index.
var ErrChunkIndex = errors.New("chunk file has no segment index")

// CorrelationMismatchError carries both counts of a failed chunk correlation.
// It matches ErrCorrelationMismatch with errors.Is.
type CorrelationMismatchError struct {
	Original  int
	Converted int
}

func (e *CorrelationMismatchError) Error() string {
	return fmt.Sprintf("%s: %d original, %d converted",
		ErrCorrelationMismatch.Error(), e.Original, e.Converted)
}

// Is reports whether target is ErrCorrelationMismatch.
func (e *CorrelationMismatchError) Is(target error) bool {
	return target == ErrCorrelationMismatch
}

// IntegrityWarning reports chunks whose summed duration drifted from their source.
// It is informational: the chunk set is still returned.
type IntegrityWarning struct {
	Source time.Duration
	Chunks time.Duration
}

// Deviation returns the absolute difference between the source and the chunk total.
func (w IntegrityWarning) Deviation() time.Duration {
	d := w.Source - w.Chunks
	if d < 0 {
		return -d
	}
	return d
}

func (w IntegrityWarning) Error() string {
	return fmt.Sprintf("chunk durations sum to %v, source is %v (off by %v)",
		w.Chunks, w.Source, w.Deviation())
}
