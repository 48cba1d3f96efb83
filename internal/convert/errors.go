package convert

import (
	"errors"
	"fmt"

	"github.com/redub/redub/internal/ffmpeg"
)

var (
	// ErrConversionFailed indicates the conversion collaborator failed on a chunk.
	ErrConversionFailed = errors.New("voice conversion failed")

	// ErrUnknownMode indicates an inference mode name that does not exist.
	ErrUnknownMode = errors.New("unknown inference mode")

	// ErrUnknownModel indicates a model version that does not exist.
	ErrUnknownModel = errors.New("unknown model version")

	// ErrUnsupportedMode indicates a mode the selected model cannot run.
	ErrUnsupportedMode = errors.New("unsupported inference mode")

	// ErrNoBackend indicates neither a converter URL nor command is configured.
	ErrNoBackend = errors.New("no conversion backend configured (set converter-url or converter-command)")

	// ErrTranscriptsMismatch indicates a transcript list that does not match the chunks.
	ErrTranscriptsMismatch = errors.New("transcript count does not match chunk count")
)

// ChunkError records which chunk a conversion failed on.
// It matches ErrConversionFailed with errors.Is.
type ChunkError struct {
	Index  int
	Chunk  string
	Output string // collaborator diagnostic output, if any
	Err    error
}

func (e *ChunkError) Error() string {
	msg := fmt.Sprintf("convert chunk %d (%s): %v", e.Index, e.Chunk, e.Err)
	if tail := ffmpeg.LastLines(e.Output, ffmpeg.OutputTailLines); tail != "" {
		msg += "\nOutput:\n" + tail
	}
	return msg
}

// Unwrap exposes both ErrConversionFailed and the underlying cause.
func (e *ChunkError) Unwrap() []error {
	return []error{ErrConversionFailed, e.Err}
}
