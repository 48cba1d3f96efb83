package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates the FFmpeg binary could not be located.
var ErrNotFound = errors.New("ffmpeg not found")

// ErrToolFailed indicates an FFmpeg invocation exited non-zero or produced no output file.
var ErrToolFailed = errors.New("ffmpeg failed")

// ErrMissingOutput indicates FFmpeg exited cleanly but the expected file is absent.
var ErrMissingOutput = errors.New("output file was not created")

// ErrUnsupportedContainer indicates a video container with no known audio codec for muxing.
var ErrUnsupportedContainer = errors.New("unsupported video container")

// ErrNoDuration indicates FFmpeg output held no parseable duration.
var ErrNoDuration = errors.New("could not parse duration from ffmpeg output")

// OutputTailLines bounds how much command output Error() repeats.
const OutputTailLines = 20

// ToolError carries the full diagnostic output of a failed FFmpeg run.
// It matches ErrToolFailed with errors.Is.
type ToolError struct {
	Op     string
	Args   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("ffmpeg %s: %v", e.Op, e.Err)
	if tail := LastLines(e.Output, OutputTailLines); tail != "" {
		msg += "\nOutput:\n" + tail
	}
	return msg
}

// Unwrap exposes both ErrToolFailed and the underlying cause.
func (e *ToolError) Unwrap() []error {
	return []error{ErrToolFailed, e.Err}
}

// CommandLine returns the invocation as a single shell-like string.
func (e *ToolError) CommandLine() string {
	return "ffmpeg " + strings.Join(e.Args, " ")
}

// LastLines returns the last n lines of command output, trimmed.
func LastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
