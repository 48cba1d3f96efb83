// Package separate splits a mixed track into vocal and instrumental stems
// by running an external source-separation command.
package separate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/redub/redub/internal/ffmpeg"
)

// DefaultCommand is the separator invoked when none is configured.
const DefaultCommand = "audio-separator"

// Stem markers in the separator's output file names.
const (
	vocalsMarker       = "(Vocals)"
	instrumentalMarker = "(Instrumental)"
)

var (
	// ErrToolFailed indicates the separator exited non-zero or produced no stems.
	ErrToolFailed = errors.New("separation failed")

	// ErrStemsMissing indicates the separator exited cleanly without both stems.
	ErrStemsMissing = errors.New("separator did not produce vocal and instrumental stems")
)

// CommandError carries the full output of a failed separator run.
// It matches ErrToolFailed with errors.Is.
type CommandError struct {
	Command string
	Args    []string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if tail := ffmpeg.LastLines(e.Output, ffmpeg.OutputTailLines); tail != "" {
		msg += "\nOutput:\n" + tail
	}
	return msg
}

// Unwrap exposes both ErrToolFailed and the underlying cause.
func (e *CommandError) Unwrap() []error {
	return []error{ErrToolFailed, e.Err}
}

// Stems are the paths of the two separated tracks.
type Stems struct {
	Vocals       string
	Instrumental string
}

// Separator produces vocal and instrumental stems for an audio file.
type Separator interface {
	Separate(ctx context.Context, input, outDir string) (Stems, error)
}

var _ Separator = (*CommandSeparator)(nil)

// dirReader lists stem candidates.
type dirReader interface {
	ReadDir(name string) ([]os.DirEntry, error)
}

type osDirReader struct{}

func (osDirReader) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }

// CommandSeparator runs an audio-separator compatible command:
//
//	<command> [extra args...] <input> --output_dir <outDir> --output_format WAV
type CommandSeparator struct {
	command string
	extra   []string
	exec    *ffmpeg.Executor
	dirs    dirReader
	log     logrus.FieldLogger
}

// Option configures a CommandSeparator.
type Option func(*CommandSeparator)

// WithCommand sets the command line. Words after the first are passed as
// leading arguments, so "audio-separator -m UVR-MDX-NET-Inst_HQ_3.onnx" works.
func WithCommand(cmdline string) Option {
	return func(s *CommandSeparator) {
		if fields := strings.Fields(cmdline); len(fields) > 0 {
			s.command = fields[0]
			s.extra = fields[1:]
		}
	}
}

// WithExecutor sets the command executor (for testing).
func WithExecutor(e *ffmpeg.Executor) Option {
	return func(s *CommandSeparator) { s.exec = e }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *CommandSeparator) {
		if l != nil {
			s.log = l
		}
	}
}

func withDirReader(d dirReader) Option {
	return func(s *CommandSeparator) { s.dirs = d }
}

// NewCommandSeparator creates a separator running DefaultCommand unless
// WithCommand says otherwise.
func NewCommandSeparator(opts ...Option) *CommandSeparator {
	s := &CommandSeparator{
		command: DefaultCommand,
		exec:    ffmpeg.NewExecutor(),
		dirs:    osDirReader{},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Command returns the configured executable.
func (s *CommandSeparator) Command() string { return s.command }

// Separate runs the separator on input, writing stems into outDir.
func (s *CommandSeparator) Separate(ctx context.Context, input, outDir string) (Stems, error) {
	args := append(slices.Clone(s.extra), input, "--output_dir", outDir, "--output_format", "WAV")

	s.log.WithFields(logrus.Fields{"file": filepath.Base(input), "command": s.command}).Debug("separating stems")
	output, err := s.exec.RunOutput(ctx, s.command, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Stems{}, ctxErr
		}
		return Stems{}, &CommandError{Command: s.command, Args: args, Output: output, Err: err}
	}

	stems, err := s.findStems(outDir)
	if err != nil {
		return Stems{}, &CommandError{Command: s.command, Args: args, Output: output, Err: err}
	}
	return stems, nil
}

// findStems picks the first vocal and instrumental WAV in dir, by name.
func (s *CommandSeparator) findStems(dir string) (Stems, error) {
	entries, err := s.dirs.ReadDir(dir)
	if err != nil {
		return Stems{}, fmt.Errorf("%w: %v", ErrStemsMissing, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	var stems Stems
	for _, n := range names {
		switch {
		case stems.Vocals == "" && strings.Contains(n, vocalsMarker):
			stems.Vocals = filepath.Join(dir, n)
		case stems.Instrumental == "" && strings.Contains(n, instrumentalMarker):
			stems.Instrumental = filepath.Join(dir, n)
		}
	}
	if stems.Vocals == "" || stems.Instrumental == "" {
		return Stems{}, ErrStemsMissing
	}
	return stems, nil
}
