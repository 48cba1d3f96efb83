package convert

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/redub/redub/internal/ffmpeg"
)

var _ Converter = (*CommandConverter)(nil)

// CommandConverter runs an external inference command once per chunk:
//
//	<command> [extra...] --model M --mode MODE --steps N --source CHUNK
//	    --reference REF --output OUT [--source-language L] [--reference-language L]
//	    [--transcript T] [--reference-transcript T]
type CommandConverter struct {
	command string
	extra   []string
	model   Model
	exec    *ffmpeg.Executor
	log     logrus.FieldLogger
}

// CommandOption configures a CommandConverter.
type CommandOption func(*CommandConverter)

// WithCommandExecutor sets the executor (for testing).
func WithCommandExecutor(e *ffmpeg.Executor) CommandOption {
	return func(c *CommandConverter) { c.exec = e }
}

// WithCommandLogger sets the logger.
func WithCommandLogger(l logrus.FieldLogger) CommandOption {
	return func(c *CommandConverter) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCommandConverter creates a converter running cmdline. Words after the
// first are passed as leading arguments.
func NewCommandConverter(cmdline string, model Model, opts ...CommandOption) *CommandConverter {
	fields := strings.Fields(cmdline)
	c := &CommandConverter{
		model: model,
		exec:  ffmpeg.NewExecutor(),
		log:   logrus.StandardLogger(),
	}
	if len(fields) > 0 {
		c.command = fields[0]
		c.extra = fields[1:]
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert runs the command for every chunk in order.
func (c *CommandConverter) Convert(ctx context.Context, req Request) ([]string, error) {
	if c.command == "" {
		return nil, ErrNoBackend
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	outputs := make([]string, 0, len(req.Chunks))
	for i, chunk := range req.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := OutputName(chunk, req.Reference, req.OutputDir)
		args := c.args(req, i, out)

		output, err := c.exec.RunOutput(ctx, c.command, args)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &ChunkError{Index: i, Chunk: filepath.Base(chunk), Output: output, Err: err}
		}
		if _, err := os.Stat(out); err != nil {
			return nil, &ChunkError{Index: i, Chunk: filepath.Base(chunk), Output: output, Err: ffmpeg.ErrMissingOutput}
		}

		c.log.WithFields(logrus.Fields{"chunk": i, "file": filepath.Base(out)}).Debug("converted chunk")
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (c *CommandConverter) args(req Request, i int, out string) []string {
	args := append(slices.Clone(c.extra),
		"--model", string(c.model),
		"--mode", string(req.Mode),
		"--steps", strconv.Itoa(req.Steps),
		"--source", req.Chunks[i],
		"--reference", req.Reference,
		"--output", out,
	)
	optional := []struct{ flag, value string }{
		{"--source-language", req.SourceLanguage},
		{"--reference-language", req.ReferenceLanguage},
		{"--transcript", req.transcript(i)},
		{"--reference-transcript", req.ReferenceTranscript},
	}
	for _, o := range optional {
		if o.value != "" {
			args = append(args, o.flag, o.value)
		}
	}
	return args
}
