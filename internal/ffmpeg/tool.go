package ffmpeg

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Intermediate WAVs are normalised to this rate and channel count.
const (
	WAVSampleRate = 48000
	WAVChannels   = 2
)

// baseArgs precede every invocation: quiet banner, overwrite, no stdin.
var baseArgs = []string{"-hide_banner", "-nostdin", "-y"}

// Tool wraps the media operations the redub pipeline needs.
type Tool struct {
	path  string
	exec  *Executor
	files fileStatter
	log   logrus.FieldLogger
}

// ToolOption configures a Tool.
type ToolOption func(*Tool)

// WithExecutor sets the executor (for testing).
func WithExecutor(e *Executor) ToolOption {
	return func(t *Tool) { t.exec = e }
}

// WithToolFileStatter sets the statter used to confirm outputs exist (for testing).
func WithToolFileStatter(s fileStatter) ToolOption {
	return func(t *Tool) { t.files = s }
}

// WithLogger sets the logger for command tracing.
func WithLogger(l logrus.FieldLogger) ToolOption {
	return func(t *Tool) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTool creates a Tool running the ffmpeg binary at path.
func NewTool(path string, opts ...ToolOption) *Tool {
	t := &Tool{
		path:  path,
		exec:  NewExecutor(),
		files: osFileStatter{},
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Path returns the ffmpeg binary path.
func (t *Tool) Path() string { return t.path }

// StripAudio copies the video stream of in to out without any audio.
func (t *Tool) StripAudio(ctx context.Context, in, out string) error {
	return t.run(ctx, "strip audio", out, "-i", in, "-c:v", "copy", "-an", out)
}

// ExtractAudio writes the audio stream of a video to a 48 kHz stereo PCM WAV.
func (t *Tool) ExtractAudio(ctx context.Context, in, out string) error {
	return t.toWAV(ctx, "extract audio", in, out, WAVChannels)
}

// ToWAV normalises any audio file to 48 kHz 16-bit stereo PCM WAV.
// Surround sources are downmixed.
func (t *Tool) ToWAV(ctx context.Context, in, out string) error {
	return t.toWAV(ctx, "convert to wav", in, out, WAVChannels)
}

// ToWAVChannels is ToWAV with a forced channel count.
func (t *Tool) ToWAVChannels(ctx context.Context, in, out string, channels int) error {
	return t.toWAV(ctx, "convert to wav", in, out, channels)
}

func (t *Tool) toWAV(ctx context.Context, op, in, out string, channels int) error {
	return t.run(ctx, op, out, "-i", in, "-vn", "-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(WAVSampleRate), "-ac", strconv.Itoa(channels), out)
}

// Encode compresses in to out at bitrateKbps. The codec follows the
// output extension; only .mp3 forces libmp3lame.
func (t *Tool) Encode(ctx context.Context, in, out string, bitrateKbps int) error {
	args := []string{"-i", in, "-vn"}
	if strings.EqualFold(filepath.Ext(out), ".mp3") {
		args = append(args, "-codec:a", "libmp3lame")
	}
	args = append(args, "-b:a", bitrate(bitrateKbps), out)
	return t.run(ctx, "encode", out, args...)
}

// Mux combines the video stream of video with audio into out. The audio
// codec is chosen from out's container.
func (t *Tool) Mux(ctx context.Context, video, audioPath, out string, bitrateKbps int) error {
	codec, err := MuxCodec(out)
	if err != nil {
		return err
	}
	return t.run(ctx, "mux", out,
		"-i", video, "-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy", "-c:a", codec, "-b:a", bitrate(bitrateKbps),
		out)
}

// ProbeDuration reads the container duration of path from ffmpeg's
// banner. ffmpeg exits non-zero when given no output, so the error is
// ignored when output was produced.
func (t *Tool) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{"-hide_banner", "-i", path}
	output, err := t.exec.RunOutput(ctx, t.path, args)
	if err != nil && output == "" {
		return 0, &ToolError{Op: "probe", Args: args, Output: output, Err: err}
	}
	d, perr := parseDurationFromFFmpegOutput(output)
	if perr != nil {
		return 0, &ToolError{Op: "probe", Args: args, Output: output, Err: perr}
	}
	return d, nil
}

// MuxCodec returns the audio codec for a video container extension.
func MuxCodec(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return "aac", nil
	case ".webm", ".mkv":
		return "libopus", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContainer, filepath.Ext(path))
	}
}

func bitrate(kbps int) string {
	return strconv.Itoa(kbps) + "k"
}

// run executes ffmpeg and confirms out exists afterwards.
func (t *Tool) run(ctx context.Context, op, out string, args ...string) error {
	full := append(append([]string{}, baseArgs...), args...)
	t.log.WithFields(logrus.Fields{"op": op, "args": strings.Join(full, " ")}).Debug("running ffmpeg")

	output, err := t.exec.RunOutput(ctx, t.path, full)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ToolError{Op: op, Args: full, Output: output, Err: err}
	}
	if _, err := t.files.Stat(out); err != nil {
		return &ToolError{Op: op, Args: full, Output: output, Err: ErrMissingOutput}
	}
	return nil
}
