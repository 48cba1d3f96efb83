package separate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redub/redub/internal/ffmpeg"
	"github.com/redub/redub/internal/separate"
)

// Notes:
// - The executor is replaced by a function that writes fake stems into the
//   output directory, so the real directory scan is exercised.

// fakeRun returns a run function that creates the named files in the
// directory following --output_dir, records its arguments, and returns out/err.
func fakeRun(t *testing.T, gotArgs *[]string, files []string, out string, err error) func(context.Context, string, []string) (string, error) {
	t.Helper()
	return func(_ context.Context, path string, args []string) (string, error) {
		*gotArgs = append([]string{path}, args...)
		for i, a := range args {
			if a == "--output_dir" && i+1 < len(args) {
				for _, f := range files {
					require.NoError(t, os.WriteFile(filepath.Join(args[i+1], f), []byte("RIFF"), 0644))
				}
			}
		}
		return out, err
	}
}

func newSeparator(run func(context.Context, string, []string) (string, error), opts ...separate.Option) *separate.CommandSeparator {
	logger, _ := test.NewNullLogger()
	base := []separate.Option{
		separate.WithExecutor(ffmpeg.NewExecutor(ffmpeg.WithRunOutput(run))),
		separate.WithLogger(logger),
	}
	return separate.NewCommandSeparator(append(base, opts...)...)
}

func TestSeparate_FindsStems(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var args []string
	sep := newSeparator(fakeRun(t, &args, []string{
		"song_(Instrumental)_UVR-MDX.wav",
		"song_(Vocals)_UVR-MDX.wav",
		"notes.txt",
	}, "done", nil))

	stems, err := sep.Separate(context.Background(), "/in/song.wav", dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "song_(Vocals)_UVR-MDX.wav"), stems.Vocals)
	assert.Equal(t, filepath.Join(dir, "song_(Instrumental)_UVR-MDX.wav"), stems.Instrumental)
	assert.Equal(t, []string{
		separate.DefaultCommand, "/in/song.wav", "--output_dir", dir, "--output_format", "WAV",
	}, args)
}

func TestSeparate_CustomCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var args []string
	sep := newSeparator(
		fakeRun(t, &args, []string{"a_(Vocals).wav", "a_(Instrumental).wav"}, "", nil),
		separate.WithCommand("/opt/uvr/bin/separate -m model.onnx"),
	)

	_, err := sep.Separate(context.Background(), "a.wav", dir)
	require.NoError(t, err)
	assert.Equal(t, "/opt/uvr/bin/separate", sep.Command())
	assert.Equal(t, []string{"/opt/uvr/bin/separate", "-m", "model.onnx", "a.wav"}, args[:4])
}

func TestSeparate_NonZeroExit(t *testing.T) {
	t.Parallel()

	var args []string
	sep := newSeparator(fakeRun(t, &args, nil, "CUDA out of memory", errors.New("exit status 1")))

	_, err := sep.Separate(context.Background(), "a.wav", t.TempDir())
	require.ErrorIs(t, err, separate.ErrToolFailed)

	var ce *separate.CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "CUDA out of memory", ce.Output)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestSeparate_MissingStem(t *testing.T) {
	t.Parallel()

	var args []string
	sep := newSeparator(fakeRun(t, &args, []string{"a_(Vocals).wav"}, "only one", nil))

	_, err := sep.Separate(context.Background(), "a.wav", t.TempDir())
	require.ErrorIs(t, err, separate.ErrToolFailed)
	require.ErrorIs(t, err, separate.ErrStemsMissing)
}

type brokenDir struct{}

func (brokenDir) ReadDir(string) ([]os.DirEntry, error) { return nil, os.ErrPermission }

func TestSeparate_UnreadableOutputDir(t *testing.T) {
	t.Parallel()

	var args []string
	sep := newSeparator(fakeRun(t, &args, nil, "", nil), separate.WithDirReader(brokenDir{}))

	_, err := sep.Separate(context.Background(), "a.wav", "/nowhere")
	require.ErrorIs(t, err, separate.ErrStemsMissing)
	assert.True(t, strings.Contains(err.Error(), "permission denied"))
}

func TestSeparate_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var args []string
	sep := newSeparator(fakeRun(t, &args, nil, "", errors.New("signal: killed")))

	_, err := sep.Separate(ctx, "a.wav", t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, separate.ErrToolFailed)
}
