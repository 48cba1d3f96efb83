package cli

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redub/redub/internal/audio"
	"github.com/redub/redub/internal/config"
	"github.com/redub/redub/internal/interrupt"
)

// Notes:
// - Commands run through RootCmd with every collaborator mocked: ffmpeg
//   is never resolved for real and the media tool copies WAV bytes, so
//   chunking, resync and overlay run for real on synthetic speech.
// - Inputs are classified by content, so test media is written as real
//   WAV files.
// - Temp work directories go to os.TempDir and are removed by the run.

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Compile-time check that syncBuffer implements io.Writer.
var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// Media helpers
// ---------------------------------------------------------------------------

const rate = audio.ChunkSampleRate

// speech returns n one-second 220 Hz bursts separated by 500ms of silence.
func speech(t *testing.T, n int) *audio.Waveform {
	t.Helper()
	burst := audio.FramesFor(time.Second, rate)
	gap := audio.Silence(500*time.Millisecond, rate, 1)
	var parts []*audio.Waveform
	for i := range n {
		if i > 0 {
			parts = append(parts, gap)
		}
		s := make([]float64, burst)
		for j := range s {
			s[j] = 0.5 * math.Sin(2*math.Pi*220*float64(j)/rate)
		}
		w, err := audio.NewWaveform(s, rate, 1)
		require.NoError(t, err)
		parts = append(parts, w)
	}
	w, err := audio.Concat(parts...)
	require.NoError(t, err)
	return w
}

// writeWAV saves w at dir/name and returns the path.
func writeWAV(t *testing.T, dir, name string, w *audio.Waveform) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, audio.SaveWAV(p, w))
	return p
}

func copyFile(in, out string) error {
	b, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

// ---------------------------------------------------------------------------
// harness - a fully mocked Env around a temp directory
// ---------------------------------------------------------------------------

type harness struct {
	dir       string
	reference string
	env       *Env
	stdout    *syncBuffer
	stderr    *syncBuffer
	vars      map[string]string
	resolver  *mockFFmpegResolver
	config    *mockConfigLoader
	backends  *mockBackends
	history   *mockHistory
}

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:       dir,
		reference: writeWAV(t, dir, "voices/alice.wav", speech(t, 2)),
		stdout:    &syncBuffer{},
		stderr:    &syncBuffer{},
		vars:      map[string]string{},
		resolver:  &mockFFmpegResolver{},
		config:    &mockConfigLoader{Config: testConfig(dir)},
		backends:  newMockBackends(),
		history:   &mockHistory{},
	}
	h.env = NewEnv(
		WithStdout(h.stdout),
		WithStderr(h.stderr),
		WithGetenv(func(k string) string { return h.vars[k] }),
		WithNow(func() time.Time { return testNow }),
		WithFFmpegResolver(h.resolver),
		WithConfigLoader(h.config),
		WithBackends(h.backends),
		WithHistory(h.history),
		WithInterrupts(quietInterrupts),
	)
	return h
}

// testConfig mirrors the config defaults with test paths.
func testConfig(dir string) config.Config {
	return config.Config{
		OutputDir:        filepath.Join(dir, "out"),
		MinSilenceLen:    350,
		SilenceThreshold: -48,
		AudioBitrate:     128,
		InferenceMode:    "timbre",
		Model:            "1",
		Steps:            48,
		SeparatorCommand: "audio-separator",
		ConverterURL:     "http://127.0.0.1:7860",
		Parallel:         1,
		HistoryDB:        filepath.Join(dir, "history.db"),
	}
}

// quietInterrupts is an interrupt factory that never sees a signal.
func quietInterrupts(ctx context.Context) (*interrupt.Handler, context.Context) {
	return interrupt.NewHandlerWithOptions(ctx, interrupt.Options{
		SigCh:    make(chan os.Signal),
		ExitFunc: func(int) {},
		Stderr:   io.Discard,
	})
}

// run executes the root command with args.
func (h *harness) run(ctx context.Context, args ...string) error {
	cmd := RootCmd(h.env, "test")
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(ctx)
}

// input writes an n-burst speech WAV under dir/in.
func (h *harness) input(t *testing.T, name string, n int) string {
	t.Helper()
	return writeWAV(t, h.dir, filepath.Join("in", name), speech(t, n))
}
