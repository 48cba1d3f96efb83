package redub_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/redub/redub/internal/audio"
	"github.com/redub/redub/internal/convert"
	"github.com/redub/redub/internal/redub"
	"github.com/redub/redub/internal/separate"
	"github.com/redub/redub/internal/tempfiles"
)

// Notes:
// - Every collaborator is faked on real files: the media tool copies WAV
//   bytes instead of transcoding, so the chunk, resync and overlay stages
//   run for real on what it "produces".
// - Inputs are synthetic speech: tone bursts between silences, at the
//   chunk sample rate.

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

func frames(t *testing.T, path string) int {
	t.Helper()
	w, err := audio.LoadWAV(path)
	require.NoError(t, err)
	return w.Frames()
}

func copyFile(in, out string) error {
	b, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeTool "transcodes" by copying bytes.
type fakeTool struct {
	mu    sync.Mutex
	ops   []string
	fail  map[string]error // by input path
	probe time.Duration
}

func (f *fakeTool) record(ctx context.Context, op, in string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	return f.fail[in]
}

func (f *fakeTool) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeTool) StripAudio(ctx context.Context, in, out string) error {
	if err := f.record(ctx, "strip", in); err != nil {
		return err
	}
	return os.WriteFile(out, []byte("video"), 0o644)
}

func (f *fakeTool) ExtractAudio(ctx context.Context, in, out string) error {
	if err := f.record(ctx, "extract", in); err != nil {
		return err
	}
	return copyFile(in, out)
}

func (f *fakeTool) ToWAV(ctx context.Context, in, out string) error {
	if err := f.record(ctx, "wav", in); err != nil {
		return err
	}
	return copyFile(in, out)
}

func (f *fakeTool) ToWAVChannels(ctx context.Context, in, out string, _ int) error {
	if err := f.record(ctx, "wav-channels", in); err != nil {
		return err
	}
	return copyFile(in, out)
}

func (f *fakeTool) Encode(ctx context.Context, in, out string, _ int) error {
	if err := f.record(ctx, "encode", in); err != nil {
		return err
	}
	return copyFile(in, out)
}

func (f *fakeTool) Mux(ctx context.Context, video, audioPath, out string, _ int) error {
	if err := f.record(ctx, "mux", video); err != nil {
		return err
	}
	return copyFile(audioPath, out)
}

func (f *fakeTool) ProbeDuration(ctx context.Context, in string) (time.Duration, error) {
	if err := f.record(ctx, "probe", in); err != nil {
		return 0, err
	}
	if f.probe == 0 {
		return 0, errors.New("no duration")
	}
	return f.probe, nil
}

// fakeSeparator returns the input as vocals and silence as instrumental.
type fakeSeparator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSeparator) Separate(_ context.Context, input, outDir string) (separate.Stems, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	w, err := audio.LoadWAV(input)
	if err != nil {
		return separate.Stems{}, err
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	stems := separate.Stems{
		Vocals:       filepath.Join(outDir, base+"_(Vocals).wav"),
		Instrumental: filepath.Join(outDir, base+"_(Instrumental).wav"),
	}
	if err := audio.SaveWAV(stems.Vocals, w); err != nil {
		return separate.Stems{}, err
	}
	if err := audio.SaveWAV(stems.Instrumental, audio.Silence(w.Duration(), w.SampleRate(), w.Channels())); err != nil {
		return separate.Stems{}, err
	}
	return stems, nil
}

// fakeConverter lengthens every chunk by stretch.
type fakeConverter struct {
	mu       sync.Mutex
	stretch  time.Duration
	err      error
	requests []convert.Request
}

func (f *fakeConverter) Convert(ctx context.Context, req convert.Request) ([]string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	outs := make([]string, len(req.Chunks))
	for i, chunk := range req.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, err := audio.LoadWAV(chunk)
		if err != nil {
			return nil, err
		}
		outs[i] = convert.OutputName(chunk, req.Reference, req.OutputDir)
		if err := audio.SaveWAV(outs[i], w.PadEnd(audio.FramesFor(f.stretch, w.SampleRate()))); err != nil {
			return nil, err
		}
	}
	return outs, nil
}

func (f *fakeConverter) Requests() []convert.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]convert.Request(nil), f.requests...)
}

// fakeTranscriber answers "text:<file base>" and records languages by file base.
type fakeTranscriber struct {
	mu    sync.Mutex
	langs map[string]string
	err   error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path, language string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.langs == nil {
		f.langs = map[string]string{}
	}
	f.langs[base] = language
	if f.err != nil {
		return "", f.err
	}
	return "text:" + base, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	dir       string
	settings  redub.Settings
	tool      *fakeTool
	separator *fakeSeparator
	converter *fakeConverter
	registry  *tempfiles.Registry
	reference string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	s := redub.DefaultSettings()
	s.MaxSegment = 1500 * time.Millisecond
	s.OutputDir = filepath.Join(dir, "out")
	s.TempDir = filepath.Join(dir, "tmp")
	require.NoError(t, os.MkdirAll(s.TempDir, 0o750))

	logger, _ := test.NewNullLogger()
	reg := tempfiles.New(tempfiles.WithLogger(logger))
	t.Cleanup(func() { _ = reg.Cleanup() })

	return &fixture{
		dir:       dir,
		settings:  s,
		tool:      &fakeTool{},
		separator: &fakeSeparator{},
		converter: &fakeConverter{stretch: 50 * time.Millisecond},
		registry:  reg,
		reference: writeWAV(t, dir, "voices/alice.wav", speech(t, 2)),
	}
}

func (f *fixture) pipeline(t *testing.T, opts ...redub.Option) *redub.Pipeline {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cache := redub.NewConverterCache(func(convert.Model, convert.Mode) (convert.Converter, error) {
		return f.converter, nil
	})
	base := []redub.Option{redub.WithLogger(logger), redub.WithSeparator(f.separator)}
	p, err := redub.New(f.settings, f.tool, cache, append(base, opts...)...)
	require.NoError(t, err)
	return p
}

func (f *fixture) prepare(t *testing.T, p *redub.Pipeline) *redub.Reference {
	t.Helper()
	ref, err := p.PrepareReference(context.Background(), f.reference, f.registry)
	require.NoError(t, err)
	return ref
}

var errBoom = errors.New("boom")
