package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/redub/redub/internal/audio"
	"github.com/redub/redub/internal/config"
	"github.com/redub/redub/internal/convert"
	"github.com/redub/redub/internal/history"
	"github.com/redub/redub/internal/redub"
	"github.com/redub/redub/internal/separate"
	"github.com/redub/redub/internal/transcribe"
)

// ---------------------------------------------------------------------------
// Mock FFmpegResolver
// ---------------------------------------------------------------------------

type mockFFmpegResolver struct {
	ResolveFunc func(ctx context.Context) (string, error)

	mu           sync.Mutex
	resolveCalls int
	checkedPath  string
}

func (m *mockFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx)
	}
	return "/usr/bin/ffmpeg", nil
}

func (m *mockFFmpegResolver) CheckVersion(_ context.Context, ffmpegPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkedPath = ffmpegPath
}

func (m *mockFFmpegResolver) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	Config config.Config
	Err    error

	mu        sync.Mutex
	loadCalls int
	flags     []*pflag.FlagSet
}

func (m *mockConfigLoader) Load(flags *pflag.FlagSet) (config.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	m.flags = append(m.flags, flags)
	return m.Config, m.Err
}

// ---------------------------------------------------------------------------
// Mock BackendFactory
// ---------------------------------------------------------------------------

// mockBackends hands out fakes that work on real WAV files.
type mockBackends struct {
	tool      *fakeTool
	separator *fakeSeparator
	converter *fakeConverter

	ConverterErr   error
	TranscriberErr error

	mu              sync.Mutex
	toolPaths       []string
	separatorCmds   []string
	converterCalls  int
	apiKeys         []string
	transcriber     *fakeTranscriber
	converterConfig config.Config
}

func newMockBackends() *mockBackends {
	return &mockBackends{
		tool:      &fakeTool{fail: map[string]error{}},
		separator: &fakeSeparator{},
		converter: &fakeConverter{stretch: 40 * time.Millisecond},
	}
}

func (m *mockBackends) NewMediaTool(ffmpegPath string, _ logrus.FieldLogger) redub.MediaTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolPaths = append(m.toolPaths, ffmpegPath)
	return m.tool
}

func (m *mockBackends) NewSeparator(cmdline string, _ logrus.FieldLogger) separate.Separator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.separatorCmds = append(m.separatorCmds, cmdline)
	return m.separator
}

func (m *mockBackends) NewConverter(cfg config.Config, _ convert.Model, _ logrus.FieldLogger) (convert.Converter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.converterCalls++
	m.converterConfig = cfg
	if m.ConverterErr != nil {
		return nil, m.ConverterErr
	}
	return m.converter, nil
}

func (m *mockBackends) NewTranscriber(apiKey string, _ logrus.FieldLogger) (transcribe.Transcriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKeys = append(m.apiKeys, apiKey)
	if apiKey == "" {
		return nil, transcribe.ErrAPIKeyMissing
	}
	if m.TranscriberErr != nil {
		return nil, m.TranscriberErr
	}
	m.transcriber = &fakeTranscriber{}
	return m.transcriber, nil
}

func (m *mockBackends) SeparatorCmds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.separatorCmds)
}

func (m *mockBackends) APIKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.apiKeys)
}

func (m *mockBackends) ConverterCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.converterCalls
}

// fakeTool "transcodes" by copying bytes.
type fakeTool struct {
	mu   sync.Mutex
	ops  []string
	fail map[string]error // by input path
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

func (f *fakeTool) setFail(in string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[in] = err
}

func (f *fakeTool) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ops)
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
	return 0, errors.New("no duration")
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

func (f *fakeSeparator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
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
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
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

func (f *fakeConverter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeConverter) Requests() []convert.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// fakeTranscriber answers "text:<file base>".
type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "text:" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), nil
}

// ---------------------------------------------------------------------------
// Mock history (opener and store in one)
// ---------------------------------------------------------------------------

type mockHistory struct {
	OpenErr  error
	StartErr error

	mu     sync.Mutex
	paths  []string
	runs   []*history.Run
	closed int
	cutoff time.Time
}

func (m *mockHistory) Open(path string) (HistoryStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	return m, nil
}

func (m *mockHistory) Start(_ context.Context, run *history.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	r := *run
	r.Status = history.StatusRunning
	m.runs = append(m.runs, &r)
	return nil
}

func (m *mockHistory) Finish(_ context.Context, id, status string, files []history.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			now := r.StartedAt.Add(time.Minute)
			r.Status = status
			r.FinishedAt = &now
			r.Files = slices.Clone(files)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", history.ErrNotFound, id)
}

func (m *mockHistory) Recent(_ context.Context, limit int) ([]history.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []history.Run
	for i := len(m.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, *m.runs[i])
	}
	return out, nil
}

func (m *mockHistory) Get(_ context.Context, prefix string) (*history.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*history.Run
	for _, r := range m.runs {
		if prefix != "" && strings.HasPrefix(r.ID, prefix) {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", history.ErrNotFound, prefix)
	case 1:
		r := *found[0]
		return &r, nil
	}
	return nil, fmt.Errorf("%w: %s", history.ErrAmbiguous, prefix)
}

func (m *mockHistory) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoff = cutoff
	kept := m.runs[:0]
	var n int64
	for _, r := range m.runs {
		if r.StartedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.runs = kept
	return n, nil
}

func (m *mockHistory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// add seeds a finished run.
func (m *mockHistory) add(r history.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, &r)
}

// Runs returns a snapshot of every recorded run, oldest first.
func (m *mockHistory) Runs() []history.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.Run, len(m.runs))
	for i, r := range m.runs {
		out[i] = *r
	}
	return out
}

func (m *mockHistory) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Compile-time interface verification.
var (
	_ FFmpegResolver = (*mockFFmpegResolver)(nil)
	_ ConfigLoader   = (*mockConfigLoader)(nil)
	_ BackendFactory = (*mockBackends)(nil)
	_ HistoryOpener  = (*mockHistory)(nil)
	_ HistoryStore   = (*mockHistory)(nil)
)
