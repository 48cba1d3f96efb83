package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/redub/redub/internal/config"
	"github.com/redub/redub/internal/convert"
	"github.com/redub/redub/internal/ffmpeg"
	"github.com/redub/redub/internal/history"
	"github.com/redub/redub/internal/interrupt"
	"github.com/redub/redub/internal/redub"
	"github.com/redub/redub/internal/separate"
	"github.com/redub/redub/internal/transcribe"
)

// EnvOpenAIAPIKey is the environment variable holding the OpenAI API key.
const EnvOpenAIAPIKey = "OPENAI_API_KEY"

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have sensible defaults via DefaultEnv(). Tests can override
// specific fields using the With* options or by creating a custom Env.
type Env struct {
	// I/O and environment
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time

	// Factories for domain objects
	FFmpegResolver FFmpegResolver
	ConfigLoader   ConfigLoader
	Backends       BackendFactory
	History        HistoryOpener
	Interrupts     InterruptFactory
}

// FFmpegResolver resolves the path to the FFmpeg binary.
type FFmpegResolver interface {
	Resolve(ctx context.Context) (string, error)
	CheckVersion(ctx context.Context, ffmpegPath string)
}

// ConfigLoader loads configuration, letting explicitly set flags win.
type ConfigLoader interface {
	Load(flags *pflag.FlagSet) (config.Config, error)
}

// BackendFactory builds the external collaborators of a run.
type BackendFactory interface {
	NewMediaTool(ffmpegPath string, log logrus.FieldLogger) redub.MediaTool
	NewSeparator(cmdline string, log logrus.FieldLogger) separate.Separator
	NewConverter(cfg config.Config, model convert.Model, log logrus.FieldLogger) (convert.Converter, error)
	NewTranscriber(apiKey string, log logrus.FieldLogger) (transcribe.Transcriber, error)
}

// HistoryStore is the run ledger used by the CLI.
type HistoryStore interface {
	Start(ctx context.Context, run *history.Run) error
	Finish(ctx context.Context, id, status string, files []history.FileRecord) error
	Recent(ctx context.Context, limit int) ([]history.Run, error)
	Get(ctx context.Context, prefix string) (*history.Run, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// HistoryOpener opens the run ledger at path.
type HistoryOpener interface {
	Open(path string) (HistoryStore, error)
}

// InterruptFactory creates the Ctrl+C handler of a run.
type InterruptFactory func(ctx context.Context) (*interrupt.Handler, context.Context)

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) { e.Stdout = w }
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) { e.Stderr = w }
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) { e.Getenv = fn }
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) { e.Now = fn }
}

// WithFFmpegResolver sets the FFmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) { e.FFmpegResolver = r }
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) { e.ConfigLoader = l }
}

// WithBackends sets the backend factory.
func WithBackends(b BackendFactory) EnvOption {
	return func(e *Env) { e.Backends = b }
}

// WithHistory sets the history opener.
func WithHistory(h HistoryOpener) EnvOption {
	return func(e *Env) { e.History = h }
}

// WithInterrupts sets the interrupt handler factory.
func WithInterrupts(f InterruptFactory) EnvOption {
	return func(e *Env) { e.Interrupts = f }
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		Getenv:         os.Getenv,
		Now:            time.Now,
		FFmpegResolver: &defaultFFmpegResolver{},
		ConfigLoader:   &defaultConfigLoader{},
		Backends:       &defaultBackends{},
		History:        &defaultHistoryOpener{},
		Interrupts:     interrupt.NewHandler,
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultFFmpegResolver implements FFmpegResolver using the ffmpeg package.
type defaultFFmpegResolver struct{}

func (defaultFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	return ffmpeg.NewResolver().Resolve(ctx)
}

func (defaultFFmpegResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	ffmpeg.NewVersionChecker().Check(ctx, ffmpegPath)
}

// defaultConfigLoader implements ConfigLoader using the config package.
type defaultConfigLoader struct{}

func (defaultConfigLoader) Load(flags *pflag.FlagSet) (config.Config, error) {
	return config.Load(flags)
}

// defaultBackends wires ffmpeg, the separator command, the conversion
// service and OpenAI.
type defaultBackends struct{}

func (defaultBackends) NewMediaTool(ffmpegPath string, log logrus.FieldLogger) redub.MediaTool {
	return ffmpeg.NewTool(ffmpegPath, ffmpeg.WithLogger(log))
}

func (defaultBackends) NewSeparator(cmdline string, log logrus.FieldLogger) separate.Separator {
	return separate.NewCommandSeparator(separate.WithCommand(cmdline), separate.WithLogger(log))
}

// NewConverter prefers the HTTP service when both backends are configured.
func (defaultBackends) NewConverter(cfg config.Config, model convert.Model, log logrus.FieldLogger) (convert.Converter, error) {
	switch {
	case cfg.ConverterURL != "":
		return convert.NewHTTPConverter(cfg.ConverterURL, model,
			convert.WithRate(cfg.ConverterRate),
			convert.WithHTTPLogger(log),
		), nil
	case cfg.ConverterCommand != "":
		return convert.NewCommandConverter(cfg.ConverterCommand, model, convert.WithCommandLogger(log)), nil
	default:
		return nil, convert.ErrNoBackend
	}
}

func (defaultBackends) NewTranscriber(apiKey string, log logrus.FieldLogger) (transcribe.Transcriber, error) {
	t, err := transcribe.NewOpenAITranscriber(apiKey, transcribe.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// defaultHistoryOpener opens the SQLite ledger.
type defaultHistoryOpener struct{}

func (defaultHistoryOpener) Open(path string) (HistoryStore, error) {
	s, err := history.Open(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Compile-time interface verification.
var (
	_ FFmpegResolver = (*defaultFFmpegResolver)(nil)
	_ ConfigLoader   = (*defaultConfigLoader)(nil)
	_ BackendFactory = (*defaultBackends)(nil)
	_ HistoryOpener  = (*defaultHistoryOpener)(nil)
	_ HistoryStore   = (*history.Store)(nil)
)
