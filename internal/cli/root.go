package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/redub/redub/internal/audio"
	"github.com/redub/redub/internal/config"
	"github.com/redub/redub/internal/convert"
	"github.com/redub/redub/internal/format"
	"github.com/redub/redub/internal/history"
	"github.com/redub/redub/internal/lang"
	"github.com/redub/redub/internal/redub"
	"github.com/redub/redub/internal/tempfiles"
)

// redubOptions holds the flags that are not config keys. Config-backed
// flags are read through ConfigLoader so file and env values apply too.
type redubOptions struct {
	inputs             []string
	inDir              string
	reference          string
	keepTemp           bool
	vocalVolume        int
	instrumentalVolume int
	skipSeparation     bool
	skipTrim           bool
	inputLanguage      string
	refLanguage        string
	report             string
	verbose            bool
	logFormat          string
}

// RootCmd creates the redub command with its subcommands.
// The env parameter provides injectable dependencies for testing.
func RootCmd(env *Env, version string) *cobra.Command {
	var opts redubOptions

	cmd := &cobra.Command{
		Use:   "redub [inputs...] [reference-voice]",
		Short: "Re-sing audio and video tracks with another voice",
		Long: `Redub replaces the vocals of songs and videos with a reference voice.

Each input is separated into vocals and instrumental, the vocals are cut at
silences into chunks the conversion model can take, every chunk is converted
to the reference voice, and the converted chunks are padded or trimmed back
to their original length before being mixed with the instrumental again.
Videos keep their picture; audio inputs are rendered to MP3.

Positional arguments are sorted by content: videos are always inputs, and
an audio file is taken as the reference voice when -v is not given and an
input was named before it.

Conversion runs through an external backend, configured with
--converter-url (HTTP service) or --converter-command (local command).
Model 1.5 in style or voice mode also needs OPENAI_API_KEY for lyrics.`,
		Example: `  redub -v alice.wav song.mp3
  redub clip.mp4 alice.wav --inference-mode voice
  redub -d ./album -v alice.wav --parallel 2 --report run.yaml
  redub -i song.flac -v alice.wav --model 1.5 --inference-mode style
  redub -i podcast.wav -v alice.wav --skip-separation`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRedub(cmd, env, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.inputs, "input", "i", nil, "Input audio or video file (repeatable)")
	f.StringVarP(&opts.inDir, "in-dir", "d", "", "Redub every audio and video file under this directory")
	f.StringP("out-dir", "o", "", "Output directory (default: current directory, or <in-dir>.out)")
	f.StringVarP(&opts.reference, "reference-voice", "v", "", "Reference voice sample")
	f.BoolVarP(&opts.keepTemp, "keep-temp", "k", false, "Keep intermediate files")

	f.Int(config.KeyAudioBitrate, 128, "MP3 and muxed audio bitrate in kbps")
	f.String(config.KeyInferenceMode, string(convert.ModeTimbre), "Conversion mode: timbre, style, voice")
	f.String(config.KeyModel, string(convert.Model1), "Conversion model version: 1, 1.5")
	f.Int(config.KeySteps, 48, "Diffusion steps per chunk")
	f.IntVar(&opts.vocalVolume, "vocal-volume", 0, "Vocal gain in dB")
	f.IntVar(&opts.instrumentalVolume, "instrumental-volume", 0, "Instrumental gain in dB")

	f.Float64(config.KeyMaxSegmentDuration, 0, "Longest chunk in seconds (default: 45 for model 1 timbre, else 12)")
	f.Int(config.KeyMinSilenceLen, 350, "Shortest silence to cut at, in milliseconds")
	f.Int("silence-thresh", -48, "Silence threshold in dBFS")
	f.BoolVar(&opts.skipSeparation, "skip-separation", false, "Convert the whole mix instead of separated vocals")
	f.BoolVar(&opts.skipTrim, "skip-trim", false, "Keep converted chunk lengths (no resync)")

	f.StringVar(&opts.inputLanguage, "input-language", lang.Default, "Language sung in the inputs: en, zh")
	f.StringVar(&opts.refLanguage, "ref-language", lang.Default, "Language spoken in the reference voice: en, zh")

	f.Int(config.KeyParallel, 1, "Files processed at once")
	f.String(config.KeySeparatorCommand, "audio-separator", "Stem separation command")
	f.String(config.KeyConverterURL, "", "Voice conversion service URL")
	f.String(config.KeyConverterCommand, "", "Voice conversion command, run once per chunk")
	f.Float64(config.KeyConverterRate, 0, "Conversion requests per second (0 = unlimited)")

	f.StringVar(&opts.report, "report", "", "Write a YAML run report to this path")
	f.BoolVar(&opts.verbose, "verbose", false, "Log debug details")
	f.StringVar(&opts.logFormat, "log-format", LogFormatText, "Log format: text, json")

	cmd.AddCommand(ConfigCmd(env))
	cmd.AddCommand(HistoryCmd(env))

	return cmd
}

// runRedub executes a redub run.
// Validation order: logger -> config -> model/mode -> inputs -> reference ->
// settings -> ffmpeg -> backends. Nothing is written before all pass.
func runRedub(cmd *cobra.Command, env *Env, args []string, opts redubOptions) error {
	ctx := cmd.Context()

	// === VALIDATION (fail-fast) ===

	log, err := NewLogger(env.Stderr, opts.verbose, opts.logFormat)
	if err != nil {
		return err
	}

	cfg, err := env.ConfigLoader.Load(cmd.Flags())
	if err != nil {
		return err
	}
	model, err := convert.ParseModel(cfg.Model)
	if err != nil {
		return err
	}
	mode, err := convert.ParseMode(cfg.InferenceMode)
	if err != nil {
		return err
	}

	inputs, reference, outDir, err := gatherInputs(cmd, args, opts, cfg.OutputDir)
	if err != nil {
		return err
	}

	settings := redub.DefaultSettings()
	settings.Model = model
	settings.Mode = mode
	settings.Steps = cfg.Steps
	settings.MaxSegment = time.Duration(cfg.MaxSegmentDuration * float64(time.Second))
	settings.Silence = audio.SilenceParams{
		MinSilenceLen: time.Duration(cfg.MinSilenceLen) * time.Millisecond,
		Threshold:     float64(cfg.SilenceThreshold),
	}
	settings.VocalGainDB = opts.vocalVolume
	settings.InstrumentalGainDB = opts.instrumentalVolume
	settings.SkipSeparation = opts.skipSeparation
	settings.SkipTrim = opts.skipTrim
	settings.SourceLanguage = opts.inputLanguage
	settings.ReferenceLanguage = opts.refLanguage
	settings.Bitrate = cfg.AudioBitrate
	settings.OutputDir = outDir
	settings.Parallel = cfg.Parallel
	if settings, err = settings.Normalize(); err != nil {
		return err
	}

	// === SETUP ===

	ffmpegPath, err := env.FFmpegResolver.Resolve(ctx)
	if err != nil {
		return err
	}
	env.FFmpegResolver.CheckVersion(ctx, ffmpegPath)

	pipelineOpts := []redub.Option{
		redub.WithLogger(log),
		redub.WithProgress(env.Stderr),
	}
	if !settings.SkipSeparation {
		pipelineOpts = append(pipelineOpts, redub.WithSeparator(env.Backends.NewSeparator(cfg.SeparatorCommand, log)))
	}
	if model.NeedsTranscripts(mode) {
		t, err := env.Backends.NewTranscriber(env.Getenv(EnvOpenAIAPIKey), log)
		if err != nil {
			return err
		}
		pipelineOpts = append(pipelineOpts, redub.WithTranscriber(t))
	}

	converters := redub.NewConverterCache(func(m convert.Model, _ convert.Mode) (convert.Converter, error) {
		return env.Backends.NewConverter(cfg, m, log)
	})
	if _, err := converters.Get(model, mode); err != nil {
		return err
	}

	pipeline, err := redub.New(settings, env.Backends.NewMediaTool(ffmpegPath, log), converters, pipelineOpts...)
	if err != nil {
		return err
	}

	// === RUN ===

	registry := tempfiles.New(tempfiles.WithKeep(opts.keepTemp), tempfiles.WithLogger(log))
	handler, ctx := env.Interrupts(ctx)
	handler.OnAbort(func() { _ = registry.Cleanup() })
	defer handler.Stop()
	defer func() {
		if err := registry.Cleanup(); err != nil {
			log.WithError(err).Warn("failed to remove temporary files")
		}
	}()

	runID := history.NewRunID()
	ledger := startHistory(ctx, env, cfg, log, &history.Run{
		ID:        runID,
		StartedAt: env.Now(),
		Reference: reference,
		Model:     string(model),
		Mode:      string(mode),
	})
	if ledger != nil {
		defer func() { _ = ledger.Close() }()
	}

	batch := redub.NewBatch(pipeline, registry,
		redub.WithRunID(runID),
		redub.WithBatchLogger(log),
		redub.WithBatchProgress(env.Stderr),
	)
	report, err := batch.Run(ctx, reference, inputs)
	if err != nil {
		finishHistory(ctx, ledger, log, runID, runStatus(err), nil)
		return err
	}
	finishHistory(ctx, ledger, log, runID, report.Status(), report.Records())

	if opts.report != "" {
		if err := report.SaveYAML(opts.report); err != nil {
			fmt.Fprintf(env.Stderr, "Warning: %v\n", err)
		} else {
			fmt.Fprintf(env.Stderr, "Report: %s\n", opts.report)
		}
	}

	fmt.Fprintf(env.Stderr, "Redubbed %d of %d file(s) in %s\n",
		len(report.Files)-report.Failed(), len(report.Files),
		format.Elapsed(report.FinishedAt.Sub(report.StartedAt)))

	if err := report.Err(); err != nil {
		return err
	}
	if handler.WasInterrupted() {
		return context.Canceled
	}
	return nil
}

// gatherInputs resolves the input list, reference voice and output
// directory from -i, -d, -v and positional arguments.
func gatherInputs(cmd *cobra.Command, args []string, opts redubOptions, outDir string) ([]string, string, string, error) {
	if err := checkExists(opts.inputs...); err != nil {
		return nil, "", "", err
	}
	if err := checkExists(args...); err != nil {
		return nil, "", "", err
	}
	if opts.reference != "" {
		if err := checkExists(opts.reference); err != nil {
			return nil, "", "", fmt.Errorf("reference voice: %w", err)
		}
	}

	inputs := slices.Clone(opts.inputs)
	if opts.inDir != "" {
		found, err := redub.Discover(opts.inDir, redub.Classify)
		if err != nil {
			return nil, "", "", err
		}
		inputs = append(inputs, found...)
		if !cmd.Flags().Changed("out-dir") {
			outDir = redub.DefaultOutputDir(opts.inDir)
		}
	}

	inputs, reference, err := redub.SortArgs(args, inputs, opts.reference, redub.Classify)
	if err != nil {
		return nil, "", "", err
	}
	if len(inputs) == 0 {
		return nil, "", "", redub.ErrNoInputs
	}
	if reference == "" {
		return nil, "", "", fmt.Errorf("%w (use -v)", redub.ErrMissingReference)
	}
	return inputs, reference, outDir, nil
}

// checkExists returns ErrFileNotFound for the first missing path.
func checkExists(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", ErrFileNotFound, p)
			}
			return fmt.Errorf("cannot access %s: %w", p, err)
		}
	}
	return nil
}

// startHistory opens the ledger and records the run. The ledger is
// best effort: failures are logged and the run goes on without it.
func startHistory(ctx context.Context, env *Env, cfg config.Config, log logrus.FieldLogger, run *history.Run) HistoryStore {
	path := cfg.HistoryDB
	if path == "" {
		p, err := history.DefaultPath()
		if err != nil {
			log.WithError(err).Warn("run history disabled")
			return nil
		}
		path = p
	}
	store, err := env.History.Open(path)
	if err != nil {
		log.WithError(err).Warn("run history disabled")
		return nil
	}
	if err := store.Start(ctx, run); err != nil {
		log.WithError(err).Warn("run history disabled")
		_ = store.Close()
		return nil
	}
	return store
}

// finishHistory records the outcome even when ctx was canceled.
func finishHistory(ctx context.Context, store HistoryStore, log logrus.FieldLogger, id, status string, files []history.FileRecord) {
	if store == nil {
		return
	}
	if err := store.Finish(context.WithoutCancel(ctx), id, status, files); err != nil {
		log.WithError(err).Warn("failed to record run history")
	}
}

// runStatus maps a run that could not start to a history status.
func runStatus(err error) string {
	if errors.Is(err, context.Canceled) {
		return history.StatusInterrupted
	}
	return history.StatusFailed
}
