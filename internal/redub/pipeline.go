// Package redub drives the end-to-end redub of one or many media files:
// demux, stem separation, silence chunking, voice conversion, duration
// resync, overlay and final render.
package redub

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/redub/redub/internal/audio"
	"github.com/redub/redub/internal/convert"
	"github.com/redub/redub/internal/format"
	"github.com/redub/redub/internal/separate"
	"github.com/redub/redub/internal/tempfiles"
	"github.com/redub/redub/internal/transcribe"
)

// defaultTranscribeParallel bounds concurrent transcription requests per file.
const defaultTranscribeParallel = 4

// chunkBase names persisted chunk files. It never contains "_segment_",
// so the index parsed back from converted names is the chunk's own.
const chunkBase = "vocals"

// trackDriftTolerance is how far a video's audio track may stray from the
// container duration before the file result carries a warning.
const trackDriftTolerance = time.Second

// MediaTool is the subset of ffmpeg.Tool the pipeline runs.
type MediaTool interface {
	StripAudio(ctx context.Context, in, out string) error
	ExtractAudio(ctx context.Context, in, out string) error
	ToWAV(ctx context.Context, in, out string) error
	ToWAVChannels(ctx context.Context, in, out string, channels int) error
	Encode(ctx context.Context, in, out string, bitrateKbps int) error
	Mux(ctx context.Context, video, audioPath, out string, bitrateKbps int) error
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// Pipeline redubs single files with fixed settings.
type Pipeline struct {
	settings    Settings
	tool        MediaTool
	converters  *ConverterCache
	separator   separate.Separator
	transcriber transcribe.Transcriber
	assembler   *audio.Assembler
	classify    func(string) (Kind, error)
	log         logrus.FieldLogger
	progress    io.Writer
	now         func() time.Time
	parallelTx  int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. It is also handed to the chunk assembler.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithProgress sets where one-line stage messages are written.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) {
		if w != nil {
			p.progress = w
		}
	}
}

// WithSeparator sets the stem separator. Required unless separation is skipped.
func WithSeparator(s separate.Separator) Option {
	return func(p *Pipeline) { p.separator = s }
}

// WithTranscriber sets the transcriber. Required when the model and mode
// need transcripts.
func WithTranscriber(t transcribe.Transcriber) Option {
	return func(p *Pipeline) { p.transcriber = t }
}

// WithTranscribeParallel bounds concurrent transcription requests per file.
func WithTranscribeParallel(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.parallelTx = n
		}
	}
}

// withClassifier replaces content sniffing (for testing).
func withClassifier(fn func(string) (Kind, error)) Option {
	return func(p *Pipeline) { p.classify = fn }
}

// withNow sets the time source (for testing).
func withNow(fn func() time.Time) Option {
	return func(p *Pipeline) { p.now = fn }
}

// New creates a Pipeline. Settings are normalised; collaborators the
// settings depend on must be present.
func New(settings Settings, tool MediaTool, converters *ConverterCache, opts ...Option) (*Pipeline, error) {
	s, err := settings.Normalize()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		settings:   s,
		tool:       tool,
		converters: converters,
		classify:   Classify,
		log:        logrus.StandardLogger(),
		progress:   io.Discard,
		now:        time.Now,
		parallelTx: defaultTranscribeParallel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.assembler = audio.NewAssembler(audio.WithLogger(p.log))

	switch {
	case tool == nil:
		return nil, fmt.Errorf("%w: no media tool", ErrInvalidSettings)
	case converters == nil:
		return nil, fmt.Errorf("%w: no converter", ErrInvalidSettings)
	case !s.SkipSeparation && p.separator == nil:
		return nil, fmt.Errorf("%w: no stem separator (use --skip-separation to redub the whole mix)", ErrInvalidSettings)
	case s.Model.NeedsTranscripts(s.Mode) && p.transcriber == nil:
		return nil, fmt.Errorf("%w: model %s in %s mode needs a transcriber", ErrInvalidSettings, s.Model, s.Mode)
	}
	return p, nil
}

// Settings returns the normalised settings.
func (p *Pipeline) Settings() Settings { return p.settings }

// ---------------------------------------------------------------------------
// Reference voice
// ---------------------------------------------------------------------------

// Reference is a reference voice ready for conversion.
type Reference struct {
	// Source is the path the user gave.
	Source string
	// Path is a WAV rendition of Source.
	Path       string
	Duration   time.Duration
	Transcript string
}

// PrepareReference normalises the reference voice to PCM WAV,
// enforces the model's length limit, and transcribes it when the mode
// uses lyrics. Failures here are configuration errors for the whole run.
func (p *Pipeline) PrepareReference(ctx context.Context, path string, reg *tempfiles.Registry) (*Reference, error) {
	if path == "" {
		return nil, ErrMissingReference
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("reference voice: %w", err)
	}

	// WAV sources are normalised too; float WAVs are not integer PCM.
	dir, err := reg.Dir(p.tempParent(), "reference")
	if err != nil {
		return nil, err
	}
	ref := &Reference{
		Source: path,
		Path:   filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".wav"),
	}
	if err := p.tool.ToWAV(ctx, path, ref.Path); err != nil {
		return nil, fmt.Errorf("convert reference voice: %w", err)
	}

	w, err := audio.LoadWAV(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("reference voice: %w", err)
	}
	ref.Duration = w.Duration()
	limit := p.settings.Model.MaxReference(p.settings.Mode)
	if ref.Duration > limit {
		return nil, fmt.Errorf("%w: %s exceeds %s for model %s in %s mode, use a shorter sample",
			ErrReferenceTooLong, format.Seconds(ref.Duration), format.Seconds(limit),
			p.settings.Model, p.settings.Mode)
	}

	if p.settings.Model.NeedsTranscripts(p.settings.Mode) {
		fmt.Fprintln(p.progress, "Transcribing reference voice...")
		text, err := p.transcriber.Transcribe(ctx, ref.Path, p.settings.ReferenceLanguage)
		if err != nil {
			return nil, fmt.Errorf("transcribe reference voice: %w", err)
		}
		ref.Transcript = text
		p.log.WithField("transcript", text).Debug("reference transcribed")
	}
	return ref, nil
}

// ---------------------------------------------------------------------------
// Per-file processing
// ---------------------------------------------------------------------------

// Process classifies input and redubs it into output against ref. The
// returned result carries any failure; it never panics the batch.
func (p *Pipeline) Process(ctx context.Context, ref *Reference, input, output string, reg *tempfiles.Registry) FileResult {
	kind, err := p.classify(input)
	if err != nil {
		p.log.WithField("file", input).WithError(err).Error("redub failed")
		return FileResult{Input: input, Err: err}
	}
	return p.ProcessKind(ctx, ref, input, kind, output, reg)
}

// ProcessKind is Process for an input already classified as kind.
func (p *Pipeline) ProcessKind(ctx context.Context, ref *Reference, input string, kind Kind, output string, reg *tempfiles.Registry) FileResult {
	start := p.now()
	res := FileResult{Input: input, Output: output, Kind: kind}
	log := p.log.WithField("file", input)

	if err := p.process(ctx, ref, &res, reg, log); err != nil {
		res.Output = ""
		res.Err = err
		log.WithError(err).Error("redub failed")
	} else {
		log.WithField("output", output).Info("redub done")
	}
	res.Elapsed = p.now().Sub(start)
	return res
}

func (p *Pipeline) process(ctx context.Context, ref *Reference, res *FileResult, reg *tempfiles.Registry, log logrus.FieldLogger) error {
	s := p.settings
	input := res.Input
	name := filepath.Base(input)
	stage := func(msg string, args ...any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(p.progress, "%s: %s\n", name, fmt.Sprintf(msg, args...))
		return nil
	}

	kind := res.Kind
	if kind == KindUnknown {
		return fmt.Errorf("%w: %s", ErrUnsupportedInput, input)
	}

	work, err := reg.Dir(p.tempParent(), "work")
	if err != nil {
		return err
	}
	mkdir := func(sub string) (string, error) {
		d := filepath.Join(work, sub)
		if err := os.MkdirAll(d, 0o750); err != nil {
			return "", fmt.Errorf("create work dir: %w", err)
		}
		return d, nil
	}

	// Demux.
	mixed := filepath.Join(work, "source.wav")
	var silentVideo string
	var container time.Duration
	if kind == KindVideo {
		if err := stage("Separating audio from video"); err != nil {
			return err
		}
		silentVideo = filepath.Join(work, "video"+filepath.Ext(input))
		if err := p.tool.StripAudio(ctx, input, silentVideo); err != nil {
			return err
		}
		if err := p.tool.ExtractAudio(ctx, input, mixed); err != nil {
			return err
		}
		if container, err = p.tool.ProbeDuration(ctx, input); err != nil {
			log.WithError(err).Debug("container duration unknown")
			container = 0
		}
	} else if err := p.tool.ToWAV(ctx, input, mixed); err != nil {
		return err
	}

	// Stems.
	vocalPath, instPath := mixed, ""
	if !s.SkipSeparation {
		if err := stage("Separating vocals from instrumental"); err != nil {
			return err
		}
		stemDir, err := mkdir("stems")
		if err != nil {
			return err
		}
		stems, err := p.separator.Separate(ctx, mixed, stemDir)
		if err != nil {
			return err
		}
		vocalPath = filepath.Join(work, "vocals.wav")
		instPath = filepath.Join(work, "instrumental.wav")
		if err := p.tool.ToWAV(ctx, stems.Vocals, vocalPath); err != nil {
			return err
		}
		if err := p.tool.ToWAV(ctx, stems.Instrumental, instPath); err != nil {
			return err
		}
	}

	vocal, err := audio.LoadWAV(vocalPath)
	if err != nil {
		return err
	}
	res.Duration = vocal.Duration()
	if container > 0 {
		if d := container - res.Duration; d > trackDriftTolerance || d < -trackDriftTolerance {
			w := fmt.Sprintf("audio track is %s but the video runs %s", format.Seconds(res.Duration), format.Seconds(container))
			log.Warn(w)
			res.Warnings = append(res.Warnings, w)
		}
	}

	// Chunks.
	if err := stage("Splitting vocals (max %s per chunk)", format.Seconds(s.MaxSegment)); err != nil {
		return err
	}
	set, err := p.assembler.Assemble(vocal, s.MaxSegment, s.Silence)
	if err != nil {
		return err
	}
	res.Chunks = set.Len()
	res.Irreducible = len(set.Irreducible())
	for _, c := range set.Irreducible() {
		res.Warnings = append(res.Warnings, c.String())
	}
	for _, w := range set.Warnings {
		res.Warnings = append(res.Warnings, w.Error())
	}
	chunkDir, err := mkdir("chunks")
	if err != nil {
		return err
	}
	chunks, err := set.Persist(chunkDir, chunkBase)
	if err != nil {
		return err
	}
	log.WithField("chunks", len(chunks)).Debug("chunks persisted")

	var transcripts []string
	if s.Model.NeedsTranscripts(s.Mode) {
		if err := stage("Transcribing %d chunks", len(chunks)); err != nil {
			return err
		}
		// Chunks carry the source speech, so they are transcribed in the source language.
		transcripts, err = transcribe.TranscribeAll(ctx, p.transcriber, chunks, s.SourceLanguage, p.parallelTx)
		if err != nil {
			return err
		}
	}

	// Conversion.
	if err := stage("Converting %d chunks (model %s, %s)", len(chunks), s.Model, s.Mode); err != nil {
		return err
	}
	conv, err := p.converters.Get(s.Model, s.Mode)
	if err != nil {
		return err
	}
	convDir, err := mkdir("converted")
	if err != nil {
		return err
	}
	outs, err := conv.Convert(ctx, convert.Request{
		Chunks:              chunks,
		Reference:           ref.Path,
		Mode:                s.Mode,
		Steps:               s.Steps,
		OutputDir:           convDir,
		Transcripts:         transcripts,
		ReferenceTranscript: ref.Transcript,
		SourceLanguage:      s.SourceLanguage,
		ReferenceLanguage:   s.ReferenceLanguage,
	})
	if err != nil {
		return err
	}

	// Converted chunks come back at the model's rate; bring them to the
	// chunk format before resync.
	normalized := make([]string, len(outs))
	for i, out := range outs {
		normalized[i] = strings.TrimSuffix(out, filepath.Ext(out)) + "_48k.wav"
		if err := p.tool.ToWAVChannels(ctx, out, normalized[i], vocal.Channels()); err != nil {
			return err
		}
	}
	converted, err := audio.LoadChunkFiles(normalized)
	if err != nil {
		return err
	}

	// Resync.
	if err := stage("Reassembling vocals"); err != nil {
		return err
	}
	synced, err := audio.SynchronizeReport(set.Durations(), converted, !s.SkipTrim)
	if err != nil {
		return err
	}
	res.Corrected = synced.Corrected()
	for _, c := range synced.Corrections {
		if c.Action != audio.CorrectionNone {
			log.WithFields(logrus.Fields{
				"chunk":  c.Index,
				"delta":  c.Delta,
				"action": c.Action,
			}).Debug("chunk resynced")
		}
	}
	track := synced.Track

	if !s.SkipSeparation {
		if err := stage("Overlaying vocal and instrumental stems"); err != nil {
			return err
		}
		inst, err := audio.LoadWAV(instPath)
		if err != nil {
			return err
		}
		track, err = audio.Overlay(track, inst, s.VocalGainDB, s.InstrumentalGainDB)
		if err != nil {
			return err
		}
	}

	// Render.
	if err := stage("Rendering %s", filepath.Base(res.Output)); err != nil {
		return err
	}
	final := filepath.Join(work, "redub.wav")
	if err := audio.SaveWAV(final, track); err != nil {
		return err
	}
	if dir := filepath.Dir(res.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil { // #nosec G301 -- user output dir
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if kind == KindVideo {
		return p.tool.Mux(ctx, silentVideo, final, res.Output, s.Bitrate)
	}
	return p.tool.Encode(ctx, final, res.Output, s.Bitrate)
}

func (p *Pipeline) tempParent() string {
	if p.settings.TempDir != "" {
		return p.settings.TempDir
	}
	return os.TempDir()
}
