package redub

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/redub/redub/internal/format"
	"github.com/redub/redub/internal/tempfiles"
)

// Batch runs a Pipeline over many files with a shared reference voice.
type Batch struct {
	pipeline *Pipeline
	registry *tempfiles.Registry
	names    *namer
	runID    string
	log      logrus.FieldLogger
	progress io.Writer
	now      func() time.Time
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithRunID tags the report with a run identifier.
func WithRunID(id string) BatchOption {
	return func(b *Batch) { b.runID = id }
}

// WithBatchLogger sets the logger.
func WithBatchLogger(l logrus.FieldLogger) BatchOption {
	return func(b *Batch) {
		if l != nil {
			b.log = l
		}
	}
}

// WithBatchProgress sets where the per-file summary lines are written.
func WithBatchProgress(w io.Writer) BatchOption {
	return func(b *Batch) {
		if w != nil {
			b.progress = w
		}
	}
}

// withBatchClock sets the time source (for testing).
func withBatchClock(now func() time.Time) BatchOption {
	return func(b *Batch) { b.now = now }
}

// NewBatch creates a Batch. Work files go to registry; the caller owns
// its cleanup.
func NewBatch(p *Pipeline, registry *tempfiles.Registry, opts ...BatchOption) *Batch {
	b := &Batch{
		pipeline: p,
		registry: registry,
		names:    newNamer(p.settings.OutputDir),
		log:      p.log,
		progress: p.progress,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run prepares the reference once and redubs every input, at most
// Settings.Parallel at a time. A failing file never stops its siblings;
// its error is kept in the report. The returned error is set only when
// the run could not start (no inputs, unusable reference).
func (b *Batch) Run(ctx context.Context, reference string, inputs []string) (*Report, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	s := b.pipeline.settings
	report := &Report{
		RunID:     b.runID,
		Reference: reference,
		Model:     s.Model,
		Mode:      s.Mode,
		StartedAt: b.now(),
		Files:     make([]FileResult, len(inputs)),
	}

	ref, err := b.pipeline.PrepareReference(ctx, reference, b.registry)
	if err != nil {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{
		"run":       b.runID,
		"reference": reference,
		"duration":  ref.Duration,
		"files":     len(inputs),
	}).Info("redub run started")

	var g errgroup.Group
	g.SetLimit(s.Parallel)
	for i, input := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				report.Files[i] = FileResult{Input: input, Err: err}
				return nil
			}
			kind, err := b.pipeline.classify(input)
			if err != nil {
				report.Files[i] = FileResult{Input: input, Err: err}
				return nil
			}
			output := b.names.reserve(OutputName(input, kind, s.Mode))
			fmt.Fprintf(b.progress, "Processing %q\n", input)
			report.Files[i] = b.pipeline.ProcessKind(ctx, ref, input, kind, output, b.registry)
			return nil
		})
	}
	_ = g.Wait()
	report.FinishedAt = b.now()

	for _, f := range report.Files {
		if f.OK() {
			fmt.Fprintf(b.progress, "Output file: %s (%s)\n", f.Output, format.Elapsed(f.Elapsed))
		} else {
			fmt.Fprintf(b.progress, "Failed: %s: %v\n", f.Input, f.Err)
		}
	}
	return report, nil
}
