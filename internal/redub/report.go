package redub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/redub/redub/internal/convert"
	"github.com/redub/redub/internal/format"
	"github.com/redub/redub/internal/history"
)

// FileResult is the outcome of one input file.
type FileResult struct {
	Input  string
	Output string // empty when Err is set
	Kind   Kind
	// Duration is the playing time of the vocal track.
	Duration    time.Duration
	Chunks      int
	Irreducible int
	// Corrected counts converted chunks that were padded or trimmed.
	Corrected int
	Warnings  []string
	Elapsed   time.Duration
	Err       error
}

// OK reports whether the file was redubbed.
func (r FileResult) OK() bool { return r.Err == nil }

// Report aggregates the results of one batch run.
type Report struct {
	RunID      string
	Reference  string
	Model      convert.Model
	Mode       convert.Mode
	StartedAt  time.Time
	FinishedAt time.Time
	Files      []FileResult
}

// Failed returns the number of files that ended in error.
func (r *Report) Failed() int {
	n := 0
	for _, f := range r.Files {
		if !f.OK() {
			n++
		}
	}
	return n
}

// Interrupted reports whether any file stopped on cancellation.
func (r *Report) Interrupted() bool {
	for _, f := range r.Files {
		if errors.Is(f.Err, context.Canceled) {
			return true
		}
	}
	return false
}

// Status returns the run status recorded in history.
func (r *Report) Status() string {
	failed := r.Failed()
	switch {
	case r.Interrupted():
		return history.StatusInterrupted
	case failed == 0:
		return history.StatusOK
	case failed < len(r.Files):
		return history.StatusPartial
	default:
		return history.StatusFailed
	}
}

// Err summarises the run as a single error: nil when every file
// succeeded, ErrPartialFailure when some did, and the joined file errors
// when none did.
func (r *Report) Err() error {
	failed := r.Failed()
	if failed == 0 {
		return nil
	}
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Input, f.Err))
		}
	}
	if r.Interrupted() {
		return errors.Join(errs...)
	}
	if failed < len(r.Files) {
		return fmt.Errorf("%w: %d of %d", ErrPartialFailure, failed, len(r.Files))
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("all %d files failed: %w", failed, errors.Join(errs...))
}

// Records converts the file results to history rows.
func (r *Report) Records() []history.FileRecord {
	out := make([]history.FileRecord, len(r.Files))
	for i, f := range r.Files {
		out[i] = history.FileRecord{
			Input:       f.Input,
			Output:      f.Output,
			Chunks:      f.Chunks,
			Irreducible: f.Irreducible,
			DurationMS:  f.Duration.Milliseconds(),
			Warnings:    len(f.Warnings),
		}
		if f.Err != nil {
			out[i].Error = f.Err.Error()
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// YAML
// ---------------------------------------------------------------------------

type reportDoc struct {
	Run        string    `yaml:"run,omitempty"`
	Reference  string    `yaml:"reference"`
	Model      string    `yaml:"model"`
	Mode       string    `yaml:"mode"`
	Status     string    `yaml:"status"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	Elapsed    string    `yaml:"elapsed"`
	Files      []fileDoc `yaml:"files"`
}

type fileDoc struct {
	Input       string   `yaml:"input"`
	Output      string   `yaml:"output,omitempty"`
	Kind        string   `yaml:"kind,omitempty"`
	Duration    string   `yaml:"duration,omitempty"`
	Chunks      int      `yaml:"chunks"`
	Irreducible int      `yaml:"irreducible,omitempty"`
	Corrected   int      `yaml:"corrected,omitempty"`
	Warnings    []string `yaml:"warnings,omitempty"`
	Elapsed     string   `yaml:"elapsed"`
	Error       string   `yaml:"error,omitempty"`
}

// WriteYAML encodes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	doc := reportDoc{
		Run:        r.RunID,
		Reference:  r.Reference,
		Model:      string(r.Model),
		Mode:       string(r.Mode),
		Status:     r.Status(),
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Elapsed:    format.Elapsed(r.FinishedAt.Sub(r.StartedAt)),
		Files:      make([]fileDoc, len(r.Files)),
	}
	for i, f := range r.Files {
		fd := fileDoc{
			Input:       f.Input,
			Output:      f.Output,
			Chunks:      f.Chunks,
			Irreducible: f.Irreducible,
			Corrected:   f.Corrected,
			Warnings:    f.Warnings,
			Elapsed:     format.Elapsed(f.Elapsed),
		}
		if f.Kind != KindUnknown {
			fd.Kind = f.Kind.String()
		}
		if f.Duration > 0 {
			fd.Duration = format.Duration(f.Duration)
		}
		if f.Err != nil {
			fd.Error = f.Err.Error()
		}
		doc.Files[i] = fd
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// SaveYAML writes the report to path.
func (r *Report) SaveYAML(path string) (err error) {
	f, err := os.Create(path) // #nosec G304 -- user-specified report path
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report: %w", cerr)
		}
	}()
	return r.WriteYAML(f)
}
