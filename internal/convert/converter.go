// Package convert adapts the voice conversion model. Both adapters convert
// chunks strictly one at a time, in order, and return one output path per
// input chunk.
package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Request describes one conversion job: every chunk of one input file
// against one reference voice.
type Request struct {
	Chunks              []string
	Reference           string
	Mode                Mode
	Steps               int
	OutputDir           string
	Transcripts         []string // per chunk, only for modes that need lyrics
	ReferenceTranscript string
	SourceLanguage      string
	ReferenceLanguage   string
}

// Validate checks the request is internally consistent.
func (r Request) Validate() error {
	if r.Reference == "" {
		return fmt.Errorf("%w: missing reference voice", ErrConversionFailed)
	}
	if len(r.Transcripts) > 0 && len(r.Transcripts) != len(r.Chunks) {
		return fmt.Errorf("%w: %d transcripts for %d chunks", ErrTranscriptsMismatch, len(r.Transcripts), len(r.Chunks))
	}
	return nil
}

// transcript returns the transcript for chunk i, or "".
func (r Request) transcript(i int) string {
	if i < len(r.Transcripts) {
		return r.Transcripts[i]
	}
	return ""
}

// Converter turns chunk files into converted chunk files, same length and order.
type Converter interface {
	Convert(ctx context.Context, req Request) ([]string, error)
}

// OutputName returns where the converted version of chunk is written:
// <outDir>/<chunk base>_(<reference base>).wav
func OutputName(chunk, reference, outDir string) string {
	base := strings.TrimSuffix(filepath.Base(chunk), filepath.Ext(chunk))
	ref := strings.TrimSuffix(filepath.Base(reference), filepath.Ext(reference))
	return filepath.Join(outDir, fmt.Sprintf("%s_(%s).wav", base, ref))
}
