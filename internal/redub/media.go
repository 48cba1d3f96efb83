package redub

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the media category of an input file.
type Kind int

// Media kinds.
const (
	KindUnknown Kind = iota
	KindAudio
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Classify sniffs the content of path and reports whether it is audio or
// video. Extensions are not trusted; an .mp4 holding only sound is still
// a video container and is muxed back as one.
func Classify(path string) (Kind, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return KindUnknown, fmt.Errorf("detect type of %s: %w", path, err)
	}
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "video/"):
			return KindVideo, nil
		case strings.HasPrefix(m.String(), "audio/"):
			return KindAudio, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %s is %s", ErrUnsupportedInput, path, mt.String())
}

// Discover walks dir and returns every audio or video file below it in
// lexical order. Other files are skipped silently.
func Discover(dir string, classify func(string) (Kind, error)) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoInputs, dir)
	}

	var found []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if kind, cerr := classify(path); cerr == nil && kind != KindUnknown {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	slices.Sort(found)
	return found, nil
}

// SortArgs splits positional arguments into inputs and a reference
// voice. Videos are always inputs. Audio files are inputs once a
// reference is known; otherwise the first audio file becomes the
// reference when an input was already named, and is ambiguous when none was.
func SortArgs(args []string, inputs []string, reference string, classify func(string) (Kind, error)) ([]string, string, error) {
	out := append([]string(nil), inputs...)
	for _, arg := range args {
		if _, err := os.Stat(arg); err != nil {
			return nil, "", fmt.Errorf("input %s: %w", arg, err)
		}
		kind, err := classify(arg)
		if err != nil {
			return nil, "", err
		}
		switch {
		case kind == KindVideo:
			out = append(out, arg)
		case reference != "":
			out = append(out, arg)
		case len(out) == 0:
			return nil, "", fmt.Errorf("%w: %s", ErrAmbiguousInput, arg)
		default:
			reference = arg
		}
	}
	return out, reference, nil
}
