package redub

import "errors"

// ErrNoInputs indicates that no audio or video file was given or found.
var ErrNoInputs = errors.New("no input files")

// ErrMissingReference indicates that no reference voice was given.
var ErrMissingReference = errors.New("reference voice sample required")

// ErrReferenceTooLong indicates a reference voice longer than the model accepts.
var ErrReferenceTooLong = errors.New("reference voice is too long")

// ErrUnsupportedInput indicates a file that is neither audio nor video.
var ErrUnsupportedInput = errors.New("unsupported input type")

// ErrAmbiguousInput indicates a positional audio file that could be
// either the input or the reference voice.
var ErrAmbiguousInput = errors.New("cannot tell input audio from reference voice, use -i or -v")

// ErrInvalidSettings indicates settings that cannot produce a run.
var ErrInvalidSettings = errors.New("invalid settings")

// ErrPartialFailure indicates a batch where some files failed and others succeeded.
var ErrPartialFailure = errors.New("some files failed")
