package cli

import "errors"

// CLI-specific sentinel errors.
// These are validation/usage errors that don't belong to domain packages.

var (
	// ErrFileNotFound indicates an input or reference path does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidLogFormat indicates a --log-format other than text or json.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
