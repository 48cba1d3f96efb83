package lang

import "errors"

var (
	// ErrInvalid indicates an invalid language code was specified.
	ErrInvalid = errors.New("invalid language code")

	// ErrUnsupported indicates a valid code the conversion model cannot use.
	ErrUnsupported = errors.New("unsupported language")
)
