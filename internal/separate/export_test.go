package separate

import "os"

// DirReader mirrors the internal directory listing interface for mocks.
type DirReader interface {
	ReadDir(name string) ([]os.DirEntry, error)
}

// WithDirReader injects a mock directory listing.
func WithDirReader(d DirReader) Option {
	return withDirReader(d)
}
