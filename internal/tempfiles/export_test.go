package tempfiles

import "os"

// Export internal functions for testing.

// FileRemover mirrors fileRemover for test mocks.
type FileRemover interface {
	Remove(name string) error
	RemoveAll(path string) error
}

// DirCreator mirrors dirCreator for test mocks.
type DirCreator interface {
	MkdirAll(path string, perm os.FileMode) error
}

// WithFileRemover exports withFileRemover for testing.
func WithFileRemover(f FileRemover) Option { return withFileRemover(f) }

// WithDirCreator exports withDirCreator for testing.
func WithDirCreator(d DirCreator) Option { return withDirCreator(d) }
