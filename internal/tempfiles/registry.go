// Package tempfiles tracks the intermediate files of one run so they can be
// removed together, exactly once, whatever way the run ends.
package tempfiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// dirPrefix marks directories created by a Registry. Only those are
// removed recursively.
const dirPrefix = "redub-"

// Registry records temp artifacts in creation order.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	files []string
	dirs  []string

	keep bool
	log  logrus.FieldLogger

	mkdir  dirCreator
	remove fileRemover

	once sync.Once
	err  error
}

// Option configures a Registry.
type Option func(*Registry)

// WithKeep leaves every artifact on disk when Cleanup runs.
func WithKeep(keep bool) Option {
	return func(r *Registry) { r.keep = keep }
}

// WithLogger sets the logger used for cleanup diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// withDirCreator and withFileRemover are used by tests.
func withDirCreator(d dirCreator) Option {
	return func(r *Registry) { r.mkdir = d }
}

func withFileRemover(f fileRemover) Option {
	return func(r *Registry) { r.remove = f }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		log:    logrus.StandardLogger(),
		mkdir:  osDirCreator{},
		remove: osFileRemover{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir creates a uniquely named directory under parent and registers it.
// The name is "redub-<label>-<uuid>".
func (r *Registry) Dir(parent, label string) (string, error) {
	name := dirPrefix + label + "-" + uuid.NewString()
	path := filepath.Join(parent, name)
	if err := r.mkdir.MkdirAll(path, 0o750); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	r.mu.Lock()
	r.dirs = append(r.dirs, path)
	r.mu.Unlock()
	return path, nil
}

// Add registers files for removal. Empty paths are ignored.
func (r *Registry) Add(paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range paths {
		if p != "" {
			r.files = append(r.files, p)
		}
	}
}

// Paths returns every registered file and directory.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.files)+len(r.dirs))
	out = append(out, r.files...)
	return append(out, r.dirs...)
}

// Keep reports whether Cleanup leaves artifacts in place.
func (r *Registry) Keep() bool { return r.keep }

// Cleanup removes registered files, then registered directories, newest
// first. It runs once; later calls return the first result. Missing
// files are not errors.
func (r *Registry) Cleanup() error {
	r.once.Do(func() {
		r.err = r.cleanup()
	})
	return r.err
}

func (r *Registry) cleanup() error {
	r.mu.Lock()
	files := append([]string(nil), r.files...)
	dirs := append([]string(nil), r.dirs...)
	r.mu.Unlock()

	if r.keep {
		r.log.WithField("count", len(files)+len(dirs)).Info("keeping temporary files")
		return nil
	}

	var errs []error
	for i := len(files) - 1; i >= 0; i-- {
		if err := r.remove.Remove(files[i]); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		// Safety check: never recurse into a directory we did not create.
		if !strings.HasPrefix(filepath.Base(dirs[i]), dirPrefix) {
			continue
		}
		if err := r.remove.RemoveAll(dirs[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		r.log.WithError(err).Warn("temporary file cleanup incomplete")
		return err
	}
	r.log.WithField("count", len(files)+len(dirs)).Debug("temporary files removed")
	return nil
}
