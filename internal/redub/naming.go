package redub

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/redub/redub/internal/config"
	"github.com/redub/redub/internal/convert"
)

// OutputName returns "<base>_(Redub-<mode>)<ext>" for input. Videos keep
// their container; audio is rendered to MP3.
func OutputName(input string, kind Kind, mode convert.Mode) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(filepath.Base(input), ext)
	if kind != KindVideo {
		ext = ".mp3"
	}
	return fmt.Sprintf("%s_(Redub-%s)%s", base, mode, ext)
}

// DefaultOutputDir returns "<dir>.out", the output directory of a
// directory run.
func DefaultOutputDir(inDir string) string {
	return filepath.Clean(inDir) + ".out"
}

// namer hands out output paths that neither exist on disk nor were
// handed out earlier in the run.
type namer struct {
	mu       sync.Mutex
	outDir   string
	reserved map[string]bool
	exists   func(string) bool
}

func newNamer(outDir string) *namer {
	return &namer{
		outDir:   outDir,
		reserved: make(map[string]bool),
		exists: func(p string) bool {
			_, err := os.Stat(p)
			return err == nil
		},
	}
}

// reserve returns the first free path for name, adding "-1", "-2", ...
// before the extension until one is found.
func (n *namer) reserve(name string) string {
	path := config.ResolveOutputPath("", n.outDir, name)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	n.mu.Lock()
	defer n.mu.Unlock()
	for i := 1; n.reserved[path] || n.exists(path); i++ {
		path = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	n.reserved[path] = true
	return path
}
