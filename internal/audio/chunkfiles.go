package audio

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var chunkIndexPattern = regexp.MustCompile(`_segment_(\d+)`)

// ChunkFileName returns the file name of chunk index for base.
func ChunkFileName(base string, index int) string {
	return fmt.Sprintf("%s_segment_%03d.wav", base, index)
}

// ChunkIndex extracts the segment index from a chunk file path.
// Converted files keep the index because converters append to the stem.
func ChunkIndex(path string) (int, error) {
	m := chunkIndexPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, fmt.Errorf("%s: %w", path, ErrChunkIndex)
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, ErrChunkIndex)
	}
	return idx, nil
}

// SortChunkFiles orders paths by parsed segment index, so _segment_1000
// follows _segment_999. Paths without an index are an error.
func SortChunkFiles(paths []string) ([]string, error) {
	type indexed struct {
		idx  int
		path string
	}
	items := make([]indexed, len(paths))
	for i, p := range paths {
		idx, err := ChunkIndex(p)
		if err != nil {
			return nil, err
		}
		items[i] = indexed{idx: idx, path: p}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].idx < items[j].idx })
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.path
	}
	return out, nil
}

// LoadChunkFiles sorts paths by segment index and decodes each one.
func LoadChunkFiles(paths []string) ([]*Waveform, error) {
	sorted, err := SortChunkFiles(paths)
	if err != nil {
		return nil, err
	}
	out := make([]*Waveform, len(sorted))
	for i, p := range sorted {
		w, err := LoadWAV(p)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// Persist writes every chunk of s as a WAV file in dir and returns the
// paths in chunk order.
func (s *ChunkSet) Persist(dir, base string) ([]string, error) {
	paths := make([]string, len(s.Chunks))
	for i := range s.Chunks {
		p := filepath.Join(dir, ChunkFileName(base, i))
		if err := SaveWAV(p, s.Waveform(i)); err != nil {
			return nil, fmt.Errorf("persist chunk %d: %w", i, err)
		}
		paths[i] = p
	}
	return paths, nil
}
