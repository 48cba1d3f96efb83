package audio

import (
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Chunk files are always written at this format.
const (
	ChunkSampleRate = 48000
	chunkBitDepth   = 16
	wavFormatPCM    = 1
	// WAVE_FORMAT_EXTENSIBLE; ffmpeg writes it for PCM with more than two channels.
	wavFormatExtensible = 0xFFFE
)

// ReadWAV decodes an integer PCM WAV stream into a Waveform. Extensible
// headers are read as integer PCM; float payloads must be converted first.
func ReadWAV(r io.ReadSeeker) (*Waveform, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode PCM: %w: %w", ErrInvalidWAV, err)
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("audio format %d is not integer PCM: %w", dec.WavAudioFormat, ErrInvalidWAV)
	}
	depth := int(dec.BitDepth)
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("bit depth %d: %w", depth, ErrInvalidWAV)
	}
	channels := int(dec.NumChans)
	rate := int(dec.SampleRate)
	if channels <= 0 || rate <= 0 {
		return nil, fmt.Errorf("%d Hz/%d ch: %w", rate, channels, ErrInvalidWAV)
	}

	scale := float64(int64(1) << (depth - 1))
	// 8-bit WAV is unsigned.
	offset := 0
	if depth == 8 {
		offset = 128
	}
	n := len(buf.Data) - len(buf.Data)%channels
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		samples[i] = float64(buf.Data[i]-offset) / scale
	}
	return &Waveform{samples: samples, sampleRate: rate, channels: channels}, nil
}

// LoadWAV reads a WAV file from disk.
func LoadWAV(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w, err := ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// WriteWAV encodes w as 16-bit PCM at its own sample rate.
func WriteWAV(out io.WriteSeeker, w *Waveform) error {
	enc := wav.NewEncoder(out, w.sampleRate, chunkBitDepth, w.channels, wavFormatPCM)
	data := make([]int, len(w.samples))
	const peak = math.MaxInt16
	for i, s := range w.samples {
		data[i] = int(math.Round(clip(s) * peak))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: w.channels, SampleRate: w.sampleRate},
		Data:           data,
		SourceBitDepth: chunkBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode WAV: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize WAV: %w", err)
	}
	return nil
}

// SaveWAV writes w to path, replacing any existing file.
func SaveWAV(path string, w *Waveform) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return WriteWAV(f, w)
}
