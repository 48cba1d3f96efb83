package redub

import (
	"fmt"
	"time"

	"github.com/redub/redub/internal/audio"
	"github.com/redub/redub/internal/convert"
	"github.com/redub/redub/internal/lang"
)

// Settings holds the per-run choices shared by every file of a batch.
type Settings struct {
	Model convert.Model
	Mode  convert.Mode
	Steps int

	// MaxSegment bounds chunk length. Zero selects the model default.
	MaxSegment time.Duration
	Silence    audio.SilenceParams

	VocalGainDB        int
	InstrumentalGainDB int

	SkipSeparation bool
	// SkipTrim keeps converted chunks at their own length.
	SkipTrim bool

	SourceLanguage    string
	ReferenceLanguage string

	// Bitrate of the final audio, in kbps.
	Bitrate   int
	OutputDir string
	// TempDir is where work directories are created. Empty means os.TempDir.
	TempDir string
	// Parallel is the number of files processed at once.
	Parallel int
}

// DefaultSettings returns the settings of a plain "redub -v ref in" run.
func DefaultSettings() Settings {
	return Settings{
		Model:             convert.Model1,
		Mode:              convert.ModeTimbre,
		Steps:             48,
		Silence:           audio.DefaultSilenceParams(),
		SourceLanguage:    lang.Default,
		ReferenceLanguage: lang.Default,
		Bitrate:           128,
		Parallel:          1,
	}
}

// Normalize validates s and fills model-dependent defaults.
func (s Settings) Normalize() (Settings, error) {
	if err := s.Model.Check(s.Mode); err != nil {
		return s, err
	}
	if s.Steps <= 0 {
		return s, fmt.Errorf("%w: steps must be positive, got %d", ErrInvalidSettings, s.Steps)
	}
	if s.Bitrate <= 0 {
		return s, fmt.Errorf("%w: audio bitrate must be positive, got %d", ErrInvalidSettings, s.Bitrate)
	}
	if s.MaxSegment < 0 {
		return s, fmt.Errorf("%w: max segment duration must be positive, got %v", ErrInvalidSettings, s.MaxSegment)
	}
	if s.MaxSegment == 0 {
		s.MaxSegment = s.Model.DefaultMaxSegment(s.Mode)
	}
	if err := s.Silence.Validate(); err != nil {
		return s, err
	}

	if err := lang.ValidateConversion(s.SourceLanguage); err != nil {
		return s, fmt.Errorf("input language: %w", err)
	}
	if err := lang.ValidateConversion(s.ReferenceLanguage); err != nil {
		return s, fmt.Errorf("reference language: %w", err)
	}
	s.SourceLanguage = lang.OrDefault(s.SourceLanguage)
	s.ReferenceLanguage = lang.OrDefault(s.ReferenceLanguage)

	if s.Parallel < 1 {
		s.Parallel = 1
	}
	return s, nil
}
