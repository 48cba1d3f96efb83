package convert

import (
	"fmt"
	"slices"
	"time"
)

// Mode selects what the conversion model transfers from the reference voice.
type Mode string

// Inference modes.
const (
	ModeTimbre Mode = "timbre"
	ModeStyle  Mode = "style"
	ModeVoice  Mode = "voice"
)

// Model is the conversion model generation.
type Model string

// Supported model versions.
const (
	Model1  Model = "1"
	Model15 Model = "1.5"
)

var supportedModes = map[Model][]Mode{
	Model1:  {ModeTimbre, ModeVoice},
	Model15: {ModeTimbre, ModeStyle, ModeVoice},
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeTimbre, ModeStyle, ModeVoice:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q (use timbre, style or voice)", ErrUnknownMode, s)
}

// ParseModel validates a model version.
func ParseModel(s string) (Model, error) {
	if _, ok := supportedModes[Model(s)]; ok {
		return Model(s), nil
	}
	return "", fmt.Errorf("%w: %q (use 1 or 1.5)", ErrUnknownModel, s)
}

// Supports reports whether model m can run mode.
func (m Model) Supports(mode Mode) bool {
	return slices.Contains(supportedModes[m], mode)
}

// Check returns ErrUnsupportedMode when m cannot run mode.
func (m Model) Check(mode Mode) error {
	if !m.Supports(mode) {
		return fmt.Errorf("%w: model %s does not support %s", ErrUnsupportedMode, m, mode)
	}
	return nil
}

// NeedsTranscripts reports whether mode on m conditions on lyrics, which
// requires transcribing the reference and every chunk.
func (m Model) NeedsTranscripts(mode Mode) bool {
	return m == Model15 && mode != ModeTimbre
}

// DefaultMaxSegment is the chunk bound used when none is configured.
func (m Model) DefaultMaxSegment(mode Mode) time.Duration {
	if m == Model1 && mode == ModeTimbre {
		return 45 * time.Second
	}
	return 12 * time.Second
}

// MaxReference is the longest reference voice the model accepts.
func (m Model) MaxReference(mode Mode) time.Duration {
	switch {
	case m == Model15:
		return 30 * time.Second
	case mode == ModeTimbre:
		return 45 * time.Second
	}
	return 15 * time.Second
}
