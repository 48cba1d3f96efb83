// Package config loads redub settings from defaults, the user config file
// ($XDG_CONFIG_HOME/redub/config.yaml), REDUB_* environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config keys.
const (
	KeyOutputDir          = "output-dir"
	KeyMaxSegmentDuration = "max-segment-duration"
	KeyMinSilenceLen      = "min-silence-len"
	KeySilenceThreshold   = "silence-threshold"
	KeyAudioBitrate       = "audio-bitrate"
	KeyInferenceMode      = "inference-mode"
	KeyModel              = "model"
	KeySteps              = "steps"
	KeySeparatorCommand   = "separator-command"
	KeyConverterURL       = "converter-url"
	KeyConverterCommand   = "converter-command"
	KeyConverterRate      = "converter-rate"
	KeyParallel           = "parallel"
	KeyHistoryDB          = "history-db"
)

// EnvPrefix prefixes environment overrides: output-dir -> REDUB_OUTPUT_DIR.
const EnvPrefix = "REDUB"

const fileName = "config.yaml"

// ErrUnknownKey is returned by Save and Get for keys outside Keys().
var ErrUnknownKey = errors.New("unknown config key")

// Config holds the resolved settings for a run.
type Config struct {
	OutputDir          string  `mapstructure:"output-dir"`
	MaxSegmentDuration float64 `mapstructure:"max-segment-duration"` // seconds, 0 = model default
	MinSilenceLen      int     `mapstructure:"min-silence-len"`      // milliseconds
	SilenceThreshold   int     `mapstructure:"silence-threshold"`    // dBFS
	AudioBitrate       int     `mapstructure:"audio-bitrate"`        // kbps
	InferenceMode      string  `mapstructure:"inference-mode"`
	Model              string  `mapstructure:"model"`
	Steps              int     `mapstructure:"steps"`
	SeparatorCommand   string  `mapstructure:"separator-command"`
	ConverterURL       string  `mapstructure:"converter-url"`
	ConverterCommand   string  `mapstructure:"converter-command"`
	ConverterRate      float64 `mapstructure:"converter-rate"` // requests per second, 0 = unlimited
	Parallel           int     `mapstructure:"parallel"`
	HistoryDB          string  `mapstructure:"history-db"`
}

// defaults mirrors the CLI flag defaults.
var defaults = map[string]any{
	KeyOutputDir:          "",
	KeyMaxSegmentDuration: 0.0,
	KeyMinSilenceLen:      350,
	KeySilenceThreshold:   -48,
	KeyAudioBitrate:       128,
	KeyInferenceMode:      "timbre",
	KeyModel:              "1",
	KeySteps:              48,
	KeySeparatorCommand:   "audio-separator",
	KeyConverterURL:       "",
	KeyConverterCommand:   "",
	KeyConverterRate:      0.0,
	KeyParallel:           1,
	KeyHistoryDB:          "",
}

// Keys returns every recognised config key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// IsKey reports whether key is a recognised config key.
func IsKey(key string) bool {
	_, ok := defaults[key]
	return ok
}

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/redub.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "redub"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "redub"), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, fileName), nil
}

// newViper returns a fresh viper instance reading the user config file.
// A missing file is not an error.
func newViper() (*viper.Viper, string, error) {
	p, err := Path()
	if err != nil {
		return nil, "", err
	}
	v := viper.New()
	v.SetConfigFile(p)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("failed to read config %s: %w", p, err)
	}
	return v, p, nil
}

// Load resolves the configuration. flags may be nil; when given, each flag
// whose name matches a key (or an alias in flagAliases) overrides the file
// and environment, but only when set explicitly on the command line.
func Load(flags *pflag.FlagSet) (Config, error) {
	var cfg Config

	v, _, err := newViper()
	if err != nil {
		return cfg, err
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range Keys() {
			name := key
			if alias, ok := flagAliases[key]; ok {
				name = alias
			}
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return cfg, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.OutputDir = ExpandPath(cfg.OutputDir)
	cfg.HistoryDB = ExpandPath(cfg.HistoryDB)
	return cfg, nil
}

// flagAliases maps config keys to CLI flag names where they differ.
var flagAliases = map[string]string{
	KeyOutputDir:        "out-dir",
	KeySilenceThreshold: "silence-thresh",
}

// Save writes a single key to the config file, creating it if needed.
// Other keys already in the file are preserved.
func Save(key, value string) error {
	if !IsKey(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	v, p, err := newViper()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	v.Set(key, value)
	if err := v.WriteConfigAs(p); err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	return nil
}

// Get reads a single value from the config file.
// Returns empty string if the key is not set in the file.
func Get(key string) (string, error) {
	if !IsKey(key) {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	v, _, err := newViper()
	if err != nil {
		return "", err
	}
	if !v.IsSet(key) {
		return "", nil
	}
	return v.GetString(key), nil
}

// List returns all values set in the config file.
func List() (map[string]string, error) {
	v, _, err := newViper()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for k, val := range v.AllSettings() {
		out[k] = fmt.Sprint(val)
	}
	return out, nil
}

// ResolveOutputPath resolves the final output path using the following precedence:
//  1. If output is absolute, use it as-is
//  2. If output is relative and outputDir is set, join them
//  3. If output is empty, use defaultName in outputDir (or cwd if no outputDir)
func ResolveOutputPath(output, outputDir, defaultName string) string {
	if output != "" && filepath.IsAbs(output) {
		return filepath.Clean(output)
	}

	if output != "" {
		if outputDir != "" {
			return filepath.Clean(filepath.Join(outputDir, output))
		}
		return filepath.Clean(output)
	}

	if outputDir != "" {
		return filepath.Clean(filepath.Join(outputDir, defaultName))
	}
	return filepath.Clean(defaultName)
}

// ValidOutputDir checks if a directory path is valid for use as output-dir,
// creating it when missing.
func ValidOutputDir(d string) error {
	if d == "" {
		return fmt.Errorf("output-dir cannot be empty")
	}
	d = ExpandPath(d)

	info, err := os.Stat(d)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(d, 0750); err != nil { // #nosec G301 -- user output dir
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", d)
	}

	testFile := filepath.Join(d, ".redub-write-test")
	f, err := os.Create(testFile) // #nosec G304 -- path is constructed from validated dir
	if err != nil {
		return fmt.Errorf("directory is not writable: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(testFile)
		return fmt.Errorf("directory is not writable: %w", err)
	}
	_ = os.Remove(testFile)

	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[2:])
	}
	return p
}
