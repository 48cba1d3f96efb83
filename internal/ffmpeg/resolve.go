package ffmpeg

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Environment variable for a custom ffmpeg path.
const envFFmpegPath = "FFMPEG_PATH"

// minFFmpegMajorVersion is the oldest release known to handle the codecs Tool uses.
const minFFmpegMajorVersion = 4

// Resolver locates the ffmpeg binary.
type Resolver struct {
	files      fileStatter
	env        envProvider
	configured string
	goos       string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithConfiguredPath sets a path from configuration. It wins over FFMPEG_PATH.
func WithConfiguredPath(p string) ResolverOption {
	return func(r *Resolver) { r.configured = p }
}

// WithFileStatter sets the file statter (for testing).
func WithFileStatter(s fileStatter) ResolverOption {
	return func(r *Resolver) { r.files = s }
}

// WithEnvProvider sets the environment provider (for testing).
func WithEnvProvider(e envProvider) ResolverOption {
	return func(r *Resolver) { r.env = e }
}

// WithPlatform overrides the OS used for install instructions (for testing).
func WithPlatform(goos string) ResolverOption {
	return func(r *Resolver) { r.goos = goos }
}

// NewResolver creates a Resolver with the given options.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		files: osFileStatter{},
		env:   osEnvProvider{},
		goos:  runtime.GOOS,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds ffmpeg using the following precedence:
//  1. configured path (error if set but missing)
//  2. FFMPEG_PATH environment variable (error if set but missing)
//  3. System PATH
func (r *Resolver) Resolve(_ context.Context) (string, error) {
	for _, c := range []struct{ source, path string }{
		{"ffmpeg-path", r.configured},
		{envFFmpegPath, r.env.Getenv(envFFmpegPath)},
	} {
		if c.path == "" {
			continue
		}
		if _, err := r.files.Stat(c.path); err != nil {
			return "", fmt.Errorf("%w: %s is set to %q but binary not found", ErrNotFound, c.source, c.path)
		}
		return c.path, nil
	}

	if path, err := r.env.LookPath("ffmpeg"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%w\n\n%s", ErrNotFound, r.installInstructions())
}

func (r *Resolver) installInstructions() string {
	var b strings.Builder
	b.WriteString("Install ffmpeg and make sure it is on your PATH, or set FFMPEG_PATH:\n")
	switch r.goos {
	case "darwin":
		b.WriteString("  brew install ffmpeg")
	case "windows":
		b.WriteString("  winget install ffmpeg")
	default:
		b.WriteString("  sudo apt install ffmpeg   (or your distribution's package manager)")
	}
	return b.String()
}

// VersionChecker verifies FFmpeg version requirements.
type VersionChecker struct {
	executor *Executor
	log      logrus.FieldLogger
}

// VersionCheckerOption configures a VersionChecker.
type VersionCheckerOption func(*VersionChecker)

// WithVersionExecutor sets the executor for running FFmpeg.
func WithVersionExecutor(e *Executor) VersionCheckerOption {
	return func(vc *VersionChecker) { vc.executor = e }
}

// WithVersionLogger sets the logger for version warnings.
func WithVersionLogger(l logrus.FieldLogger) VersionCheckerOption {
	return func(vc *VersionChecker) { vc.log = l }
}

// NewVersionChecker creates a VersionChecker with the given options.
func NewVersionChecker(opts ...VersionCheckerOption) *VersionChecker {
	vc := &VersionChecker{
		executor: NewExecutor(),
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(vc)
	}
	return vc
}

// Check reports the major version of ffmpeg at ffmpegPath, logging a
// warning when it is below the supported minimum. ok is false when the
// version could not be determined; callers proceed anyway.
func (vc *VersionChecker) Check(ctx context.Context, ffmpegPath string) (major int, ok bool) {
	output, err := vc.executor.RunOutput(ctx, ffmpegPath, []string{"-version"})
	if err != nil && output == "" {
		return 0, false
	}

	// "ffmpeg version 6.1.1 Copyright..." or "ffmpeg version n6.1.1..."
	first, _, _ := strings.Cut(output, "\n")
	if first == "" {
		return 0, false
	}
	if _, err := fmt.Sscanf(first, "ffmpeg version %d", &major); err != nil {
		if _, err := fmt.Sscanf(first, "ffmpeg version n%d", &major); err != nil {
			return 0, false
		}
	}

	if major < minFFmpegMajorVersion {
		vc.log.WithFields(logrus.Fields{
			"version":     major,
			"recommended": minFFmpegMajorVersion,
		}).Warn("old ffmpeg detected")
	}
	return major, true
}
