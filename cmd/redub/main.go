package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/redub/redub/internal/apierr"
	"github.com/redub/redub/internal/audio"
	"github.com/redub/redub/internal/cli"
	"github.com/redub/redub/internal/config"
	"github.com/redub/redub/internal/convert"
	"github.com/redub/redub/internal/ffmpeg"
	"github.com/redub/redub/internal/history"
	"github.com/redub/redub/internal/lang"
	"github.com/redub/redub/internal/redub"
	"github.com/redub/redub/internal/separate"
	"github.com/redub/redub/internal/transcribe"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitUsage      = 2
	ExitSetup      = 3
	ExitValidation = 4
	ExitConversion = 5
	ExitPartial    = 6
	ExitInterrupt  = 130
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// Context with signal cancellation.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	env := cli.DefaultEnv()
	rootCmd := cli.RootCmd(env, fmt.Sprintf("%s (commit: %s)", version, commit))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to process exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	// Partial batch failure.
	if errors.Is(err, redub.ErrPartialFailure) {
		return ExitPartial
	}

	// Setup errors: a collaborator is missing.
	if errors.Is(err, ffmpeg.ErrNotFound) || errors.Is(err, transcribe.ErrAPIKeyMissing) ||
		errors.Is(err, convert.ErrNoBackend) {
		return ExitSetup
	}

	// Validation errors: bad inputs or parameters.
	if errors.Is(err, redub.ErrNoInputs) || errors.Is(err, redub.ErrMissingReference) ||
		errors.Is(err, redub.ErrReferenceTooLong) || errors.Is(err, redub.ErrUnsupportedInput) ||
		errors.Is(err, redub.ErrAmbiguousInput) || errors.Is(err, redub.ErrInvalidSettings) ||
		errors.Is(err, convert.ErrUnknownMode) || errors.Is(err, convert.ErrUnknownModel) ||
		errors.Is(err, convert.ErrUnsupportedMode) || errors.Is(err, lang.ErrInvalid) ||
		errors.Is(err, lang.ErrUnsupported) || errors.Is(err, audio.ErrInvalidParams) ||
		errors.Is(err, config.ErrUnknownKey) || errors.Is(err, cli.ErrFileNotFound) ||
		errors.Is(err, cli.ErrInvalidLogFormat) || errors.Is(err, history.ErrNotFound) ||
		errors.Is(err, history.ErrAmbiguous) || errors.Is(err, ffmpeg.ErrUnsupportedContainer) {
		return ExitValidation
	}

	// Conversion, separation and media tool failures.
	if errors.Is(err, convert.ErrConversionFailed) || errors.Is(err, separate.ErrToolFailed) ||
		errors.Is(err, separate.ErrStemsMissing) || errors.Is(err, ffmpeg.ErrToolFailed) ||
		errors.Is(err, ffmpeg.ErrMissingOutput) || errors.Is(err, audio.ErrCorrelationMismatch) ||
		errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrQuotaExceeded) ||
		errors.Is(err, apierr.ErrTimeout) || errors.Is(err, apierr.ErrAuthFailed) ||
		errors.Is(err, apierr.ErrServer) {
		return ExitConversion
	}

	// Usage errors: Cobra flag/arg parsing errors. Domain sentinels win, as the
	// tool output they carry may contain the same phrases.
	if isCobraUsageError(err) {
		return ExitUsage
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// Cobra doesn't expose typed errors, so string matching is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",             // Missing required flag
	"unknown flag",              // Flag doesn't exist
	"unknown shorthand",         // Short flag doesn't exist
	"unknown command",           // Subcommand doesn't exist
	"flag needs an argument",    // Flag provided without value
	"invalid argument",          // Invalid flag value type
	"if any flags in the group", // Mutually exclusive flag violation
	"accepts ",                  // Wrong number of arguments (e.g., "accepts 1 arg(s)")
	"requires at least",         // Too few arguments
	"requires at most",          // Too many arguments
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
