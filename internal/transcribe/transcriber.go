// Package transcribe produces lyric/speech transcripts for the reference
// voice and each chunk, which the conversion model needs for style and
// voice modes.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/redub/redub/internal/apierr"
	"github.com/redub/redub/internal/lang"
)

// MaxRecommendedParallel is the recommended upper limit for concurrent API requests.
// Higher values may trigger rate limiting.
const MaxRecommendedParallel = 10

// Default retry configuration.
const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
)

// Transcriber transcribes audio files to text.
type Transcriber interface {
	// Transcribe converts an audio file to text. language is an ISO 639-1
	// code or locale; empty means auto-detect.
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// audioTranscriber is an internal interface for OpenAI audio transcription.
// *openai.Client implements this implicitly.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Compile-time interface compliance checks.
var (
	_ Transcriber      = (*OpenAITranscriber)(nil)
	_ audioTranscriber = (*openai.Client)(nil)
)

// OpenAITranscriber transcribes audio using OpenAI's Whisper endpoint.
// It retries transient errors with exponential backoff.
type OpenAITranscriber struct {
	client     audioTranscriber
	model      string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	log        logrus.FieldLogger
}

// TranscriberOption configures an OpenAITranscriber.
type TranscriberOption func(*OpenAITranscriber)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

// WithRetryDelays sets the base and max delays for exponential backoff.
func WithRetryDelays(base, limit time.Duration) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if base > 0 {
			t.baseDelay = base
		}
		if limit > 0 {
			t.maxDelay = limit
		}
	}
}

// WithModel overrides the transcription model (default whisper-1).
func WithModel(model string) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if model != "" {
			t.model = model
		}
	}
}

// WithLogger sets the logger used for retry notices.
func WithLogger(l logrus.FieldLogger) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if l != nil {
			t.log = l
		}
	}
}

// withClient replaces the OpenAI client (for testing).
func withClient(c audioTranscriber) TranscriberOption {
	return func(t *OpenAITranscriber) {
		t.client = c
	}
}

// NewOpenAITranscriber creates a transcriber authenticated with apiKey.
func NewOpenAITranscriber(apiKey string, opts ...TranscriberOption) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	t := &OpenAITranscriber{
		client:     openai.NewClient(apiKey),
		model:      openai.Whisper1,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Transcribe transcribes an audio file, retrying rate limits, timeouts and
// server errors.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	req := openai.AudioRequest{
		Model:    t.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
		Language: lang.BaseCode(language), // OpenAI only accepts ISO 639-1 base codes
	}

	cfg := apierr.RetryConfig{
		MaxRetries: t.maxRetries,
		BaseDelay:  t.baseDelay,
		MaxDelay:   t.maxDelay,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			t.log.WithFields(logrus.Fields{
				"file":    filepath.Base(audioPath),
				"attempt": attempt,
				"delay":   delay,
			}).WithError(err).Warn("retrying transcription")
		},
	}

	text, err := apierr.RetryWithBackoff(ctx, cfg, func() (string, error) {
		resp, err := t.client.CreateTranscription(ctx, req)
		if err != nil {
			return "", classifyError(err)
		}
		return strings.TrimSpace(resp.Text), nil
	}, apierr.IsRetryable)
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filepath.Base(audioPath), err)
	}
	return text, nil
}

// classifyError maps OpenAI client errors to apierr sentinels.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		// Quota exhaustion also arrives as 429 but needs user action.
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests &&
			(strings.Contains(apiErr.Message, "quota") || strings.Contains(apiErr.Message, "billing")) {
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrQuotaExceeded)
		}
		if classified := apierr.ClassifyStatus(apiErr.HTTPStatusCode, apiErr.Message); classified != nil {
			return classified
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if classified := apierr.ClassifyStatus(reqErr.HTTPStatusCode, reqErr.HTTPStatus); classified != nil {
			return classified
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}

	return err
}

// TranscribeAll transcribes paths concurrently, at most maxParallel at a
// time. Results are returned in input order. The first failure cancels the
// remaining requests.
func TranscribeAll(
	ctx context.Context,
	t Transcriber,
	paths []string,
	language string,
	maxParallel int,
) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	if maxParallel < 1 {
		maxParallel = 1
	}

	results := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := t.Transcribe(ctx, p, language)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			results[i] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
