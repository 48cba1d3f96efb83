package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/redub/redub/internal/apierr"
)

// convertPath is appended to the server base URL.
const convertPath = "/convert"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// httpDoer abstracts the HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ Converter = (*HTTPConverter)(nil)

// HTTPConverter posts each chunk to a conversion server as multipart form
// data and writes the WAV response body to disk.
//
// Form fields: model, mode, steps, source_language, reference_language,
// transcript, reference_transcript. Files: source, reference.
type HTTPConverter struct {
	baseURL string
	model   Model
	client  httpDoer
	limiter *rate.Limiter
	retry   apierr.RetryConfig
	log     logrus.FieldLogger
}

// HTTPOption configures an HTTPConverter.
type HTTPOption func(*HTTPConverter)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c httpDoer) HTTPOption {
	return func(h *HTTPConverter) { h.client = c }
}

// WithRate limits requests to rps per second. Zero or negative means unlimited.
func WithRate(rps float64) HTTPOption {
	return func(h *HTTPConverter) {
		if rps > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetry sets the backoff policy for transient failures.
func WithRetry(cfg apierr.RetryConfig) HTTPOption {
	return func(h *HTTPConverter) { h.retry = cfg }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l logrus.FieldLogger) HTTPOption {
	return func(h *HTTPConverter) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHTTPConverter creates a converter for the server at baseURL running model.
func NewHTTPConverter(baseURL string, model Model, opts ...HTTPOption) *HTTPConverter {
	h := &HTTPConverter{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 10 * time.Minute},
		limiter: rate.NewLimiter(rate.Inf, 1),
		retry:   apierr.DefaultRetryConfig,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Convert converts every chunk in order. The first failure stops the job.
func (h *HTTPConverter) Convert(ctx context.Context, req Request) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	outputs := make([]string, 0, len(req.Chunks))
	for i, chunk := range req.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := OutputName(chunk, req.Reference, req.OutputDir)

		retry := h.retry
		retry.OnRetry = func(attempt int, err error, delay time.Duration) {
			h.log.WithFields(logrus.Fields{"chunk": i, "attempt": attempt, "delay": delay}).
				WithError(err).Warn("retrying conversion")
		}
		_, err := apierr.RetryWithBackoff(ctx, retry, func() (struct{}, error) {
			return struct{}{}, h.post(ctx, req, i, out)
		}, apierr.IsRetryable)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &ChunkError{Index: i, Chunk: filepath.Base(chunk), Err: err}
		}

		h.log.WithFields(logrus.Fields{"chunk": i, "file": filepath.Base(out)}).Debug("converted chunk")
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// post sends chunk i and writes the converted audio to out.
func (h *HTTPConverter) post(ctx context.Context, req Request, i int, out string) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	body, contentType, err := h.form(req, i)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+convertPath, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%v: %w", err, apierr.ErrTimeout)
		}
		// Connection-level failures are treated as a transient server outage.
		return fmt.Errorf("%v: %w", err, apierr.ErrServer)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apierr.ClassifyStatus(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return writeFile(out, resp.Body)
}

// form builds the multipart body for chunk i.
func (h *HTTPConverter) form(req Request, i int) (*bytes.Buffer, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fields := []struct{ name, value string }{
		{"model", string(h.model)},
		{"mode", string(req.Mode)},
		{"steps", strconv.Itoa(req.Steps)},
		{"source_language", req.SourceLanguage},
		{"reference_language", req.ReferenceLanguage},
		{"transcript", req.transcript(i)},
		{"reference_transcript", req.ReferenceTranscript},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", f.name, err)
		}
	}

	if err := attach(w, "source", req.Chunks[i]); err != nil {
		return nil, "", err
	}
	if err := attach(w, "reference", req.Reference); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &b, w.FormDataContentType(), nil
}

func attach(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path) // #nosec G304 -- chunk and reference paths come from the pipeline
	if err != nil {
		return fmt.Errorf("open %s: %w", field, err)
	}
	defer func() { _ = f.Close() }()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s: %w", field, err)
	}
	return nil
}

// writeFile streams r to path, removing the partial file on failure.
func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path) // #nosec G304 -- output path built by OutputName
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write output: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
