package transcribe

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// AudioTranscriber mirrors the internal client interface for mocks.
type AudioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// WithClient injects a mock OpenAI client.
func WithClient(c AudioTranscriber) TranscriberOption {
	return withClient(c)
}

// ClassifyError exposes error classification for unit tests.
var ClassifyError = classifyError
